package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
	"sync"
)

// Table size bounds.
const (
	MinSize = 5
	MaxSize = 20
)

// Roster is what a game needs to know about its players and their roles.
type Roster interface {
	Size() int
	Players() []*Player
	AlivePlayers() []*Player
	Roles() []Role
	// Fractions returns the roles that can win, in registration order.
	Fractions() []Fraction
	PlayersByRole(name string) []*Player
	RolesOf(p *Player) []Role
}

// RoleSetup maps a special role name to how many players receive it. Everyone
// not given a role from the setup is a plain villager.
type RoleSetup map[string]int

// DefaultSetup scales the special roles with the table size.
func DefaultSetup(size int) RoleSetup {
	setup := RoleSetup{
		RoleWerewolf: max(1, size/4),
		RoleSeer:     1,
	}
	if size >= 6 {
		setup[RoleWitch] = 1
	}
	if size >= 7 {
		setup[RoleCupid] = 1
	}
	return setup
}

// Lobby is an in-memory roster. It gathers players before a game and holds
// the roles once they are assigned.
type Lobby struct {
	mu      sync.RWMutex
	id      int64
	admin   *Player
	players []*Player
	roles   []Role
	open    bool
}

// NewLobby creates an open lobby with admin as its first player.
func NewLobby(id int64, admin *Player) *Lobby {
	return &Lobby{
		id:      id,
		admin:   admin,
		players: []*Player{admin},
		open:    true,
	}
}

func (l *Lobby) ID() int64      { return l.id }
func (l *Lobby) Admin() *Player { return l.admin }

func (l *Lobby) Open() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.open
}

func (l *Lobby) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = false
}

func (l *Lobby) Size() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.players)
}

func (l *Lobby) Players() []*Player {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.players)
}

func (l *Lobby) AlivePlayers() []*Player {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return alivePlayers(l.players)
}

func (l *Lobby) Player(id int64) (*Player, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, p := range l.players {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// AddPlayer seats a player. It fails when the lobby is closed, its roles are
// dealt, it is full, or the player is already seated.
func (l *Lobby) AddPlayer(p *Player) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case !l.open:
		return fmt.Errorf("%w: lobby %d is closed", ErrPrecondition, l.id)
	case len(l.roles) > 0:
		return fmt.Errorf("%w: roles of lobby %d are already dealt", ErrPrecondition, l.id)
	case len(l.players) >= MaxSize:
		return fmt.Errorf("%w: lobby %d is full", ErrPrecondition, l.id)
	}
	for _, existing := range l.players {
		if existing.ID == p.ID {
			return fmt.Errorf("%w: player %d is already in lobby %d", ErrPrecondition, p.ID, l.id)
		}
	}
	l.players = append(l.players, p)
	return nil
}

// RemovePlayer unseats a player while the lobby is still open. The admin
// cannot leave.
func (l *Lobby) RemovePlayer(id int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.open || l.admin.ID == id {
		return false
	}
	before := len(l.players)
	l.players = slices.DeleteFunc(l.players, func(p *Player) bool { return p.ID == id })
	return len(l.players) != before
}

// AddRole registers a role. Registration order decides which fraction wins
// when several win at once.
func (l *Lobby) AddRole(r Role) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roles = append(l.roles, r)
}

func (l *Lobby) Roles() []Role {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.roles)
}

func (l *Lobby) RolesAssigned() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.roles) > 0
}

func (l *Lobby) Fractions() []Fraction {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var fractions []Fraction
	for _, r := range l.roles {
		if f, ok := r.(Fraction); ok {
			fractions = append(fractions, f)
		}
	}
	return fractions
}

func (l *Lobby) PlayersByRole(name string) []*Player {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, r := range l.roles {
		if r.Name() == name {
			return r.Players()
		}
	}
	return nil
}

func (l *Lobby) RolesOf(p *Player) []Role {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var roles []Role
	for _, r := range l.roles {
		if r.HasPlayer(p) {
			roles = append(roles, r)
		}
	}
	return roles
}

// AssignRoles deals the setup's special roles to randomly chosen players and
// makes every non-werewolf a villager. The lover fraction is registered first
// so that a lovers' win takes precedence.
func (l *Lobby) AssignRoles(setup RoleSetup, table Table) error {
	if l.RolesAssigned() {
		return fmt.Errorf("%w: roles of lobby %d are already assigned", ErrPrecondition, l.id)
	}

	special := 0
	for name, count := range setup {
		switch name {
		case RoleWerewolf, RoleSeer, RoleWitch, RoleCupid:
		default:
			return fmt.Errorf("%w: unknown role %q", ErrPrecondition, name)
		}
		if count < 0 {
			return fmt.Errorf("%w: negative count for role %q", ErrPrecondition, name)
		}
		special += count
	}
	players := l.Players()
	if setup[RoleWerewolf] == 0 {
		return fmt.Errorf("%w: at least one werewolf is required", ErrPrecondition)
	}
	if special > len(players) {
		return fmt.Errorf("%w: %d special roles for %d players", ErrPrecondition, special, len(players))
	}

	shufflePlayers(players)

	villager := NewVillager(table)
	werewolf := NewWerewolf(table)
	var roles []Role
	var lover *Lover
	if setup[RoleCupid] > 0 {
		lover = NewLover(table)
		roles = append(roles, lover)
	}
	roles = append(roles, villager, werewolf)

	type dealing struct {
		role  Role
		count int
	}
	deal := []dealing{{werewolf, setup[RoleWerewolf]}}
	if n := setup[RoleSeer]; n > 0 {
		seer := NewSeer(table)
		roles = append(roles, seer)
		deal = append(deal, dealing{seer, n})
	}
	if n := setup[RoleWitch]; n > 0 {
		witch := NewWitch(table)
		roles = append(roles, witch)
		deal = append(deal, dealing{witch, n})
	}
	if n := setup[RoleCupid]; n > 0 {
		cupid := NewCupid(table, lover)
		roles = append(roles, cupid)
		deal = append(deal, dealing{cupid, n})
	}

	next := 0
	for _, d := range deal {
		for i := 0; i < d.count; i++ {
			d.role.AddPlayer(players[next])
			next++
		}
	}
	for _, p := range players {
		if !werewolf.HasPlayer(p) {
			villager.AddPlayer(p)
		}
	}

	l.mu.Lock()
	l.roles = roles
	l.mu.Unlock()
	return nil
}

// shufflePlayers shuffles in place using crypto/rand.
func shufflePlayers(players []*Player) {
	for i := len(players) - 1; i > 0; i-- {
		jBig, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			players[i], players[i-1] = players[i-1], players[i]
			continue
		}
		j := int(jBig.Int64())
		players[i], players[j] = players[j], players[i]
	}
}
