package game

// PlayerObserver is notified when a player dies.
type PlayerObserver interface {
	OnPlayerKilled()
}

// Player is one participant at the table.
type Player struct {
	ID   int64
	Name string

	alive     bool
	observers []PlayerObserver
}

func NewPlayer(id int64, name string) *Player {
	return &Player{ID: id, Name: name, alive: true}
}

func (p *Player) Alive() bool {
	return p.alive
}

func (p *Player) AddObserver(o PlayerObserver) {
	p.observers = append(p.observers, o)
}

// Kill marks the player dead and notifies its observers. Killing a player who
// is already dead does nothing.
func (p *Player) Kill() {
	if !p.alive {
		return
	}
	p.alive = false
	for _, o := range p.observers {
		o.OnPlayerKilled()
	}
}

// Revive brings a dead player back without notifying anyone.
func (p *Player) Revive() {
	p.alive = true
}

func (p *Player) String() string {
	return p.Name
}

func alivePlayers(players []*Player) []*Player {
	var alive []*Player
	for _, p := range players {
		if p.alive {
			alive = append(alive, p)
		}
	}
	return alive
}
