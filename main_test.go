package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"slices"
	"strings"
	"testing"

	"werewolves/internal/game"
)

func TestMain(m *testing.M) {
	if os.Getenv("TEST_DEBUG") == "" {
		log.SetOutput(io.Discard)
		game.SetLogger(log.New(io.Discard, "", 0))
	}
	os.Exit(m.Run())
}

// ============================================================================
// Test Helpers
// ============================================================================

// TestContext holds a server with its own database, hub and manual scheduler.
type TestContext struct {
	t         *testing.T
	srv       *server
	store     *Store
	scheduler *game.ManualScheduler
	baseURL   string
}

// testRules deals one werewolf to five players and never breaks ties.
func testRules() Rules {
	rules := defaultRules()
	rules.TieBreak = game.DeciderNoAction
	rules.Setups = map[int]game.RoleSetup{5: {game.RoleWerewolf: 1}}
	return rules
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	store, err := openStore(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestContext(t *testing.T, rules Rules, storyteller Storyteller) *TestContext {
	t.Helper()
	store := newTestStore(t)
	scheduler := &game.ManualScheduler{}
	srv := newServer(store, scheduler, storyteller, rules)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.run(ctx)
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		srv.hub.stop()
	})

	return &TestContext{t: t, srv: srv, store: store, scheduler: scheduler, baseURL: ts.URL}
}

// TestPlayer is a signed-up account with its own cookie jar.
type TestPlayer struct {
	ctx        *TestContext
	ID         int64
	Name       string
	SecretCode string
	client     *http.Client
}

func (tc *TestContext) newClient() *http.Client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		tc.t.Fatalf("cookiejar: %v", err)
	}
	return &http.Client{Jar: jar}
}

func (tc *TestContext) signupPlayer(name string) *TestPlayer {
	tc.t.Helper()
	tp := &TestPlayer{ctx: tc, Name: name, client: tc.newClient()}
	var view PlayerView
	if status := tp.form("/signup", url.Values{"name": {name}}, &view); status != http.StatusCreated {
		tc.t.Fatalf("signup %s: status %d", name, status)
	}
	tp.ID = view.ID
	tp.SecretCode = view.SecretCode
	return tp
}

// form posts values and decodes a JSON answer into out when out is not nil.
func (tp *TestPlayer) form(path string, values url.Values, out any) int {
	tp.ctx.t.Helper()
	resp, err := tp.client.PostForm(tp.ctx.baseURL+path, values)
	if err != nil {
		tp.ctx.t.Fatalf("POST %s: %v", path, err)
	}
	return decodeResponse(tp.ctx.t, resp, out)
}

// do sends a bodyless request and decodes a JSON answer into out when out is
// not nil.
func (tp *TestPlayer) do(method, path string, out any) int {
	tp.ctx.t.Helper()
	req, err := http.NewRequest(method, tp.ctx.baseURL+path, nil)
	if err != nil {
		tp.ctx.t.Fatalf("%s %s: %v", method, path, err)
	}
	resp, err := tp.client.Do(req)
	if err != nil {
		tp.ctx.t.Fatalf("%s %s: %v", method, path, err)
	}
	return decodeResponse(tp.ctx.t, resp, out)
}

func decodeResponse(t *testing.T, resp *http.Response, out any) int {
	t.Helper()
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", resp.Request.URL.Path, err)
		}
	}
	return resp.StatusCode
}

func (tp *TestPlayer) lobbyPath(lobbyID int64, rest string) string {
	return fmt.Sprintf("/lobbies/%d%s", lobbyID, rest)
}

func (tp *TestPlayer) roles(lobbyID int64) []string {
	tp.ctx.t.Helper()
	var roles []game.RoleState
	if status := tp.do(http.MethodGet, tp.lobbyPath(lobbyID, "/roles"), &roles); status != http.StatusOK {
		tp.ctx.t.Fatalf("roles of %s: status %d", tp.Name, status)
	}
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

func (tp *TestPlayer) poll(lobbyID int64) (game.PollState, int) {
	var poll game.PollState
	status := tp.do(http.MethodGet, tp.lobbyPath(lobbyID, "/poll"), &poll)
	return poll, status
}

func (tp *TestPlayer) snapshot(lobbyID int64) game.Snapshot {
	tp.ctx.t.Helper()
	var s game.Snapshot
	if status := tp.do(http.MethodGet, tp.lobbyPath(lobbyID, "/game"), &s); status != http.StatusOK {
		tp.ctx.t.Fatalf("game of %s: status %d", tp.Name, status)
	}
	return s
}

func (tp *TestPlayer) vote(lobbyID int64, option int) int {
	return tp.do(http.MethodPut, tp.lobbyPath(lobbyID, fmt.Sprintf("/poll/votes/%d", option)), nil)
}

// optionFor returns the id of the option naming target.
func optionFor(t *testing.T, poll game.PollState, target *TestPlayer) int {
	t.Helper()
	for _, o := range poll.Options {
		if o.PlayerID == target.ID {
			return o.ID
		}
	}
	t.Fatalf("poll %q has no option for %s", poll.Question, target.Name)
	return 0
}

// openLobby signs up n players; the first creates the lobby and the others join.
func (tc *TestContext) openLobby(n int) (int64, []*TestPlayer) {
	tc.t.Helper()
	players := make([]*TestPlayer, 0, n)
	for i := 1; i <= n; i++ {
		players = append(players, tc.signupPlayer(fmt.Sprintf("P%d", i)))
	}
	var view LobbyView
	if status := players[0].do(http.MethodPost, "/lobbies", &view); status != http.StatusCreated {
		tc.t.Fatalf("create lobby: status %d", status)
	}
	for _, p := range players[1:] {
		if status := p.do(http.MethodPost, p.lobbyPath(view.ID, "/join"), nil); status != http.StatusOK {
			tc.t.Fatalf("%s join: status %d", p.Name, status)
		}
	}
	return view.ID, players
}

// startedGame opens a five-player lobby, starts it and splits the table into
// the werewolf and the villagers.
func (tc *TestContext) startedGame() (int64, *TestPlayer, []*TestPlayer) {
	tc.t.Helper()
	lobbyID, players := tc.openLobby(5)
	if status := players[0].do(http.MethodPost, players[0].lobbyPath(lobbyID, "/start"), nil); status != http.StatusOK {
		tc.t.Fatalf("start: status %d", status)
	}

	var wolf *TestPlayer
	var villagers []*TestPlayer
	for _, p := range players {
		if slices.Contains(p.roles(lobbyID), game.RoleWerewolf) {
			wolf = p
		} else {
			villagers = append(villagers, p)
		}
	}
	if wolf == nil || len(villagers) != 4 {
		tc.t.Fatalf("expected one werewolf and four villagers")
	}
	return lobbyID, wolf, villagers
}

// ============================================================================
// Game flow through HTTP
// ============================================================================

func TestGameOpensFirstNight(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, wolf, villagers := tc.startedGame()

	s := wolf.snapshot(lobbyID)
	if !s.Started || s.Stage != "Night" || s.StageIndex != 1 {
		t.Fatalf("snapshot = started %t, stage %q index %d; want the first night", s.Started, s.Stage, s.StageIndex)
	}
	if s.Poll == nil || len(s.Poll.Options) != 4 {
		t.Fatalf("the werewolf should see four victims, got %+v", s.Poll)
	}

	if got := tc.scheduler.Delays(); len(got) != 1 || got[0] != game.DefaultPollDuration {
		t.Errorf("scheduled delays = %v, want one %v", got, game.DefaultPollDuration)
	}

	// Non-participants see only the question and the deadline.
	poll, status := villagers[0].poll(lobbyID)
	if status != http.StatusOK {
		t.Fatalf("poll: status %d", status)
	}
	if len(poll.Options) != 0 || len(poll.Participants) != 0 || poll.Question == "" || poll.ScheduledFinish.IsZero() {
		t.Errorf("villager should see a censored poll, got %+v", poll)
	}
}

func TestVillagersWinByHangingWerewolf(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, wolf, villagers := tc.startedGame()

	night, _ := wolf.poll(lobbyID)
	victim := villagers[0]
	if status := wolf.vote(lobbyID, optionFor(t, night, victim)); status != http.StatusNoContent {
		t.Fatalf("wolf vote: status %d", status)
	}
	if !tc.scheduler.FireNext() {
		t.Fatal("no poll deadline was scheduled")
	}

	s := wolf.snapshot(lobbyID)
	if s.Stage != "Day" || s.StageIndex != 2 {
		t.Fatalf("expected the second day, got %s %d", s.Stage, s.StageIndex)
	}
	if len(s.LastActions) != 1 || s.LastActions[0].Kind != game.KindNightKill {
		t.Errorf("last actions = %+v, want the night kill", s.LastActions)
	}
	for _, p := range s.Players {
		if p.ID == victim.ID && p.Alive {
			t.Errorf("%s should be dead", victim.Name)
		}
	}

	day, _ := wolf.poll(lobbyID)
	if status := victim.vote(lobbyID, optionFor(t, day, wolf)); status != http.StatusForbidden {
		t.Errorf("dead player's vote: status %d, want 403", status)
	}
	for _, v := range villagers[1:] {
		if status := v.vote(lobbyID, optionFor(t, day, wolf)); status != http.StatusNoContent {
			t.Fatalf("%s vote: status %d", v.Name, status)
		}
	}
	tc.scheduler.FireNext()

	var winner game.WinnerState
	if status := villagers[1].do(http.MethodGet, villagers[1].lobbyPath(lobbyID, "/winner"), &winner); status != http.StatusOK {
		t.Fatalf("winner: status %d", status)
	}
	if winner.Fraction != game.RoleVillager || len(winner.Members) != 4 {
		t.Errorf("winner = %+v, want the four villagers", winner)
	}

	result, err := tc.store.Result(wolf.snapshot(lobbyID).ID)
	if err != nil || result.Fraction != game.RoleVillager {
		t.Errorf("stored result = %+v, %v", result, err)
	}
}

func TestWinnerOutlivesCleanup(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, wolf, villagers := tc.startedGame()

	// Night without votes: no_action spares everyone.
	tc.scheduler.FireNext()
	day, _ := wolf.poll(lobbyID)
	for _, v := range villagers {
		v.vote(lobbyID, optionFor(t, day, wolf))
	}
	tc.scheduler.FireNext()

	// The cleanup is the last pending call.
	for tc.scheduler.FireNext() {
	}
	if _, ok := tc.srv.games.Get(lobbyID); ok {
		t.Fatal("the finished game should be removed")
	}

	var result GameResult
	if status := villagers[0].do(http.MethodGet, villagers[0].lobbyPath(lobbyID, "/winner"), &result); status != http.StatusOK {
		t.Fatalf("winner after cleanup: status %d", status)
	}
	if result.Fraction != game.RoleVillager {
		t.Errorf("fraction = %q", result.Fraction)
	}

	// Players are free to open new lobbies.
	if status := wolf.do(http.MethodPost, "/lobbies", nil); status != http.StatusCreated {
		t.Errorf("new lobby after the game: status %d", status)
	}
}

func TestHistoryArchivesStages(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, wolf, villagers := tc.startedGame()

	night, _ := wolf.poll(lobbyID)
	wolf.vote(lobbyID, optionFor(t, night, villagers[0]))
	tc.scheduler.FireNext()

	var actions []GameAction
	if status := wolf.do(http.MethodGet, wolf.lobbyPath(lobbyID, "/history"), &actions); status != http.StatusOK {
		t.Fatalf("history: status %d", status)
	}
	if len(actions) != 1 {
		t.Fatalf("history = %+v, want the night kill", actions)
	}
	if a := actions[0]; a.StageIndex != 1 || a.StageType != "Night" || a.Kind != game.KindNightKill {
		t.Errorf("archived %+v", a)
	}
}

func TestHistoryAndWinnerNeedMembership(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, wolf, villagers := tc.startedGame()
	outsider := tc.signupPlayer("Outsider")

	if status := outsider.do(http.MethodGet, outsider.lobbyPath(lobbyID, "/history"), nil); status != http.StatusForbidden {
		t.Errorf("outsider history during the game: status %d, want 403", status)
	}

	tc.scheduler.FireNext()
	day, _ := wolf.poll(lobbyID)
	for _, v := range villagers {
		v.vote(lobbyID, optionFor(t, day, wolf))
	}
	for tc.scheduler.FireNext() {
	}
	if _, ok := tc.srv.games.Get(lobbyID); ok {
		t.Fatal("the finished game should be removed")
	}

	for _, path := range []string{"/history", "/winner"} {
		if status := outsider.do(http.MethodGet, outsider.lobbyPath(lobbyID, path), nil); status != http.StatusForbidden {
			t.Errorf("outsider %s after cleanup: status %d, want 403", path, status)
		}
		if status := villagers[0].do(http.MethodGet, villagers[0].lobbyPath(lobbyID, path), nil); status != http.StatusOK {
			t.Errorf("member %s after cleanup: status %d, want 200", path, status)
		}
	}
	if status := outsider.do(http.MethodGet, "/lobbies/999/history", nil); status != http.StatusNotFound {
		t.Errorf("history of unknown lobby: status %d, want 404", status)
	}
}

func TestGameEndpointsBeforeStart(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, players := tc.openLobby(3)
	outsider := tc.signupPlayer("Outsider")

	tests := []struct {
		name   string
		player *TestPlayer
		method string
		path   string
		want   int
	}{
		{"game before start", players[1], http.MethodGet, "/game", http.StatusBadRequest},
		{"poll before start", players[1], http.MethodGet, "/poll", http.StatusBadRequest},
		{"vote before start", players[1], http.MethodPut, "/poll/votes/1", http.StatusBadRequest},
		{"winner before start", players[1], http.MethodGet, "/winner", http.StatusBadRequest},
		{"outsider", outsider, http.MethodGet, "/game", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.player.do(tt.method, tt.player.lobbyPath(lobbyID, tt.path), nil); got != tt.want {
				t.Errorf("status %d, want %d", got, tt.want)
			}
		})
	}

	if got := players[0].do(http.MethodGet, "/lobbies/999/game", nil); got != http.StatusNotFound {
		t.Errorf("unknown lobby: status %d, want 404", got)
	}
}

func TestNoActivePollAfterFinish(t *testing.T) {
	tc := newTestContext(t, testRules(), nil)
	lobbyID, wolf, villagers := tc.startedGame()

	tc.scheduler.FireNext()
	day, _ := wolf.poll(lobbyID)
	for _, v := range villagers {
		v.vote(lobbyID, optionFor(t, day, wolf))
	}
	tc.scheduler.FireNext()

	if _, status := wolf.poll(lobbyID); status != http.StatusNotFound {
		t.Errorf("poll after the end: status %d, want 404", status)
	}
	if status := villagers[0].vote(lobbyID, 1); status != http.StatusNotFound {
		t.Errorf("vote after the end: status %d, want 404", status)
	}
}
