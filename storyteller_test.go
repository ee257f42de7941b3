package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/llms"

	"werewolves/internal/game"
)

// mockStoryteller records the history it was told and streams a fixed story.
type mockStoryteller struct {
	mu      sync.Mutex
	history []string
	story   []string
	err     error
}

func (m *mockStoryteller) Tell(ctx context.Context, history []string, onChunk func(string)) (string, error) {
	m.mu.Lock()
	m.history = history
	m.mu.Unlock()
	for _, chunk := range m.story {
		onChunk(chunk)
	}
	return strings.Join(m.story, ""), m.err
}

func (m *mockStoryteller) told() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history
}

// streamingModel is an llms.Model that streams its answer word by word.
type streamingModel struct {
	answer   string
	messages []llms.MessageContent
}

func (m *streamingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.messages = messages
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}
	for _, word := range strings.SplitAfter(m.answer, " ") {
		if opts.StreamingFunc != nil {
			if err := opts.StreamingFunc(ctx, []byte(word)); err != nil {
				return nil, err
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.answer}}}, nil
}

func (m *streamingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// waitForStory polls the store until the game has a story row.
func waitForStory(t *testing.T, store *Store, gameID string) GameAction {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		actions, err := store.ActionsForGame(gameID)
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range actions {
			if a.Kind == ActionStory {
				return a
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("no story stored for game %s", gameID)
	return GameAction{}
}

// ============================================================================
// Narration
// ============================================================================

func TestStoryAfterNightKill(t *testing.T) {
	teller := &mockStoryteller{story: []string{"The moon ", "was red."}}
	tc := newTestContext(t, testRules(), teller)
	lobbyID, wolf, villagers := tc.startedGame()
	conn := villagers[1].connect(lobbyID)

	night, _ := wolf.poll(lobbyID)
	wolf.vote(lobbyID, optionFor(t, night, villagers[0]))
	tc.scheduler.FireNext()

	gameID := wolf.snapshot(lobbyID).ID
	story := waitForStory(t, tc.store, gameID)
	if story.Message != "The moon was red." || story.StageIndex != 1 || story.StageType != "Night" {
		t.Errorf("story = %+v", story)
	}

	history := teller.told()
	if len(history) != 1 || !strings.HasPrefix(history[0], "Night 1: ") || !strings.Contains(history[0], villagers[0].Name) {
		t.Errorf("storyteller history = %q", history)
	}

	var chunk StoryChunk
	readUntil(t, conn, MsgStory, &chunk)
	for !chunk.Done {
		readUntil(t, conn, MsgStory, &chunk)
	}
	if chunk.Text != "The moon was red." || chunk.StageIndex != 1 {
		t.Errorf("final chunk = %+v", chunk)
	}
}

func TestNoStoryWithoutDeath(t *testing.T) {
	teller := &mockStoryteller{story: []string{"Nothing happened."}}
	tc := newTestContext(t, testRules(), teller)
	lobbyID, wolf, _ := tc.startedGame()

	tc.scheduler.FireNext()
	s := wolf.snapshot(lobbyID)
	if s.Stage != "Day" {
		t.Fatalf("stage = %q", s.Stage)
	}

	time.Sleep(50 * time.Millisecond)
	if got := teller.told(); got != nil {
		t.Errorf("storyteller was called with %q", got)
	}
}

func TestFailedStoryIsNotStored(t *testing.T) {
	teller := &mockStoryteller{story: []string{"half a "}, err: errors.New("model offline")}
	tc := newTestContext(t, testRules(), teller)
	lobbyID, wolf, villagers := tc.startedGame()

	night, _ := wolf.poll(lobbyID)
	wolf.vote(lobbyID, optionFor(t, night, villagers[0]))
	tc.scheduler.FireNext()

	deadline := time.Now().Add(5 * time.Second)
	for teller.told() == nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	var actions []GameAction
	wolf.do(http.MethodGet, wolf.lobbyPath(lobbyID, "/history"), &actions)
	for _, a := range actions {
		if a.Kind == ActionStory {
			t.Errorf("failed story was stored: %+v", a)
		}
	}
}

// ============================================================================
// LLM storyteller
// ============================================================================

func TestLLMStorytellerStreams(t *testing.T) {
	model := &streamingModel{answer: "  Howls filled the night.  "}
	teller := &llmStoryteller{llm: model, systemPrompt: storytellerSystemPrompt}

	var chunks []string
	text, err := teller.Tell(context.Background(), []string{"Night 1: P2 was killed"}, func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "Howls filled the night." {
		t.Errorf("text = %q", text)
	}
	if len(chunks) < 2 {
		t.Errorf("expected streamed chunks, got %q", chunks)
	}
	if len(model.messages) != 2 || model.messages[0].Role != llms.ChatMessageTypeSystem {
		t.Fatalf("messages = %+v", model.messages)
	}
	human, ok := model.messages[1].Parts[0].(llms.TextContent)
	if !ok || !strings.Contains(human.Text, "Night 1: P2 was killed") {
		t.Errorf("prompt = %+v", model.messages[1].Parts)
	}
}

func TestNewStorytellerDisabled(t *testing.T) {
	if st := newStoryteller(AppConfig{}); st != nil {
		t.Errorf("storyteller without provider = %T", st)
	}
	if st := newStoryteller(AppConfig{StorytellerProvider: "openai-compatible"}); st != nil {
		t.Errorf("openai-compatible without URL = %T", st)
	}
}

func TestBuildCallOpts(t *testing.T) {
	tests := []struct {
		name string
		cfg  AppConfig
		want int
	}{
		{"none", AppConfig{}, 0},
		{"temperature", AppConfig{StorytellerTemperature: "0.7"}, 1},
		{"bad temperature", AppConfig{StorytellerTemperature: "warm"}, 0},
		{"thinking", AppConfig{StorytellerThinking: "low"}, 1},
		{"bad thinking", AppConfig{StorytellerThinking: "deep"}, 0},
		{"both", AppConfig{StorytellerTemperature: "0.2", StorytellerThinking: "auto"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(buildCallOpts(tt.cfg)); got != tt.want {
				t.Errorf("got %d options, want %d", got, tt.want)
			}
		})
	}
}

func TestHasDeath(t *testing.T) {
	if !hasDeath([]game.Action{{Kind: game.KindNightKill}}) {
		t.Error("night kill is a death")
	}
	if hasDeath(nil) {
		t.Error("no actions is no death")
	}
}
