package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"werewolves/internal/game"
)

// Rules tune how games are played. They are read from a YAML file such as:
//
//	poll_duration: 60s
//	poll_durations:
//	  Werewolf: 90s
//	  Witch: 30s
//	tie_break: random
//	cleanup_delay: 10m
//	setups:
//	  5: {Werewolf: 1, Seer: 1}
type Rules struct {
	PollDuration  time.Duration            `yaml:"poll_duration"`
	PollDurations map[string]time.Duration `yaml:"poll_durations"`
	TieBreak      string                   `yaml:"tie_break"`
	CleanupDelay  time.Duration            `yaml:"cleanup_delay"`
	Setups        map[int]game.RoleSetup   `yaml:"setups"`
}

func defaultRules() Rules {
	return Rules{
		PollDuration: game.DefaultPollDuration,
		TieBreak:     game.DeciderRandom,
		CleanupDelay: 10 * time.Minute,
	}
}

// loadRules reads the rules file at path. An empty path or a missing file
// yields the defaults.
func loadRules(path string) (Rules, error) {
	if path == "" {
		return defaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return defaultRules(), nil
	}
	if err != nil {
		return Rules{}, fmt.Errorf("rules: read %s: %w", path, err)
	}
	rules, err := parseRules(data)
	if err != nil {
		return Rules{}, fmt.Errorf("rules: %s: %w", path, err)
	}
	return rules, nil
}

func parseRules(data []byte) (Rules, error) {
	rules := defaultRules()
	if len(bytes.TrimSpace(data)) == 0 {
		return rules, nil
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return Rules{}, fmt.Errorf("decode: %w", err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, err
	}
	return rules, nil
}

func (r Rules) Validate() error {
	if r.PollDuration <= 0 {
		return fmt.Errorf("poll_duration must be positive")
	}
	for role, d := range r.PollDurations {
		if d <= 0 {
			return fmt.Errorf("poll_durations.%s must be positive", role)
		}
	}
	if _, err := game.DeciderByName(r.TieBreak); err != nil {
		return err
	}
	if r.CleanupDelay < 0 {
		return fmt.Errorf("cleanup_delay must not be negative")
	}
	for size := range r.Setups {
		if size < game.MinSize || size > game.MaxSize {
			return fmt.Errorf("setups.%d: table size outside %d..%d", size, game.MinSize, game.MaxSize)
		}
	}
	return nil
}

// Setup returns the role setup for a table of size players.
func (r Rules) Setup(size int) game.RoleSetup {
	if setup, ok := r.Setups[size]; ok {
		return setup
	}
	return game.DefaultSetup(size)
}

// GameOptions translates the rules into engine options.
func (r Rules) GameOptions() []game.GameOption {
	decider, err := game.DeciderByName(r.TieBreak)
	if err != nil {
		decider = game.RandomDecider{}
	}
	return []game.GameOption{
		game.WithDecider(decider),
		game.WithPollDurations(r.PollDuration, r.PollDurations),
	}
}
