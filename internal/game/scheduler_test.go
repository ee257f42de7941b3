package game

import (
	"slices"
	"testing"
	"time"
)

func TestManualSchedulerFiresInOrder(t *testing.T) {
	s := &ManualScheduler{}
	var fired []int
	s.Schedule(func() { fired = append(fired, 1) }, time.Second)
	s.Schedule(func() {
		fired = append(fired, 2)
		s.Schedule(func() { fired = append(fired, 3) }, time.Millisecond)
	}, 2*time.Second)

	if got := s.Delays(); !slices.Equal(got, []time.Duration{time.Second, 2 * time.Second}) {
		t.Errorf("Delays = %v", got)
	}
	for s.FireNext() {
	}
	if !slices.Equal(fired, []int{1, 2, 3}) {
		t.Errorf("fired = %v, want [1 2 3]", fired)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", s.Pending())
	}
}

func TestTimerSchedulerRunsCallback(t *testing.T) {
	done := make(chan struct{})
	DefaultScheduler().Schedule(func() { close(done) }, time.Millisecond)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("callback did not run")
	}
}

func TestDeciderByName(t *testing.T) {
	tests := []struct {
		name    string
		want    TiedPollDecider
		wantErr bool
	}{
		{"", RandomDecider{}, false},
		{DeciderRandom, RandomDecider{}, false},
		{DeciderNoAction, NoActionDecider{}, false},
		{"coin", nil, true},
	}
	for _, tt := range tests {
		got, err := DeciderByName(tt.name)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("DeciderByName(%q) = %v, %v", tt.name, got, err)
		}
	}
}

func TestRandomDeciderPicksTiedOption(t *testing.T) {
	tied := []*PollOption{NewPollOption("a", nil, nil), NewPollOption("b", nil, nil)}
	for i := 0; i < 20; i++ {
		if got := (RandomDecider{}).Decide(tied); !slices.Contains(tied, got) {
			t.Fatalf("Decide returned %v", got)
		}
	}
	if (RandomDecider{}).Decide(nil) != nil {
		t.Error("no options, no winner")
	}
}
