package game

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// TiedPollDecider picks the winner among options that share the highest
// supporter count. Returning nil means no option wins and no command runs.
type TiedPollDecider interface {
	Decide(tied []*PollOption) *PollOption
}

// DeciderFunc adapts a function to TiedPollDecider.
type DeciderFunc func(tied []*PollOption) *PollOption

func (f DeciderFunc) Decide(tied []*PollOption) *PollOption {
	return f(tied)
}

// RandomDecider picks uniformly among the tied options.
type RandomDecider struct{}

func (RandomDecider) Decide(tied []*PollOption) *PollOption {
	if len(tied) == 0 {
		return nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(tied))))
	if err != nil {
		return tied[0]
	}
	return tied[n.Int64()]
}

// NoActionDecider lets a tied poll pass without effect.
type NoActionDecider struct{}

func (NoActionDecider) Decide([]*PollOption) *PollOption {
	return nil
}

// preferOption picks preferred whenever it is among the tied options and
// defers to fallback otherwise.
func preferOption(preferred *PollOption, fallback TiedPollDecider) TiedPollDecider {
	return DeciderFunc(func(tied []*PollOption) *PollOption {
		for _, o := range tied {
			if o == preferred {
				return o
			}
		}
		if fallback == nil {
			return nil
		}
		return fallback.Decide(tied)
	})
}

// Decider policy names accepted by DeciderByName.
const (
	DeciderRandom   = "random"
	DeciderNoAction = "no_action"
)

func DeciderByName(name string) (TiedPollDecider, error) {
	switch name {
	case "", DeciderRandom:
		return RandomDecider{}, nil
	case DeciderNoAction:
		return NoActionDecider{}, nil
	default:
		return nil, fmt.Errorf("unknown tie-break policy %q", name)
	}
}
