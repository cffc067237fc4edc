package aggregator

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/SuperReturn/Oracle/pkg/logging"
)

// Outcome tags which branch of the price policy fired.
type Outcome string

const (
	OutcomePrimaryUsed                Outcome = "primary_used"
	OutcomeFallbackUsedOutOfBounds    Outcome = "fallback_used_out_of_bounds"
	OutcomeFallbackUsedStalePrimary   Outcome = "fallback_used_stale_primary"
	OutcomePrimaryUsedNoAnswerUpdate  Outcome = "primary_used_but_no_answer_update"
	OutcomeFallbackUsedNoAnswerUpdate Outcome = "fallback_used_but_no_answer_update"
	OutcomeNoFreshSource              Outcome = "no_fresh_source"
	OutcomePrimaryReadFailed          Outcome = "primary_read_failed"
)

// AnswerUpdated reports whether the outcome adopts a new answer.
func (o Outcome) AnswerUpdated() bool {
	switch o {
	case OutcomePrimaryUsed, OutcomeFallbackUsedOutOfBounds, OutcomeFallbackUsedStalePrimary:
		return true
	default:
		return false
	}
}

// SourceStatus describes one source as seen by an update cycle.
type SourceStatus struct {
	Name       string   `json:"name"`
	Price      *big.Int `json:"price,omitempty"`
	Timestamp  uint64   `json:"timestamp"`
	Fresh      bool     `json:"fresh"`
	InRange    bool     `json:"in_range"`
	ReadFailed bool     `json:"read_failed"`
}

// Event is published for every committed update and every aborted cycle.
type Event struct {
	Outcome       Outcome        `json:"outcome"`
	Caller        common.Address `json:"caller"`
	Time          uint64         `json:"time"`
	Answer        *big.Int       `json:"answer,omitempty"`
	AnswerUpdated bool           `json:"answer_updated"`
	EMA           *big.Int       `json:"ema,omitempty"`
	EMAUpdated    bool           `json:"ema_updated"`
	EMAUpperBound *big.Int       `json:"ema_upper_bound,omitempty"`
	EMALowerBound *big.Int       `json:"ema_lower_bound,omitempty"`
	Primary       SourceStatus   `json:"primary"`
	Fallback      SourceStatus   `json:"fallback"`
	Error         string         `json:"error,omitempty"`
}

// eventHub fans events out to subscribers without blocking the publisher.
type eventHub struct {
	mu          sync.RWMutex
	subscribers []chan<- Event
	logger      *logging.Logger
}

// AddSubscriber registers ch for future events. A full channel misses events.
func (h *eventHub) AddSubscriber(ch chan<- Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, ch)
}

// RemoveSubscriber unregisters ch.
func (h *eventHub) RemoveSubscriber(ch chan<- Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i, subscriber := range h.subscribers {
		if subscriber == ch {
			h.subscribers = append(h.subscribers[:i], h.subscribers[i+1:]...)
			break
		}
	}
}

func (h *eventHub) publish(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("Subscriber channel full, skipping event", "outcome", string(ev.Outcome))
		}
	}
}
