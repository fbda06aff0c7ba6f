package progress

import (
	"time"
)

// Event kinds shared by the provisioning orchestrator, the preparation
// pipeline and the parity engine. Terminal kinds close a stream.
const (
	KindPrepare = "prepare"
	KindParity  = "parity"
	KindData    = "data"
	KindFstab   = "fstab"
	KindPool    = "pool"
	KindConfig  = "parity-config"

	KindSync      = "sync"
	KindScrub     = "scrub"
	KindComplete  = "complete"
	KindError     = "error"
	KindCancelled = "cancelled"
)

// Event is a single progress notification pushed to a sink.
type Event struct {
	Kind      string    `json:"type"`
	Message   string    `json:"message"`
	Percent   *float64  `json:"percentage,omitempty"`
	Success   *bool     `json:"success,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink is the push side of an event channel. A nil sink silently drops
// events so callers that do not care about progress can pass nil.
type Sink chan<- Event

func (s Sink) Publish(e Event) {
	if s != nil {
		s <- e
	}
}

// New builds a plain message event stamped now.
func New(kind, message string) Event {
	return Event{Kind: kind, Message: message, Timestamp: time.Now()}
}

// NewPercent builds a message event carrying a completion percentage.
func NewPercent(kind, message string, percent float64) Event {
	e := New(kind, message)
	e.Percent = &percent
	return e
}

// Terminal builds the final event of a stream with its success verdict.
func Terminal(kind, message string, success bool) Event {
	e := New(kind, message)
	e.Success = &success
	return e
}
