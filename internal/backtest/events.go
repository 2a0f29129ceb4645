package backtest

import "as-backtester/internal/model"

// EventKind tags the payload carried by an Event.
type EventKind int

const (
	EventTrade EventKind = iota
	EventOrderbook
)

// Event is one tape entry: either a Trade or an OrderbookSnapshot, tagged
// by Kind. Exactly one of Trade/Orderbook is populated for a given Kind.
type Event struct {
	Kind      EventKind
	Trade     model.Trade
	Orderbook model.OrderbookSnapshot
}

// TimestampMs returns the event's own timestamp regardless of kind.
func (e Event) TimestampMs() uint64 {
	if e.Kind == EventTrade {
		return e.Trade.TimestampMs
	}
	return e.Orderbook.TimestampMs
}

// Source yields backtest events in strictly non-decreasing timestamp
// order. Ties between a Trade and an Orderbook at the same timestamp
// carry no causal meaning beyond iteration order (spec.md §4.7).
// Implementations are single-use: Next returns (Event{}, false, nil) once
// exhausted, and any error terminates the run.
type Source interface {
	Next() (Event, bool, error)
}

// SliceSource replays a pre-materialised, already time-ordered slice of
// events. It is the source used by grid-search workers: one immutable
// slice is shared across workers and each worker gets its own cursor via
// Clone, so no worker mutates shared state (spec.md §5).
type SliceSource struct {
	events []Event
	pos    int
}

// NewSliceSource wraps events, which must already be sorted
// non-decreasing by TimestampMs.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event in order, or ok=false once exhausted.
func (s *SliceSource) Next() (Event, bool, error) {
	if s.pos >= len(s.events) {
		return Event{}, false, nil
	}
	e := s.events[s.pos]
	s.pos++
	return e, true, nil
}

// Clone returns an independent cursor over the same underlying slice,
// starting from the beginning. The slice itself is never copied or
// mutated, so cloning is cheap and safe to call concurrently from
// multiple grid-search workers.
func (s *SliceSource) Clone() *SliceSource {
	return &SliceSource{events: s.events}
}

// Len reports how many events the underlying slice holds.
func (s *SliceSource) Len() int {
	return len(s.events)
}
