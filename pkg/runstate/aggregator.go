package runstate

import (
	"sync"

	"github.com/casualjim/folio/pkg/uuidx"
	"github.com/google/uuid"
)

// Aggregator keeps a running usage total that is safe for concurrent use.
// It supports fork-join so a sub task can track its own usage and fold it back later.
type Aggregator struct {
	id    uuid.UUID
	mu    sync.Mutex
	usage Usage
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{id: uuidx.New()}
}

// ID returns the unique identifier of this aggregator.
func (a *Aggregator) ID() uuid.UUID {
	return a.id
}

// Add folds u into the running total.
func (a *Aggregator) Add(u Usage) {
	a.mu.Lock()
	a.usage.AddUsage(&u)
	a.mu.Unlock()
}

// Usage returns the current total.
func (a *Aggregator) Usage() Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.usage
}

// Fork creates a new, empty aggregator for a sub task.
func (a *Aggregator) Fork() *Aggregator {
	return NewAggregator()
}

// Join adds the total of a forked aggregator into this one.
func (a *Aggregator) Join(b *Aggregator) {
	a.Add(b.Usage())
}
