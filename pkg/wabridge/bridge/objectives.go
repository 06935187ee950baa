package bridge

import (
	"sync"
	"time"
)

// ObjectiveStatus is the lifecycle state of an objective.
type ObjectiveStatus string

const (
	ObjectivePending ObjectiveStatus = "pending"
	ObjectiveWorking ObjectiveStatus = "working"
	ObjectiveDone    ObjectiveStatus = "done"
)

// Objective is a unit of work for proactive check-ins.
type Objective struct {
	ID          int             `json:"id"`
	Description string          `json:"description"`
	Status      ObjectiveStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ObjectiveCounts tallies objectives by status.
type ObjectiveCounts struct {
	Pending int `json:"pending"`
	Working int `json:"working"`
	Done    int `json:"done"`
	Total   int `json:"total"`
}

// ObjectiveQueue is the ordered objective list. All mutations go through
// its lock; Next picks and marks in one step, and only Complete sets done.
type ObjectiveQueue struct {
	mu     sync.Mutex
	items  []*Objective
	nextID int
	now    func() time.Time
}

// NewObjectiveQueue creates an empty queue.
func NewObjectiveQueue(now func() time.Time) *ObjectiveQueue {
	if now == nil {
		now = time.Now
	}
	return &ObjectiveQueue{nextID: 1, now: now}
}

// Add appends a pending objective and returns it.
func (q *ObjectiveQueue) Add(description string) Objective {
	q.mu.Lock()
	defer q.mu.Unlock()
	o := &Objective{
		ID:          q.nextID,
		Description: description,
		Status:      ObjectivePending,
		CreatedAt:   q.now(),
	}
	q.nextID++
	q.items = append(q.items, o)
	return *o
}

// List returns a snapshot in insertion order.
func (q *ObjectiveQueue) List() []Objective {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Objective, len(q.items))
	for i, o := range q.items {
		out[i] = *o
	}
	return out
}

// Next returns the first objective that is pending or working and marks it
// working.
func (q *ObjectiveQueue) Next() (Objective, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, o := range q.items {
		if o.Status == ObjectivePending || o.Status == ObjectiveWorking {
			o.Status = ObjectiveWorking
			return *o, true
		}
	}
	return Objective{}, false
}

// Complete marks an objective done. Returns false for an unknown id.
func (q *ObjectiveQueue) Complete(id int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, o := range q.items {
		if o.ID == id {
			o.Status = ObjectiveDone
			return true
		}
	}
	return false
}

// Clear empties the queue and restarts ids at 1.
func (q *ObjectiveQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
	q.nextID = 1
}

// Counts tallies the queue.
func (q *ObjectiveQueue) Counts() ObjectiveCounts {
	q.mu.Lock()
	defer q.mu.Unlock()
	c := ObjectiveCounts{Total: len(q.items)}
	for _, o := range q.items {
		switch o.Status {
		case ObjectivePending:
			c.Pending++
		case ObjectiveWorking:
			c.Working++
		case ObjectiveDone:
			c.Done++
		}
	}
	return c
}
