package ktable

import (
	"fmt"
	"sync"
)

type SemState int

const (
	Unallocated SemState = iota
	Allocated            // reserved by Alloc, waiting for Init
	Active
)

func (s SemState) String() string {
	switch s {
	case Unallocated:
		return "unallocated"
	case Allocated:
		return "allocated"
	case Active:
		return "active"
	}
	return fmt.Sprintf("SemState(%d)", int(s))
}

type InitResult int

const (
	InitNoop InitResult = iota // slot was not reserved; nothing changed
	Initialized
)

type semaphore struct {
	mu      sync.Mutex
	ch      *WaitChannel
	state   SemState
	counter int
	waiters int // goroutines suspended in Wait
}

// SemTable is a fixed set of counting semaphores addressed by slot id.
// Every slot has its own lock; the table itself is never locked as a whole.
//
// Ids are reused after Destroy and carry no generation, so a caller holding
// a stale id may operate on whoever allocated the slot next.
type SemTable struct {
	sems []semaphore
}

func NewSemTable(n int) *SemTable {
	if n <= 0 {
		n = NSem
	}
	t := &SemTable{sems: make([]semaphore, n)}
	for i := range t.sems {
		s := &t.sems[i]
		s.state = Unallocated
		s.ch = NewWaitChannel(&s.mu)
	}
	return t
}

// Len returns the number of slots.
func (t *SemTable) Len() int {
	return len(t.sems)
}

func (t *SemTable) slot(op string, id int) *semaphore {
	if id < 0 || id >= len(t.sems) {
		fatal(op, "semaphore id %d out of range [0,%d)", id, len(t.sems))
	}
	return &t.sems[id]
}

// Alloc reserves the lowest free slot and returns its id.
func (t *SemTable) Alloc() (int, error) {
	for i := range t.sems {
		s := &t.sems[i]
		s.mu.Lock()
		if s.state == Unallocated {
			s.state = Allocated
			s.counter = 0
			s.mu.Unlock()
			return i, nil
		}
		s.mu.Unlock()
	}
	plog.WithField("slots", len(t.sems)).Debug("semaphore table exhausted")
	return -1, ErrNoSlot
}

// Init sets the counter of a reserved slot and activates it. A slot that is
// free or already active is left untouched and InitNoop is returned.
func (t *SemTable) Init(id, c int) InitResult {
	s := t.slot("sem_init", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Allocated {
		return InitNoop
	}
	s.counter = c
	s.state = Active
	return Initialized
}

// Wait blocks until the counter is positive, then decrements it.
func (t *SemTable) Wait(id int) {
	s := t.slot("sem_wait", id)
	s.mu.Lock()
	s.waiters++
	s.ch.WaitWhile(func() bool { return s.counter <= 0 })
	s.waiters--
	s.counter--
	s.mu.Unlock()
}

// Post increments the counter and wakes every waiter; the ones that lose the
// race for the unit go back to sleep.
func (t *SemTable) Post(id int) {
	s := t.slot("sem_post", id)
	s.mu.Lock()
	s.counter++
	s.mu.Unlock()
	s.ch.NotifyAll()
}

// Destroy frees an active slot and reports whether it did. The caller must
// make sure no Wait is outstanding on id; doing otherwise is fatal.
func (t *SemTable) Destroy(id int) bool {
	s := t.slot("sem_destroy", id)
	s.mu.Lock()
	if s.state != Active {
		s.mu.Unlock()
		return false
	}
	if s.waiters > 0 {
		n := s.waiters
		s.mu.Unlock()
		fatal("sem_destroy", "semaphore %d destroyed with %d waiters", id, n)
	}
	s.state = Unallocated
	s.mu.Unlock()
	return true
}

// Value returns a snapshot of the counter.
func (t *SemTable) Value(id int) int {
	s := t.slot("sem_value", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

func (t *SemTable) State(id int) SemState {
	s := t.slot("sem_state", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Waiters returns how many goroutines are suspended in Wait on id.
func (t *SemTable) Waiters(id int) int {
	s := t.slot("sem_waiters", id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiters
}
