package lifecycle

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Status is the process-wide lifecycle phase.
type Status int

const (
	Idle Status = iota
	Running
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = Idle
	case "running":
		*s = Running
	default:
		return fmt.Errorf("unknown lifecycle status %q", name)
	}
	return nil
}

// Transition records one applied start or end event.
type Transition struct {
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Snapshot is a point-in-time view of the coordinator.
type Snapshot struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"changed_at"`
	Rounds    int       `json:"rounds"`
}

// Coordinator holds the authoritative lifecycle status.
type Coordinator struct {
	mu        sync.RWMutex
	status    Status
	changedAt time.Time
	rounds    int
	now       func() time.Time
}

// NewCoordinator creates a coordinator in the Idle state.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		status:    Idle,
		changedAt: time.Now(),
		now:       time.Now,
	}
}

// Start moves to Running. Starting an already running round re-affirms it.
func (c *Coordinator) Start() Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rounds++
	return c.set(Running)
}

// End moves to Idle. Ending while idle is a no-op set.
func (c *Coordinator) End() Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.set(Idle)
}

// Status returns the current status.
func (c *Coordinator) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Snapshot returns the current status with its bookkeeping.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		Status:    c.status,
		ChangedAt: c.changedAt,
		Rounds:    c.rounds,
	}
}

// set must be called with mu held.
func (c *Coordinator) set(to Status) Transition {
	t := Transition{From: c.status, To: to, At: c.now()}
	c.status = to
	c.changedAt = t.At
	return t
}
