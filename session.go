package oliphant

import (
	"errors"
	"sync"

	"github.com/archivekc/oliphant/entity"
)

// Checkpoint is a point in an object's lifecycle where staleness is validated.
type Checkpoint uint8

const (
	Materialize Checkpoint = iota + 1
	PersistIntent
	PreFlush
	PreUpdate
)

func (c Checkpoint) String() string {
	switch c {
	case Materialize:
		return "materialize"
	case PersistIntent:
		return "persist-intent"
	case PreFlush:
		return "pre-flush"
	case PreUpdate:
		return "pre-update"
	default:
		return "check"
	}
}

// State of one instance within a unit of work.
type State uint8

const (
	Unchecked State = iota
	Checked         // at least one Fresh verdict
	Conflicted      // terminal until Forget
)

func (s State) String() string {
	switch s {
	case Checked:
		return "fresh"
	case Conflicted:
		return "stale"
	default:
		return "unchecked"
	}
}

type instance struct {
	state State
	err   *StaleEntityError
}

// Session tracks instances of one unit of work. Create one per unit of work
// with Coordinator.NewSession; safe for concurrent use.
type Session struct {
	id string

	mu        sync.Mutex
	instances map[entity.UID]*instance
	warnings  []error
}

func newSession(id string) *Session {
	return &Session{id: id, instances: make(map[entity.UID]*instance)}
}

func (s *Session) ID() string { return s.id }

// State returns the state of uid in this unit of work.
func (s *Session) State(uid entity.UID) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.instances[uid]; ok {
		return in.state
	}
	return Unchecked
}

// Err returns the conflicts that forbid committing this unit of work (joined),
// or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for _, in := range s.instances {
		if in.state == Conflicted {
			errs = append(errs, in.err)
		}
	}
	return errors.Join(errs...)
}

// Stale lists uids in the Conflicted state.
func (s *Session) Stale() []entity.UID {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.UID
	for uid, in := range s.instances {
		if in.state == Conflicted {
			out = append(out, uid)
		}
	}
	return out
}

// Forget drops everything known about uid, e.g. after the caller reloaded it.
// This is the only way out of the Conflicted state.
func (s *Session) Forget(uid entity.UID) {
	s.mu.Lock()
	delete(s.instances, uid)
	s.mu.Unlock()
}

// Warnings returns the non-fatal infrastructure faults seen by this session.
func (s *Session) Warnings() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.warnings...)
}

func (s *Session) warn(err error) {
	s.mu.Lock()
	s.warnings = append(s.warnings, err)
	s.mu.Unlock()
}

// conflict returns the recorded error if uid is already Conflicted.
func (s *Session) conflict(uid entity.UID) *StaleEntityError {
	s.mu.Lock()
	defer s.mu.Unlock()
	if in, ok := s.instances[uid]; ok && in.state == Conflicted {
		return in.err
	}
	return nil
}

func (s *Session) markFresh(uid entity.UID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.instances[uid]
	if !ok {
		s.instances[uid] = &instance{state: Checked}
		return
	}
	if in.state != Conflicted {
		in.state = Checked
	}
}

func (s *Session) markStale(uid entity.UID, err *StaleEntityError) {
	s.mu.Lock()
	s.instances[uid] = &instance{state: Conflicted, err: err}
	s.mu.Unlock()
}
