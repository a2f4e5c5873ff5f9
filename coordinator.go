package oliphant

import (
	"context"
	"errors"

	"github.com/archivekc/oliphant/entity"
)

// Coordinator exposes the four checkpoint hooks to the host persistence
// framework. Each hook returns nil to allow the operation or a
// *StaleEntityError to deny it.
type Coordinator struct {
	validator      *Validator
	coherency      *Coherency
	log            Logger
	hooks          Hooks
	allowStaleLoad bool
	seedOnLoad     bool

	closers []func(context.Context) error
}

// NewSession starts tracking a unit of work.
func (c *Coordinator) NewSession(id string) *Session { return newSession(id) }

// Validator returns the underlying validator.
func (c *Coordinator) Validator() *Validator { return c.validator }

// OnMaterialize runs after an entity was loaded. It always records the loaded
// version; it only validates when stale loads are not allowed.
func (c *Coordinator) OnMaterialize(ctx context.Context, s *Session, uid entity.UID, v entity.Version) error {
	_, err := c.materialize(ctx, s, uid, v)
	return err
}

// OnPersistIntent runs before an entity is handed to persist/save.
func (c *Coordinator) OnPersistIntent(ctx context.Context, s *Session, uid entity.UID, v entity.Version) error {
	_, err := c.checkpoint(ctx, PersistIntent, s, uid, v)
	return err
}

// OnPreFlush runs before a dirty entity is flushed.
func (c *Coordinator) OnPreFlush(ctx context.Context, s *Session, uid entity.UID, v entity.Version) error {
	_, err := c.checkpoint(ctx, PreFlush, s, uid, v)
	return err
}

// OnPreUpdate runs before the UPDATE statement for an entity is issued.
func (c *Coordinator) OnPreUpdate(ctx context.Context, s *Session, uid entity.UID, v entity.Version) error {
	_, err := c.checkpoint(ctx, PreUpdate, s, uid, v)
	return err
}

// Check runs the checkpoint cp explicitly. s may be nil when the caller does
// not track units of work; use CheckResult to observe warnings then.
func (c *Coordinator) Check(ctx context.Context, cp Checkpoint, s *Session, uid entity.UID, v entity.Version) error {
	_, err := c.CheckResult(ctx, cp, s, uid, v)
	return err
}

// CheckResult is Check that also returns the validator's Result. Its Warning
// carries the fault that degraded the check, if any, whether or not s is nil.
// A conflict already recorded in s is returned without a new check and with a
// zero Result.
func (c *Coordinator) CheckResult(ctx context.Context, cp Checkpoint, s *Session, uid entity.UID, v entity.Version) (Result, error) {
	if cp == Materialize {
		return c.materialize(ctx, s, uid, v)
	}
	return c.checkpoint(ctx, cp, s, uid, v)
}

func (c *Coordinator) materialize(ctx context.Context, s *Session, uid entity.UID, v entity.Version) (Result, error) {
	if !c.allowStaleLoad {
		return c.checkpoint(ctx, Materialize, s, uid, v)
	}
	var res Result
	if err := c.validator.Observe(ctx, uid, v); err != nil {
		res.Warning = err
		if s != nil {
			s.warn(err)
		}
	}
	return res, nil
}

func (c *Coordinator) checkpoint(ctx context.Context, cp Checkpoint, s *Session, uid entity.UID, v entity.Version) (Result, error) {
	if s != nil {
		if err := s.conflict(uid); err != nil {
			return Result{}, err
		}
	}

	seed := !c.seedOnLoad || cp == Materialize
	res, err := c.validator.check(ctx, uid, v, seed)
	if err != nil {
		return Result{}, err
	}
	if res.Warning != nil && s != nil {
		s.warn(res.Warning)
	}
	if res.Status == Fresh {
		if s != nil {
			s.markFresh(uid)
		}
		return res, nil
	}

	staleErr := &StaleEntityError{UID: uid, Observed: v, Latest: res.Latest, Checkpoint: cp}
	c.coherency.Reconcile(ctx, uid, res.Latest)
	c.hooks.StaleDetected(uid, cp, v, res.Latest)
	c.log.Info("stale entity detected", Fields{
		"uid": uid.String(), "checkpoint": cp.String(),
		"observed": v.String(), "latest": res.Latest.String(),
	})
	if s != nil {
		s.markStale(uid, staleErr)
	}
	return res, staleErr
}

// Close releases the feed source and the ledger.
func (c *Coordinator) Close(ctx context.Context) error {
	var errs []error
	for _, f := range c.closers {
		if err := f(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
