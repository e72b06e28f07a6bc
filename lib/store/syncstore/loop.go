package syncstore

import (
	"context"
	"time"

	"github.com/ValentinKolb/sKV/lib/store/oplog"
	"github.com/google/uuid"
)

// run is the reconciliation loop. It runs a pass right away and then waits for the
// delay chosen by the retry policy, until ctx is cancelled.
func (s *SyncStore) run(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		_ = s.drain(ctx)

		s.drainMu.Lock()
		delay := s.policy.NextDelay(s.failedPasses)
		s.drainMu.Unlock()

		timer.Reset(delay)
	}
}

// drain runs one reconciliation pass: it replays ops from the head of the queue against
// the remote store until the queue is empty, a replay fails and the retry policy requeues
// the op, or ctx is cancelled. It returns ErrClosed once the store released its journal.
func (s *SyncStore) drain(ctx context.Context) error {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	if s.released {
		return ErrClosed
	}
	return s.drainLocked(ctx)
}

// drainLocked is drain for callers that hold drainMu.
func (s *SyncStore) drainLocked(ctx context.Context) error {
	var (
		passErr  error
		deferred map[uuid.UUID]bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		op, ok := s.queue.Take()
		if !ok {
			break
		}

		// every deferred op came around again, leave the rest for the next pass
		if deferred[op.ID] {
			s.queue.Requeue()
			break
		}

		start := time.Now()
		err := op.Apply(s.remote)
		s.metrics.observeReplay(start, err)

		if err == nil {
			delete(s.attempts, op.ID)
			s.ack(op)
			s.queue.Done()
			Logger.Debugf("[%s] replicated %s", s.opts.Name, op)
			continue
		}

		s.attempts[op.ID]++
		attempt := s.attempts[op.ID]
		s.lastErr.Record(err)
		passErr = err

		decision := s.policy.OnFailure(op, attempt, err)
		Logger.Warningf("[%s] replay of %s failed (attempt %d, %s): %v", s.opts.Name, op, attempt, decision, err)

		switch decision {
		case Drop:
			delete(s.attempts, op.ID)
			s.ack(op)
			s.queue.Done()
			s.metrics.dropped.Inc()
			if s.opts.DeadLetter != nil {
				s.opts.DeadLetter(op, err)
			}

		case Defer:
			if deferred == nil {
				deferred = make(map[uuid.UUID]bool)
			}
			deferred[op.ID] = true
			// the journal order must match the queue order
			s.writeMu.Lock()
			s.ack(op)
			s.journalAppend(op)
			s.queue.MoveToBack()
			s.writeMu.Unlock()

		default:
			s.queue.Requeue()
			s.failedPasses++
			return err
		}
	}

	if passErr != nil {
		s.failedPasses++
		return passErr
	}

	s.failedPasses = 0
	s.lastCleanPass = time.Now()
	s.lastErr.Clear()
	return nil
}

// ack removes the replicated or dropped head op from the journal
func (s *SyncStore) ack(op oplog.Op) {
	if s.opts.Journal == nil {
		return
	}
	if err := s.opts.Journal.Ack(); err != nil {
		Logger.Errorf("[%s] failed to ack %s in journal: %v", s.opts.Name, op, err)
	}
}

// journalAppend appends op to the journal. Callers must hold writeMu.
func (s *SyncStore) journalAppend(op oplog.Op) {
	if s.opts.Journal == nil {
		return
	}
	if err := s.opts.Journal.Append(op); err != nil {
		Logger.Errorf("[%s] failed to journal %s: %v", s.opts.Name, op, err)
		s.lastErr.Record(err)
	}
}
