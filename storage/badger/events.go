package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docflow/core"
	"github.com/poiesic/docflow/storage"
)

// EventLog implements storage.EventLog for BadgerDB.
type EventLog struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.EventLog = (*EventLog)(nil)

// NewEventLog creates a new EventLog.
func NewEventLog(backend *Backend) (*EventLog, error) {
	idSeq, err := backend.GetSequence(eventIDSeq)
	if err != nil {
		return nil, err
	}

	return &EventLog{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// Close releases the ID sequence.
func (l *EventLog) Close() error {
	return l.idSeq.Release()
}

func (l *EventLog) nextID() (core.ID, error) {
	nextID, err := l.idSeq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if nextID == 0 {
		if nextID, err = l.idSeq.Next(); err != nil {
			return 0, err
		}
	}
	return core.ID(nextID), nil
}

// AppendEvents stores new events with status new.
func (l *EventLog) AppendEvents(ctx context.Context, events ...*core.IngestionEvent) ([]*core.IngestionEvent, error) {
	now := time.Now().UTC()
	for _, event := range events {
		if err := core.ValidateEvent(event); err != nil {
			return nil, err
		}
		id, err := l.nextID()
		if err != nil {
			return nil, err
		}
		event.ID = id
		event.Status = core.EventNew
		event.CreatedAt = now
		event.UpdatedAt = now
		event.ClaimedAt = time.Time{}
		event.ClaimedBy = ""
		event.ErrorDetail = ""
	}

	err := l.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, event := range events {
			if err := putEvent(tx, nil, event); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// ClaimNext atomically moves up to batchSize events to processing.
func (l *EventLog) ClaimNext(ctx context.Context, workerID string, batchSize int, staleAfter time.Duration) ([]*core.IngestionEvent, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be positive", storage.ErrInvalidQuery)
	}

	var claimed []*core.IngestionEvent
	err := l.backend.Update(ctx, func(tx *badger.Txn) error {
		claimed = nil
		now := time.Now().UTC()
		batchItems := make(map[string]bool)

		var candidates []*core.IngestionEvent
		collect := func(prefix []byte, cutoff uint64) error {
			return forEachKey(tx, prefix, func(key []byte) (bool, error) {
				if len(candidates) >= batchSize {
					return false, nil
				}
				if cutoff > 0 && uint64At(key, len(prefix)) >= cutoff {
					return false, nil
				}
				event, err := readEvent(tx, idAt(key))
				if err != nil {
					return false, err
				}
				if batchItems[event.ItemID] {
					return true, nil
				}
				locked, err := itemLockedByOther(tx, event)
				if err != nil {
					return false, err
				}
				if locked {
					return true, nil
				}
				batchItems[event.ItemID] = true
				candidates = append(candidates, event)
				return true, nil
			})
		}

		// Abandoned claims first, they are the oldest work.
		if staleAfter > 0 {
			cutoff := micros(now.Add(-staleAfter))
			if err := collect(makeEventStatusPrefix(core.EventProcessing), cutoff+1); err != nil {
				return err
			}
		}
		if err := collect(makeEventStatusPrefix(core.EventNew), 0); err != nil {
			return err
		}

		for _, event := range candidates {
			old := *event
			event.Status = core.EventProcessing
			event.ClaimedAt = now
			event.ClaimedBy = workerID
			event.UpdatedAt = now
			event.Attempts++
			if err := putEvent(tx, &old, event); err != nil {
				return err
			}
			if err := tx.Set(makeEventItemLockKey(event.ItemID), storage.MarshalID(event.ID)); err != nil {
				return err
			}
			claimed = append(claimed, event)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Complete marks a processing event done. Completing a done event is a no-op.
func (l *EventLog) Complete(ctx context.Context, id core.ID) error {
	return l.backend.Update(ctx, func(tx *badger.Txn) error {
		_, err := finishEvent(tx, id, core.EventDone, "")
		return err
	})
}

// Fail marks a processing event failed.
func (l *EventLog) Fail(ctx context.Context, id core.ID, detail string) error {
	return l.backend.Update(ctx, func(tx *badger.Txn) error {
		_, err := finishEvent(tx, id, core.EventFailed, detail)
		return err
	})
}

// Requeue returns a processing event to new, keeping detail for diagnosis.
func (l *EventLog) Requeue(ctx context.Context, id core.ID, detail string) error {
	return l.backend.Update(ctx, func(tx *badger.Txn) error {
		_, err := finishEvent(tx, id, core.EventNew, detail)
		return err
	})
}

// Reissue moves a failed event back to new.
func (l *EventLog) Reissue(ctx context.Context, id core.ID) error {
	return l.backend.Update(ctx, func(tx *badger.Txn) error {
		event, err := readEvent(tx, id)
		if err != nil {
			return err
		}
		if event.Status != core.EventFailed {
			return fmt.Errorf("%w: event %d is %s, only failed events can be reissued",
				storage.ErrInvalidTransition, id, event.Status)
		}
		old := *event
		event.Status = core.EventNew
		event.Attempts = 0
		event.ErrorDetail = ""
		event.UpdatedAt = time.Now().UTC()
		return putEvent(tx, &old, event)
	})
}

// GetEvent retrieves a single event.
func (l *EventLog) GetEvent(ctx context.Context, id core.ID) (*core.IngestionEvent, error) {
	var event *core.IngestionEvent
	err := l.backend.View(func(tx *badger.Txn) error {
		var err error
		event, err = readEvent(tx, id)
		return err
	})
	return event, err
}

// ListEvents returns up to limit events with the given status, oldest first.
func (l *EventLog) ListEvents(ctx context.Context, status core.EventStatus, limit int) ([]*core.IngestionEvent, error) {
	if _, ok := eventStatusBytes[status]; !ok {
		return nil, fmt.Errorf("%w: unknown status %q", storage.ErrInvalidQuery, status)
	}

	var events []*core.IngestionEvent
	err := l.backend.View(func(tx *badger.Txn) error {
		keys, err := scanKeys(tx, makeEventStatusPrefix(status), limit)
		if err != nil {
			return err
		}
		for _, key := range keys {
			event, err := readEvent(tx, idAt(key))
			if err != nil {
				return err
			}
			events = append(events, event)
		}
		return nil
	})
	return events, err
}

// CountByStatus returns the number of events in each status.
func (l *EventLog) CountByStatus(ctx context.Context) (map[core.EventStatus]int, error) {
	counts := make(map[core.EventStatus]int, len(core.EventStatuses))
	err := l.backend.View(func(tx *badger.Txn) error {
		for _, status := range core.EventStatuses {
			n := 0
			err := forEachKey(tx, makeEventStatusPrefix(status), func([]byte) (bool, error) {
				n++
				return true, nil
			})
			if err != nil {
				return err
			}
			counts[status] = n
		}
		return nil
	})
	return counts, err
}

func readEvent(tx *badger.Txn, id core.ID) (*core.IngestionEvent, error) {
	event, err := getValue(tx, makeEventKey(id), storage.UnmarshalEvent)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("event %d: %w", id, err)
	}
	return event, err
}

// putEvent stores event and moves its status index entry from old.
func putEvent(tx *badger.Txn, old, event *core.IngestionEvent) error {
	if old != nil {
		if err := tx.Delete(makeEventStatusKey(old)); err != nil {
			return err
		}
	}
	if err := tx.Set(makeEventKey(event.ID), storage.MarshalEvent(event)); err != nil {
		return err
	}
	return tx.Set(makeEventStatusKey(event), nil)
}

// itemLockedByOther reports whether a different event of the same item holds
// the processing lock.
func itemLockedByOther(tx *badger.Txn, event *core.IngestionEvent) (bool, error) {
	holder, err := getValue(tx, makeEventItemLockKey(event.ItemID), func(val []byte) (*core.ID, error) {
		id, err := storage.UnmarshalID(val)
		return &id, err
	})
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return *holder != event.ID, nil
}

// finishEvent moves a processing event to status and releases the item lock.
// Repeating the transition an event already made is a no-op, which keeps
// redelivered events harmless.
func finishEvent(tx *badger.Txn, id core.ID, status core.EventStatus, detail string) (*core.IngestionEvent, error) {
	event, err := readEvent(tx, id)
	if err != nil {
		return nil, err
	}
	if event.Status == status && status != core.EventNew {
		return event, nil
	}
	if event.Status != core.EventProcessing {
		return nil, fmt.Errorf("%w: event %d is %s, cannot become %s",
			storage.ErrInvalidTransition, id, event.Status, status)
	}

	old := *event
	event.Status = status
	event.ErrorDetail = detail
	event.ClaimedAt = time.Time{}
	event.ClaimedBy = ""
	event.UpdatedAt = time.Now().UTC()
	if err := putEvent(tx, &old, event); err != nil {
		return nil, err
	}

	locked, err := itemLockedByOther(tx, &old)
	if err != nil {
		return nil, err
	}
	if !locked {
		if err := tx.Delete(makeEventItemLockKey(event.ItemID)); err != nil {
			return nil, err
		}
	}
	return event, nil
}
