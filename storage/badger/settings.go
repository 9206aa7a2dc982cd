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

// SettingsRepository implements storage.SettingsRepository for BadgerDB.
type SettingsRepository struct {
	backend *Backend
}

var _ storage.SettingsRepository = (*SettingsRepository)(nil)

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(backend *Backend) *SettingsRepository {
	return &SettingsRepository{
		backend: backend,
	}
}

// EmbeddingTarget returns the stored target.
func (r *SettingsRepository) EmbeddingTarget(ctx context.Context) (*core.EmbeddingTarget, error) {
	var target *core.EmbeddingTarget
	err := r.backend.View(func(tx *badger.Txn) error {
		var err error
		target, err = readTarget(tx)
		return err
	})
	return target, err
}

// SetEmbeddingTarget replaces the target; its version may not go down.
func (r *SettingsRepository) SetEmbeddingTarget(ctx context.Context, target *core.EmbeddingTarget) error {
	if err := core.ValidateTarget(target); err != nil {
		return err
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		current, err := readTarget(tx)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		if current != nil && target.Version < current.Version {
			return fmt.Errorf("%w: target is at version %d", storage.ErrStaleVersion, current.Version)
		}
		return putTarget(tx, target)
	})
}

// EnsureEmbeddingTarget stores def unless a target already exists.
func (r *SettingsRepository) EnsureEmbeddingTarget(ctx context.Context, def *core.EmbeddingTarget) (*core.EmbeddingTarget, error) {
	if err := core.ValidateTarget(def); err != nil {
		return nil, err
	}
	var target *core.EmbeddingTarget
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		current, err := readTarget(tx)
		if err == nil {
			target = current
			return nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		stored := *def
		if err := putTarget(tx, &stored); err != nil {
			return err
		}
		target = &stored
		return nil
	})
	return target, err
}

// BumpVersion increments the target version. Every completed chunk becomes
// stale and is picked up again by enrichment.
func (r *SettingsRepository) BumpVersion(ctx context.Context, model string, dims int) (*core.EmbeddingTarget, error) {
	var target *core.EmbeddingTarget
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		current, err := readTarget(tx)
		if err != nil {
			return err
		}
		current.Version++
		if model != "" {
			current.Model = model
		}
		if dims > 0 {
			current.Dimensions = dims
		}
		if err := putTarget(tx, current); err != nil {
			return err
		}
		target = current
		return nil
	})
	return target, err
}

func readTarget(tx *badger.Txn) (*core.EmbeddingTarget, error) {
	return getValue(tx, []byte(embeddingTargetKey), storage.UnmarshalTarget)
}

func putTarget(tx *badger.Txn, target *core.EmbeddingTarget) error {
	target.UpdatedAt = time.Now().UTC()
	return tx.Set([]byte(embeddingTargetKey), storage.MarshalTarget(target))
}
