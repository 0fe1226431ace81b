// Package mutation implements optimistic writes against the query cache.
//
// Every write goes through a transaction that snapshots the affected cache
// entries, applies the local change synchronously, and then either commits
// (invalidating the entries so server-confirmed values replace the optimistic
// guess) or rolls every entry back to its exact snapshot.
package mutation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"festa/internal/cache"
)

// TxState is the lifecycle of one optimistic transaction.
type TxState int

const (
	StateIdle TxState = iota
	StateApplying
	StateCommitted
	StateRolledBack
)

func (s TxState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateApplying:
		return "applying"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled-back"
	default:
		return "unknown"
	}
}

var (
	ErrTxNotApplying = errors.New("transaction is not in the applying state")
	ErrTxFinished    = errors.New("transaction already committed or rolled back")
)

// Store is the keyed cache the transaction operates on. Values must be
// replaced, never mutated in place, so a snapshot stays valid by reference.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, data any)
	Delete(key string)
}

type snapshot struct {
	key     string
	value   any
	present bool
}

// Tx is one optimistic transaction: Idle -> Applying -> Committed|RolledBack.
type Tx struct {
	store Store
	state TxState
	snaps []snapshot
	keys  []cache.Key
}

// Begin starts a transaction over the affected keys and captures their
// current cached values. The transaction enters Applying immediately so the
// snapshot and the local change form one synchronous step.
func Begin(store Store, keys ...cache.Key) *Tx {
	tx := &Tx{store: store, state: StateApplying, keys: keys}
	for _, k := range keys {
		v, ok := store.Get(k.String())
		tx.snaps = append(tx.snaps, snapshot{key: k.String(), value: v, present: ok})
	}
	return tx
}

// State returns the transaction's current lifecycle state.
func (tx *Tx) State() TxState { return tx.state }

// Keys returns the cache keys this transaction affects.
func (tx *Tx) Keys() []cache.Key { return tx.keys }

// Put replaces a cached value as part of the optimistic apply.
func (tx *Tx) Put(key cache.Key, value any) error {
	if tx.state != StateApplying {
		return ErrTxNotApplying
	}
	tx.store.Set(key.String(), value)
	return nil
}

// Update reads the cached value under key and replaces it with the result of
// fn. When the key is not cached, fn receives (nil, false) and may return
// keep=false to leave the cache untouched.
func (tx *Tx) Update(key cache.Key, fn func(current any, ok bool) (next any, keep bool)) error {
	if tx.state != StateApplying {
		return ErrTxNotApplying
	}
	cur, ok := tx.store.Get(key.String())
	next, keep := fn(cur, ok)
	if keep {
		tx.store.Set(key.String(), next)
	}
	return nil
}

// Commit marks the optimistic values as superseded by the server: every
// snapshotted key is invalidated so the next read refetches confirmed data.
// Invalidation is fire and forget; consumers re-render when data arrives.
func (tx *Tx) Commit() error {
	if tx.state != StateApplying {
		return ErrTxFinished
	}
	for _, s := range tx.snaps {
		tx.store.Delete(s.key)
	}
	tx.state = StateCommitted
	return nil
}

// Rollback restores every snapshotted key to its exact pre-transaction value.
// There is no partial rollback: entries absent before the transaction are
// removed again, present ones are restored by reference.
func (tx *Tx) Rollback() error {
	if tx.state != StateApplying {
		return ErrTxFinished
	}
	for _, s := range tx.snaps {
		if s.present {
			tx.store.Set(s.key, s.value)
		} else {
			tx.store.Delete(s.key)
		}
	}
	tx.state = StateRolledBack
	return nil
}

// Coordinator runs optimistic mutations. The apply step is synchronous and
// serialized under one lock so readers never observe a half-applied change;
// the persist step is the only suspending boundary.
type Coordinator struct {
	mu    sync.Mutex
	store Store
}

func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// Request describes one mutation run.
type Request struct {
	Mutation cache.Mutation
	Scope    cache.Scope

	// ExtraKeys widens the snapshot and invalidation set beyond the policy's
	// KeysFor table, for mutations whose effects span more than one scope
	// (an expense moved between events touches both events' lists).
	ExtraKeys []cache.Key

	// Apply performs the synchronous optimistic change on the cache through
	// the transaction. It must not touch the store directly.
	Apply func(tx *Tx) error

	// Persist issues the write to the backing store and returns the real
	// identifier of the affected entity. It is never retried by the
	// coordinator; a retried apply could double-apply.
	Persist func(ctx context.Context) (string, error)

	// OnSuccess receives the real identifier after commit. Optional.
	OnSuccess func(id string)

	// OnError receives the persistence error after rollback. Optional.
	OnError func(err error)
}

// Run executes snapshot, optimistic apply, persist, and commit-or-rollback.
// The returned id is the real identifier from the backing store.
func (c *Coordinator) Run(ctx context.Context, req Request) (string, error) {
	if req.Persist == nil {
		return "", errors.New("mutation request without persist step")
	}

	keys := append(cache.KeysFor(req.Mutation, req.Scope), req.ExtraKeys...)

	c.mu.Lock()
	tx := Begin(c.store, keys...)
	if req.Apply != nil {
		if err := req.Apply(tx); err != nil {
			// The optimistic change never happened; restore and bail out
			// before any network traffic.
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.ErrorContext(ctx, "Rollback after failed apply", "error", rbErr)
			}
			c.mu.Unlock()
			return "", fmt.Errorf("optimistic apply: %w", err)
		}
	}
	c.mu.Unlock()

	id, err := req.Persist(ctx)
	if err != nil {
		c.mu.Lock()
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr, "mutation", string(req.Mutation))
		}
		c.mu.Unlock()
		slog.WarnContext(ctx, "Mutation rolled back",
			"mutation", string(req.Mutation),
			"user_id", req.Scope.UserID,
			"event_id", req.Scope.EventID,
			"error", err)
		if req.OnError != nil {
			req.OnError(err)
		}
		return "", err
	}

	c.mu.Lock()
	if cmErr := tx.Commit(); cmErr != nil {
		slog.ErrorContext(ctx, "Commit failed", "error", cmErr, "mutation", string(req.Mutation))
	}
	c.mu.Unlock()

	if req.OnSuccess != nil {
		req.OnSuccess(id)
	}
	return id, nil
}
