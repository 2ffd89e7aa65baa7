// Package agent defines the persisted mirror of a runtime container and the
// storage contract the reconciler relies on.
package agent

import (
	"context"
	"encoding/json"
	"time"

	"echopulse/internal/zones"
)

// Agent is the persisted mirror of one runtime container.
type Agent struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Status    string     `json:"status"`
	Mood      zones.Mood `json:"mood"`
	Zone      zones.Zone `json:"zone"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	IsActive  bool       `json:"is_active"`

	// ThoughtLog is opaque to echopulse and is stored and returned as-is.
	ThoughtLog ThoughtLog `json:"thought_log"`
}

// ThoughtLog is an ordered sequence of opaque JSON entries.
type ThoughtLog []json.RawMessage

// MarshalJSON encodes a nil log as an empty array.
func (l ThoughtLog) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]json.RawMessage(l))
}

// Observe builds the record written for a fresh sighting of a container.
// CreatedAt is set to now; repositories keep the stored value for known ids.
func Observe(id, name, status string, now time.Time) Agent {
	zone, mood := zones.Classify(status)
	return Agent{
		ID:        id,
		Name:      name,
		Status:    status,
		Zone:      zone,
		Mood:      mood,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
}

// Repository persists Agent records. Records are never physically deleted.
type Repository interface {
	// Upsert inserts the record or updates name, status, zone, mood,
	// updated_at and is_active of an existing one. created_at and thought_log
	// of an existing record are preserved.
	Upsert(ctx context.Context, a Agent) error

	// List returns all records, or only the active ones when activeOnly is set.
	List(ctx context.Context, activeOnly bool) ([]Agent, error)

	// ListInactive returns the retired records ordered by updated_at, newest first.
	ListInactive(ctx context.Context) ([]Agent, error)

	// Deactivate marks a record inactive and stamps updated_at. All other
	// fields stay frozen. Unknown ids and already inactive records are no-ops
	// apart from the timestamp.
	Deactivate(ctx context.Context, id string, at time.Time) error

	Close() error
}

// Transactor is implemented by repositories that can apply a group of writes
// atomically. fn receives a Repository bound to the transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(tx Repository) error) error
}

// ActiveIDs returns the set of ids currently marked active.
func ActiveIDs(ctx context.Context, repo Repository) (map[string]struct{}, error) {
	active, err := repo.List(ctx, true)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(active))
	for _, a := range active {
		ids[a.ID] = struct{}{}
	}
	return ids, nil
}
