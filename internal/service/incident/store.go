// Package incident implements the IncidentStore (C9): a single versioned
// JSON blob grouping related alerts, with strict reads and full-object
// rewrite writes under an advisory lock, per spec §4.9/§6.
package incident

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/internal/errs"
	"github.com/InjectiveLabs/oracle-aggregator/internal/kv"
)

// StoreKey is the KV blob key, per spec §6 "incidents/v1".
const StoreKey = "incidents/v1"

const (
	StatusOpen       = "Open"
	StatusMitigating = "Mitigating"
	StatusResolved   = "Resolved"
)

// Incident is the Incident entity, per spec §3.
type Incident struct {
	ID         uint32     `json:"id"`
	Title      string     `json:"title"`
	Status     string     `json:"status"`
	Severity   string     `json:"severity"`
	Owner      *string    `json:"owner,omitempty"`
	RootCause  *string    `json:"root_cause,omitempty"`
	Summary    *string    `json:"summary,omitempty"`
	AlertIDs   []uint64   `json:"alert_ids"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

type blob struct {
	Version int        `json:"version"`
	NextID  uint32      `json:"next_id"`
	Items   []Incident `json:"items"`
}

// Store is the IncidentStore (C9).
type Store struct {
	kv     kv.Store
	logger log.Logger
}

func NewStore(store kv.Store) *Store {
	return &Store{kv: store, logger: log.WithFields(log.Fields{"svc": "incident_store"})}
}

// load reads and strictly validates the blob: unknown fields are dropped
// by json.Unmarshal's default behavior, malformed items are discarded, and
// next_id is recomputed as max(items.id)+1 regardless of the stored value,
// per spec §6.
func (s *Store) load(ctx context.Context) (blob, error) {
	raw, found, err := s.kv.Get(ctx, StoreKey)
	if err != nil {
		return blob{Version: 1}, &errs.InternalError{Reason: "failed to read incidents/v1", Cause: err}
	}
	if !found {
		return blob{Version: 1}, nil
	}

	var b blob
	if err := json.Unmarshal(raw, &b); err != nil {
		s.logger.WithError(err).Warningln("incidents/v1 blob is malformed, starting from empty")
		return blob{Version: 1}, nil
	}

	var kept []Incident
	for _, item := range b.Items {
		if item.ID == 0 || item.Title == "" {
			continue // malformed item discarded
		}
		kept = append(kept, item)
	}
	b.Items = kept
	b.Version = 1
	b.NextID = nextID(kept)
	return b, nil
}

func nextID(items []Incident) uint32 {
	var max uint32
	for _, it := range items {
		if it.ID > max {
			max = it.ID
		}
	}
	return max + 1
}

// List returns every Incident, newest-updated first.
func (s *Store) List(ctx context.Context) ([]Incident, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	items := b.Items
	sort.SliceStable(items, func(i, j int) bool { return items[i].UpdatedAt.After(items[j].UpdatedAt) })
	return items, nil
}

// Get returns a single Incident by id.
func (s *Store) Get(ctx context.Context, id uint32) (*Incident, error) {
	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	for i := range b.Items {
		if b.Items[i].ID == id {
			return &b.Items[i], nil
		}
	}
	return nil, nil
}

// Create appends a new Incident under the store's advisory lock, assigning
// the next monotonic id, per spec §6 "next_id is max(items.id) + 1".
func (s *Store) Create(ctx context.Context, in Incident) (*Incident, error) {
	unlock, err := s.kv.Lock(ctx, StoreKey, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	in.ID = b.NextID
	in.CreatedAt, in.UpdatedAt = now, now
	if in.Status == "" {
		in.Status = StatusOpen
	}
	b.Items = append(b.Items, in)
	b.NextID = in.ID + 1

	if err := s.rewrite(ctx, b); err != nil {
		return nil, err
	}
	return &in, nil
}

// Update applies mutate to the stored Incident identified by id as a
// full-object rewrite, under the advisory lock, per spec §6.
func (s *Store) Update(ctx context.Context, id uint32, mutate func(*Incident)) (*Incident, error) {
	unlock, err := s.kv.Lock(ctx, StoreKey, 5*time.Second)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	var updated *Incident
	for i := range b.Items {
		if b.Items[i].ID == id {
			mutate(&b.Items[i])
			b.Items[i].UpdatedAt = time.Now().UTC()
			updated = &b.Items[i]
			break
		}
	}
	if updated == nil {
		return nil, nil
	}

	if err := s.rewrite(ctx, b); err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) rewrite(ctx context.Context, b blob) error {
	body, err := json.Marshal(b)
	if err != nil {
		return &errs.InternalError{Reason: "failed to encode incidents/v1", Cause: err}
	}
	if err := s.kv.Put(ctx, StoreKey, body); err != nil {
		return &errs.InternalError{Reason: "failed to write incidents/v1", Cause: err}
	}
	return nil
}
