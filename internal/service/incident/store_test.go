package incident

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/oracle-aggregator/internal/kv"
)

func TestCreateAssignsMonotonicIDs(t *testing.T) {
	store := NewStore(kv.NewMemoryStore())
	ctx := context.Background()

	first, err := store.Create(ctx, Incident{Title: "first", Severity: "warning"})
	require.NoError(t, err)
	require.Equal(t, uint32(1), first.ID)
	require.Equal(t, StatusOpen, first.Status)

	second, err := store.Create(ctx, Incident{Title: "second", Severity: "critical"})
	require.NoError(t, err)
	require.Equal(t, uint32(2), second.ID)
}

func TestUpdateRewritesFullObject(t *testing.T) {
	store := NewStore(kv.NewMemoryStore())
	ctx := context.Background()

	created, err := store.Create(ctx, Incident{Title: "db down", Severity: "critical"})
	require.NoError(t, err)

	updated, err := store.Update(ctx, created.ID, func(in *Incident) {
		in.Status = StatusMitigating
		owner := "oncall"
		in.Owner = &owner
	})
	require.NoError(t, err)
	require.Equal(t, StatusMitigating, updated.Status)
	require.Equal(t, "oncall", *updated.Owner)

	got, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, StatusMitigating, got.Status)
}

func TestUpdateUnknownIDReturnsNil(t *testing.T) {
	store := NewStore(kv.NewMemoryStore())
	updated, err := store.Update(context.Background(), 999, func(in *Incident) { in.Status = StatusResolved })
	require.NoError(t, err)
	require.Nil(t, updated)
}

func TestLoadDiscardsMalformedItemsAndRecomputesNextID(t *testing.T) {
	store := NewStore(kv.NewMemoryStore())
	ctx := context.Background()

	malformed := []byte(`{"version":1,"next_id":1,"items":[{"id":5,"title":"valid","status":"Open","alert_ids":[]},{"id":0,"title":"","status":"Open"}]}`)
	require.NoError(t, store.kv.Put(ctx, StoreKey, malformed))

	items, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1, "the zero-id/empty-title item must be discarded")

	next, err := store.Create(ctx, Incident{Title: "new one"})
	require.NoError(t, err)
	require.Equal(t, uint32(6), next.ID, "next_id must be max(items.id)+1, not the stored value")
}
