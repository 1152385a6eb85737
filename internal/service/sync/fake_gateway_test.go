package sync

import (
	"context"

	"github.com/InjectiveLabs/oracle-aggregator/oracle"
	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// fakeGateway is a minimal in-memory persistence.Gateway for sync package
// tests; only the methods SyncInstance/SyncOrchestrator actually call do
// anything interesting.
type fakeGateway struct {
	upsertFeedsCalls int
	insertUpdatesN   int
	patches          []persistence.SyncStatePatch
	syncStates       map[string]*persistence.SyncState
	enabled          []persistence.Instance

	upsertFeedsErr error
	listErr        error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{syncStates: make(map[string]*persistence.SyncState)}
}

func (f *fakeGateway) UpsertFeeds(_ context.Context, _ string, feeds []*oracle.PriceFeed) error {
	f.upsertFeedsCalls++
	if f.upsertFeedsErr != nil {
		return f.upsertFeedsErr
	}
	return nil
}

func (f *fakeGateway) InsertUpdates(_ context.Context, updates []persistence.PriceUpdate) error {
	f.insertUpdatesN += len(updates)
	return nil
}

func (f *fakeGateway) ReadSyncState(_ context.Context, instanceID string) (*persistence.SyncState, error) {
	return f.syncStates[instanceID], nil
}

func (f *fakeGateway) UpsertSyncState(_ context.Context, instanceID string, patch persistence.SyncStatePatch) error {
	f.patches = append(f.patches, patch)
	f.syncStates[instanceID] = &persistence.SyncState{
		InstanceID:          instanceID,
		Protocol:            patch.Protocol,
		Chain:               patch.Chain,
		LastProcessedBlock:  patch.LastProcessedBlock,
		Status:              patch.Status,
		ConsecutiveFailures: patch.ConsecutiveFailures,
	}
	return nil
}

func (f *fakeGateway) ListFeeds(_ context.Context, _ persistence.FeedFilter) ([]persistence.StoredFeed, error) {
	return nil, nil
}

func (f *fakeGateway) QueryRecentFeeds(_ context.Context, _ persistence.RecentFeedsWindow) ([]persistence.StoredFeed, error) {
	return nil, nil
}

func (f *fakeGateway) ListEnabledInstances(_ context.Context) ([]persistence.Instance, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.enabled, nil
}

func (f *fakeGateway) CleanupOldData(_ context.Context, _ oracle.Protocol, _ int) error {
	return nil
}
