// Package persistence implements the PersistenceGateway (C2): batched
// upsert of feeds and updates, sync-state read/write, and filtered feed
// queries, against the relational schema in spec §6.
package persistence

import (
	"time"

	"github.com/InjectiveLabs/oracle-aggregator/oracle"
)

// Instance is the admin-configured (protocol, chain, rpc_url) row the core
// only ever reads, per spec §3 Instance.
type Instance struct {
	InstanceID     string
	Protocol       oracle.Protocol
	Chain          string
	Enabled        bool
	RPCURL         string
	ProtocolConfig map[string]interface{}
	SyncIntervalMs uint32
}

// SyncState is the one-row-per-instance health record, per spec §3.
type SyncState struct {
	InstanceID         string
	Protocol           oracle.Protocol
	Chain              string
	LastProcessedBlock uint64
	Status             string // healthy | lagging | stalled | error
	ConsecutiveFailures uint32
	LastSyncAt         time.Time
	LastSyncDurationMs int64
	AvgSyncDurationMs  int64
	LastError          *string
	LastErrorAt        *time.Time
	UpdatedAt          time.Time
}

// SyncStatePatch carries the mutable fields of a single upsert_sync_state
// call. Every field is written as given, zero values and nil pointers
// included; Protocol and Chain are only stored when the row is first
// inserted.
type SyncStatePatch struct {
	Protocol            oracle.Protocol
	Chain               string
	LastProcessedBlock  uint64
	Status              string
	ConsecutiveFailures uint32
	LastSyncAt          time.Time
	LastSyncDurationMs  int64
	LastError           *string
	LastErrorAt         *time.Time
}

const (
	StatusHealthy = "healthy"
	StatusLagging = "lagging"
	StatusStalled = "stalled"
	StatusError   = "error"
)

// PriceUpdate is the change-event row, per spec §3 PriceUpdate.
type PriceUpdate struct {
	ID                 string
	FeedID             string
	InstanceID         string
	Protocol           oracle.Protocol
	PreviousPrice      float64
	CurrentPrice       float64
	PriceChange        float64
	PriceChangePercent float64
	Timestamp          time.Time
	BlockNumber        uint64
}

// UpdateID is the deterministic id spec §3 assigns to a PriceUpdate.
func UpdateID(feedID string) string { return "update-" + feedID }

// FeedFilter selects rows for ListFeeds.
type FeedFilter struct {
	Protocol   oracle.Protocol
	Chain      string
	Symbol     string
	InstanceID string
	Limit      int
	Offset     int
}

// RecentFeedsWindow bounds QueryRecentFeeds to samples within Window of now.
type RecentFeedsWindow struct {
	Symbol string
	Window time.Duration
}

// StoredFeed is a PriceFeed as read back from unified_price_feeds,
// including the instance_id it was written under.
type StoredFeed struct {
	oracle.PriceFeed
	FeedID     string
	InstanceID string
	UpdatedAt  time.Time
}
