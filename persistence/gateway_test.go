package persistence

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/InjectiveLabs/oracle-aggregator/oracle"
)

func newMockGateway(t *testing.T) (Gateway, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewGateway(db), mock
}

func TestUpsertFeedsEmptyIsNoop(t *testing.T) {
	gw, mock := newMockGateway(t)
	require.NoError(t, gw.UpsertFeeds(context.Background(), "inst-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFeedsSingleBatch(t *testing.T) {
	gw, mock := newMockGateway(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unified_price_feeds").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	feed := &oracle.PriceFeed{
		Protocol: oracle.ProtocolChainlink, Chain: "ethereum", Symbol: "BTC/USD",
		Price: decimal.NewFromInt(65000), Timestamp: time.Now(),
	}
	err := gw.UpsertFeeds(context.Background(), "inst-1", []*oracle.PriceFeed{feed})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertFeedsRetriesOnceThenFails(t *testing.T) {
	gw, mock := newMockGateway(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unified_price_feeds").WillReturnError(assertErr)
	mock.ExpectRollback()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO unified_price_feeds").WillReturnError(assertErr)
	mock.ExpectRollback()

	feed := &oracle.PriceFeed{Protocol: oracle.ProtocolPyth, Chain: "ethereum", Symbol: "ETH/USD", Price: decimal.NewFromInt(3000), Timestamp: time.Now()}
	err := gw.UpsertFeeds(context.Background(), "inst-1", []*oracle.PriceFeed{feed})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReadSyncStateNotFoundReturnsNilNil(t *testing.T) {
	gw, mock := newMockGateway(t)
	mock.ExpectQuery("SELECT instance_id").WillReturnRows(sqlmock.NewRows(nil))

	state, err := gw.ReadSyncState(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, state)
}

func TestReadSyncStateFound(t *testing.T) {
	gw, mock := newMockGateway(t)
	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"instance_id", "protocol", "chain", "last_processed_block", "status", "consecutive_failures",
		"last_sync_at", "last_sync_duration_ms", "avg_sync_duration_ms", "last_error", "last_error_at", "updated_at",
	}).AddRow("inst-1", "chainlink", "ethereum", int64(100), StatusHealthy, uint32(0), now, int64(50), int64(50), nil, nil, now)
	mock.ExpectQuery("SELECT instance_id").WillReturnRows(rows)

	state, err := gw.ReadSyncState(context.Background(), "inst-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	require.Equal(t, oracle.ProtocolChainlink, state.Protocol)
	require.Equal(t, StatusHealthy, state.Status)
}

func TestUpsertSyncStateAppliesPatch(t *testing.T) {
	gw, mock := newMockGateway(t)

	mock.ExpectQuery("SELECT instance_id").WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectExec("INSERT INTO unified_sync_state").WillReturnResult(sqlmock.NewResult(0, 1))

	err := gw.UpsertSyncState(context.Background(), "inst-1", SyncStatePatch{
		Protocol: oracle.ProtocolChainlink, Chain: "ethereum", Status: StatusHealthy,
		LastSyncAt: time.Now(), LastSyncDurationMs: 120,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEnabledInstancesDecodesProtocolConfig(t *testing.T) {
	gw, mock := newMockGateway(t)
	rows := sqlmock.NewRows([]string{"id", "protocol", "chain", "enabled", "protocol_config"}).
		AddRow("inst-1", "chainlink", "ethereum", true, []byte(`{"rpc_url":"https://rpc.example"}`))
	mock.ExpectQuery("SELECT id, protocol, chain, enabled, protocol_config").WillReturnRows(rows)

	instances, err := gw.ListEnabledInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 1)
	require.Equal(t, "https://rpc.example", instances[0].RPCURL)
	require.Equal(t, "https://rpc.example", instances[0].ProtocolConfig["rpc_url"])
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

var assertErr = simpleErr("exec failed")
