// Package audit implements the AuditBuffer (C8): a capped in-memory
// circular buffer with asynchronous, debounced, retry-with-backoff
// persistence, the process-wide singleton every other component logs
// through (spec §4.8, §5, §9).
package audit

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"
)

const (
	// RingCapacity is the fixed ring buffer size, per spec §3/§8.
	RingCapacity = 10_000
	// QueueCapacity bounds the persistence queue, per spec §4.8.
	QueueCapacity = 5_000
	// FlushBatchSize is the max entries dequeued per flush, per spec §4.8.
	FlushBatchSize = 100
	// FlushDebounce is the delay after the most recent log() before a
	// flush is attempted.
	FlushDebounce = 1 * time.Second
	// FetchTimeout bounds each persistence POST, per spec §4.8.
	FetchTimeout = 5 * time.Second
	// MaxRetries bounds persistence retry attempts, per spec §4.8.
	MaxRetries = 3
)

// Entry is an AuditEntry, per spec §3.
type Entry struct {
	ID         string
	Timestamp  time.Time
	Actor      string
	ActorType  string // user | admin | system | anonymous
	Action     string
	Severity   string // info | warning | critical
	EntityType string
	EntityID   string
	Details    map[string]interface{}
	Success    bool
	ErrorMsg   string
}

// Filter selects entries for Query/Statistics.
type Filter struct {
	Actions    []string
	Actor      string
	Severity   string
	Success    *bool
	Start      time.Time
	End        time.Time
	Search     string
	InstanceID string
	Limit      int
	Offset     int
}

// Stats summarizes a Query's matching set.
type Stats struct {
	Total      int
	BySeverity map[string]int
	SuccessPct float64
}

// Buffer is the process-wide singleton AuditBuffer.
type Buffer struct {
	mu      sync.Mutex
	ring    []Entry
	head    int // next write position
	size    int // number of valid entries (<= RingCapacity)
	queue   []Entry
	dropped int

	flushTimer *time.Timer
	postURL    string
	http       *http.Client

	logger  log.Logger
	svcTags metrics.Tags

	closeOnce sync.Once
	closeCh   chan struct{}
	flushDone chan struct{}
}

// New constructs the singleton buffer. postURL is the
// INSIGHT_ANALYTICS_ENDPOINT base; batches are POSTed to postURL +
// "/api/audit/batch". An empty string disables persistence (ring/query
// still work).
func New(postURL string) *Buffer {
	b := &Buffer{
		ring:      make([]Entry, RingCapacity),
		postURL:   postURL,
		http:      &http.Client{Timeout: FetchTimeout},
		logger:    log.WithFields(log.Fields{"svc": "audit"}),
		svcTags:   metrics.Tags{"svc": "audit"},
		closeCh:   make(chan struct{}),
		flushDone: make(chan struct{}),
	}
	return b
}

// NewID generates "audit-"+ms_base36+"-"+10-hex-of-crypto-random, per
// spec §4.8.
func NewID() string {
	ms := time.Now().UnixMilli()
	msBase36 := strconv.FormatInt(ms, 36)

	buf := make([]byte, 5)
	_, _ = rand.Read(buf)
	return "audit-" + msBase36 + "-" + hex.EncodeToString(buf)
}

// Log is O(1), synchronous, and non-blocking: it writes into the ring
// (overwriting the oldest entry when full) and enqueues for persistence,
// dropping the oldest 20% of the queue with a warning entry on overflow.
func (b *Buffer) Log(e Entry) {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	b.ring[b.head] = e
	b.head = (b.head + 1) % RingCapacity
	if b.size < RingCapacity {
		b.size++
	}

	overflowed := false
	if len(b.queue) >= QueueCapacity {
		drop := QueueCapacity / 5
		b.queue = b.queue[drop:]
		b.dropped += drop
		overflowed = true
	}
	b.queue = append(b.queue, e)
	b.scheduleFlushLocked()
	b.mu.Unlock()

	metrics.ReportFuncCall(b.svcTags)

	if overflowed {
		b.logger.Warningln("persistence queue overflowed, dropped oldest 20%")
		b.Log(Entry{
			Actor:     "audit",
			ActorType: "system",
			Action:    "audit_queue_overflow",
			Severity:  "warning",
			Details:   map[string]interface{}{"dropped": QueueCapacity / 5},
		})
	}
}

func (b *Buffer) scheduleFlushLocked() {
	if b.flushTimer != nil {
		b.flushTimer.Stop()
	}
	b.flushTimer = time.AfterFunc(FlushDebounce, b.flush)
}

// flush dequeues up to FlushBatchSize entries and persists them; on final
// failure the batch is dropped (never re-enqueued), per spec §4.8.
func (b *Buffer) flush() {
	b.mu.Lock()
	if len(b.queue) == 0 {
		b.mu.Unlock()
		return
	}
	n := FlushBatchSize
	if n > len(b.queue) {
		n = len(b.queue)
	}
	batch := make([]Entry, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]
	b.mu.Unlock()

	if b.postURL == "" {
		return
	}
	if err := b.persistBatch(batch); err != nil {
		b.logger.WithError(err).Errorln("audit batch persist failed after retries, dropping batch")
		metrics.ReportFuncError(b.svcTags)
	}

	b.mu.Lock()
	hasMore := len(b.queue) > 0
	b.mu.Unlock()
	if hasMore {
		b.flush()
	}
}

func (b *Buffer) persistBatch(batch []Entry) error {
	bo := &backoff.Backoff{Min: time.Second, Max: time.Duration(MaxRetries) * time.Second, Factor: 2}
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), FetchTimeout)
		err := b.postBatch(ctx, batch)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == MaxRetries {
			break
		}
		time.Sleep(bo.Duration())
	}
	return lastErr
}

func (b *Buffer) postBatch(ctx context.Context, batch []Entry) error {
	body, err := json.Marshal(batch)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.postURL+"/api/audit/batch", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &httpStatusErr{resp.StatusCode}
	}
	return nil
}

type httpStatusErr struct{ code int }

func (e *httpStatusErr) Error() string { return "audit batch POST returned non-2xx status" }

// Len reports the current ring occupancy (<= RingCapacity).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// QueueLen reports the current persistence queue depth (<= QueueCapacity).
func (b *Buffer) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Query performs an in-memory linear scan over the ring, newest first,
// applying filters and pagination per spec §4.8.
func (b *Buffer) Query(f Filter) []Entry {
	b.mu.Lock()
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Timestamp.After(snapshot[j].Timestamp) })

	var matched []Entry
	for _, e := range snapshot {
		if !matchesFilter(e, f) {
			continue
		}
		matched = append(matched, e)
	}

	offset := f.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := f.Limit
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched
}

// Export serializes every entry matching f as either "json" or "csv", per
// spec §4.8's `export(format)`. Unknown formats default to JSON.
func (b *Buffer) Export(f Filter, format string) ([]byte, error) {
	entries := b.Query(f)
	if format == "csv" {
		return exportCSV(entries), nil
	}
	return json.Marshal(entries)
}

func exportCSV(entries []Entry) []byte {
	var buf bytes.Buffer
	buf.WriteString("id,timestamp,actor,actor_type,action,severity,success,error_message\n")
	for _, e := range entries {
		buf.WriteString(e.ID)
		buf.WriteByte(',')
		buf.WriteString(e.Timestamp.Format(time.RFC3339))
		buf.WriteByte(',')
		buf.WriteString(e.Actor)
		buf.WriteByte(',')
		buf.WriteString(e.ActorType)
		buf.WriteByte(',')
		buf.WriteString(e.Action)
		buf.WriteByte(',')
		buf.WriteString(e.Severity)
		buf.WriteByte(',')
		buf.WriteString(strconv.FormatBool(e.Success))
		buf.WriteByte(',')
		buf.WriteString(e.ErrorMsg)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// Statistics summarizes entries matching f without pagination.
func (b *Buffer) Statistics(f Filter) Stats {
	f.Limit = 0
	f.Offset = 0
	matched := b.Query(f)

	stats := Stats{Total: len(matched), BySeverity: make(map[string]int)}
	successCount := 0
	for _, e := range matched {
		stats.BySeverity[e.Severity]++
		if e.Success {
			successCount++
		}
	}
	if stats.Total > 0 {
		stats.SuccessPct = float64(successCount) / float64(stats.Total) * 100
	}
	return stats
}

func (b *Buffer) snapshotLocked() []Entry {
	out := make([]Entry, 0, b.size)
	if b.size < RingCapacity {
		out = append(out, b.ring[:b.size]...)
		return out
	}
	// Full ring: oldest entry is at b.head.
	out = append(out, b.ring[b.head:]...)
	out = append(out, b.ring[:b.head]...)
	return out
}

func matchesFilter(e Entry, f Filter) bool {
	if len(f.Actions) > 0 {
		found := false
		for _, a := range f.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Actor != "" && f.Actor != e.Actor {
		return false
	}
	if f.Severity != "" && f.Severity != e.Severity {
		return false
	}
	if f.Success != nil && *f.Success != e.Success {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	if f.InstanceID != "" && e.EntityID != f.InstanceID {
		return false
	}
	if f.Search != "" && !strings.Contains(strings.ToLower(e.Action), strings.ToLower(f.Search)) {
		return false
	}
	return true
}

// ClearOld drops ring entries older than now-days, per spec §4.8 cleanup.
func (b *Buffer) ClearOld(days int) {
	cutoff := time.Now().AddDate(0, 0, -days)
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := make([]Entry, 0, b.size)
	for _, e := range b.snapshotLocked() {
		if e.Timestamp.After(cutoff) {
			kept = append(kept, e)
		}
	}
	b.ring = make([]Entry, RingCapacity)
	b.head = 0
	b.size = 0
	for _, e := range kept {
		b.ring[b.head] = e
		b.head = (b.head + 1) % RingCapacity
		if b.size < RingCapacity {
			b.size++
		}
	}
}

// Close drains the queue with a bounded deadline, per spec §9 "torn down
// at shutdown after draining its queue with a bounded deadline (10 s)".
func (b *Buffer) Close() {
	b.closeOnce.Do(func() {
		deadline := time.Now().Add(10 * time.Second)
		for time.Now().Before(deadline) {
			if b.QueueLen() == 0 {
				return
			}
			b.flush()
		}
	})
}
