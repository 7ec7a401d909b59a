package cleanup

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/hitoshi/five/internal/metrics"
)

// mockPurger はDeleteOlderThanの呼び出しを記録する。
type mockPurger struct {
	mu      sync.Mutex
	calls   int
	cutoffs []time.Time
	deleted int64
	err     error
}

func (m *mockPurger) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.deleted, m.err
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// findLogField はJSONログの各行からkeyを探し、最初に見つかった値を返す。
func findLogField(buf *bytes.Buffer, key string) (any, bool) {
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if v, ok := entry[key]; ok {
			return v, true
		}
	}
	return nil, false
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestJob(purger Purger, buf *bytes.Buffer, retentionDays int) *CleanupJob {
	job := NewCleanupJob(purger, newTestLogger(buf), nil, retentionDays)
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestCleanupJob_DisabledByDefault(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := newTestJob(purger, &buf, 0)

	if job.Enabled() {
		t.Error("保持日数0では無効であるべき")
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}
	if purger.callCount() != 0 {
		t.Error("無効な場合は削除しないべき")
	}
}

func TestCleanupJob_Run_UsesCutoff(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{deleted: 5}
	job := newTestJob(purger, &buf, 30)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() がエラーを返した: %v", err)
	}

	want := fixedNow.AddDate(0, 0, -30)
	if len(purger.cutoffs) != 1 || !purger.cutoffs[0].Equal(want) {
		t.Errorf("cutoff = %v, want %v", purger.cutoffs, want)
	}
}

func TestCleanupJob_Run_LogsDeletedCount(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockPurger{deleted: 42}, &buf, 7)

	_ = job.Run(context.Background())

	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(42) {
		t.Errorf("ログに deleted_count=42 が記録されていない。ログ出力: %s", buf.String())
	}
	if v, ok := findLogField(&buf, "retention_days"); !ok || v != float64(7) {
		t.Errorf("ログに retention_days=7 が記録されていない。ログ出力: %s", buf.String())
	}
	if _, ok := findLogField(&buf, "duration_ms"); !ok {
		t.Errorf("ログに duration_ms が記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_ReturnsErrorOnDBFailure(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockPurger{err: sql.ErrConnDone}, &buf, 7)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("DBエラー時に Run() は nil でないエラーを返すべき")
	}
	if !strings.Contains(err.Error(), "sql: connection is already closed") {
		t.Errorf("エラーメッセージが期待と異なる: %v", err)
	}
	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("エラー時にERRORレベルのログが記録されていない。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_Idempotent_ZeroRows(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockPurger{}, &buf, 7)

	for i := 0; i < 2; i++ {
		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("%d回目の Run() がエラーを返した: %v", i+1, err)
		}
	}
	if v, ok := findLogField(&buf, "deleted_count"); !ok || v != float64(0) {
		t.Errorf("0件削除時にもログに deleted_count=0 が記録されるべき。ログ出力: %s", buf.String())
	}
}

func TestCleanupJob_Run_RecordsMetrics(t *testing.T) {
	var buf bytes.Buffer
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	job := NewCleanupJob(&mockPurger{deleted: 3}, newTestLogger(&buf), collector, 1)
	_ = job.Run(context.Background())

	expected := `
# HELP five_notifications_purged_total 保持期間切れで削除された通知の合計数
# TYPE five_notifications_purged_total counter
five_notifications_purged_total 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "five_notifications_purged_total"); err != nil {
		t.Errorf("メトリクスが期待と異なる: %v", err)
	}
}

func TestCleanupJob_Start_RunsImmediatelyAndStops(t *testing.T) {
	var buf bytes.Buffer
	purger := &mockPurger{}
	job := newTestJob(purger, &buf, 7)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for purger.callCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if purger.callCount() != 1 {
		t.Fatalf("起動直後に1回実行されるべき: calls=%d", purger.callCount())
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("コンテキストのキャンセル後に停止するべき")
	}
}

func TestCleanupJob_Start_DisabledReturnsImmediately(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockPurger{}, &buf, 0)

	done := make(chan struct{})
	go func() {
		job.Start(context.Background(), time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("無効な場合は即座に戻るべき")
	}
}
