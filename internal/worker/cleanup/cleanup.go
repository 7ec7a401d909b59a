// Package cleanup は受信されないまま残った通知の自動削除ジョブを提供する。
// 保持日数が0の場合は無効で、通知はdrainでのみ削除される。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/five/internal/metrics"
)

// Purger は指定時刻より古い通知を削除するインターフェース。
// repository.NotificationRepositoryが満たす。
type Purger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した通知の削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type CleanupJob struct {
	purger        Purger
	logger        *slog.Logger
	metrics       metrics.MetricsCollector
	now           func() time.Time
	RetentionDays int // 通知の保持日数（0の場合は削除しない）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(purger Purger, logger *slog.Logger, collector metrics.MetricsCollector, retentionDays int) *CleanupJob {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &CleanupJob{
		purger:        purger,
		logger:        logger,
		metrics:       collector,
		now:           time.Now,
		RetentionDays: retentionDays,
	}
}

// Enabled は削除ジョブが有効かどうかを返す。
func (j *CleanupJob) Enabled() bool {
	return j.RetentionDays > 0
}

// Run は作成からRetentionDays日を超えた通知を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	if !j.Enabled() {
		return nil
	}
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deletedCount, err := j.purger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.Error("通知クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("通知クリーンアップの実行に失敗: %w", err)
	}
	j.metrics.RecordNotificationsPurged(deletedCount)

	j.logger.Info("通知クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start はinterval間隔でRunを繰り返す。起動直後に1回実行する。
// コンテキストがキャンセルされるまで戻らない。無効な場合は即座に戻る。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if !j.Enabled() {
		j.logger.Info("通知クリーンアップジョブは無効です")
		return
	}
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	j.logger.Info("通知クリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("retention_days", j.RetentionDays),
	)

	// エラーはRun内でログ済みのため継続する
	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("通知クリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
