package places

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/hitoshi/five/internal/metrics"
	"github.com/hitoshi/five/internal/model"
)

// ErrCircuitOpen はサーキットブレーカーが開いていて呼び出しを拒否したことを表す。
var ErrCircuitOpen = errors.New("places provider circuit open")

// Searcher はnearby searchを実行するインターフェース。
type Searcher interface {
	NearbySearch(ctx context.Context, location model.LatLng) (*SearchResponse, error)
}

// BreakerConfig はサーキットブレーカーの設定。
type BreakerConfig struct {
	// MaxConsecutiveFailures は連続失敗がこの回数に達したら回路を開く。
	MaxConsecutiveFailures uint32
	// OpenTimeout は回路を開いてから半開状態に移るまでの時間。
	OpenTimeout time.Duration
}

// BreakerClient はSearcherをサーキットブレーカーで保護する。
// HTTPレベルの失敗のみを失敗として数え、プロバイダのstatusは数えない。
type BreakerClient struct {
	next    Searcher
	cb      *gobreaker.CircuitBreaker[*SearchResponse]
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewBreakerClient はBreakerClientを生成する。
func NewBreakerClient(next Searcher, cfg BreakerConfig, collector metrics.MetricsCollector, logger *slog.Logger) *BreakerClient {
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	b := &BreakerClient{
		next:    next,
		metrics: collector,
		logger:  logger,
	}
	b.cb = gobreaker.NewCircuitBreaker[*SearchResponse](gobreaker.Settings{
		Name:        "places-provider",
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("サーキットブレーカーの状態が変化しました",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})
	return b
}

// NearbySearch はサーキットブレーカー経由でnearby searchを実行する。
// 回路が開いている場合はErrCircuitOpenを返す。
func (b *BreakerClient) NearbySearch(ctx context.Context, location model.LatLng) (*SearchResponse, error) {
	resp, err := b.cb.Execute(func() (*SearchResponse, error) {
		return b.next.NearbySearch(ctx, location)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.RecordProviderFailure(metrics.ReasonCircuitOpen)
		return nil, ErrCircuitOpen
	}
	return resp, err
}

// State は現在の回路状態を返す。
func (b *BreakerClient) State() gobreaker.State {
	return b.cb.State()
}

var (
	_ Searcher = (*Client)(nil)
	_ Searcher = (*BreakerClient)(nil)
)
