// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	RecordCheckIn()
	RecordNotificationsCreated(count int)
	RecordNotificationsDrained(count int)
	RecordNotificationsPurged(count int64)
	RecordPlacesIngested(created, existing int)
	RecordProviderLatency(duration time.Duration)
	RecordProviderHTTPStatus(statusCode int)
	RecordProviderFailure(reason string)
}

// プロバイダ失敗の理由ラベル
const (
	ReasonTransport   = "transport"
	ReasonHTTPStatus  = "http_status"
	ReasonDecode      = "decode"
	ReasonStatus      = "status"
	ReasonCircuitOpen = "circuit_open"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	checkIns             prometheus.Counter
	notificationsCreated prometheus.Counter
	notificationsDrained prometheus.Counter
	notificationsPurged  prometheus.Counter
	placesIngested       *prometheus.CounterVec
	providerLatency      prometheus.Histogram
	providerHTTPStatus   *prometheus.CounterVec
	providerFailures     *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		checkIns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "five_checkins_total",
			Help: "チェックインの合計数",
		}),
		notificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "five_notifications_created_total",
			Help: "作成された通知の合計数",
		}),
		notificationsDrained: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "five_notifications_drained_total",
			Help: "受信者に配信された通知の合計数",
		}),
		notificationsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "five_notifications_purged_total",
			Help: "保持期間切れで削除された通知の合計数",
		}),
		placesIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "five_places_ingested_total",
			Help: "取り込み結果別のプレイス数",
		}, []string{"result"}),
		providerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "five_provider_latency_seconds",
			Help:    "プレイスプロバイダ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		providerHTTPStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "five_provider_http_status_total",
			Help: "プレイスプロバイダのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		providerFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "five_provider_failures_total",
			Help: "理由別のプレイスプロバイダ呼び出し失敗数",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		c.checkIns,
		c.notificationsCreated,
		c.notificationsDrained,
		c.notificationsPurged,
		c.placesIngested,
		c.providerLatency,
		c.providerHTTPStatus,
		c.providerFailures,
	)

	return c
}

// RecordCheckIn はチェックインを記録する。
func (c *Collector) RecordCheckIn() {
	c.checkIns.Inc()
}

// RecordNotificationsCreated は作成された通知数を記録する。
func (c *Collector) RecordNotificationsCreated(count int) {
	c.notificationsCreated.Add(float64(count))
}

// RecordNotificationsDrained は配信された通知数を記録する。
func (c *Collector) RecordNotificationsDrained(count int) {
	c.notificationsDrained.Add(float64(count))
}

// RecordNotificationsPurged は保持期間切れで削除された通知数を記録する。
func (c *Collector) RecordNotificationsPurged(count int64) {
	c.notificationsPurged.Add(float64(count))
}

// RecordPlacesIngested は新規作成と既存のプレイス数を記録する。
func (c *Collector) RecordPlacesIngested(created, existing int) {
	c.placesIngested.WithLabelValues("created").Add(float64(created))
	c.placesIngested.WithLabelValues("existing").Add(float64(existing))
}

// RecordProviderLatency はプロバイダ呼び出しのレイテンシを記録する。
func (c *Collector) RecordProviderLatency(duration time.Duration) {
	c.providerLatency.Observe(duration.Seconds())
}

// RecordProviderHTTPStatus はプロバイダのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderHTTPStatus(statusCode int) {
	c.providerHTTPStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordProviderFailure はプロバイダ呼び出しの失敗を理由付きで記録する。
func (c *Collector) RecordProviderFailure(reason string) {
	c.providerFailures.WithLabelValues(reason).Inc()
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordCheckIn() {}
func (NopCollector) RecordNotificationsCreated(int) {}
func (NopCollector) RecordNotificationsDrained(int) {}
func (NopCollector) RecordNotificationsPurged(int64) {}
func (NopCollector) RecordPlacesIngested(int, int) {}
func (NopCollector) RecordProviderLatency(time.Duration) {}
func (NopCollector) RecordProviderHTTPStatus(int) {}
func (NopCollector) RecordProviderFailure(string) {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
// 一部のコレクターが失敗しても取得できたメトリクスは返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}
