// Package places は外部プレイスプロバイダ（Google Places nearby search互換API）のクライアントを提供する。
package places

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/five/internal/metrics"
	"github.com/hitoshi/five/internal/model"
)

const (
	// DefaultEndpoint はnearby search APIのエンドポイント。
	DefaultEndpoint = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	// DefaultTypes は検索対象のプレイス種別。
	DefaultTypes = "finance|cafe|movie_theater|health|book_store|electronics_store|gym|night_club"
	// DefaultTimeout はプロバイダ呼び出しのタイムアウト。
	DefaultTimeout = 10 * time.Second

	// StatusOK は検索成功を表すプロバイダのステータス。
	StatusOK = "OK"

	// maxResponseBytes はレスポンスボディの最大サイズ。
	maxResponseBytes = 2 * 1024 * 1024
)

// SearchResponse はnearby searchのレスポンス。
type SearchResponse struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message,omitempty"`
	Results      []Result `json:"results"`
}

// Result は検索結果の1件。
// nameとviewportはプロバイダが省略することがあるためポインタで受ける。
type Result struct {
	ID       string   `json:"id"`
	PlaceID  string   `json:"place_id"`
	Name     *string  `json:"name"`
	Icon     string   `json:"icon"`
	Geometry Geometry `json:"geometry"`
}

// Geometry は検索結果の位置情報。
type Geometry struct {
	Location Point     `json:"location"`
	Viewport *Viewport `json:"viewport"`
}

// Point はプロバイダ形式の座標。経度のキーはlng。
// ビューポートの隅は座標が欠けることがあるためポインタで受ける。
type Point struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

// Viewport はプロバイダ形式のビューポート。
type Viewport struct {
	NorthEast *Point `json:"northeast"`
	SouthWest *Point `json:"southwest"`
}

// Identifier はプロバイダのプレイスIDを返す。idがなければplace_idを使う。
func (r Result) Identifier() string {
	if r.ID != "" {
		return r.ID
	}
	return r.PlaceID
}

// Complete は2隅それぞれに緯度経度がそろっているかを返す。
func (v *Viewport) Complete() bool {
	return v != nil &&
		v.NorthEast != nil && v.NorthEast.Lat != nil && v.NorthEast.Lng != nil &&
		v.SouthWest != nil && v.SouthWest.Lat != nil && v.SouthWest.Lng != nil
}

// Config はクライアントの設定。
type Config struct {
	APIKey   string
	Endpoint string
	Types    string
	Timeout  time.Duration
}

// Client はプレイスプロバイダのHTTPクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	apiKey     string
	endpoint   string // テスト用にエンドポイントを差し替え可能
	types      string
	timeout    time.Duration
}

// NewClient はClientの新しいインスタンスを生成する。
// 未設定の項目はデフォルト値で補う。
func NewClient(httpClient *http.Client, cfg Config, collector metrics.MetricsCollector, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Types == "" {
		cfg.Types = DefaultTypes
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		types:      cfg.Types,
		timeout:    cfg.Timeout,
	}
}

// NearbySearch はlocationから近い順にプレイスを検索する。
// HTTPレベルの失敗とJSONのパース失敗はエラーを返す。
// プロバイダのstatusがOK以外の場合でもレスポンスを返し、判断は呼び出し元に任せる。
func (c *Client) NearbySearch(ctx context.Context, location model.LatLng) (*SearchResponse, error) {
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("key", c.apiKey)
	q.Set("location", formatLocation(location))
	q.Set("rankby", "distance")
	q.Set("sensor", "true")
	q.Set("types", c.types)
	reqURL.RawQuery = q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordProviderLatency(time.Since(start))
	if err != nil {
		c.metrics.RecordProviderFailure(metrics.ReasonTransport)
		c.logger.Error("プレイスプロバイダの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("プレイスプロバイダの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordProviderHTTPStatus(resp.StatusCode)
	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordProviderFailure(metrics.ReasonHTTPStatus)
		c.logger.Error("プレイスプロバイダがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, fmt.Errorf("プレイスプロバイダがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		c.metrics.RecordProviderFailure(metrics.ReasonTransport)
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		c.metrics.RecordProviderFailure(metrics.ReasonDecode)
		c.logger.Error("プレイスプロバイダのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.Status != StatusOK {
		c.metrics.RecordProviderFailure(metrics.ReasonStatus)
	}

	return &result, nil
}

// formatLocation は"lat,lon"形式の文字列を返す。
func formatLocation(l model.LatLng) string {
	return strconv.FormatFloat(l.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(l.Lon, 'f', -1, 64)
}
