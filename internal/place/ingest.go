// Package place はプレイスの取り込みと参照を提供する。
// 外部プロバイダの検索結果を正規化してローカルに保存し、座標からプレイスを引く。
package place

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/five/internal/metrics"
	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/places"
	"github.com/hitoshi/five/internal/repository"
)

// IngestService はプロバイダ検索とプレイスの取り込みを行うサービス。
type IngestService struct {
	searcher  places.Searcher
	placeRepo repository.PlaceRepository
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
}

// NewIngestService はIngestServiceを生成する。
func NewIngestService(searcher places.Searcher, placeRepo repository.PlaceRepository, collector metrics.MetricsCollector, logger *slog.Logger) *IngestService {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IngestService{
		searcher:  searcher,
		placeRepo: placeRepo,
		metrics:   collector,
		logger:    logger,
	}
}

// Search は(lat, lon)の近くのプレイスをプロバイダに問い合わせ、結果を保存して返す。
// プロバイダのstatusがOK以外の場合はUpstreamProviderErrorを返し、何も保存しない。
// 結果の順序はプロバイダの返した順序を保つ。
func (s *IngestService) Search(ctx context.Context, location model.LatLng) ([]model.PlaceSummary, error) {
	resp, err := s.searcher.NearbySearch(ctx, location)
	if err != nil {
		s.logger.Warn("プレイス検索に失敗しました",
			slog.Float64("lat", location.Lat),
			slog.Float64("lon", location.Lon),
			slog.String("error", err.Error()),
		)
		return nil, model.NewUpstreamProviderError("", err)
	}
	if resp.Status != places.StatusOK {
		s.logger.Warn("プレイスプロバイダがエラーを返しました",
			slog.String("status", resp.Status),
			slog.String("error_message", resp.ErrorMessage),
		)
		return nil, model.NewUpstreamProviderError(resp.ErrorMessage, nil)
	}

	stored, err := s.Ingest(ctx, resp.Results)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.PlaceSummary, 0, len(stored))
	for _, p := range stored {
		summaries = append(summaries, p.ToSummary())
	}
	return summaries, nil
}

// Ingest は検索結果を正規化して保存し、保存済みのプレイスを入力順に返す。
// 名前・ID・位置のいずれかが欠けた結果は読み飛ばす。
// 既存のIDは上書きせず、保存済みのレコードを返す。
func (s *IngestService) Ingest(ctx context.Context, results []places.Result) ([]*model.GeoPlace, error) {
	stored := make([]*model.GeoPlace, 0, len(results))
	created, existing := 0, 0

	for i, r := range results {
		candidate, ok := normalize(r)
		if !ok {
			s.logger.Debug("不完全な検索結果を読み飛ばしました",
				slog.Int("index", i),
				slog.String("place_id", r.Identifier()),
			)
			continue
		}

		p, isNew, err := s.placeRepo.GetOrCreate(ctx, candidate)
		if err != nil {
			return nil, fmt.Errorf("failed to store place %s: %w", candidate.ID, err)
		}
		if isNew {
			created++
		} else {
			existing++
		}
		stored = append(stored, p)
	}

	s.metrics.RecordPlacesIngested(created, existing)
	return stored, nil
}

// normalize は検索結果をGeoPlaceの候補に変換する。
// 変換できない結果の場合はfalseを返す。
func normalize(r places.Result) (*model.GeoPlace, bool) {
	if r.Name == nil {
		return nil, false
	}
	id := r.Identifier()
	if id == "" {
		return nil, false
	}
	loc := r.Geometry.Location
	if loc.Lat == nil || loc.Lng == nil {
		return nil, false
	}

	p := &model.GeoPlace{
		ID:          id,
		Name:        *r.Name,
		Description: "",
		Location:    model.LatLng{Lat: *loc.Lat, Lon: *loc.Lng},
		Icon:        r.Icon,
	}
	if vp := r.Geometry.Viewport; vp.Complete() {
		p.Viewport = &model.Viewport{
			NorthEast: model.LatLng{Lat: *vp.NorthEast.Lat, Lon: *vp.NorthEast.Lng},
			SouthWest: model.LatLng{Lat: *vp.SouthWest.Lat, Lon: *vp.SouthWest.Lng},
		}
	}
	return p, true
}
