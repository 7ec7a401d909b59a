package place

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/repository"
)

// Service は保存済みプレイスの参照を提供する。
type Service struct {
	placeRepo repository.PlaceRepository
}

// NewService はServiceを生成する。
func NewService(placeRepo repository.PlaceRepository) *Service {
	return &Service{placeRepo: placeRepo}
}

// GetPlace は指定IDのプレイスを返す。見つからない場合はPlaceNotFoundエラーを返す。
func (s *Service) GetPlace(ctx context.Context, id string) (*model.GeoPlace, error) {
	p, err := s.placeRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to find place: %w", err)
	}
	if p == nil {
		return nil, model.NewPlaceNotFoundError(id)
	}
	return p, nil
}

// PlacesAt は(lat, lon)を含む保存済みプレイスを返す。
// ストアの候補をContainsPointで最終判定する。
func (s *Service) PlacesAt(ctx context.Context, location model.LatLng) ([]*model.GeoPlace, error) {
	candidates, err := s.placeRepo.ListContaining(ctx, location.Lat, location.Lon)
	if err != nil {
		return nil, fmt.Errorf("failed to list places: %w", err)
	}
	result := make([]*model.GeoPlace, 0, len(candidates))
	for _, p := range candidates {
		if p.ContainsPoint(location.Lat, location.Lon) {
			result = append(result, p)
		}
	}
	return result, nil
}

// ParseLatLng はパスパラメータの緯度・経度文字列を検証してLatLngに変換する。
// 数値でない値や範囲外の値はInvalidCoordinatesエラーを返す。
func ParseLatLng(latStr, lonStr string) (model.LatLng, error) {
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return model.LatLng{}, model.NewInvalidCoordinatesError(fmt.Sprintf("latitude %q is not a number", latStr))
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return model.LatLng{}, model.NewInvalidCoordinatesError(fmt.Sprintf("longitude %q is not a number", lonStr))
	}
	if lat < -90 || lat > 90 {
		return model.LatLng{}, model.NewInvalidCoordinatesError("latitude out of range")
	}
	if lon < -180 || lon > 180 {
		return model.LatLng{}, model.NewInvalidCoordinatesError("longitude out of range")
	}
	return model.LatLng{Lat: lat, Lon: lon}, nil
}
