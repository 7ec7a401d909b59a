package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/place"
)

// PlaceSearchService はプロバイダ検索と取り込みのインターフェース。
// place.IngestServiceが満たす。
type PlaceSearchService interface {
	Search(ctx context.Context, location model.LatLng) ([]model.PlaceSummary, error)
}

// PlaceLookupService は保存済みプレイスの参照インターフェース。
// place.Serviceが満たす。
type PlaceLookupService interface {
	GetPlace(ctx context.Context, id string) (*model.GeoPlace, error)
	PlacesAt(ctx context.Context, location model.LatLng) ([]*model.GeoPlace, error)
}

// PlaceHandler はプレイス検索・参照のHTTPハンドラー。
type PlaceHandler struct {
	search PlaceSearchService
	lookup PlaceLookupService
}

// NewPlaceHandler はPlaceHandlerを生成する。
func NewPlaceHandler(search PlaceSearchService, lookup PlaceLookupService) *PlaceHandler {
	return &PlaceHandler{search: search, lookup: lookup}
}

// Nearby はプロバイダに周辺プレイスを問い合わせ、取り込んだ結果を返す。
// POST /api/nearby/{lat},{lon}
func (h *PlaceHandler) Nearby(w http.ResponseWriter, r *http.Request) {
	location, err := place.ParseLatLng(chi.URLParam(r, "lat"), chi.URLParam(r, "lon"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	summaries, err := h.search.Search(r.Context(), location)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []model.PlaceSummary{}
	}
	writeData(w, http.StatusOK, summaries)
}

// GetPlace はプレイスの詳細表示を返す。
// GET /api/places/{id}
func (h *PlaceHandler) GetPlace(w http.ResponseWriter, r *http.Request) {
	p, err := h.lookup.GetPlace(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p.ToSerializable(true))
}

// PlacesAt は指定地点を含む保存済みプレイスを返す。プロバイダは呼ばない。
// GET /api/places/at/{lat},{lon}
func (h *PlaceHandler) PlacesAt(w http.ResponseWriter, r *http.Request) {
	location, err := place.ParseLatLng(chi.URLParam(r, "lat"), chi.URLParam(r, "lon"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	found, err := h.lookup.PlacesAt(r.Context(), location)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	summaries := make([]model.PlaceSummary, len(found))
	for i, p := range found {
		summaries[i] = p.ToSummary()
	}
	writeData(w, http.StatusOK, summaries)
}
