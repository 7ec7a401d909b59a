package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/five/internal/model"
)

// placeColumns はプレイス取得時のSELECT列。scanPlaceと順序を合わせる。
const placeColumns = `id, name, description, lat, lon, icon,
	viewport_ne_lat, viewport_ne_lon, viewport_sw_lat, viewport_sw_lon`

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresPlaceRepo はPostgreSQLを使用したプレイスリポジトリ。
type PostgresPlaceRepo struct {
	db *sql.DB
}

// NewPostgresPlaceRepo はPostgresPlaceRepoを生成する。
func NewPostgresPlaceRepo(db *sql.DB) *PostgresPlaceRepo {
	return &PostgresPlaceRepo{db: db}
}

// FindByID は指定IDのプレイスを取得する。見つからない場合はnilを返す。
func (r *PostgresPlaceRepo) FindByID(ctx context.Context, id string) (*model.GeoPlace, error) {
	place, err := scanPlace(r.db.QueryRowContext(ctx,
		`SELECT `+placeColumns+` FROM places WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find place by ID: %w", err)
	}
	return place, nil
}

// GetOrCreate は同じIDのプレイスがあればそれを返し、なければplaceを保存する。
// ON CONFLICT DO NOTHINGにより、同時実行時も先に書き込まれた内容が残る。
func (r *PostgresPlaceRepo) GetOrCreate(ctx context.Context, place *model.GeoPlace) (*model.GeoPlace, bool, error) {
	neLat, neLon, swLat, swLon := viewportArgs(place.Viewport)

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO places (id, name, description, lat, lon, icon,
			viewport_ne_lat, viewport_ne_lon, viewport_sw_lat, viewport_sw_lon)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO NOTHING`,
		place.ID, place.Name, place.Description, place.Location.Lat, place.Location.Lon, place.Icon,
		neLat, neLon, swLat, swLon,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert place: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	stored, err := r.FindByID(ctx, place.ID)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("place disappeared after insert: %s", place.ID)
	}
	return stored, rowsAffected == 1, nil
}

// ListContaining は(lat, lon)を含むプレイスを取得する。
// ビューポートなしのプレイスは位置の完全一致、ありのプレイスは4辺を含む矩形判定とする。
func (r *PostgresPlaceRepo) ListContaining(ctx context.Context, lat, lon float64) ([]*model.GeoPlace, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+placeColumns+`
		 FROM places
		 WHERE (viewport_ne_lat IS NULL AND lat = $1 AND lon = $2)
		    OR (viewport_ne_lat IS NOT NULL
		        AND viewport_sw_lat <= $1 AND $1 <= viewport_ne_lat
		        AND viewport_sw_lon <= $2 AND $2 <= viewport_ne_lon)
		 ORDER BY id`,
		lat, lon,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list places containing point: %w", err)
	}
	defer rows.Close()

	var places []*model.GeoPlace
	for rows.Next() {
		place, err := scanPlace(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan place: %w", err)
		}
		places = append(places, place)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate places: %w", err)
	}
	return places, nil
}

func scanPlace(row rowScanner) (*model.GeoPlace, error) {
	p := &model.GeoPlace{}
	var neLat, neLon, swLat, swLon sql.NullFloat64
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Location.Lat, &p.Location.Lon, &p.Icon,
		&neLat, &neLon, &swLat, &swLon,
	)
	if err != nil {
		return nil, err
	}
	p.Viewport = viewportFromColumns(neLat, neLon, swLat, swLon)
	return p, nil
}

// viewportFromColumns は4列のビューポートをViewportに変換する。
// 1列でもNULLならビューポートなしとして扱う。
func viewportFromColumns(neLat, neLon, swLat, swLon sql.NullFloat64) *model.Viewport {
	if !neLat.Valid || !neLon.Valid || !swLat.Valid || !swLon.Valid {
		return nil
	}
	return &model.Viewport{
		NorthEast: model.LatLng{Lat: neLat.Float64, Lon: neLon.Float64},
		SouthWest: model.LatLng{Lat: swLat.Float64, Lon: swLon.Float64},
	}
}

func viewportArgs(v *model.Viewport) (neLat, neLon, swLat, swLon sql.NullFloat64) {
	if v == nil {
		return
	}
	return sql.NullFloat64{Float64: v.NorthEast.Lat, Valid: true},
		sql.NullFloat64{Float64: v.NorthEast.Lon, Valid: true},
		sql.NullFloat64{Float64: v.SouthWest.Lat, Valid: true},
		sql.NullFloat64{Float64: v.SouthWest.Lon, Valid: true}
}

// compile-time interface check
var _ PlaceRepository = (*PostgresPlaceRepo)(nil)
