package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/five/internal/model"
)

// profileSelect はプロフィールをユーザー情報・現在地付きで取得するクエリの共通部分。
const profileSelect = `SELECT u.id, u.username, u.first_name, u.last_name, u.email, u.created_at,
	p.bio, p.meet_new_people,
	pl.id, pl.name, pl.description, pl.lat, pl.lon, pl.icon,
	pl.viewport_ne_lat, pl.viewport_ne_lon, pl.viewport_sw_lat, pl.viewport_sw_lon
FROM user_profiles p
JOIN users u ON u.id = p.user_id
LEFT JOIN places pl ON pl.id = p.current_location_id`

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

// FindByUserID はユーザーのプロフィールを興味・接続・現在地付きで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID int64) (*model.UserProfile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx,
		profileSelect+` WHERE p.user_id = $1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}

	interests, err := r.loadInterests(ctx, []int64{userID})
	if err != nil {
		return nil, err
	}
	profile.Interests = interests[userID]

	connections, err := r.loadConnections(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile.ConnectionIDs = connections

	return profile, nil
}

// SetCurrentLocation はユーザーの現在地を設定する。
func (r *PostgresProfileRepo) SetCurrentLocation(ctx context.Context, userID int64, placeID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles SET current_location_id = $1, updated_at = now() WHERE user_id = $2`,
		placeID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set current location: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %d", userID)
	}
	return nil
}

// ListByLocation は指定プレイスにチェックイン中のプロフィールを取得する。
// excludeUserIDのユーザーは結果に含めない。
func (r *PostgresProfileRepo) ListByLocation(ctx context.Context, placeID string, excludeUserID int64) ([]*model.UserProfile, error) {
	rows, err := r.db.QueryContext(ctx,
		profileSelect+` WHERE p.current_location_id = $1 AND p.user_id <> $2 ORDER BY u.id`,
		placeID, excludeUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles by location: %w", err)
	}
	defer rows.Close()

	var profiles []*model.UserProfile
	var ids []int64
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, profile)
		ids = append(ids, profile.User.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	if len(profiles) == 0 {
		return profiles, nil
	}

	interests, err := r.loadInterests(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range profiles {
		p.Interests = interests[p.User.ID]
	}
	return profiles, nil
}

// Update はプロフィールを部分更新する。
// 興味の更新は名前でUPSERTしてから紐付けを置き換える。
func (r *PostgresProfileRepo) Update(ctx context.Context, userID int64, update ProfileUpdate) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE user_profiles
		 SET bio = COALESCE($1, bio),
		     meet_new_people = COALESCE($2, meet_new_people),
		     updated_at = now()
		 WHERE user_id = $3`,
		nullString(update.Bio), nullBool(update.MeetNewPeople), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("profile not found: %d", userID)
	}

	if update.Interests != nil {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM profile_interests WHERE user_id = $1`, userID,
		); err != nil {
			return fmt.Errorf("failed to clear interests: %w", err)
		}
		for _, name := range update.Interests {
			var interestID int64
			err := tx.QueryRowContext(ctx,
				`INSERT INTO interests (name) VALUES ($1)
				 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
				 RETURNING id`,
				name,
			).Scan(&interestID)
			if err != nil {
				return fmt.Errorf("failed to upsert interest: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO profile_interests (user_id, interest_id) VALUES ($1, $2)
				 ON CONFLICT DO NOTHING`,
				userID, interestID,
			); err != nil {
				return fmt.Errorf("failed to link interest: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddConnection は2ユーザー間の接続を双方向に記録する。既存の接続は無視する。
func (r *PostgresProfileRepo) AddConnection(ctx context.Context, userID, otherUserID int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profile_connections (from_user_id, to_user_id)
		 VALUES ($1, $2), ($2, $1)
		 ON CONFLICT DO NOTHING`,
		userID, otherUserID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert connection: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *PostgresProfileRepo) loadInterests(ctx context.Context, userIDs []int64) (map[int64][]model.Interest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT pi.user_id, i.id, i.name
		 FROM profile_interests pi
		 JOIN interests i ON i.id = pi.interest_id
		 WHERE pi.user_id = ANY($1)
		 ORDER BY pi.user_id, i.name`,
		pq.Array(userIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load interests: %w", err)
	}
	defer rows.Close()

	result := make(map[int64][]model.Interest, len(userIDs))
	for rows.Next() {
		var userID int64
		var interest model.Interest
		if err := rows.Scan(&userID, &interest.ID, &interest.Name); err != nil {
			return nil, fmt.Errorf("failed to scan interest: %w", err)
		}
		result[userID] = append(result[userID], interest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate interests: %w", err)
	}
	return result, nil
}

func (r *PostgresProfileRepo) loadConnections(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT to_user_id FROM profile_connections WHERE from_user_id = $1 ORDER BY to_user_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load connections: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate connections: %w", err)
	}
	return ids, nil
}

func scanProfile(row rowScanner) (*model.UserProfile, error) {
	p := &model.UserProfile{}
	var (
		placeID, placeName, placeDesc, placeIcon sql.NullString
		placeLat, placeLon                       sql.NullFloat64
		neLat, neLon, swLat, swLon               sql.NullFloat64
	)
	err := row.Scan(
		&p.User.ID, &p.User.Username, &p.User.FirstName, &p.User.LastName, &p.User.Email, &p.User.CreatedAt,
		&p.Bio, &p.MeetNewPeople,
		&placeID, &placeName, &placeDesc, &placeLat, &placeLon, &placeIcon,
		&neLat, &neLon, &swLat, &swLon,
	)
	if err != nil {
		return nil, err
	}
	if placeID.Valid {
		p.CurrentLocation = &model.GeoPlace{
			ID:          placeID.String,
			Name:        placeName.String,
			Description: placeDesc.String,
			Location:    model.LatLng{Lat: placeLat.Float64, Lon: placeLon.Float64},
			Icon:        placeIcon.String,
			Viewport:    viewportFromColumns(neLat, neLon, swLat, swLon),
		}
	}
	return p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullBool(b *bool) sql.NullBool {
	if b == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *b, Valid: true}
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
