package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"github.com/hitoshi/five/internal/model"
)

// PostgresNotificationRepo はPostgreSQLを使用した通知リポジトリ。
type PostgresNotificationRepo struct {
	db *sql.DB
}

// NewPostgresNotificationRepo はPostgresNotificationRepoを生成する。
func NewPostgresNotificationRepo(db *sql.DB) *PostgresNotificationRepo {
	return &PostgresNotificationRepo{db: db}
}

// Create は通知を作成し、IDとCreatedAtを設定する。
func (r *PostgresNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode notification payload: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`INSERT INTO notifications (user_id, payload) VALUES ($1, $2)
		 RETURNING id, created_at`,
		n.UserID, payload,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

// DrainByUserID はユーザーの未読通知を全て取得し、同一トランザクションで削除する。
// FOR UPDATEで行ロックを取るため、同時に実行された2つのDrainは同じ通知を返さない。
// 読み取り後に作成された通知は削除対象に含めず、次回のDrainで返す。
func (r *PostgresNotificationRepo) DrainByUserID(ctx context.Context, userID int64) ([]*model.Notification, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT id, user_id, payload, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY id
		 FOR UPDATE`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to select notifications: %w", err)
	}

	notifications := []*model.Notification{}
	var ids []int64
	for rows.Next() {
		n := &model.Notification{}
		var payload []byte
		if err := rows.Scan(&n.ID, &n.UserID, &payload, &n.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to decode notification payload: %w", err)
		}
		notifications = append(notifications, n)
		ids = append(ids, n.ID)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	rows.Close()

	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM notifications WHERE id = ANY($1)`,
			pq.Array(ids),
		); err != nil {
			return nil, fmt.Errorf("failed to delete drained notifications: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return notifications, nil
}

// DeleteOlderThan はcutoffより前に作成された通知を削除し、削除件数を返す。
func (r *PostgresNotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE created_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old notifications: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ NotificationRepository = (*PostgresNotificationRepo)(nil)
