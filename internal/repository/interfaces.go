// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/five/internal/model"
)

// ErrDuplicate は一意制約違反を表す。
var ErrDuplicate = errors.New("duplicate key")

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// CreateWithProfile はユーザーと空のプロフィールを同一トランザクションで作成する。
	// 作成後のIDとCreatedAtをuserに設定する。
	// ユーザー名が重複する場合はErrDuplicateを返す。
	CreateWithProfile(ctx context.Context, user *model.User) error
}

// SessionRepository はセッションデータの参照インターフェース。
type SessionRepository interface {
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
}

// PlaceRepository はプレイスデータの永続化インターフェース。
// プレイスは作成後に更新も削除もされない。
type PlaceRepository interface {
	// FindByID は指定IDのプレイスを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.GeoPlace, error)

	// GetOrCreate は同じIDのプレイスがあればそれを返し、なければplaceを保存する。
	// 既存のレコードは上書きしない。createdは新規作成した場合にtrueとなる。
	GetOrCreate(ctx context.Context, place *model.GeoPlace) (stored *model.GeoPlace, created bool, err error)

	// ListContaining は(lat, lon)を含むプレイスを取得する。
	// 判定はGeoPlace.ContainsPointと同じ規則に従う。
	ListContaining(ctx context.Context, lat, lon float64) ([]*model.GeoPlace, error)
}

// ProfileUpdate はプロフィールの部分更新内容。
// nilのフィールドは変更しない。
type ProfileUpdate struct {
	Bio           *string
	MeetNewPeople *bool
	Interests     []string // nilの場合は変更しない。空スライスの場合は全て外す。
}

// ProfileRepository はユーザープロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID はユーザーのプロフィールを興味・接続・現在地付きで取得する。
	// 見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID int64) (*model.UserProfile, error)

	// SetCurrentLocation はユーザーの現在地を設定する。
	// プロフィールが存在しない場合はエラーを返す。
	SetCurrentLocation(ctx context.Context, userID int64, placeID string) error

	// ListByLocation は指定プレイスにチェックイン中のプロフィールを取得する。
	// excludeUserIDのユーザーは結果に含めない。接続先IDは読み込まない。
	ListByLocation(ctx context.Context, placeID string, excludeUserID int64) ([]*model.UserProfile, error)

	// Update はプロフィールを部分更新する。
	Update(ctx context.Context, userID int64, update ProfileUpdate) error

	// AddConnection は2ユーザー間の接続を双方向に記録する。既存の接続は無視する。
	AddConnection(ctx context.Context, userID, otherUserID int64) error
}

// NotificationRepository は通知データの永続化インターフェース。
type NotificationRepository interface {
	// Create は通知を作成し、IDとCreatedAtを設定する。
	Create(ctx context.Context, notification *model.Notification) error

	// DrainByUserID はユーザーの未読通知を全て取得し、同一トランザクションで削除する。
	// 同時に呼ばれても同じ通知が2回返ることはない。
	DrainByUserID(ctx context.Context, userID int64) ([]*model.Notification, error)

	// DeleteOlderThan はcutoffより前に作成された通知を削除し、削除件数を返す。
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
