// Package notification はチェックイン通知の作成と受信を提供する。
package notification

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/five/internal/metrics"
	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/repository"
)

// arrivalMessage は到着通知の本文。%sには到着したユーザーのハンドルが入る。
const arrivalMessage = "%s is around you. Go say hi!"

// AvatarResolver はユーザーIDからアバターURLを求めるインターフェース。
type AvatarResolver interface {
	AvatarURL(userID int64) string
}

// Service は通知のファンアウトと受信のサービス層。
type Service struct {
	profileRepo      repository.ProfileRepository
	notificationRepo repository.NotificationRepository
	avatars          AvatarResolver
	metrics          metrics.MetricsCollector
	logger           *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	notificationRepo repository.NotificationRepository,
	avatars AvatarResolver,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profileRepo:      profileRepo,
		notificationRepo: notificationRepo,
		avatars:          avatars,
		metrics:          collector,
		logger:           logger,
	}
}

// FanOut は到着したユーザー以外の在席者全員に通知を1件ずつ作成し、作成件数を返す。
// 通知のimageは受信者自身のアバター、dataは到着者のハンドルを含む本文とする。
// 作成に失敗した時点で中断してエラーを返す。作成済みの通知は取り消さない。
func (s *Service) FanOut(ctx context.Context, arrival *model.User, placeID string) (int, error) {
	present, err := s.profileRepo.ListByLocation(ctx, placeID, arrival.ID)
	if err != nil {
		return 0, fmt.Errorf("在席者の取得に失敗しました: %w", err)
	}

	created := 0
	defer func() { s.metrics.RecordNotificationsCreated(created) }()

	for _, p := range present {
		n := &model.Notification{
			UserID: p.User.ID,
			Payload: model.NotificationPayload{
				"image": s.avatars.AvatarURL(p.User.ID),
				"data":  fmt.Sprintf(arrivalMessage, arrival.Username),
			},
		}
		if err := s.notificationRepo.Create(ctx, n); err != nil {
			return created, fmt.Errorf("通知の作成に失敗しました: %w", err)
		}
		created++
	}

	if created > 0 {
		s.logger.Info("到着通知を作成しました",
			slog.Int64("arrival_user_id", arrival.ID),
			slog.String("place_id", placeID),
			slog.Int("count", created),
		)
	}
	return created, nil
}

// Drain はユーザーの未読通知を全て返し、返した通知を削除する。
// 未読がない場合は空スライスを返す。
func (s *Service) Drain(ctx context.Context, userID int64) ([]model.NotificationPayload, error) {
	notifications, err := s.notificationRepo.DrainByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("通知の取得に失敗しました: %w", err)
	}

	payloads := make([]model.NotificationPayload, 0, len(notifications))
	for _, n := range notifications {
		payloads = append(payloads, n.Payload)
	}
	s.metrics.RecordNotificationsDrained(len(payloads))
	return payloads, nil
}
