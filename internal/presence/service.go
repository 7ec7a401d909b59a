// Package presence はチェックインと同じ場所にいるユーザーの検索を提供する。
package presence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/five/internal/events"
	"github.com/hitoshi/five/internal/metrics"
	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/profile"
	"github.com/hitoshi/five/internal/repository"
)

// Notifier は到着通知のファンアウトを行うインターフェース。
type Notifier interface {
	FanOut(ctx context.Context, arrival *model.User, placeID string) (int, error)
}

// Service はチェックインと在席者検索のサービス層。
type Service struct {
	placeRepo   repository.PlaceRepository
	profileRepo repository.ProfileRepository
	notifier    Notifier
	publisher   events.Publisher
	serializer  *profile.Serializer
	metrics     metrics.MetricsCollector
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// publisherがnilの場合はイベントを配信しない。loggerがnilの場合はslog.Default()を使う。
func NewService(
	placeRepo repository.PlaceRepository,
	profileRepo repository.ProfileRepository,
	notifier Notifier,
	publisher events.Publisher,
	serializer *profile.Serializer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		placeRepo:   placeRepo,
		profileRepo: profileRepo,
		notifier:    notifier,
		publisher:   publisher,
		serializer:  serializer,
		metrics:     collector,
		logger:      logger,
	}
}

// CheckIn はユーザーの現在地をプレイスに更新し、同じ場所の在席者へ通知する。
// 現在地の更新後の通知とイベント配信はベストエフォートで、失敗してもログに残すのみでエラーにしない。
// 現在地は更新済みのため、再送による通知の重複を避ける。
func (s *Service) CheckIn(ctx context.Context, userID int64, placeID string) error {
	place, err := s.placeRepo.FindByID(ctx, placeID)
	if err != nil {
		return fmt.Errorf("プレイスの取得に失敗しました: %w", err)
	}
	if place == nil {
		return model.NewPlaceNotFoundError(placeID)
	}

	p, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.profileRepo.SetCurrentLocation(ctx, userID, place.ID); err != nil {
		return fmt.Errorf("現在地の更新に失敗しました: %w", err)
	}
	s.metrics.RecordCheckIn()

	s.logger.Info("チェックインしました",
		slog.Int64("user_id", userID),
		slog.String("place_id", place.ID),
	)

	notified, err := s.notifier.FanOut(ctx, &p.User, place.ID)
	if err != nil {
		s.logger.Warn("到着通知の作成に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("place_id", place.ID),
			slog.Int("notified", notified),
			slog.String("error", err.Error()),
		)
	}

	event := events.NewCheckInEvent(userID, place.ID, notified)
	if err := s.publisher.PublishCheckIn(ctx, event); err != nil {
		s.logger.Warn("チェックインイベントの配信に失敗しました",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// NearbyPeople はユーザーと同じプレイスにいる他のユーザーを要約表示で返す。
// ユーザーがどこにもチェックインしていない場合は空リストを返す。
func (s *Service) NearbyPeople(ctx context.Context, userID int64) ([]profile.ProfileSummary, error) {
	p, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewUserNotFoundError()
	}

	result := []profile.ProfileSummary{}
	if p.CurrentLocation == nil {
		return result, nil
	}

	present, err := s.profileRepo.ListByLocation(ctx, p.CurrentLocation.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("在席者の取得に失敗しました: %w", err)
	}
	for _, other := range present {
		result = append(result, s.serializer.Summary(other))
	}
	return result, nil
}
