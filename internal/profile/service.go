package profile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/repository"
	"github.com/hitoshi/five/internal/security"
	"github.com/hitoshi/five/internal/validation"
)

// UpdateInput はプロフィール更新リクエスト。nilのフィールドは変更しない。
type UpdateInput struct {
	Bio           *string  `json:"bio" validate:"omitempty,max=120"`
	MeetNewPeople *bool    `json:"meet_new_people"`
	Interests     []string `json:"interests" validate:"omitempty,max=20,dive,required,max=50"`
}

// Service はプロフィールの参照・更新・接続のサービス層。
type Service struct {
	profileRepo repository.ProfileRepository
	serializer  *Serializer
	sanitizer   security.TextSanitizer
	logger      *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(profileRepo repository.ProfileRepository, serializer *Serializer, sanitizer security.TextSanitizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profileRepo: profileRepo,
		serializer:  serializer,
		sanitizer:   sanitizer,
		logger:      logger,
	}
}

// Me はユーザー自身のプロフィールを返す。
// detailedがtrueの場合は接続先と現在地を含める。
func (s *Service) Me(ctx context.Context, userID int64, detailed bool) (any, error) {
	p, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.serializer.Serialize(p, detailed), nil
}

// Update はプロフィールを部分更新し、更新後の詳細表示を返す。
// 自己紹介と興味はマークアップを除去してから検証する。
func (s *Service) Update(ctx context.Context, userID int64, input UpdateInput) (ProfileDetail, error) {
	if input.Bio != nil {
		bio := s.sanitizer.Sanitize(*input.Bio)
		input.Bio = &bio
	}
	if input.Interests != nil {
		input.Interests = s.normalizeInterests(input.Interests)
	}
	if err := validation.Struct(input); err != nil {
		return ProfileDetail{}, err
	}

	update := repository.ProfileUpdate{
		Bio:           input.Bio,
		MeetNewPeople: input.MeetNewPeople,
		Interests:     input.Interests,
	}
	if err := s.profileRepo.Update(ctx, userID, update); err != nil {
		return ProfileDetail{}, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}

	s.logger.Info("プロフィールを更新しました",
		slog.Int64("user_id", userID),
	)

	p, err := s.load(ctx, userID)
	if err != nil {
		return ProfileDetail{}, err
	}
	return s.serializer.Detail(p), nil
}

// Connect は2ユーザーを接続する。接続は双方向に記録される。
// 自分自身への接続は拒否し、相手が存在しない場合はUserNotFoundを返す。
func (s *Service) Connect(ctx context.Context, userID, otherUserID int64) error {
	if userID == otherUserID {
		return model.NewInvalidConnectionError("Cannot connect to yourself")
	}

	other, err := s.profileRepo.FindByUserID(ctx, otherUserID)
	if err != nil {
		return fmt.Errorf("接続先プロフィールの取得に失敗しました: %w", err)
	}
	if other == nil {
		return model.NewUserNotFoundError()
	}

	if err := s.profileRepo.AddConnection(ctx, userID, otherUserID); err != nil {
		return fmt.Errorf("接続の作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを接続しました",
		slog.Int64("user_id", userID),
		slog.Int64("other_user_id", otherUserID),
	)
	return nil
}

func (s *Service) load(ctx context.Context, userID int64) (*model.UserProfile, error) {
	p, err := s.profileRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if p == nil {
		return nil, model.NewUserNotFoundError()
	}
	return p, nil
}

// normalizeInterests は興味名を整形し、大文字小文字を区別せず重複を除く。
// 空になった名前は検証でrequired違反として扱われる。
func (s *Service) normalizeInterests(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, n := range names {
		clean := s.sanitizer.Sanitize(n)
		key := strings.ToLower(clean)
		if _, ok := seen[key]; ok && clean != "" {
			continue
		}
		seen[key] = struct{}{}
		result = append(result, clean)
	}
	return result
}
