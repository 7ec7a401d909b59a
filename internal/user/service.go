// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/repository"
	"github.com/hitoshi/five/internal/validation"
)

// SignUpInput はサインアップリクエスト。
// 認証情報は外部の認証システムが扱うため含めない。
type SignUpInput struct {
	Handle    string `json:"handle" validate:"required,max=150,handle"`
	Email     string `json:"email" validate:"omitempty,max=254,email"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

// Account は公開用のアカウント表現。
type Account struct {
	ID     int64  `json:"id"`
	Handle string `json:"handle"`
	Email  string `json:"email"`
}

// NewAccount はUserからAccountを生成する。
func NewAccount(u *model.User) Account {
	return Account{ID: u.ID, Handle: u.Username, Email: u.Email}
}

// Service はユーザー管理のサービス層。
// サインアップとアカウント参照のビジネスロジックを提供する。
type Service struct {
	userRepo repository.UserRepository
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
// loggerがnilの場合はslog.Default()を使う。
func NewService(userRepo repository.UserRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{userRepo: userRepo, logger: logger}
}

// SignUp はユーザーを作成する。プロフィールは同一トランザクションで作成される。
// ハンドルが使用済みの場合はDuplicateHandleエラーを返す。
func (s *Service) SignUp(ctx context.Context, input SignUpInput) (*model.User, error) {
	input.Handle = strings.TrimSpace(input.Handle)
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	u := &model.User{
		Username:  input.Handle,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
	}
	if err := s.userRepo.CreateWithProfile(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, model.NewDuplicateHandleError(input.Handle)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	s.logger.Info("ユーザーを作成しました",
		slog.Int64("user_id", u.ID),
	)
	return u, nil
}

// Get は指定IDのユーザーを返す。見つからない場合はUserNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	u, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if u == nil {
		return nil, model.NewUserNotFoundError()
	}
	return u, nil
}
