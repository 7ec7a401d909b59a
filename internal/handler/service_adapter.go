package handler

import (
	"context"

	"github.com/hitoshi/five/internal/user"
)

// UserServiceAdapter は user.Service を UserServiceInterface に適合させるアダプタ。
type UserServiceAdapter struct {
	svc *user.Service
}

// NewUserServiceAdapter はUserServiceAdapterを生成する。
func NewUserServiceAdapter(svc *user.Service) *UserServiceAdapter {
	return &UserServiceAdapter{svc: svc}
}

// SignUp はユーザーを作成し、公開用のアカウント表現で返す。
func (a *UserServiceAdapter) SignUp(ctx context.Context, input user.SignUpInput) (user.Account, error) {
	u, err := a.svc.SignUp(ctx, input)
	if err != nil {
		return user.Account{}, err
	}
	return user.NewAccount(u), nil
}

// Get はユーザーを取得し、公開用のアカウント表現で返す。
func (a *UserServiceAdapter) Get(ctx context.Context, id int64) (user.Account, error) {
	u, err := a.svc.Get(ctx, id)
	if err != nil {
		return user.Account{}, err
	}
	return user.NewAccount(u), nil
}

var _ UserServiceInterface = (*UserServiceAdapter)(nil)
