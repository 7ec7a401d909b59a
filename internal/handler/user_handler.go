package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/five/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// SignUp はユーザーとプロフィールを作成する。
	SignUp(ctx context.Context, input user.SignUpInput) (user.Account, error)
	// Get は公開用のアカウント情報を返す。
	Get(ctx context.Context, id int64) (user.Account, error)
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// SignUp はユーザーを登録する。セッションは外部の認証システムが発行する。
// POST /api/users
func (h *UserHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var input user.SignUpInput
	if err := decodeJSON(r, &input); err != nil {
		handleServiceError(w, r, err)
		return
	}

	account, err := h.service.SignUp(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, account)
}

// GetUser はアカウント情報を返す。
// GET /api/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	account, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, account)
}
