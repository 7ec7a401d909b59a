package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/profile"
)

// ProfileService はプロフィールハンドラーが必要とするサービスインターフェース。
// profile.Serviceが満たす。
type ProfileService interface {
	Me(ctx context.Context, userID int64, detailed bool) (any, error)
	Update(ctx context.Context, userID int64, input profile.UpdateInput) (profile.ProfileDetail, error)
	Connect(ctx context.Context, userID, otherUserID int64) error
}

// ProfileHandler はプロフィール参照・更新・接続のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileService
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileService) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// Me は認証ユーザーのプロフィールを返す。
// GET /api/me?detailed=true
func (h *ProfileHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	// 解釈できない値は要約表示として扱う
	detailed, _ := strconv.ParseBool(r.URL.Query().Get("detailed"))

	view, err := h.service.Me(r.Context(), userID, detailed)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

// UpdateMe はプロフィールを部分更新する。
// PATCH /api/me
func (h *ProfileHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var input profile.UpdateInput
	if err := decodeJSON(r, &input); err != nil {
		handleServiceError(w, r, err)
		return
	}

	detail, err := h.service.Update(r.Context(), userID, input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, detail)
}

// Connect は認証ユーザーと指定ユーザーを接続する。
// POST /api/connections/{id}
func (h *ProfileHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	otherID, err := parseUserID(chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	if err := h.service.Connect(r.Context(), userID, otherID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

// parseUserID はパスパラメータのユーザーIDを検証する。
func parseUserID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("Invalid user id")
	}
	return id, nil
}
