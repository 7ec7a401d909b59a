package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/profile"
)

// PresenceService はチェックインと周辺ユーザー参照のインターフェース。
// presence.Serviceが満たす。
type PresenceService interface {
	CheckIn(ctx context.Context, userID int64, placeID string) error
	NearbyPeople(ctx context.Context, userID int64) ([]profile.ProfileSummary, error)
}

// NotificationService は通知の受信インターフェース。
// notification.Serviceが満たす。
type NotificationService interface {
	Drain(ctx context.Context, userID int64) ([]model.NotificationPayload, error)
}

// CheckInHandler はチェックイン・周辺ユーザー・通知受信のHTTPハンドラー。
type CheckInHandler struct {
	presence      PresenceService
	notifications NotificationService
}

// NewCheckInHandler はCheckInHandlerを生成する。
func NewCheckInHandler(presence PresenceService, notifications NotificationService) *CheckInHandler {
	return &CheckInHandler{presence: presence, notifications: notifications}
}

// CheckIn は認証ユーザーの現在地を設定する。
// POST /api/checkin/{placeID}
func (h *CheckInHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.presence.CheckIn(r.Context(), userID, chi.URLParam(r, "placeID")); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeSuccess(w)
}

// Who は同じ場所にチェックインしている他のユーザーを返す。
// GET /api/who
func (h *CheckInHandler) Who(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	people, err := h.presence.NearbyPeople(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if people == nil {
		people = []profile.ProfileSummary{}
	}
	writeData(w, http.StatusOK, people)
}

// Drain は未受信の通知を返し、同時に削除する。
// POST /api/notifications/drain
func (h *CheckInHandler) Drain(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	payloads, err := h.notifications.Drain(r.Context(), userID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if payloads == nil {
		payloads = []model.NotificationPayload{}
	}
	writeData(w, http.StatusOK, payloads)
}
