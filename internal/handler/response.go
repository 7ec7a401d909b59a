package handler

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hitoshi/five/internal/middleware"
	"github.com/hitoshi/five/internal/model"
)

// maxRequestBodySize はJSONリクエストボディの上限（64KB）。
const maxRequestBodySize = 64 << 10

// dataResponse は成功レスポンスのエンベロープ。
type dataResponse struct {
	Data any `json:"data"`
}

// successResponse は結果を持たない操作の成功を表す。
type successResponse struct {
	Success bool `json:"success"`
}

// writeData は {"data": ...} 形式でレスポンスを書き込む。
func writeData(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeSuccess は {"data": {"success": true}} を書き込む。
func writeSuccess(w http.ResponseWriter) {
	writeData(w, http.StatusOK, successResponse{Success: true})
}

// decodeJSON はリクエストボディをvにデコードする。
// 空ボディ、不正なJSON、未知のフィールドはValidationErrorとして返す。
func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize+1))
	if err != nil {
		return model.NewValidationError("Failed to read request body")
	}
	if len(body) > maxRequestBodySize {
		return model.NewValidationError("Request body too large")
	}
	if len(body) == 0 {
		return model.NewValidationError("Request body is required")
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.NewValidationError("Request body must be valid JSON")
	}
	return nil
}

// currentUserID はセッションミドルウェアが注入したユーザーIDを返す。
// 取得できない場合は401を書き込んでfalseを返す。
func currentUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteUnauthorized(w)
		return 0, false
	}
	return userID, true
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		if statusCode >= http.StatusInternalServerError {
			slog.Error("upstream failure",
				slog.String("code", apiErr.Code),
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
		}
		middleware.WriteErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error",
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodePlaceNotFound, model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeValidation, model.ErrCodeInvalidCoordinates, model.ErrCodeInvalidConnection:
		return http.StatusBadRequest
	case model.ErrCodeDuplicateHandle:
		return http.StatusConflict
	case model.ErrCodeUpstreamProvider:
		return http.StatusBadGateway
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
