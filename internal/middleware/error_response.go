package middleware

import (
	"net/http"

	"github.com/goccy/go-json"

	"github.com/hitoshi/five/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 利用者に返すのはメッセージのみで、原因やカテゴリはログにだけ残す。
type ErrorResponseBody struct {
	Error string `json:"error"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	WriteErrorMessage(w, statusCode, apiErr.Message)
}

// WriteErrorMessage は任意のメッセージを {"error": message} として書き込む。
func WriteErrorMessage(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{Error: message})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusInternalServerError, "Internal server error")
}

// WriteUnauthorized は未認証レスポンスを書き込む。
func WriteUnauthorized(w http.ResponseWriter) {
	WriteErrorMessage(w, http.StatusUnauthorized, "Authentication required")
}
