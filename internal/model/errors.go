// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// HTTP層ではMessageを {"error": ...} として返し、Codeからステータスコードを決める。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ（ユーザーに表示される）
	Category string // カテゴリ: auth, validation, place, upstream, system
	Action   string // ユーザー向け対処方法
	Err      error  // 原因（ログ用、レスポンスには含めない）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因エラーを返す。
func (e *APIError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodePlaceNotFound      = "PLACE_NOT_FOUND"
	ErrCodeUpstreamProvider   = "UPSTREAM_PROVIDER_ERROR"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeDuplicateHandle    = "DUPLICATE_HANDLE"
	ErrCodeInvalidCoordinates = "INVALID_COORDINATES"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidConnection  = "INVALID_CONNECTION"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// DefaultUpstreamMessage はプロバイダがエラーメッセージを返さなかった場合の汎用メッセージ。
const DefaultUpstreamMessage = "An error occurred. Try again later"

// NewPlaceNotFoundError はプレイス未検出エラーを生成する。
func NewPlaceNotFoundError(placeID string) *APIError {
	return &APIError{
		Code:     ErrCodePlaceNotFound,
		Message:  fmt.Sprintf("No place with id %s found", placeID),
		Category: "place",
		Action:   "周辺のプレイスを検索してから再度チェックインしてください。",
	}
}

// NewUpstreamProviderError はプレイスプロバイダの失敗を表すエラーを生成する。
// messageが空の場合は汎用メッセージを使用する。
func NewUpstreamProviderError(message string, cause error) *APIError {
	if message == "" {
		message = DefaultUpstreamMessage
	}
	return &APIError{
		Code:     ErrCodeUpstreamProvider,
		Message:  message,
		Category: "upstream",
		Action:   "しばらく待ってから再度お試しください。",
		Err:      cause,
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "No such user",
		Category: "auth",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewDuplicateHandleError はハンドル名が既に使われている場合のエラーを生成する。
func NewDuplicateHandleError(handle string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateHandle,
		Message:  fmt.Sprintf("Handle %s is already taken", handle),
		Category: "validation",
		Action:   "別のハンドル名を指定してください。",
	}
}

// NewInvalidCoordinatesError は緯度経度が不正な場合のエラーを生成する。
func NewInvalidCoordinatesError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCoordinates,
		Message:  fmt.Sprintf("Invalid coordinates: %s", reason),
		Category: "validation",
		Action:   "緯度は-90〜90、経度は-180〜180の範囲で指定してください。",
	}
}

// NewValidationError は入力値検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewInvalidConnectionError は自分自身への接続など不正な接続要求のエラーを生成する。
func NewInvalidConnectionError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidConnection,
		Message:  reason,
		Category: "validation",
		Action:   "接続先のユーザーIDを確認してください。",
	}
}
