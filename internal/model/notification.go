package model

import "time"

// NotificationPayload は通知の中身を表すスキーマレスなレコード。
// チェックイン通知では {image, data} の2キーを持つ。
type NotificationPayload map[string]any

// Notification はユーザー宛ての未読通知を表す。
// IDの昇順が作成順になるが、順序は契約ではない。
type Notification struct {
	ID        int64
	UserID    int64
	Payload   NotificationPayload
	CreatedAt time.Time
}
