// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーのアカウントを表す。
// 認証情報は外部の認証システムが管理し、ここでは扱わない。
type User struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	Email     string
	CreatedAt time.Time
}

// Interest はユーザーの興味を表す。
type Interest struct {
	ID   int64
	Name string
}

// UserProfile はログイン情報以外のユーザー情報を表す。
// ユーザーと1対1で、サインアップ時に作成される。
type UserProfile struct {
	User          User
	Bio           string
	Interests     []Interest
	ConnectionIDs []int64 // 接続先ユーザーID（有向関係として保存）
	MeetNewPeople bool
	// CurrentLocation は現在チェックインしているプレイス。未チェックインの場合はnil。
	CurrentLocation *GeoPlace
}

// Session はユーザーのログインセッションを表す。
// 認証システムが作成し、本サービスは参照のみ行う。
type Session struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	CreatedAt time.Time
}
