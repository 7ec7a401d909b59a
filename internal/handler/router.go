package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/five/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter

	// SignUpRateLimit はIPアドレスごとのサインアップ回数上限（SignUpRateWindowあたり）。
	// 0以下の場合は制限しない。
	SignUpRateLimit  int
	SignUpRateWindow time.Duration

	// 運用エンドポイント
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// プレイス
	PlaceSearch PlaceSearchService
	PlaceLookup PlaceLookupService

	// チェックイン・通知
	Presence      PresenceService
	Notifications NotificationService

	// プロフィール・ユーザー
	Profiles ProfileService
	Users    UserServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → Logging → SecurityHeaders → CORS
//	  → (認証ルート) Session → CSRF → RateLimit(General)
//	  → (サインアップ) RateLimit(IP) → CSRF
//
// /health と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	placeHandler := NewPlaceHandler(deps.PlaceSearch, deps.PlaceLookup)
	checkInHandler := NewCheckInHandler(deps.Presence, deps.Notifications)
	profileHandler := NewProfileHandler(deps.Profiles)
	userHandler := NewUserHandler(deps.Users)

	r.Route("/api", func(r chi.Router) {
		r.Use(chimw.RequestID)
		r.Use(middleware.NewRecoveryMiddleware(logger))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewSecurityHeadersMiddleware())
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

		csrf := middleware.NewCSRFMiddleware(deps.CSRFConfig)

		// --- 認証不要のルート ---
		r.Get("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)
		r.With(middleware.NewIPRateLimitMiddleware(deps.SignUpRateLimit, deps.SignUpRateWindow), csrf).
			Post("/users", userHandler.SignUp)

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
			r.Use(csrf)
			r.Use(deps.RateLimiter.GeneralMiddleware())

			// プレイス
			searchLimit := deps.RateLimiter.PlaceSearchMiddleware()
			r.With(searchLimit).Post("/nearby/{lat},{lon}", placeHandler.Nearby)
			r.With(searchLimit).Get("/nearby/{lat},{lon}", placeHandler.Nearby)
			r.Get("/places/at/{lat},{lon}", placeHandler.PlacesAt)
			r.Get("/places/{id}", placeHandler.GetPlace)

			// チェックイン
			r.Post("/checkin/{placeID}", checkInHandler.CheckIn)
			r.Get("/who", checkInHandler.Who)

			// 通知
			r.Post("/notifications/drain", checkInHandler.Drain)
			r.Post("/notifyme", checkInHandler.Drain)

			// プロフィール
			r.Get("/me", profileHandler.Me)
			r.Patch("/me", profileHandler.UpdateMe)
			r.Post("/connections/{id}", profileHandler.Connect)

			// ユーザー
			r.Get("/users/{id}", userHandler.GetUser)
		})
	})

	return r
}
