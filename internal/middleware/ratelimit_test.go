package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/five/internal/model"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// requestAs はユーザーIDを注入したリクエストを生成する。
func requestAs(userID int64) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	return req.WithContext(ContextWithUserID(req.Context(), userID))
}

func testConfig(generalBurst, searchBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		SearchRate:      1,
		SearchBurst:     searchBurst,
		CleanupInterval: time.Minute,
	}
}

// --- GeneralMiddleware のテスト ---

func TestRateLimitMiddleware_AllowsRequestsWithinLimit(t *testing.T) {
	rl := NewRateLimiter(testConfig(5, 10))
	defer rl.Stop()

	handlerCallCount := 0
	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCallCount++
		w.WriteHeader(http.StatusOK)
	}))

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(1))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
	if handlerCallCount != 5 {
		t.Errorf("handler call count = %d, want 5", handlerCallCount)
	}
}

func TestRateLimitMiddleware_Returns429WhenLimitExceeded(t *testing.T) {
	rl := NewRateLimiter(testConfig(2, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(7))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(7))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retryAfter, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Error == "" {
		t.Error("429レスポンスはerrorを含むべきです")
	}
}

func TestRateLimitMiddleware_IsolatesUserRateLimits(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(1))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(1))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("user 1: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 別ユーザーは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(2))
	if w.Code != http.StatusOK {
		t.Errorf("user 2: status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.GeneralLimiterCount(); got != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", got)
	}
}

func TestRateLimitMiddleware_NoUserID_Returns401(t *testing.T) {
	rl := NewRateLimiter(testConfig(5, 10))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/test", nil))

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- PlaceSearchMiddleware のテスト ---

func TestPlaceSearchRateLimit_IndependentFromGeneralLimit(t *testing.T) {
	rl := NewRateLimiter(testConfig(100, 1))
	defer rl.Stop()

	search := rl.PlaceSearchMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	w := httptest.NewRecorder()
	search.ServeHTTP(w, requestAs(3))
	if w.Code != http.StatusOK {
		t.Fatalf("1回目の検索: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	search.ServeHTTP(w, requestAs(3))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("2回目の検索: status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}

	// 検索の制限は一般APIに影響しない
	w = httptest.NewRecorder()
	general.ServeHTTP(w, requestAs(3))
	if w.Code != http.StatusOK {
		t.Errorf("一般API: status = %d, want %d", w.Code, http.StatusOK)
	}
	if got := rl.SearchLimiterCount(); got != 1 {
		t.Errorf("SearchLimiterCount = %d, want 1", got)
	}
}

// --- クリーンアップのテスト ---

func TestRateLimiter_CleanupRemovesExpiredEntries(t *testing.T) {
	cfg := testConfig(5, 10)
	cfg.CleanupInterval = 50 * time.Millisecond // テスト用に短く

	rl := NewRateLimiter(cfg)
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs(9))
	if rl.GeneralLimiterCount() == 0 {
		t.Fatal("expected at least one limiter entry")
	}

	// TTLはCleanupIntervalの2倍（100ms）
	deadline := time.Now().Add(2 * time.Second)
	for rl.GeneralLimiterCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if count := rl.GeneralLimiterCount(); count != 0 {
		t.Errorf("expected 0 limiter entries after cleanup, got %d", count)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

// --- ミドルウェアチェーンとの統合テスト ---

func TestRateLimitMiddleware_InChainWithSession(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "rate-limit-session" {
				return &model.Session{ID: id, UserID: 42, ExpiresAt: time.Now().Add(time.Hour)}, nil
			}
			return nil, nil
		},
	}

	rl := NewRateLimiter(testConfig(2, 10))
	defer rl.Stop()

	// Session -> RateLimit -> Handler
	handler := NewSessionMiddleware(repo)(rl.GeneralMiddleware()(okHandler()))

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
		req.AddCookie(&http.Cookie{Name: "session_id", Value: "rate-limit-session"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	if statuses[0] != http.StatusOK || statuses[1] != http.StatusOK || statuses[2] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want [200 200 429]", statuses)
	}
}

// --- IP単位の制限 ---

func TestIPRateLimitMiddleware(t *testing.T) {
	handler := NewIPRateLimitMiddleware(2, time.Minute)(okHandler())

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/users", nil)
		req.RemoteAddr = "203.0.113.5:4000"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}
	if statuses[2] != http.StatusTooManyRequests {
		t.Errorf("statuses = %v, want 3回目は429", statuses)
	}

	// 別IPは影響を受けない
	req := httptest.NewRequest(http.MethodPost, "/api/users", nil)
	req.RemoteAddr = "203.0.113.6:4000"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("別IP: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestIPRateLimitMiddleware_Disabled(t *testing.T) {
	handler := NewIPRateLimitMiddleware(0, time.Minute)(okHandler())
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/users", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("制限なしでは常に通るべきです: status = %d", w.Code)
		}
	}
}

// --- 設定値のテスト ---

func TestDefaultRateLimiterConfig(t *testing.T) {
	cfg := DefaultRateLimiterConfig()

	if cfg.GeneralRate != 2.0 { // 120/60 = 2
		t.Errorf("GeneralRate = %f, want 2.0", cfg.GeneralRate)
	}
	if cfg.GeneralBurst != 120 {
		t.Errorf("GeneralBurst = %d, want 120", cfg.GeneralBurst)
	}
	if cfg.SearchRate == 0 {
		t.Error("SearchRate should not be 0")
	}
	if cfg.SearchBurst != 10 {
		t.Errorf("SearchBurst = %d, want 10", cfg.SearchBurst)
	}
}

func TestPerMinute(t *testing.T) {
	cfg := PerMinute(60, 30)
	if cfg.GeneralRate != 1.0 || cfg.GeneralBurst != 60 {
		t.Errorf("General = %f/%d, want 1.0/60", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.SearchRate != 0.5 || cfg.SearchBurst != 30 {
		t.Errorf("Search = %f/%d, want 0.5/30", cfg.SearchRate, cfg.SearchBurst)
	}

	def := PerMinute(0, 0)
	if def.GeneralBurst != 120 || def.SearchBurst != 10 {
		t.Errorf("0以下ではデフォルトを使うべきです: %+v", def)
	}
}
