package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/hitoshi/five/internal/middleware"
	"github.com/hitoshi/five/internal/model"
	"github.com/hitoshi/five/internal/notification"
	"github.com/hitoshi/five/internal/place"
	"github.com/hitoshi/five/internal/places"
	"github.com/hitoshi/five/internal/presence"
	"github.com/hitoshi/five/internal/profile"
	"github.com/hitoshi/five/internal/repository"
	"github.com/hitoshi/five/internal/security"
	"github.com/hitoshi/five/internal/user"
)

// --- 統合テスト用のステートフルストア ---

// integrationState は統合テスト用の共有状態を保持する。
// リポジトリインターフェースを満たし、実際のサービス層を通してHTTPフローを検証する。
type integrationState struct {
	mu            sync.Mutex
	nextID        int64
	users         map[int64]*model.User
	profiles      map[int64]*model.UserProfile
	places        map[string]*model.GeoPlace
	notifications []*model.Notification
}

func newIntegrationState() *integrationState {
	return &integrationState{
		users:    make(map[int64]*model.User),
		profiles: make(map[int64]*model.UserProfile),
		places:   make(map[string]*model.GeoPlace),
	}
}

type stateUserRepo struct{ *integrationState }

func (s stateUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (s stateUserRepo) CreateWithProfile(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username {
			return repository.ErrDuplicate
		}
	}
	s.nextID++
	u.ID = s.nextID
	u.CreatedAt = time.Now()
	stored := *u
	s.users[u.ID] = &stored
	s.profiles[u.ID] = &model.UserProfile{User: stored, MeetNewPeople: true}
	return nil
}

type statePlaceRepo struct{ *integrationState }

func (s statePlaceRepo) FindByID(ctx context.Context, id string) (*model.GeoPlace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.places[id], nil
}

func (s statePlaceRepo) GetOrCreate(ctx context.Context, p *model.GeoPlace) (*model.GeoPlace, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.places[p.ID]; ok {
		return existing, false, nil
	}
	s.places[p.ID] = p
	return p, true, nil
}

func (s statePlaceRepo) ListContaining(ctx context.Context, lat, lon float64) ([]*model.GeoPlace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.GeoPlace
	for _, p := range s.places {
		if p.ContainsPoint(lat, lon) {
			result = append(result, p)
		}
	}
	return result, nil
}

type stateProfileRepo struct{ *integrationState }

func (s stateProfileRepo) FindByUserID(ctx context.Context, userID int64) (*model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.ConnectionIDs = append([]int64(nil), p.ConnectionIDs...)
	return &cp, nil
}

func (s stateProfileRepo) SetCurrentLocation(ctx context.Context, userID int64, placeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID].CurrentLocation = s.places[placeID]
	return nil
}

func (s stateProfileRepo) ListByLocation(ctx context.Context, placeID string, excludeUserID int64) ([]*model.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*model.UserProfile
	for id, p := range s.profiles {
		if id != excludeUserID && p.CurrentLocation != nil && p.CurrentLocation.ID == placeID {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].User.ID < result[j].User.ID })
	return result, nil
}

func (s stateProfileRepo) Update(ctx context.Context, userID int64, update repository.ProfileUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[userID]
	if update.Bio != nil {
		p.Bio = *update.Bio
	}
	if update.MeetNewPeople != nil {
		p.MeetNewPeople = *update.MeetNewPeople
	}
	return nil
}

func (s stateProfileRepo) AddConnection(ctx context.Context, userID, otherUserID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[userID].ConnectionIDs = append(s.profiles[userID].ConnectionIDs, otherUserID)
	s.profiles[otherUserID].ConnectionIDs = append(s.profiles[otherUserID].ConnectionIDs, userID)
	return nil
}

type stateNotificationRepo struct{ *integrationState }

func (s stateNotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = int64(len(s.notifications) + 1)
	s.notifications = append(s.notifications, n)
	return nil
}

func (s stateNotificationRepo) DrainByUserID(ctx context.Context, userID int64) ([]*model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var drained, kept []*model.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			drained = append(drained, n)
		} else {
			kept = append(kept, n)
		}
	}
	s.notifications = kept
	return drained, nil
}

func (s stateNotificationRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

// stubSearcher は固定のnearby searchレスポンスを返す。
type stubSearcher struct {
	body string
}

func (s stubSearcher) NearbySearch(ctx context.Context, location model.LatLng) (*places.SearchResponse, error) {
	var resp places.SearchResponse
	if err := json.Unmarshal([]byte(s.body), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

const nearbySearchFixture = `{
  "status": "OK",
  "results": [
    {"id": "cafe-1", "name": "Corner Cafe", "icon": "https://maps.example.com/cafe.png",
     "geometry": {"location": {"lat": 10.0, "lng": 20.0},
                  "viewport": {"northeast": {"lat": 10.1, "lng": 20.1}, "southwest": {"lat": 9.9, "lng": 19.9}}}},
    {"id": "nameless", "geometry": {"location": {"lat": 10.0, "lng": 20.0}}},
    {"place_id": "gym-1", "name": "Gym", "geometry": {"location": {"lat": 11.0, "lng": 21.0}}}
  ]
}`

// createIntegrationRouter は実サービスとステートフルストアでルーターを構築する。
func createIntegrationRouter(t *testing.T, state *integrationState) http.Handler {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	serializer := profile.NewSerializer("/static/")
	placeRepo := statePlaceRepo{state}
	profileRepo := stateProfileRepo{state}

	notifier := notification.NewService(profileRepo, stateNotificationRepo{state}, serializer, nil, logger)
	presenceSvc := presence.NewService(placeRepo, profileRepo, notifier, nil, serializer, nil, logger)

	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(limiter.Stop)

	sessions := map[string]*model.Session{
		"alice-session": {ID: "alice-session", UserID: 1, ExpiresAt: time.Now().Add(time.Hour)},
		"bob-session":   {ID: "bob-session", UserID: 2, ExpiresAt: time.Now().Add(time.Hour)},
	}

	return NewRouter(&RouterDeps{
		Logger:        logger,
		SessionFinder: &mockSessionFinderForRouter{sessions: sessions},
		RateLimiter:   limiter,
		PlaceSearch:   place.NewIngestService(stubSearcher{body: nearbySearchFixture}, placeRepo, nil, logger),
		PlaceLookup:   place.NewService(placeRepo),
		Presence:      presenceSvc,
		Notifications: notifier,
		Profiles:      profile.NewService(profileRepo, serializer, security.NewTextSanitizer(), logger),
		Users:         NewUserServiceAdapter(user.NewService(stateUserRepo{state}, logger)),
	})
}

// doRequest はセッションとCSRFトークン付きでリクエストを送る。
func doRequest(router http.Handler, method, path, session, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.AddCookie(&http.Cookie{Name: "session_id", Value: session})
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, withCSRF(req))
	return w
}

// TestIntegration_CheckInFlow はサインアップから周辺検索、チェックイン、通知受信までの一連の流れを検証する。
func TestIntegration_CheckInFlow(t *testing.T) {
	state := newIntegrationState()
	router := createIntegrationRouter(t, state)

	// 1. サインアップ（ID 1: alice, ID 2: bob）
	for _, handle := range []string{"alice", "bob"} {
		w := doRequest(router, http.MethodPost, "/api/users", "", `{"handle":"`+handle+`"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("sign up %s: status = %d, body = %s", handle, w.Code, w.Body.String())
		}
	}
	if w := doRequest(router, http.MethodPost, "/api/users", "", `{"handle":"alice"}`); w.Code != http.StatusConflict {
		t.Errorf("duplicate sign up status = %d, want %d", w.Code, http.StatusConflict)
	}

	// 2. 周辺検索（名前のない結果は読み飛ばす）
	w := doRequest(router, http.MethodPost, "/api/nearby/10,20", "bob-session", "")
	if w.Code != http.StatusOK {
		t.Fatalf("nearby: status = %d, body = %s", w.Code, w.Body.String())
	}
	var found []model.PlaceSummary
	decodeData(t, w, &found)
	if len(found) != 2 || found[0].ID != "cafe-1" || found[1].ID != "gym-1" {
		t.Fatalf("nearby = %+v, want [cafe-1 gym-1]", found)
	}

	// 3. 保存済みプレイスの包含判定（ビューポート内の点）
	w = doRequest(router, http.MethodGet, "/api/places/at/10.05,19.95", "alice-session", "")
	var at []model.PlaceSummary
	decodeData(t, w, &at)
	if len(at) != 1 || at[0].ID != "cafe-1" {
		t.Errorf("places at = %+v, want [cafe-1]", at)
	}

	// 4. bobが先にチェックインし、aliceが後から到着する
	if w := doRequest(router, http.MethodPost, "/api/checkin/cafe-1", "bob-session", ""); w.Code != http.StatusOK {
		t.Fatalf("bob check-in: status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := doRequest(router, http.MethodPost, "/api/checkin/cafe-1", "alice-session", ""); w.Code != http.StatusOK {
		t.Fatalf("alice check-in: status = %d, body = %s", w.Code, w.Body.String())
	}

	// 5. aliceから見た周辺ユーザーはbobのみ
	w = doRequest(router, http.MethodGet, "/api/who", "alice-session", "")
	var people []profile.ProfileSummary
	decodeData(t, w, &people)
	if len(people) != 1 || people[0].Handle != "bob" {
		t.Errorf("who = %+v, want [bob]", people)
	}

	// 6. bobの通知は1件で、2回目は空
	w = doRequest(router, http.MethodPost, "/api/notifyme", "bob-session", "")
	var payloads []map[string]any
	decodeData(t, w, &payloads)
	if len(payloads) != 1 {
		t.Fatalf("drain = %+v, want 1 notification", payloads)
	}
	if payloads[0]["data"] != "alice is around you. Go say hi!" || payloads[0]["image"] != "/static/core/img/2.png" {
		t.Errorf("payload = %+v", payloads[0])
	}
	w = doRequest(router, http.MethodPost, "/api/notifications/drain", "bob-session", "")
	if got := strings.TrimSpace(w.Body.String()); got != `{"data":[]}` {
		t.Errorf("second drain body = %s, want empty array", got)
	}

	// 7. 存在しないプレイスへのチェックイン
	w = doRequest(router, http.MethodPost, "/api/checkin/unknown", "alice-session", "")
	if w.Code != http.StatusNotFound || decodeError(t, w) != "No place with id unknown found" {
		t.Errorf("unknown place: status = %d, body = %s", w.Code, w.Body.String())
	}
}

// TestIntegration_ProfileAndConnections はプロフィール更新と双方向の接続を検証する。
func TestIntegration_ProfileAndConnections(t *testing.T) {
	state := newIntegrationState()
	router := createIntegrationRouter(t, state)

	doRequest(router, http.MethodPost, "/api/users", "", `{"handle":"alice"}`)
	doRequest(router, http.MethodPost, "/api/users", "", `{"handle":"bob"}`)

	// 自己紹介のマークアップは除去される
	w := doRequest(router, http.MethodPatch, "/api/me", "alice-session", `{"bio":"<b>hello</b>"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("update: status = %d, body = %s", w.Code, w.Body.String())
	}
	var detail profile.ProfileDetail
	decodeData(t, w, &detail)
	if detail.Bio != "hello" {
		t.Errorf("bio = %q, want %q", detail.Bio, "hello")
	}

	if w := doRequest(router, http.MethodPost, "/api/connections/2", "alice-session", ""); w.Code != http.StatusOK {
		t.Fatalf("connect: status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := doRequest(router, http.MethodPost, "/api/connections/1", "alice-session", ""); w.Code != http.StatusBadRequest {
		t.Errorf("self connect status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	w = doRequest(router, http.MethodGet, "/api/me?detailed=true", "bob-session", "")
	var bob map[string]any
	decodeData(t, w, &bob)
	conns, _ := bob["connections"].([]any)
	if len(conns) != 1 || conns[0] != float64(1) {
		t.Errorf("bob connections = %v, want [1]", bob["connections"])
	}
	if bob["current_location"] != nil {
		t.Errorf("current_location = %v, want null", bob["current_location"])
	}

	w = doRequest(router, http.MethodGet, "/api/users/1", "bob-session", "")
	var account user.Account
	decodeData(t, w, &account)
	if account.Handle != "alice" {
		t.Errorf("account = %+v", account)
	}
}

// TestIntegration_ProtectedEndpoints_RequireAuth は認証保護エンドポイントがセッションなしで401を返すことを検証する。
func TestIntegration_ProtectedEndpoints_RequireAuth(t *testing.T) {
	router := createIntegrationRouter(t, newIntegrationState())

	endpoints := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/checkin/cafe-1"},
		{http.MethodGet, "/api/who"},
		{http.MethodPost, "/api/nearby/1,2"},
		{http.MethodPost, "/api/notifications/drain"},
		{http.MethodGet, "/api/me"},
		{http.MethodPost, "/api/connections/2"},
		{http.MethodGet, "/api/users/1"},
		{http.MethodGet, "/api/places/cafe-1"},
	}
	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			w := doRequest(router, ep.method, ep.path, "", "")
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}
