package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"krishibondhu/internal/entities"
	"krishibondhu/internal/infrastructure"
	"krishibondhu/internal/usecases"
)

const testSecret = "test-secret"

type scriptedCompletion struct {
	reply string
	err   error
}

func (s *scriptedCompletion) Complete(context.Context, []entities.ChatMessage, string) (string, error) {
	return s.reply, s.err
}

func (s *scriptedCompletion) DefaultModel() string { return "anthropic/claude-3.5-sonnet" }

type memoryStore struct {
	mu      sync.Mutex
	records []entities.UsageRecord
	err     error
}

func (m *memoryStore) Record(_ context.Context, rec entities.UsageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryStore) CountToday(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, r := range m.records {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) Summary(context.Context) ([]entities.UsageSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	index := map[entities.Operation]int{}
	out := []entities.UsageSummary{}
	for _, r := range m.records {
		i, ok := index[r.Operation]
		if !ok {
			i = len(out)
			index[r.Operation] = i
			out = append(out, entities.UsageSummary{Operation: r.Operation})
		}
		out[i].Total++
		if r.Fallback {
			out[i].Fallbacks++
		}
	}
	return out, nil
}

func (m *memoryStore) Close() error { return nil }

type testServer struct {
	router *gin.Engine
	store  *memoryStore
}

type serverOptions struct {
	completion *scriptedCompletion
	burst      int
	quota      int
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if opts.completion == nil {
		opts.completion = &scriptedCompletion{reply: "Rotate your crops.\n- Add compost\n- Test soil"}
	}
	if opts.burst == 0 {
		opts.burst = 100
	}
	store := &memoryStore{}
	logger := zap.NewNop()
	advisory := usecases.NewAdvisoryService(opts.completion, usecases.WithUsageStore(store))
	usage := usecases.NewUsageUsecase(store, opts.quota)
	mw := NewMiddleware(testSecret, infrastructure.NewKeyedLimiter(0.01, opts.burst), usage, logger)

	r := gin.New()
	SetupRoutes(r, advisory, usage, nil, mw, logger)
	return &testServer{router: r, store: store}
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func tokenFor(t *testing.T, userID string, role entities.UserRole) string {
	return signToken(t, jwt.MapClaims{
		"sub":           userID,
		"email":         userID + "@example.com",
		"role":          "authenticated",
		"user_metadata": map[string]any{"role": string(role)},
		"exp":           time.Now().Add(time.Hour).Unix(),
	})
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		data, _ := json.Marshal(b)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := srv.do(http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(HeaderRequestID))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRequestIDIsEchoed(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "trace-123")
	w := httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.Equal(t, "trace-123", w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderRequestID, "bad id\nwith newline")
	w = httptest.NewRecorder()
	srv.router.ServeHTTP(w, req)
	assert.NotEqual(t, "bad id\nwith newline", w.Header().Get(HeaderRequestID))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := srv.do(http.MethodOptions, "/api/advisory/chat", "", nil)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	body := gin.H{"message": "hello"}

	otherSecret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("other"))
	require.NoError(t, err)
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"wrong secret", "Bearer " + otherSecret},
		{"alg none", "Bearer " + noneToken},
		{"expired", "Bearer " + signToken(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Hour).Unix()})},
		{"no subject", "Bearer " + signToken(t, jwt.MapClaims{"email": "a@b.c"})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(body)
			req := httptest.NewRequest(http.MethodPost, "/api/advisory/chat", bytes.NewReader(data))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			srv.router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
	assert.Empty(t, srv.store.records)
}

func TestClaimsRoleResolution(t *testing.T) {
	tests := []struct {
		name   string
		claims BaaSClaims
		want   entities.UserRole
	}{
		{"user metadata wins", func() BaaSClaims {
			c := BaaSClaims{AppRole: "admin", Role: "authenticated"}
			c.UserMetadata.Role = "farmer"
			return c
		}(), entities.UserRoleFarmer},
		{"app role", BaaSClaims{AppRole: "warehouse", Role: "authenticated"}, entities.UserRoleWarehouse},
		{"legacy role", BaaSClaims{Role: "delivery_partner"}, entities.UserRoleDeliveryPartner},
		{"unknown role", BaaSClaims{Role: "authenticated"}, entities.UserRoleCustomer},
		{"no role", BaaSClaims{}, entities.UserRoleCustomer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.claims.UserRole())
		})
	}
}

func TestChat(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := srv.do(http.MethodPost, "/api/advisory/chat", tokenFor(t, "buyer-1", entities.UserRoleCustomer),
		gin.H{"message": "How do I store potatoes?", "context": "customer in Dhaka"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	reply := decode[entities.AdvisoryReply](t, w)
	assert.Equal(t, []string{"Add compost", "Test soil"}, reply.Suggestions)
	require.Len(t, srv.store.records, 1)
	assert.Equal(t, "buyer-1", srv.store.records[0].UserID)
}

func TestChat_RemoteFailureStillOK(t *testing.T) {
	srv := newTestServer(t, serverOptions{completion: &scriptedCompletion{
		err: errors.Mark(errors.New("503"), entities.ErrRemoteRejected),
	}})

	w := srv.do(http.MethodPost, "/api/advisory/chat", tokenFor(t, "u1", entities.UserRoleFarmer), gin.H{"message": "hi"})

	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[map[string]any](t, w)
	assert.NotEmpty(t, reply["message"])
	assert.Equal(t, []any{}, reply["suggestions"])
	assert.Equal(t, "remote_rejected", srv.store.records[0].Failure)
}

func TestRoleRestrictions(t *testing.T) {
	srv := newTestServer(t, serverOptions{completion: &scriptedCompletion{err: errors.New("down")}})
	crops := gin.H{"location": "Rangpur", "season": "rabi", "soilType": "loamy"}
	warehouse := gin.H{"inventory": []gin.H{{"name": "Rice", "quantity": 100}}, "capacity": 500}
	delivery := gin.H{"orders": []gin.H{{"id": "1", "destination": "Dhaka", "items": 2}}, "location": "Bogura"}

	tests := []struct {
		path string
		body gin.H
		role entities.UserRole
		want int
	}{
		{"/api/advisory/crops", crops, entities.UserRoleFarmer, http.StatusOK},
		{"/api/advisory/crops", crops, entities.UserRoleAdmin, http.StatusOK},
		{"/api/advisory/crops", crops, entities.UserRoleCustomer, http.StatusForbidden},
		{"/api/advisory/warehouse", warehouse, entities.UserRoleWarehouse, http.StatusOK},
		{"/api/advisory/warehouse", warehouse, entities.UserRoleFarmer, http.StatusForbidden},
		{"/api/advisory/delivery", delivery, entities.UserRoleDeliveryPartner, http.StatusOK},
		{"/api/advisory/delivery", delivery, entities.UserRoleWarehouse, http.StatusForbidden},
		{"/api/advisory/market", gin.H{"crops": []string{"Rice"}}, entities.UserRoleCustomer, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+tt.path, func(t *testing.T) {
			w := srv.do(http.MethodPost, tt.path, tokenFor(t, "user-"+string(tt.role), tt.role), tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCropRecommendations_Fallback(t *testing.T) {
	srv := newTestServer(t, serverOptions{completion: &scriptedCompletion{reply: "no json here"}})

	w := srv.do(http.MethodPost, "/api/advisory/crops", tokenFor(t, "f1", entities.UserRoleFarmer),
		gin.H{"location": "Rangpur", "season": "RABI", "soilType": "loamy", "weather": gin.H{"temperature": 18, "humidity": 60, "description": "clear"}})

	require.Equal(t, http.StatusOK, w.Code)
	recs := decode[[]entities.CropRecommendation](t, w)
	require.Len(t, recs, 3)
	assert.Equal(t, "Wheat", recs[0].Crop)
}

func TestWarehouseOptimization_Fallback(t *testing.T) {
	srv := newTestServer(t, serverOptions{completion: &scriptedCompletion{err: errors.New("down")}})

	w := srv.do(http.MethodPost, "/api/advisory/warehouse", tokenFor(t, "w1", entities.UserRoleWarehouse),
		gin.H{"inventory": []gin.H{{"name": "Rice", "quantity": 100}}, "capacity": 500})

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"recommendations": ["Monitor temperature and humidity regularly", "Implement FIFO inventory rotation"],
		"storageOptimization": ["Optimize space utilization", "Separate products by storage requirements"],
		"alerts": ["Check for products nearing expiry"]
	}`, w.Body.String())
}

func TestValidation(t *testing.T) {
	srv := newTestServer(t, serverOptions{})
	tooManyCrops := make([]string, MaxMarketCrops+1)
	for i := range tooManyCrops {
		tooManyCrops[i] = "crop"
	}

	tests := []struct {
		name string
		path string
		role entities.UserRole
		body any
	}{
		{"malformed json", "/api/advisory/chat", entities.UserRoleFarmer, `{"message":`},
		{"empty message", "/api/advisory/chat", entities.UserRoleFarmer, gin.H{"message": "   "}},
		{"long message", "/api/advisory/chat", entities.UserRoleFarmer, gin.H{"message": strings.Repeat("ধ", MaxChatMessageLength+1)}},
		{"bad model", "/api/advisory/chat", entities.UserRoleFarmer, gin.H{"message": "hi", "model": "rm -rf /"}},
		{"crops missing soil", "/api/advisory/crops", entities.UserRoleFarmer, gin.H{"location": "Rangpur", "season": "rabi"}},
		{"no crops", "/api/advisory/market", entities.UserRoleCustomer, gin.H{"crops": []string{" ", ""}}},
		{"too many crops", "/api/advisory/market", entities.UserRoleCustomer, gin.H{"crops": tooManyCrops}},
		{"zero capacity", "/api/advisory/warehouse", entities.UserRoleWarehouse, gin.H{"inventory": []gin.H{}, "capacity": 0}},
		{"unnamed item", "/api/advisory/warehouse", entities.UserRoleWarehouse, gin.H{"inventory": []gin.H{{"quantity": 3}}, "capacity": 10}},
		{"delivery without location", "/api/advisory/delivery", entities.UserRoleDeliveryPartner, gin.H{"orders": []gin.H{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(http.MethodPost, tt.path, tokenFor(t, "v-"+tt.name, tt.role), tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			assert.NotEmpty(t, decode[map[string]string](t, w)["error"])
		})
	}
	assert.Empty(t, srv.store.records)
}

func TestChatAcceptsLongUnicodeMessageWithinLimit(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	// 4000 Bengali characters is well over 4000 bytes.
	w := srv.do(http.MethodPost, "/api/advisory/chat", tokenFor(t, "u1", entities.UserRoleFarmer),
		gin.H{"message": strings.Repeat("ধ", MaxChatMessageLength)})

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestTooLarge(t *testing.T) {
	srv := newTestServer(t, serverOptions{})

	w := srv.do(http.MethodPost, "/api/advisory/chat", tokenFor(t, "u1", entities.UserRoleFarmer),
		`{"message":"`+strings.Repeat("a", maxRequestBytes)+`"}`)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRateLimitPerUser(t *testing.T) {
	srv := newTestServer(t, serverOptions{burst: 2})
	token := tokenFor(t, "busy-farmer", entities.UserRoleFarmer)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/advisory/usage", token, nil).Code)
	}
	w := srv.do(http.MethodGet, "/api/advisory/usage", token, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	other := srv.do(http.MethodGet, "/api/advisory/usage", tokenFor(t, "other", entities.UserRoleFarmer), nil)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestDailyQuota(t *testing.T) {
	srv := newTestServer(t, serverOptions{quota: 2})
	token := tokenFor(t, "f1", entities.UserRoleFarmer)
	body := gin.H{"message": "hi"}

	assert.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/advisory/chat", token, body).Code)
	assert.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/advisory/chat", token, body).Code)

	w := srv.do(http.MethodPost, "/api/advisory/chat", token, body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "Daily advisory limit reached", decode[map[string]string](t, w)["error"])

	status := decode[usecases.QuotaStatus](t, srv.do(http.MethodGet, "/api/advisory/usage", token, nil))
	assert.Equal(t, usecases.QuotaStatus{DailyLimit: 2, TodayUsed: 2, Remaining: 0, Percent: 100}, status)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodPost, "/api/advisory/chat", tokenFor(t, "f2", entities.UserRoleFarmer), body).Code)
}

func TestQuotaCheckFailsOpen(t *testing.T) {
	srv := newTestServer(t, serverOptions{quota: 1})
	srv.store.err = errors.New("database is locked")

	w := srv.do(http.MethodPost, "/api/advisory/chat", tokenFor(t, "f1", entities.UserRoleFarmer), gin.H{"message": "hi"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = srv.do(http.MethodGet, "/api/advisory/usage", tokenFor(t, "f1", entities.UserRoleFarmer), nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminEndpoints(t *testing.T) {
	srv := newTestServer(t, serverOptions{completion: &scriptedCompletion{reply: "not json"}})
	farmer := tokenFor(t, "f1", entities.UserRoleFarmer)
	admin := tokenFor(t, "root", entities.UserRoleAdmin)

	srv.do(http.MethodPost, "/api/advisory/chat", farmer, gin.H{"message": "hi"})
	srv.do(http.MethodPost, "/api/advisory/crops", farmer, gin.H{"location": "a", "season": "b", "soilType": "c"})

	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodGet, "/api/admin/usage", farmer, nil).Code)

	w := srv.do(http.MethodGet, "/api/admin/usage", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"operations":[
		{"operation":"chat","total":1,"fallbacks":0},
		{"operation":"crops","total":1,"fallbacks":1}
	]}`, w.Body.String())

	w = srv.do(http.MethodGet, "/api/admin/telegram", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"configured":false,"connected":false}`, w.Body.String())
}

func TestAdminResetRateLimit(t *testing.T) {
	srv := newTestServer(t, serverOptions{burst: 1})
	farmer := tokenFor(t, "busy-farmer", entities.UserRoleFarmer)
	admin := tokenFor(t, "root", entities.UserRoleAdmin)

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/advisory/usage", farmer, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, srv.do(http.MethodGet, "/api/advisory/usage", farmer, nil).Code)

	nosy := tokenFor(t, "nosy-farmer", entities.UserRoleFarmer)
	assert.Equal(t, http.StatusForbidden, srv.do(http.MethodDelete, "/api/admin/rate-limits/busy-farmer", nosy, nil).Code)

	w := srv.do(http.MethodDelete, "/api/admin/rate-limits/busy-farmer", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"status":"reset","user_id":"busy-farmer"}`, w.Body.String())

	assert.Equal(t, http.StatusOK, srv.do(http.MethodGet, "/api/advisory/usage", farmer, nil).Code)
}
