package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/stockledger-backend/api/controllers"
	"github.com/angelmondragon/stockledger-backend/pkg/auth"
	"github.com/angelmondragon/stockledger-backend/pkg/config"
	"github.com/angelmondragon/stockledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/stockledger-backend/pkg/db/models"
	"github.com/angelmondragon/stockledger-backend/pkg/enums"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
)

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

type memoryStore struct {
	data     map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	str, _ := value.(string)
	m.data[key] = str
	return true, nil
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.data, key)
	}
	return nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("idem:%s:%s", scope, id)
}

func (m *memoryStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryStore) RateLimitKey(scope string) string {
	return "rl:" + scope
}

func testConfig() *config.Config {
	return &config.Config{
		App:         config.AppConfig{Env: "dev", Port: "0"},
		JWT:         config.JWTConfig{Secret: "test-secret", Issuer: "stockledger-test"},
		Allocator:   config.AllocatorConfig{SerialCeiling: 32767, MaxAttempts: 5},
		Idempotency: config.IdempotencyConfig{TTL: time.Hour},
		RateLimit:   config.RateLimitConfig{Requests: 1000, Window: time.Minute},
	}
}

type harness struct {
	t       *testing.T
	db      *gorm.DB
	handler http.Handler
	token   string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	conn := dbtest.Open(t)
	svc, err := NewServices(ServicesParams{
		DB:         conn,
		Config:     cfg,
		Logger:     logger.Nop(),
		Registerer: reg,
	})
	require.NoError(t, err)

	handler := NewRouter(cfg, logger.Nop(), Infra{
		Store:    newMemoryStore(),
		Health:   map[string]controllers.Pinger{"database": stubPinger{}},
		Gatherer: reg,
	}, svc)

	token, err := auth.MintAccessToken(cfg.JWT, time.Now(), time.Hour, auth.AccessTokenPayload{
		UserID:   uuid.New(),
		TenantID: uuid.New(),
		Role:     "owner",
	})
	require.NoError(t, err)
	return &harness{t: t, db: conn, handler: handler, token: token}
}

func (h *harness) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+h.token)
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope), rec.Body.String())
	return envelope.Data
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t)

	live := httptest.NewRecorder()
	h.handler.ServeHTTP(live, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, live.Code)

	ready := httptest.NewRecorder()
	h.handler.ServeHTTP(ready, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, ready.Code)
}

func TestReadyReportsFailingDependency(t *testing.T) {
	cfg := testConfig()
	handler := NewRouter(cfg, logger.Nop(), Infra{
		Health: map[string]controllers.Pinger{"redis": stubPinger{err: fmt.Errorf("down")}},
	}, Services{})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}

func TestAPIRequiresToken(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	public := httptest.NewRecorder()
	h.handler.ServeHTTP(public, httptest.NewRequest(http.MethodGet, "/api/public/ping", nil))
	assert.Equal(t, http.StatusOK, public.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sales", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSaleLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/products", map[string]any{
		"sku":              "DD1391-100",
		"name":             "Dunk Low Panda",
		"brand":            "Nike",
		"category":         "Sneakers",
		"list_price_cents": 12000,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	productID := decodeData(t, rec)["id"].(string)

	rec = h.do(http.MethodPost, "/api/v1/variants", map[string]any{
		"product_id":       productID,
		"size":             "10",
		"cost_price_cents": 6000,
	}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	variant := decodeData(t, rec)
	variantID := variant["id"].(string)
	assert.EqualValues(t, 1, variant["serial_number"])

	rec = h.do(http.MethodPost, "/api/v1/avatars", map[string]any{"name": "Shop"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	avatarID := decodeData(t, rec)["id"].(string)

	sale := map[string]any{
		"items":          []map[string]any{{"variant_id": variantID, "sold_price_cents": 10000}},
		"payment_method": "cash",
		"distribution":   map[string]any{"kind": "single", "avatar_id": avatarID},
	}
	idem := map[string]string{"Idempotency-Key": "sale-1"}
	rec = h.do(http.MethodPost, "/api/v1/sales", sale, idem)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	first := decodeData(t, rec)
	saleID := first["sale_id"].(string)
	assert.EqualValues(t, 1, first["sale_number"])

	replay := h.do(http.MethodPost, "/api/v1/sales", sale, idem)
	require.Equal(t, http.StatusCreated, replay.Code)
	assert.Equal(t, saleID, decodeData(t, replay)["sale_id"])

	rec = h.do(http.MethodGet, "/api/v1/variants/"+variantID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "sold", decodeData(t, rec)["status"])

	rec = h.do(http.MethodGet, "/api/v1/sales/"+saleID+"/receipt", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	receipt := decodeData(t, rec)
	assert.Len(t, receipt["lines"], 1)
	assert.Len(t, receipt["shares"], 1)

	rec = h.do(http.MethodDelete, "/api/v1/sales/"+saleID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, decodeData(t, rec)["released_variants"], 1)

	rec = h.do(http.MethodGet, "/api/v1/variants/"+variantID, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "available", decodeData(t, rec)["status"])

	rec = h.do(http.MethodGet, "/api/v1/sales/"+saleID, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var queued []models.OutboxEvent
	require.NoError(t, h.db.Where("aggregate_id = ?", saleID).Find(&queued).Error)
	require.Len(t, queued, 2)
	assert.ElementsMatch(t,
		[]enums.OutboxEventType{enums.EventSaleRecorded, enums.EventSaleReversed},
		[]enums.OutboxEventType{queued[0].EventType, queued[1].EventType})
}

func TestRecordSaleRejectsUnknownDistribution(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/api/v1/sales", map[string]any{
		"items":          []map[string]any{{"variant_id": uuid.NewString(), "sold_price_cents": 100}},
		"payment_method": "cash",
		"distribution":   map[string]any{"kind": "lottery"},
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
}

func TestStaffCannotReverseSales(t *testing.T) {
	h := newHarness(t)
	staff, err := auth.MintAccessToken(testConfig().JWT, time.Now(), time.Hour, auth.AccessTokenPayload{
		UserID:   uuid.New(),
		TenantID: uuid.New(),
		Role:     auth.RoleStaff,
	})
	require.NoError(t, err)

	rec := h.do(http.MethodDelete, "/api/v1/sales/"+uuid.NewString(), nil, map[string]string{
		"Authorization": "Bearer " + staff,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, rec.Body.String())
}
