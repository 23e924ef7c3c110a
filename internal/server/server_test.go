package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ozerovd/linemart/internal/catalog"
	"github.com/ozerovd/linemart/internal/config"
	"github.com/ozerovd/linemart/internal/inventory"
	"github.com/ozerovd/linemart/internal/ledger"
	"github.com/ozerovd/linemart/internal/payments"
	"github.com/ozerovd/linemart/internal/provider"
	"github.com/ozerovd/linemart/internal/registry"
	"github.com/ozerovd/linemart/internal/users"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nullPresenter struct{}

func (nullPresenter) PresentInvoice(ctx context.Context, userID int64, inv *provider.Invoice, amount int64, expiresAt time.Time) (int, error) {
	return 1, nil
}
func (nullPresenter) AnnounceResolved(ctx context.Context, op *registry.Operation, balance int64) error {
	return nil
}
func (nullPresenter) AnnounceExpired(ctx context.Context, op *registry.Operation) error { return nil }
func (nullPresenter) NotifyReferralBonus(ctx context.Context, referrerID, bonus int64) error {
	return nil
}

type stubProvider struct{}

func (stubProvider) CreateInvoice(ctx context.Context, amount int64, currency string) (*provider.Invoice, error) {
	return &provider.Invoice{ID: "inv_stub", Currency: currency}, nil
}
func (stubProvider) QueryStatus(ctx context.Context, invoiceID string) (provider.State, error) {
	return provider.StatePending, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	pool, err := inventory.NewPool(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := registry.New(registry.NewMemoryStore())
	led := ledger.New(ledger.NewMemoryStore())
	usr := users.New(users.NewMemoryStore())
	engine := payments.New(reg, led, usr, stubProvider{}, stubProvider{}, nullPresenter{}, payments.Config{
		MinTopup:    500,
		MaxTopup:    1000000,
		Window:      30 * time.Minute,
		ReferralPct: 10,
	}, logger)

	cfg := &config.Config{
		Port:        "0",
		Env:         "development",
		AdminSecret: "sekrit",
	}
	return New(cfg, Deps{
		Engine:   engine,
		Registry: reg,
		Ledger:   led,
		Catalog:  catalog.New(catalog.NewMemoryStore()),
		Pool:     pool,
	}, logger)
}

func doRequest(s *Server, method, path, secret string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if secret != "" {
		req.Header.Set("X-Admin-Secret", secret)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/health/live", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Not ready until Run is called.
	w = doRequest(s, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s.SetReady(true)
	w = doRequest(s, http.MethodGet, "/health/ready", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}

func TestAdminAuth(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/admin/operations/pending", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(s, http.MethodGet, "/admin/operations/pending", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(s, http.MethodGet, "/admin/operations/pending", "sekrit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAuth_DisabledWithoutSecret(t *testing.T) {
	s := newTestServer(t)
	s.cfg.AdminSecret = ""

	w := doRequest(s, http.MethodGet, "/admin/operations/pending", "anything", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdminCatalogAndInventory(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodPut, "/admin/catalog", "sekrit", catalog.Item{
		Name: "steam-key", Description: "a key", Price: 1999, Category: "games",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodPost, "/admin/inventory/steam-key", "sekrit", map[string]any{
		"units": []string{"AAAA-1111", "BBBB-2222"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(s, http.MethodGet, "/admin/inventory/steam-key", "sekrit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Item  string `json:"item"`
		Stock int    `json:"stock"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stock)
}

func TestAdminCatalog_RejectsInvalidItem(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodPut, "/admin/catalog", "sekrit", catalog.Item{Name: "", Price: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminPendingOperations(t *testing.T) {
	s := newTestServer(t)

	_, err := s.deps.Registry.Register(context.Background(), "inv_1", 100, 5000, 1, "fiat")
	require.NoError(t, err)

	w := doRequest(s, http.MethodGet, "/admin/operations/pending", "sekrit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
}

func TestAdminUserBalance(t *testing.T) {
	s := newTestServer(t)

	_, err := s.deps.Ledger.Credit(context.Background(), 100, 5000, ledger.OriginTopup, "inv_x")
	require.NoError(t, err)

	w := doRequest(s, http.MethodGet, "/admin/users/100/balance", "sekrit", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Balance int64  `json:"balance"`
		Display string `json:"display"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(5000), resp.Balance)
	assert.Equal(t, "50.00", resp.Display)
}

func TestAdminAudit(t *testing.T) {
	s := newTestServer(t)

	w := doRequest(s, http.MethodPost, "/admin/audit", "sekrit", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
