package catalog

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
	"github.com/utafrali/campaign-engine/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRepository(serverURL string) *ProductRepository {
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10}),
		httpclient.DefaultCircuitBreakerConfig("catalog-test"),
		testLogger(),
	)
	return NewProductRepository(serverURL, client)
}

func TestGetByID_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products/prod-1", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": {"id": "prod-1", "name": "Tea Set", "price": 4800, "category_ids": ["kitchen"]}}`))
	}))
	defer server.Close()

	repo := newTestRepository(server.URL)
	p, err := repo.GetByID(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.Equal(t, "prod-1", p.ID)
	assert.Equal(t, int64(4800), p.Price)
	assert.Equal(t, []string{"kitchen"}, p.CategoryIDs)
}

func TestGetByID_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error": {"code": "NOT_FOUND", "message": "product not found"}}`))
	}))
	defer server.Close()

	repo := newTestRepository(server.URL)
	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGetByID_NilCategoriesNormalized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"id": "prod-1", "name": "Tea Set", "price": 4800}}`))
	}))
	defer server.Close()

	repo := newTestRepository(server.URL)
	p, err := repo.GetByID(context.Background(), "prod-1")
	require.NoError(t, err)
	assert.NotNil(t, p.CategoryIDs)
	assert.Empty(t, p.CategoryIDs)
}

func TestGetByIDs_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/products", r.URL.Path)
		assert.Equal(t, "prod-1,prod-2", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`{"data": [{"id": "prod-1", "price": 4800, "category_ids": ["kitchen"]}]}`))
	}))
	defer server.Close()

	repo := newTestRepository(server.URL)
	products, err := repo.GetByIDs(context.Background(), []string{"prod-1", "prod-2"})
	require.NoError(t, err)
	// The catalog knows prod-1 only; prod-2 is simply absent.
	require.Len(t, products, 1)
	assert.Equal(t, "prod-1", products[0].ID)
}

func TestGetByIDs_EmptyInputSkipsRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty id list")
	}))
	defer server.Close()

	repo := newTestRepository(server.URL)
	products, err := repo.GetByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestGetByIDs_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	repo := newTestRepository(server.URL)
	_, err := repo.GetByIDs(context.Background(), []string{"prod-1"})
	assert.Error(t, err)
}
