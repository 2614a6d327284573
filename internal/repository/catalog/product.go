// Package catalog implements the product repository against a remote catalog
// service over HTTP. It is used when product data lives in another service
// instead of the local products tables.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/utafrali/campaign-engine/internal/domain"
	apperrors "github.com/utafrali/campaign-engine/pkg/errors"
	"github.com/utafrali/campaign-engine/pkg/httpclient"
)

// ProductRepository implements repository.ProductRepository against the
// catalog service's HTTP API. Calls go through a circuit breaker so a dead
// catalog trips fast instead of holding every pricing request until timeout.
type ProductRepository struct {
	baseURL string
	client  *httpclient.CircuitBreakerClient
}

// NewProductRepository creates a catalog-backed product repository.
func NewProductRepository(baseURL string, client *httpclient.CircuitBreakerClient) *ProductRepository {
	return &ProductRepository{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type productEnvelope struct {
	Data domain.Product `json:"data"`
}

type productListEnvelope struct {
	Data []domain.Product `json:"data"`
}

// GetByID retrieves a product with its category memberships.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	resp, err := r.client.Get(ctx, r.baseURL+"/api/v1/products/"+url.PathEscape(id))
	if err != nil {
		return nil, fmt.Errorf("catalog get product: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		drain(resp.Body)
		return nil, apperrors.NotFound("product", id)
	case resp.StatusCode != http.StatusOK:
		drain(resp.Body)
		return nil, fmt.Errorf("catalog returned status %d for product %s", resp.StatusCode, id)
	}

	var envelope productEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode catalog product: %w", err)
	}
	p := envelope.Data
	if p.CategoryIDs == nil {
		p.CategoryIDs = []string{}
	}
	return &p, nil
}

// GetByIDs retrieves the products for the given ids. Ids the catalog does not
// know are absent from the result.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return []domain.Product{}, nil
	}

	endpoint := r.baseURL + "/api/v1/products?ids=" + url.QueryEscape(strings.Join(ids, ","))
	resp, err := r.client.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("catalog list products: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		drain(resp.Body)
		return nil, fmt.Errorf("catalog returned status %d listing products", resp.StatusCode)
	}

	var envelope productListEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode catalog product list: %w", err)
	}
	products := envelope.Data
	if products == nil {
		products = []domain.Product{}
	}
	for i := range products {
		if products[i].CategoryIDs == nil {
			products[i].CategoryIDs = []string{}
		}
	}
	return products, nil
}

// drain consumes a bounded amount of the body so the connection can be reused.
func drain(body io.Reader) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 1<<12))
}
