package seed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendinha/internal/domain"
	"vendinha/internal/store"
	"vendinha/internal/store/memory"
)

type failingSource struct{}

func (failingSource) Products(context.Context) ([]domain.Product, error) {
	return nil, errors.New("offline")
}

func TestIfEmptySeedsOnce(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())

	n, err := IfEmpty(ctx, s, Bundled{})
	require.NoError(t, err)
	assert.Equal(t, len(DefaultCatalog()), n)

	n, err = IfEmpty(ctx, s, Bundled{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIfEmptyLeavesExistingCatalog(t *testing.T) {
	ctx := context.Background()
	s := store.New(memory.New())
	require.NoError(t, store.Set(ctx, s, store.KeyProducts, []domain.Product{{Name: "Cabo", Quantity: 1}}))

	n, err := IfEmpty(ctx, s, failingSource{})
	require.NoError(t, err)
	assert.Zero(t, n)

	products, err := store.Get(ctx, s, store.KeyProducts, []domain.Product(nil))
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestRemoteFetchesCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"name":"Cabo","quantity":3,"cost":"1.5","unitPrice":"4"}]`))
	}))
	defer srv.Close()

	products, err := NewRemote(srv.URL, time.Second).Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Cabo", products[0].Name)
	assert.Equal(t, "4", products[0].UnitPrice.String())
}

func TestRemoteRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL, time.Second).Products(context.Background())
	assert.Error(t, err)
}

func TestFallbackUsesSecondary(t *testing.T) {
	products, err := Fallback{Primary: failingSource{}, Secondary: Bundled{}}.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, len(DefaultCatalog()))
}
