package sheets

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendinha/internal/replication"
)

func TestAppendPostsRowsToEntityPath(t *testing.T) {
	var gotPath, gotAuth string
	var got pushRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	remote, err := New(server.URL, "sheet-token", time.Second)
	require.NoError(t, err)

	err = remote.Append(context.Background(), replication.EntitySales, []json.RawMessage{json.RawMessage(`{"id":"sale-1"}`)})
	require.NoError(t, err)
	assert.Equal(t, "/sales", gotPath)
	assert.Equal(t, "Bearer sheet-token", gotAuth)
	assert.Equal(t, replication.ModeAppend, got.Mode)
	require.Len(t, got.Rows, 1)
}

func TestErrorStatusIsReported(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	remote, err := New(server.URL, "", time.Second)
	require.NoError(t, err)

	err = remote.Overwrite(context.Background(), replication.EntityProducts, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestNewRequiresURL(t *testing.T) {
	_, err := New("  ", "", 0)
	require.ErrorIs(t, err, ErrMissingURL)
}
