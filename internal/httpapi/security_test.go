package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"vendinha/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	assert.Equal(t, "nosniff", res.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", res.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, res.Header().Get("Referrer-Policy"))
}

func TestLoginRateLimitReturns429(t *testing.T) {
	handler := newTestAPI(t).Handler()
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		handler.ServeHTTP(res, req)

		if i < 5 {
			assert.Equal(t, http.StatusUnauthorized, res.Code, "attempt %d", i+1)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, res.Code, "attempt %d", i+1)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	handler := newTestAPI(t).Handler()
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	handler.ServeHTTP(res, req)

	assert.Equal(t, http.StatusBadRequest, res.Code)
}

func TestStatusForMapsDomainErrors(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, statusFor(&domain.StorageError{Op: "save", Key: "sales", Err: fmt.Errorf("disk /var/x full")}))
	assert.Equal(t, http.StatusConflict, statusFor(&domain.InsufficientStockError{Product: "Cabo"}))
	assert.Equal(t, http.StatusBadRequest, statusFor(domain.Invalid("name", "is required")))
	assert.Equal(t, http.StatusNotFound, statusFor(fmt.Errorf("x: %w", domain.ErrNotFound)))
}
