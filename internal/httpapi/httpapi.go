// Package httpapi exposes the service over HTTP with gin.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vendinha/internal/domain"
	"vendinha/internal/replication"
	"vendinha/internal/service"
)

const (
	maxJSONBody = 1 << 20
	maxCSVBody  = 16 << 20

	actorKey = "actor"
)

// StatsSource reports replication queue counters for the health endpoint.
type StatsSource interface {
	Stats() replication.QueueStats
}

type API struct {
	service        *service.Service
	auth           *AuthManager
	allowedOrigins []string
	loginLimiter   *attemptLimiter
	replication    StatsSource
}

func New(svc *service.Service, auth *AuthManager, allowedOrigins []string) *API {
	return &API{
		service:        svc,
		auth:           auth,
		allowedOrigins: allowedOrigins,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
	}
}

// WithReplicationStats adds queue counters to /healthz.
func (a *API) WithReplicationStats(source StatsSource) *API {
	a.replication = source
	return a
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())
	r.Use(securityHeaders())
	r.Use(cors.New(a.corsConfig()))
	r.Use(limitBody())

	r.GET("/healthz", a.handleHealth)
	r.POST("/api/v1/auth/login", a.handleLogin)

	v1 := r.Group("/api/v1", a.requireAuth(domain.RoleCashier, domain.RoleAdmin))
	{
		v1.GET("/products", a.handleListProducts)
		v1.POST("/products", a.requireRole(domain.RoleAdmin), a.handleCreateProduct)
		v1.PATCH("/products/:name", a.requireRole(domain.RoleAdmin), a.handleUpdateProduct)
		v1.DELETE("/products/:name", a.requireRole(domain.RoleAdmin), a.handleDeleteProduct)

		v1.GET("/sales", a.handleListSales)
		v1.POST("/sales", a.handleRecordSale)
		v1.POST("/sales/:id/installments/:number/pay", a.handleRecordPayment)
		v1.POST("/sales/migrate-legacy", a.requireRole(domain.RoleAdmin), a.handleMigrateLegacy)

		v1.GET("/customers", a.handleListCustomers)
		v1.POST("/customers", a.handleCreateCustomer)
		v1.POST("/customers/recalculate", a.handleRecalculateCustomers)
		v1.GET("/customers/:id", a.handleGetCustomer)
		v1.PUT("/customers/:id", a.handleUpdateCustomer)
		v1.DELETE("/customers/:id", a.requireRole(domain.RoleAdmin), a.handleDeleteCustomer)

		v1.GET("/reminders/upcoming", a.handleUpcomingPayments)
		v1.POST("/reminders/schedule", a.handleScheduleReminders)

		v1.GET("/dashboard", a.handleDashboard)

		v1.GET("/settings", a.handleGetSettings)
		v1.PATCH("/settings", a.requireRole(domain.RoleAdmin), a.handleUpdateSettings)

		v1.GET("/export/:entity", a.handleExport)
		v1.POST("/import/:entity", a.requireRole(domain.RoleAdmin), a.handleImport)
	}

	return r
}

func (a *API) corsConfig() cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	if len(a.allowedOrigins) == 0 || (len(a.allowedOrigins) == 1 && a.allowedOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = a.allowedOrigins
	}
	return cfg
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		c.Next()
	}
}

func limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			limit := int64(maxJSONBody)
			if strings.Contains(strings.ToLower(c.GetHeader("Content-Type")), "csv") {
				limit = maxCSVBody
			}
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		c.Next()
		log.Info().
			Str("component", "http").
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(startedAt)).
			Msg("request")
	}
}

func (a *API) requireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(c, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		c.Set(actorKey, actor)
		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func (a *API) requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := service.ActorFromContext(c.Request.Context())
		if !ok || !isRoleAllowed(actor.Role, roles) {
			writeError(c, http.StatusForbidden, errors.New("forbidden role"))
			return
		}
		c.Next()
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(c *gin.Context) {
	body := gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	}
	if a.replication != nil {
		body["replication"] = a.replication.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(clientKey(c.Request)) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if !decodeJSON(c, &req) {
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(c, http.StatusUnauthorized, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) handleListProducts(c *gin.Context) {
	products, err := a.service.ListProducts(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products})
}

func (a *API) handleCreateProduct(c *gin.Context) {
	var req domain.ProductCreateRequest
	if !decodeJSON(c, &req) {
		return
	}
	product, err := a.service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"product": product})
}

func (a *API) handleUpdateProduct(c *gin.Context) {
	var req domain.ProductUpdateRequest
	if !decodeJSON(c, &req) {
		return
	}
	product, err := a.service.UpdateProduct(c.Request.Context(), c.Param("name"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"product": product})
}

func (a *API) handleDeleteProduct(c *gin.Context) {
	if err := a.service.DeleteProduct(c.Request.Context(), c.Param("name")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListSales(c *gin.Context) {
	sales, err := a.service.ListSales(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (a *API) handleRecordSale(c *gin.Context) {
	var req domain.SaleRequest
	if !decodeJSON(c, &req) {
		return
	}
	resp, err := a.service.RecordSale(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (a *API) handleRecordPayment(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		writeError(c, http.StatusBadRequest, errors.New("installment number must be a positive integer"))
		return
	}

	var req domain.PaymentRequest
	if c.Request.ContentLength != 0 {
		if !decodeJSON(c, &req) {
			return
		}
	}

	sale, err := a.service.RecordPayment(c.Request.Context(), c.Param("id"), number, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sale": sale})
}

func (a *API) handleMigrateLegacy(c *gin.Context) {
	changed, err := a.service.MigrateLegacySales(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"migrated": changed})
}

func (a *API) handleListCustomers(c *gin.Context) {
	customers, err := a.service.ListCustomers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (a *API) handleGetCustomer(c *gin.Context) {
	customer, err := a.service.GetCustomer(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customer})
}

func (a *API) handleCreateCustomer(c *gin.Context) {
	var req domain.Customer
	if !decodeJSON(c, &req) {
		return
	}
	customer, err := a.service.CreateCustomer(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"customer": customer})
}

func (a *API) handleUpdateCustomer(c *gin.Context) {
	var req domain.Customer
	if !decodeJSON(c, &req) {
		return
	}
	customer, err := a.service.UpdateCustomer(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customer": customer})
}

func (a *API) handleDeleteCustomer(c *gin.Context) {
	if err := a.service.DeleteCustomer(c.Request.Context(), c.Param("id")); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleRecalculateCustomers(c *gin.Context) {
	customers, err := a.service.RecalculateCustomers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customers": customers})
}

func (a *API) handleUpcomingPayments(c *gin.Context) {
	report, err := a.service.UpcomingPayments(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (a *API) handleScheduleReminders(c *gin.Context) {
	reminders, err := a.service.ScheduleReminders(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"scheduled": reminders})
}

func (a *API) handleDashboard(c *gin.Context) {
	summary, err := a.service.Dashboard(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *API) handleGetSettings(c *gin.Context) {
	settings, err := a.service.GetSettings(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (a *API) handleUpdateSettings(c *gin.Context) {
	var req domain.SettingsUpdateRequest
	if !decodeJSON(c, &req) {
		return
	}
	settings, err := a.service.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

func (a *API) handleExport(c *gin.Context) {
	entity := c.Param("entity")

	// Buffer so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := a.service.Export(c.Request.Context(), entity, &buf); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+entity+`.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

func (a *API) handleImport(c *gin.Context) {
	result, err := a.service.Import(c.Request.Context(), c.Param("entity"), c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(c, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func decodeJSON(c *gin.Context, dest any) bool {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("request body is empty")
		}
		writeError(c, http.StatusBadRequest, err)
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	writeError(c, statusFor(err), err)
}

func writeError(c *gin.Context, status int, err error) {
	// 5xx bodies never carry internal detail.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Str("component", "http").Int("status", status).Str("path", c.Request.URL.Path).Msg("internal error")
		msg = "internal server error"
	}

	body := gin.H{"error": msg}
	var stockErr *domain.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["product"] = stockErr.Product
		body["available"] = stockErr.Available
	}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		if verr.Line > 0 {
			body["line"] = verr.Line
		}
		if verr.Field != "" {
			body["field"] = verr.Field
		}
	}
	c.AbortWithStatusJSON(status, body)
}
