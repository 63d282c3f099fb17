package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"retailpos/backend/internal/cart"
	"retailpos/backend/internal/discount"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/inventory"
	"retailpos/backend/internal/purchasing"
	"retailpos/backend/internal/service"
	"retailpos/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type Options struct {
	AllowedOrigin  string
	LoginRateLimit int
	PINRateLimit   int
	Development    bool
}

type API struct {
	service *service.Service
	auth    *AuthManager
	opts    Options
	logger  *zap.Logger

	// limiters are built once so every Handler shares their counters
	loginLimit func(http.Handler) http.Handler
	pinLimit   func(http.Handler) http.Handler
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, opts Options) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LoginRateLimit < 1 {
		opts.LoginRateLimit = 10
	}
	if opts.PINRateLimit < 1 {
		opts.PINRateLimit = 8
	}
	a := &API{
		service: svc,
		auth:    auth,
		opts:    opts,
		logger:  logger.Named("http"),
	}
	a.loginLimit = a.limit(opts.LoginRateLimit, "too many login attempts")
	a.pinLimit = a.limit(opts.PINRateLimit, "too many manager PIN attempts")
	return a
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		a.requestLogger,
		middleware.Recoverer,
		a.securityHeaders(),
		a.cors,
		middleware.RequestSize(maxBodyBytes),
	)

	r.Get("/healthz", a.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(a.loginLimit).Post("/auth/login", a.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(a.requireAuth)

			r.Get("/products", a.handleListProducts)
			r.Get("/products/low-stock", a.handleLowStock)
			r.Get("/products/{id}", a.handleGetProduct)
			r.Get("/tax-groups", a.handleListTaxGroups)

			r.Post("/cart/quote", a.handleQuote)
			r.Post("/checkout", a.handleCheckout)
			r.Get("/checkout/idempotency/{key}", a.handleCheckoutLookup)
			r.Get("/transactions", a.handleListTransactions)
			r.Get("/transactions/{id}", a.handleGetTransaction)
			r.Get("/transactions/{id}/receipt", a.handleReceipt)

			r.Post("/inventory/receive", a.handleReceiveStock)
			r.Get("/inventory/movements", a.handleListMovements)
			r.With(a.pinLimit).Post("/returns", a.handleReturn)
			r.Get("/removal-types", a.handleListRemovalTypes)

			r.Get("/discounts", a.handleListDiscounts)
			r.Post("/discounts/validate", a.handleValidateDiscount)

			r.Get("/customers", a.handleListCustomers)
			r.Post("/customers", a.handleCreateCustomer)
			r.Get("/customers/{id}", a.handleGetCustomer)
			r.Put("/customers/{id}", a.handleUpdateCustomer)

			r.Get("/estimations", a.handleListEstimations)
			r.Post("/estimations", a.handleCreateEstimation)
			r.Get("/estimations/{id}", a.handleGetEstimation)
			r.Put("/estimations/{id}", a.handleUpdateEstimation)
			r.Delete("/estimations/{id}", a.handleDeleteEstimation)
			r.Post("/estimations/{id}/recall", a.handleRecallEstimation)

			r.Post("/shifts/open", a.handleShiftOpen)
			r.Post("/shifts/close", a.handleShiftClose)
			r.Get("/shifts/active", a.handleShiftActive)

			r.Get("/expenses", a.handleListExpenses)
			r.Post("/expenses", a.handleCreateExpense)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(domain.RoleAdmin))

				r.Post("/products", a.handleCreateProduct)
				r.Patch("/products/{id}", a.handleUpdateProduct)
				r.Put("/tax-groups/{id}", a.handleUpsertTaxGroup)

				r.Post("/inventory/remove", a.handleRemoveStock)
				r.Post("/inventory/count", a.handleCountStock)
				r.Get("/inventory/reconcile/{productID}", a.handleReconcile)
				r.Post("/removal-types", a.handleCreateRemovalType)
				r.Delete("/removal-types/{id}", a.handleDeleteRemovalType)

				r.Get("/suppliers", a.handleListSuppliers)
				r.Post("/suppliers", a.handleCreateSupplier)
				r.Get("/purchase-orders", a.handleListPurchaseOrders)
				r.Post("/purchase-orders", a.handleCreatePurchaseOrder)
				r.Get("/purchase-orders/{id}", a.handleGetPurchaseOrder)
				r.Post("/purchase-orders/{id}/submit", a.handleSubmitPurchaseOrder)
				r.Post("/purchase-orders/{id}/receive", a.handleReceivePurchaseOrder)
				r.Post("/purchase-orders/{id}/cancel", a.handleCancelPurchaseOrder)

				r.Post("/discounts", a.handleCreateDiscount)
				r.Put("/discounts/{id}", a.handleUpdateDiscount)
				r.Delete("/discounts/{id}", a.handleDeleteDiscount)

				r.Post("/estimations/expire", a.handleExpireEstimations)
				r.Get("/reports/daily", a.handleDailyReport)
				r.Get("/audit-logs", a.handleAuditLogs)
				r.Get("/users/cashiers", a.handleListCashiers)
				r.Post("/users/cashiers", a.handleCreateCashier)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errors.New("route not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	})
	return r
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(authorization) < len("Bearer ") || !strings.EqualFold(authorization[:len("Bearer ")], "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(service.WithActor(r.Context(), actor)))
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := service.ActorFromContext(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, errors.New("missing actor"))
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		})
	}
}

// limit caps requests per client IP per minute.
func (a *API) limit(requests int, message string) func(http.Handler) http.Handler {
	return httprate.Limit(requests, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			a.logger.Warn("rate limited", zap.String("path", r.URL.Path), zap.String("remote", r.RemoteAddr))
			writeError(w, http.StatusTooManyRequests, errors.New(message))
		}),
	)
}

func (a *API) securityHeaders() func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		IsDevelopment:         a.opts.Development,
	}).Handler
}

func (a *API) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Cross-Origin-Opener-Policy", "same-origin")
		if a.opts.AllowedOrigin != "" {
			h.Set("Access-Control-Allow-Origin", a.opts.AllowedOrigin)
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			h.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
			h.Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *API) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		startedAt := time.Now()
		next.ServeHTTP(ww, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":         true,
		"tax_policy": a.service.TaxPolicy(),
		"at":         time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case discount.IsRejection(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, cart.ErrProductNotFound),
		errors.Is(err, cart.ErrVariantNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidTransaction),
		errors.Is(err, cart.ErrInvalidDiscount),
		errors.Is(err, inventory.ErrInvalidQuantity),
		errors.Is(err, purchasing.ErrUnknownLine):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, cart.ErrVariantOutOfStock),
		errors.Is(err, cart.ErrExceedsStock),
		errors.Is(err, cart.ErrProductInactive),
		errors.Is(err, purchasing.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeError(w, status, err)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	if parsed, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil && parsed > 0 {
		limit = parsed
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// writeError redacts 5xx messages; 4xx messages are meant for the client.
func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
