package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/macharian8/stocksnap/internal/code"
	"github.com/macharian8/stocksnap/internal/domain"
	"github.com/macharian8/stocksnap/internal/notify"
	"github.com/macharian8/stocksnap/internal/sale"
	"github.com/macharian8/stocksnap/internal/session"
	"github.com/macharian8/stocksnap/internal/store"
)

type API struct {
	catalog        store.CatalogStore
	ledger         store.LedgerStore
	sink           notify.Sink
	gate           *session.Gate
	allowedOrigin  string
	debounceWindow time.Duration
	loginLimiter   *attemptLimiter

	mu      sync.Mutex
	engines map[string]*sale.Engine
}

func New(catalog store.CatalogStore, ledger store.LedgerStore, sink notify.Sink, gate *session.Gate, allowedOrigin string, debounceWindow time.Duration) *API {
	return &API{
		catalog:        catalog,
		ledger:         ledger,
		sink:           sink,
		gate:           gate,
		allowedOrigin:  allowedOrigin,
		debounceWindow: debounceWindow,
		loginLimiter:   newAttemptLimiter(5, time.Minute),
		engines:        make(map[string]*sale.Engine),
	}
}

// engineFor returns the sale engine for a scope, creating it on first use.
// One engine per scope enforces the one-draft-at-a-time rule across the
// terminals of an installation.
func (a *API) engineFor(scope string) *sale.Engine {
	a.mu.Lock()
	defer a.mu.Unlock()

	engine, ok := a.engines[scope]
	if !ok {
		engine = sale.NewEngine(a.catalog, a.ledger, a.sink, scope, a.debounceWindow)
		a.engines[scope] = engine
	}
	return engine
}

func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(a.withHeaders)

	r.Get("/healthz", a.handleHealth)
	r.Post("/api/v1/auth/login", a.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(a.requireAuth)

		r.Get("/api/v1/items", a.handleListItems)
		r.Post("/api/v1/items", a.handleCreateItem)
		r.Patch("/api/v1/items/{itemID}", a.handleUpdateItem)

		r.Post("/api/v1/sale/scan", a.handleScan)
		r.Post("/api/v1/sale/manual", a.handleManual)
		r.Patch("/api/v1/sale/draft", a.handleDraftUpdate)
		r.Post("/api/v1/sale/confirm", a.handleConfirm)
		r.Post("/api/v1/sale/low-stock/ack", a.handleLowStockAck)
		r.Post("/api/v1/sale/low-stock/decline", a.handleLowStockDecline)
		r.Post("/api/v1/sale/cancel", a.handleCancel)
		r.Get("/api/v1/sale/state", a.handleSaleState)

		r.Get("/api/v1/transactions", a.handleListTransactions)
	})

	return r
}

func (a *API) withHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func (a *API) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.gate.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(session.WithActor(r.Context(), actor)))
	})
}

func requireOwner(w http.ResponseWriter, r *http.Request) (session.Actor, bool) {
	actor, ok := session.ActorFromContext(r.Context())
	if !ok || actor.Mode != session.ModeOwner {
		writeError(w, http.StatusForbidden, errors.New("owner mode required"))
		return session.Actor{}, false
	}
	return actor, true
}

func (a *API) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.gate.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleListItems(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())
	items, err := a.catalog.ListItems(r.Context(), actor.Scope)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req domain.ItemCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.LegacyCode = strings.TrimSpace(req.LegacyCode)
	if req.Name == "" || req.SellPrice < 1 {
		writeError(w, http.StatusBadRequest, store.ErrInvalidItem)
		return
	}
	if req.PriceFloor < 0 || req.PriceFloor > req.SellPrice {
		writeError(w, http.StatusBadRequest, errors.New("price floor must be between 0 and the sell price"))
		return
	}
	if req.PriceCeiling != nil && *req.PriceCeiling < req.SellPrice {
		writeError(w, http.StatusBadRequest, errors.New("price ceiling must not be below the sell price"))
		return
	}
	if req.InitialStock < 0 || req.ReorderPoint < 0 {
		writeError(w, http.StatusBadRequest, store.ErrInvalidItem)
		return
	}

	item := domain.Item{
		ID:              uuid.NewString(),
		Scope:           actor.Scope,
		Name:            req.Name,
		Code:            code.New(code.DefaultPrefix, sequenceFromUUID(), time.Now().UTC()),
		LegacyCode:      req.LegacyCode,
		SellPrice:       req.SellPrice,
		PriceFloor:      req.PriceFloor,
		PriceCeiling:    req.PriceCeiling,
		QuantityInStock: req.InitialStock,
		ReorderPoint:    req.ReorderPoint,
		Active:          true,
	}

	created, err := a.catalog.CreateItem(r.Context(), item)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, store.ErrInvalidItem) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"item": created})
}

func (a *API) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireOwner(w, r)
	if !ok {
		return
	}

	itemID := strings.TrimSpace(chi.URLParam(r, "itemID"))
	if itemID == "" {
		writeError(w, http.StatusBadRequest, errors.New("item id required"))
		return
	}

	var req domain.ItemUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	existing, err := a.catalog.GetItemByID(r.Context(), actor.Scope, itemID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			writeError(w, http.StatusBadRequest, store.ErrInvalidItem)
			return
		}
		updated.Name = name
	}
	if req.SellPrice != nil {
		updated.SellPrice = *req.SellPrice
	}
	if req.PriceFloor != nil {
		updated.PriceFloor = *req.PriceFloor
	}
	if req.ClearCeiling {
		updated.PriceCeiling = nil
	} else if req.PriceCeiling != nil {
		updated.PriceCeiling = req.PriceCeiling
	}
	if req.Stock != nil {
		updated.QuantityInStock = *req.Stock
	}
	if req.ReorderPoint != nil {
		updated.ReorderPoint = *req.ReorderPoint
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := a.catalog.UpdateItem(r.Context(), updated)
	if err != nil {
		status := http.StatusUnprocessableEntity
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		if errors.Is(err, store.ErrInvalidItem) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"item": saved})
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	var req domain.ScanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	presented, err := a.engineFor(actor.Scope).ResolveScan(r.Context(), req.Payload, time.Now())
	if err != nil {
		writeSaleError(w, err)
		return
	}
	if presented == nil {
		// Not a code, suppressed re-scan, or a sheet is already open: the
		// camera path treats all three as a non-event.
		writeJSON(w, http.StatusOK, map[string]any{"resolved": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true, "sale": presented})
}

func (a *API) handleManual(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	var req domain.ManualCodeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	presented, err := a.engineFor(actor.Scope).ResolveManual(r.Context(), req.Code)
	if err != nil {
		writeSaleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resolved": true, "sale": presented})
}

func (a *API) handleDraftUpdate(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())
	engine := a.engineFor(actor.Scope)

	var req domain.DraftUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if req.Quantity != nil {
		if err := engine.SetQuantity(*req.Quantity); err != nil {
			writeSaleError(w, err)
			return
		}
	}
	if req.UnitPrice != nil {
		if err := engine.SetUnitPrice(*req.UnitPrice); err != nil {
			writeSaleError(w, err)
			return
		}
	}
	if req.Payment != nil {
		payment, err := domain.BuildPayment(req.Payment.Method, req.Payment.Phone, req.Payment.Code, req.Payment.Note)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := engine.SetPayment(payment); err != nil {
			writeSaleError(w, err)
			return
		}
	}

	presented, ok := engine.Presented()
	if !ok {
		writeSaleError(w, sale.ErrNoDraft)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sale": presented})
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	result, err := a.engineFor(actor.Scope).Confirm(r.Context())
	if err != nil {
		writeSaleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLowStockAck(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	result, err := a.engineFor(actor.Scope).AcknowledgeLowStock(r.Context())
	if err != nil {
		writeSaleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLowStockDecline(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	if err := a.engineFor(actor.Scope).DeclineLowStock(); err != nil {
		writeSaleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sale.StateItemPresented})
}

func (a *API) handleCancel(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	if err := a.engineFor(actor.Scope).Cancel(); err != nil {
		writeSaleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": sale.StateIdle})
}

func (a *API) handleSaleState(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())
	engine := a.engineFor(actor.Scope)

	payload := map[string]any{"state": engine.State()}
	if presented, ok := engine.Presented(); ok {
		payload["sale"] = presented
	}
	writeJSON(w, http.StatusOK, payload)
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, _ := session.ActorFromContext(r.Context())

	day := time.Now().UTC()
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("date must be YYYY-MM-DD"))
			return
		}
		day = parsed.UTC()
	}
	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)

	transactions, err := a.ledger.ListTransactionsByDay(r.Context(), actor.Scope, day, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": transactions})
}

// writeSaleError maps the engine's closed error taxonomy onto HTTP status
// codes. A failed ledger insert keeps its user-facing retry message since
// the draft is preserved server-side.
func writeSaleError(w http.ResponseWriter, err error) {
	var priceErr *sale.PriceError
	var fieldErr *sale.FieldError
	var persistErr *sale.PersistError

	switch {
	case errors.Is(err, sale.ErrItemNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, sale.ErrSaleInProgress), errors.Is(err, sale.ErrInvalidState), errors.Is(err, sale.ErrNoDraft):
		writeError(w, http.StatusConflict, err)
	case errors.As(err, &priceErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  priceErr.Error(),
			"reason": priceErr.Reason,
			"bound":  priceErr.Bound,
		})
	case errors.As(err, &fieldErr):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  fieldErr.Error(),
			"field":  fieldErr.Field,
			"reason": fieldErr.Reason,
		})
	case errors.As(err, &persistErr):
		log.Printf("[httpapi] WARN: ledger insert failed: %v", persistErr.Unwrap())
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":     "failed to record sale, please retry",
			"retryable": true,
		})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
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

// sequenceFromUUID derives a stable five-digit sequence for a freshly
// minted item code without needing a database counter.
func sequenceFromUUID() int {
	id := uuid.New()
	return int(uint32(id.ID()) % 100000)
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages are replaced with a generic string so storage errors
	// and internal paths never leak to clients.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
