package sale

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/macharian8/stocksnap/internal/domain"
	"github.com/macharian8/stocksnap/internal/notify"
	"github.com/macharian8/stocksnap/internal/store"
)

type State string

const (
	StateIdle               State = "idle"
	StateItemResolving      State = "item_resolving"
	StateItemPresented      State = "item_presented"
	StateValidating         State = "validating"
	StateLowStockConfirming State = "low_stock_confirming"
	StatePersisting         State = "persisting"
	StateStockAdjusting     State = "stock_adjusting"
	StateComplete           State = "complete"
	StateFailed             State = "failed"
)

// LowStockGate is the soft block presented when the requested quantity
// exceeds current stock. The sale proceeds only on explicit acknowledgment.
type LowStockGate struct {
	InStock   int `json:"in_stock"`
	Requested int `json:"requested"`
}

// Result is the outcome of a confirm attempt that did not error.
type Result struct {
	State       State               `json:"state"`
	LowStock    *LowStockGate       `json:"low_stock,omitempty"`
	Transaction *domain.Transaction `json:"transaction,omitempty"`

	// RemainingStock is -1 when the stock adjustment failed and the real
	// count is unknown until reconciliation.
	RemainingStock int    `json:"remaining_stock"`
	Notice         string `json:"notice,omitempty"`
	Warning        string `json:"warning,omitempty"`
}

// Engine is the sale state machine for one operator session. It processes
// one SaleDraft at a time; the mutex both protects state and serializes
// the resolve-validate-persist-adjust flow.
type Engine struct {
	catalog  store.CatalogStore
	ledger   store.LedgerStore
	sink     notify.Sink
	scope    string
	debounce *Debouncer

	mu    sync.Mutex
	state State
	item  *domain.Item
	draft *domain.SaleDraft
}

func NewEngine(catalog store.CatalogStore, ledger store.LedgerStore, sink notify.Sink, scope string, debounceWindow time.Duration) *Engine {
	if sink == nil {
		sink = notify.NoopSink{}
	}
	return &Engine{
		catalog:  catalog,
		ledger:   ledger,
		sink:     sink,
		scope:    scope,
		debounce: NewDebouncer(debounceWindow),
		state:    StateIdle,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Presented returns the current item and draft, if a sale sheet is open.
func (e *Engine) Presented() (*domain.PresentedSale, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.item == nil || e.draft == nil {
		return nil, false
	}
	return &domain.PresentedSale{Item: *e.item, Draft: domain.ViewOfDraft(*e.draft)}, true
}

// ResolveScan handles the camera path: payloads that are not item codes
// and rapid re-detections of the same code are ignored silently, as is a
// scan arriving while a sale sheet is already open.
func (e *Engine) ResolveScan(ctx context.Context, payload string, now time.Time) (*domain.PresentedSale, error) {
	resolved, ok := ResolveCode(payload)
	if !ok {
		return nil, nil
	}
	if !e.debounce.ShouldProcess(resolved, now) {
		return nil, nil
	}
	e.debounce.Record(resolved, now)

	presented, err := e.resolve(ctx, resolved)
	if errors.Is(err, ErrSaleInProgress) {
		return nil, nil
	}
	return presented, err
}

// ResolveManual handles deliberate code entry. It bypasses the debouncer
// entirely and, unlike the scan path, reports a busy engine as an error.
func (e *Engine) ResolveManual(ctx context.Context, rawCode string) (*domain.PresentedSale, error) {
	entered := strings.TrimSpace(rawCode)
	if entered == "" {
		return nil, ErrItemNotFound
	}
	if resolved, ok := ResolveCode(entered); ok {
		entered = resolved
	}
	return e.resolve(ctx, entered)
}

func (e *Engine) resolve(ctx context.Context, code string) (*domain.PresentedSale, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle && e.state != StateFailed {
		return nil, ErrSaleInProgress
	}

	e.state = StateItemResolving
	item, err := e.catalog.FindActiveItemByCode(ctx, e.scope, code)
	if err != nil {
		// Recoverable: the session survives, the user retries with
		// another code.
		e.state = StateFailed
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	e.item = item
	e.draft = &domain.SaleDraft{
		ItemID:    item.ID,
		Quantity:  1,
		UnitPrice: item.SellPrice,
		Payment:   domain.CashPayment{},
	}
	e.state = StateItemPresented

	return &domain.PresentedSale{Item: *e.item, Draft: domain.ViewOfDraft(*e.draft)}, nil
}

func (e *Engine) SetQuantity(qty int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateItemPresented {
		return ErrNoDraft
	}
	if qty < 1 {
		return &FieldError{Field: "quantity", Reason: InvalidQuantity}
	}
	e.draft.Quantity = qty
	return nil
}

func (e *Engine) SetUnitPrice(price int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateItemPresented {
		return ErrNoDraft
	}
	e.draft.UnitPrice = price
	return nil
}

func (e *Engine) SetPayment(p domain.Payment) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateItemPresented {
		return ErrNoDraft
	}
	if p == nil {
		p = domain.CashPayment{}
	}
	e.draft.Payment = p
	return nil
}

// Confirm runs the full validation pass against current draft values and
// a fresh read of the item, then either persists the sale, raises the
// low-stock gate, or returns a field-level error with the draft intact.
func (e *Engine) Confirm(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateItemPresented {
		if e.draft == nil {
			return Result{}, ErrNoDraft
		}
		return Result{}, ErrInvalidState
	}

	e.state = StateValidating
	if e.draft.Quantity < 1 {
		e.state = StateItemPresented
		return Result{}, &FieldError{Field: "quantity", Reason: InvalidQuantity}
	}

	// Item state can change between presentation and confirm; validate
	// against a fresh read rather than the snapshot taken at resolve time.
	item, err := e.catalog.GetItemByID(ctx, e.scope, e.draft.ItemID)
	if err != nil {
		e.state = StateItemPresented
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrItemNotFound
		}
		return Result{}, err
	}
	e.item = item

	if err := ValidatePrice(*item, e.draft.UnitPrice); err != nil {
		e.state = StateItemPresented
		return Result{}, err
	}
	payment, err := ValidatePayment(e.draft.Payment)
	if err != nil {
		e.state = StateItemPresented
		return Result{}, err
	}

	if e.draft.Quantity > item.QuantityInStock {
		e.state = StateLowStockConfirming
		return Result{
			State:    StateLowStockConfirming,
			LowStock: &LowStockGate{InStock: item.QuantityInStock, Requested: e.draft.Quantity},
		}, nil
	}

	return e.finalize(ctx, payment)
}

// AcknowledgeLowStock proceeds with a sale the operator explicitly
// accepted despite insufficient stock.
func (e *Engine) AcknowledgeLowStock(ctx context.Context) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateLowStockConfirming {
		return Result{}, ErrInvalidState
	}

	payment, err := ValidatePayment(e.draft.Payment)
	if err != nil {
		e.state = StateItemPresented
		return Result{}, err
	}
	return e.finalize(ctx, payment)
}

func (e *Engine) DeclineLowStock() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateLowStockConfirming {
		return ErrInvalidState
	}
	e.state = StateItemPresented
	return nil
}

// Cancel discards the draft with no side effects. Once Persisting begins
// the operation runs to completion or failure and cannot be cancelled.
func (e *Engine) Cancel() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateItemPresented, StateLowStockConfirming, StateFailed:
		e.item = nil
		e.draft = nil
		e.state = StateIdle
		return nil
	case StateIdle:
		return ErrNoDraft
	default:
		return ErrInvalidState
	}
}

// finalize persists the transaction and then adjusts stock, in that order.
// The ordering is load-bearing: a sale record must never be contingent on
// stock arithmetic succeeding. Callers hold e.mu.
func (e *Engine) finalize(ctx context.Context, payment NormalizedPayment) (Result, error) {
	draft := *e.draft
	item := *e.item

	e.state = StatePersisting
	tx := domain.Transaction{
		Scope:           e.scope,
		ItemID:          item.ID,
		ItemName:        item.Name,
		Type:            domain.TransactionTypeSale,
		Quantity:        draft.Quantity,
		UnitPrice:       draft.UnitPrice,
		Total:           draft.Total(),
		PaymentMethod:   payment.Method,
		PaymentStatus:   payment.Status,
		TransactionCode: payment.Code,
		Phone:           payment.Phone,
		Note:            payment.Note,
		CreatedAt:       time.Now().UTC(),
	}

	id, err := e.ledger.InsertSaleTransaction(ctx, tx)
	if err != nil {
		// Draft preserved: the user retries without re-entering anything.
		e.state = StateItemPresented
		return Result{}, &PersistError{Err: err}
	}
	tx.ID = id

	result := Result{
		State:       StateComplete,
		Transaction: &tx,
		Notice:      payment.Notice,
	}

	e.state = StateStockAdjusting
	remaining, adjErr := e.catalog.DecrementStock(ctx, e.scope, item.ID, draft.Quantity)
	if adjErr != nil {
		// The transaction is already durable; never roll it back over a
		// failed stock write. Reconciliation picks this up out-of-band.
		warn := &StockAdjustError{Err: adjErr}
		log.Printf("[sale] WARN: %v (tx=%s item=%s)", warn, tx.ID, item.ID)
		result.Warning = warn.Error()
		result.RemainingStock = -1
	} else {
		result.RemainingStock = remaining
	}

	e.state = StateComplete
	e.emit(ctx, tx, item, remaining, adjErr == nil)

	// Complete is terminal for this draft; reset for the next scan.
	e.item = nil
	e.draft = nil
	e.state = StateIdle

	return result, nil
}

func (e *Engine) emit(ctx context.Context, tx domain.Transaction, item domain.Item, remaining int, stockKnown bool) {
	now := time.Now().UTC()
	events := []domain.Event{{
		Kind:     domain.EventSaleCompleted,
		Scope:    e.scope,
		ItemID:   item.ID,
		ItemName: item.Name,
		Quantity: tx.Quantity,
		Total:    tx.Total,
		At:       now,
	}}
	if stockKnown && remaining <= item.ReorderPoint {
		events = append(events, domain.Event{
			Kind:           domain.EventLowStockAlert,
			Scope:          e.scope,
			ItemID:         item.ID,
			ItemName:       item.Name,
			RemainingStock: remaining,
			At:             now,
		})
	}

	for _, event := range events {
		if err := e.sink.Publish(ctx, event); err != nil {
			log.Printf("[sale] WARN: failed to publish %s event: %v", event.Kind, err)
		}
	}
}
