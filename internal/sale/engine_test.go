package sale

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/macharian8/stocksnap/internal/domain"
	"github.com/macharian8/stocksnap/internal/store"
	"github.com/macharian8/stocksnap/internal/store/memory"
)

const (
	testScope = "test-shop"
	milkCode  = "SS-2601-MLK-00001"
	sugarAlt  = "SGR1KG"
)

type recordingSink struct {
	events []domain.Event
}

func (s *recordingSink) Publish(_ context.Context, event domain.Event) error {
	s.events = append(s.events, event)
	return nil
}

type countingCatalog struct {
	store.CatalogStore
	decrements int
}

func (c *countingCatalog) DecrementStock(ctx context.Context, scope string, itemID string, qty int) (int, error) {
	c.decrements++
	return c.CatalogStore.DecrementStock(ctx, scope, itemID, qty)
}

type failingAdjustCatalog struct {
	store.CatalogStore
}

func (failingAdjustCatalog) DecrementStock(_ context.Context, _ string, _ string, _ int) (int, error) {
	return 0, errors.New("connection reset")
}

type flakyLedger struct {
	store.LedgerStore
	failures int
}

func (l *flakyLedger) InsertSaleTransaction(ctx context.Context, tx domain.Transaction) (string, error) {
	if l.failures > 0 {
		l.failures--
		return "", errors.New("insert timeout")
	}
	return l.LedgerStore.InsertSaleTransaction(ctx, tx)
}

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *recordingSink) {
	t.Helper()
	mem := memory.NewSeeded(testScope)
	sink := &recordingSink{}
	return NewEngine(mem, mem, sink, testScope, 2*time.Second), mem, sink
}

func presentItem(t *testing.T, e *Engine, code string) *domain.PresentedSale {
	t.Helper()
	presented, err := e.ResolveManual(context.Background(), code)
	if err != nil {
		t.Fatalf("resolve %q: %v", code, err)
	}
	if presented == nil {
		t.Fatalf("expected a presented sale for %q", code)
	}
	return presented
}

func TestResolveManualPresentsItemWithDefaults(t *testing.T) {
	e, _, _ := newTestEngine(t)

	presented := presentItem(t, e, milkCode)
	if presented.Item.Code != milkCode {
		t.Fatalf("unexpected item %q", presented.Item.Code)
	}
	if presented.Draft.Quantity != 1 {
		t.Fatalf("draft quantity should default to 1, got %d", presented.Draft.Quantity)
	}
	if presented.Draft.UnitPrice != presented.Item.SellPrice {
		t.Fatalf("draft price should default to the sell price")
	}
	if presented.Draft.PaymentMethod != string(domain.PayCash) {
		t.Fatalf("draft payment should default to cash, got %s", presented.Draft.PaymentMethod)
	}
	if got := e.State(); got != StateItemPresented {
		t.Fatalf("expected item_presented, got %s", got)
	}
}

func TestResolveManualMatchesLegacyCode(t *testing.T) {
	e, _, _ := newTestEngine(t)

	presented := presentItem(t, e, sugarAlt)
	if presented.Item.Name != "Sugar 1kg" {
		t.Fatalf("legacy code should find the sugar item, got %q", presented.Item.Name)
	}
}

func TestResolveManualAcceptsLegacyURIPayload(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// Old labels encode the pre-migration code inside a URI; both paths
	// must land on the same item.
	presented := presentItem(t, e, "legacy-app://item/"+sugarAlt)
	if presented.Item.Name != "Sugar 1kg" {
		t.Fatalf("URI-wrapped legacy code should find the sugar item, got %q", presented.Item.Name)
	}
}

func TestResolveManualUnknownCodeIsRecoverable(t *testing.T) {
	e, _, _ := newTestEngine(t)

	_, err := e.ResolveManual(context.Background(), "SS-9999-ZZZ-99999")
	if !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
	if got := e.State(); got != StateFailed {
		t.Fatalf("expected failed state, got %s", got)
	}

	// The session survives a failed lookup; the next entry proceeds.
	presentItem(t, e, milkCode)
}

func TestScanIgnoresNonCodePayloads(t *testing.T) {
	e, _, _ := newTestEngine(t)

	presented, err := e.ResolveScan(context.Background(), "https://example.com/promo", time.Now())
	if err != nil {
		t.Fatalf("non-code payloads must not error: %v", err)
	}
	if presented != nil {
		t.Fatalf("non-code payloads must not open a sale")
	}
	if got := e.State(); got != StateIdle {
		t.Fatalf("engine must stay idle, got %s", got)
	}
}

func TestScanDebounceSuppressesRapidRepeat(t *testing.T) {
	e, _, _ := newTestEngine(t)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	first, err := e.ResolveScan(context.Background(), milkCode, base)
	if err != nil || first == nil {
		t.Fatalf("first scan should present: %v", err)
	}
	if err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	repeat, err := e.ResolveScan(context.Background(), milkCode, base.Add(300*time.Millisecond))
	if err != nil {
		t.Fatalf("suppressed repeat must not error: %v", err)
	}
	if repeat != nil {
		t.Fatalf("repeat scan inside the window must be suppressed")
	}

	later, err := e.ResolveScan(context.Background(), milkCode, base.Add(3*time.Second))
	if err != nil || later == nil {
		t.Fatalf("scan after the window should present: %v", err)
	}
}

func TestScanWhileSheetOpenIsSilentlyIgnored(t *testing.T) {
	e, _, _ := newTestEngine(t)
	presentItem(t, e, milkCode)

	presented, err := e.ResolveScan(context.Background(), "SS-2601-BRD-00002", time.Now())
	if err != nil {
		t.Fatalf("scan while busy must not error: %v", err)
	}
	if presented != nil {
		t.Fatalf("scan while busy must not replace the open sale")
	}
}

func TestManualEntryWhileSheetOpenErrors(t *testing.T) {
	e, _, _ := newTestEngine(t)
	presentItem(t, e, milkCode)

	_, err := e.ResolveManual(context.Background(), "SS-2601-BRD-00002")
	if !errors.Is(err, ErrSaleInProgress) {
		t.Fatalf("expected ErrSaleInProgress, got %v", err)
	}
}

func TestConfirmCashSaleCompletes(t *testing.T) {
	e, mem, sink := newTestEngine(t)
	presented := presentItem(t, e, milkCode)
	if err := e.SetQuantity(2); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.State != StateComplete {
		t.Fatalf("expected complete, got %s", result.State)
	}
	if result.Transaction == nil || result.Transaction.Total != 13000 {
		t.Fatalf("expected total 13000, got %+v", result.Transaction)
	}
	if result.RemainingStock != 46 {
		t.Fatalf("expected remaining 46, got %d", result.RemainingStock)
	}
	if got := e.State(); got != StateIdle {
		t.Fatalf("engine must return to idle after completion, got %s", got)
	}

	item, err := mem.GetItemByID(context.Background(), testScope, presented.Item.ID)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if item.QuantityInStock != 46 || item.QuantitySold != 2 {
		t.Fatalf("stock not adjusted: in=%d sold=%d", item.QuantityInStock, item.QuantitySold)
	}

	if len(sink.events) != 1 || sink.events[0].Kind != domain.EventSaleCompleted {
		t.Fatalf("expected a single sale_completed event, got %+v", sink.events)
	}
}

func TestConfirmBlocksPriceOutsideBoundsAndKeepsDraft(t *testing.T) {
	e, _, _ := newTestEngine(t)
	presentItem(t, e, milkCode)
	if err := e.SetUnitPrice(5999); err != nil {
		t.Fatalf("set price: %v", err)
	}

	_, err := e.Confirm(context.Background())
	var priceErr *PriceError
	if !errors.As(err, &priceErr) || priceErr.Reason != BelowFloor {
		t.Fatalf("expected below_floor price error, got %v", err)
	}

	// Draft intact; correcting the price lets the sale go through.
	if _, ok := e.Presented(); !ok {
		t.Fatalf("draft must survive a validation failure")
	}
	if err := e.SetUnitPrice(8000); err != nil {
		t.Fatalf("set price: %v", err)
	}
	_, err = e.Confirm(context.Background())
	if !errors.As(err, &priceErr) || priceErr.Reason != AboveCeiling {
		t.Fatalf("expected above_ceiling price error, got %v", err)
	}

	if err := e.SetUnitPrice(7000); err != nil {
		t.Fatalf("set price: %v", err)
	}
	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm after correction: %v", err)
	}
	if result.Transaction.UnitPrice != 7000 {
		t.Fatalf("expected corrected price persisted, got %d", result.Transaction.UnitPrice)
	}
}

func TestLowStockGateDeclineAndAcknowledge(t *testing.T) {
	e, _, _ := newTestEngine(t)
	presentItem(t, e, milkCode)
	if err := e.SetQuantity(100); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.State != StateLowStockConfirming || result.LowStock == nil {
		t.Fatalf("expected low stock gate, got %+v", result)
	}
	if result.LowStock.InStock != 48 || result.LowStock.Requested != 100 {
		t.Fatalf("unexpected gate %+v", result.LowStock)
	}

	// Decline returns to the editable sheet with nothing persisted.
	if err := e.DeclineLowStock(); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if got := e.State(); got != StateItemPresented {
		t.Fatalf("expected item_presented after decline, got %s", got)
	}

	// Confirm again, then acknowledge: stock floors at zero.
	if _, err := e.Confirm(context.Background()); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}
	final, err := e.AcknowledgeLowStock(context.Background())
	if err != nil {
		t.Fatalf("acknowledge: %v", err)
	}
	if final.State != StateComplete {
		t.Fatalf("expected complete, got %s", final.State)
	}
	if final.RemainingStock != 0 {
		t.Fatalf("stock must floor at zero, got %d", final.RemainingStock)
	}
}

func TestLedgerFailureKeepsDraftAndSkipsStockAdjust(t *testing.T) {
	mem := memory.NewSeeded(testScope)
	catalog := &countingCatalog{CatalogStore: mem}
	ledger := &flakyLedger{LedgerStore: mem, failures: 1}
	e := NewEngine(catalog, ledger, nil, testScope, 2*time.Second)

	presentItem(t, e, milkCode)

	_, err := e.Confirm(context.Background())
	var persistErr *PersistError
	if !errors.As(err, &persistErr) {
		t.Fatalf("expected PersistError, got %v", err)
	}
	if catalog.decrements != 0 {
		t.Fatalf("stock must never be touched when the insert fails, got %d calls", catalog.decrements)
	}
	if _, ok := e.Presented(); !ok {
		t.Fatalf("draft must be preserved for retry")
	}
	if got := e.State(); got != StateItemPresented {
		t.Fatalf("expected item_presented for retry, got %s", got)
	}

	// Retry succeeds without re-entering anything.
	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("retry confirm: %v", err)
	}
	if result.State != StateComplete {
		t.Fatalf("expected complete on retry, got %s", result.State)
	}
	if catalog.decrements != 1 {
		t.Fatalf("expected exactly one decrement after retry, got %d", catalog.decrements)
	}
}

func TestStockAdjustFailureWarnsButKeepsSale(t *testing.T) {
	mem := memory.NewSeeded(testScope)
	e := NewEngine(failingAdjustCatalog{CatalogStore: mem}, mem, nil, testScope, 2*time.Second)

	presentItem(t, e, milkCode)

	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("a failed stock adjust must not fail the sale: %v", err)
	}
	if result.Transaction == nil {
		t.Fatalf("transaction must be recorded")
	}
	if result.Warning == "" {
		t.Fatalf("expected a stock adjust warning")
	}
	if result.RemainingStock != -1 {
		t.Fatalf("remaining stock must be unknown (-1), got %d", result.RemainingStock)
	}

	// The ledger record is durable despite the failed adjustment.
	txs, err := mem.ListTransactionsByDay(context.Background(), testScope, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected one durable transaction, got %d", len(txs))
	}
}

func TestPushPaymentRecordedAsCashWithNotice(t *testing.T) {
	e, _, _ := newTestEngine(t)
	presentItem(t, e, milkCode)
	if err := e.SetPayment(domain.PushPayment{Phone: "0712345678"}); err != nil {
		t.Fatalf("set payment: %v", err)
	}

	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if result.Transaction.PaymentMethod != domain.PayCash {
		t.Fatalf("push sale must be recorded as cash, got %s", result.Transaction.PaymentMethod)
	}
	if result.Transaction.Phone != "+254712345678" {
		t.Fatalf("expected normalized phone on the record, got %q", result.Transaction.Phone)
	}
	if result.Notice != PushFallbackNotice {
		t.Fatalf("expected operator notice, got %q", result.Notice)
	}
}

func TestCodePaymentPersistedAsConfirmed(t *testing.T) {
	e, _, _ := newTestEngine(t)
	presentItem(t, e, milkCode)
	if err := e.SetPayment(domain.CodePayment{Code: " qax12ab34c "}); err != nil {
		t.Fatalf("set payment: %v", err)
	}

	result, err := e.Confirm(context.Background())
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	tx := result.Transaction
	if tx.PaymentMethod != domain.PayCode || tx.PaymentStatus != domain.PaymentConfirmed {
		t.Fatalf("unexpected payment fields %s/%s", tx.PaymentMethod, tx.PaymentStatus)
	}
	if tx.TransactionCode != "QAX12AB34C" {
		t.Fatalf("expected normalized code, got %q", tx.TransactionCode)
	}
}

func TestLowStockAlertEmittedAtReorderPoint(t *testing.T) {
	e, _, sink := newTestEngine(t)
	presentItem(t, e, milkCode)
	// 48 in stock, reorder point 12: selling 36 leaves exactly 12.
	if err := e.SetQuantity(36); err != nil {
		t.Fatalf("set quantity: %v", err)
	}

	if _, err := e.Confirm(context.Background()); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	var alert *domain.Event
	for i := range sink.events {
		if sink.events[i].Kind == domain.EventLowStockAlert {
			alert = &sink.events[i]
		}
	}
	if alert == nil {
		t.Fatalf("expected a low_stock_alert event, got %+v", sink.events)
	}
	if alert.RemainingStock != 12 {
		t.Fatalf("expected remaining 12 in alert, got %d", alert.RemainingStock)
	}
}

func TestCancelDiscardsDraft(t *testing.T) {
	e, mem, _ := newTestEngine(t)

	if err := e.Cancel(); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("cancel with no draft must report ErrNoDraft, got %v", err)
	}

	presentItem(t, e, milkCode)
	if err := e.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := e.State(); got != StateIdle {
		t.Fatalf("expected idle after cancel, got %s", got)
	}

	txs, err := mem.ListTransactionsByDay(context.Background(), testScope, time.Now().UTC(), 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("cancel must have no side effects, found %d transactions", len(txs))
	}
}

func TestDraftEditsRejectedOutsidePresentedState(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if err := e.SetQuantity(2); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}
	if err := e.SetUnitPrice(7000); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}

	presentItem(t, e, milkCode)
	if err := e.SetQuantity(0); err == nil {
		t.Fatalf("zero quantity must be rejected")
	}
}
