package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/payments"
	"github.com/supplyvend/api/internal/repositories"
)

const (
	refundIDPrefix = "ref_"

	verificationMethodWebhook = "webhook"
	verificationMethodManual  = "manual"

	webhookActor = "webhook"
)

var (
	// ErrPaymentInvalidInput signals the caller provided invalid data.
	ErrPaymentInvalidInput = errors.New("payment: invalid input")
	// ErrPaymentNotFound indicates the transaction could not be located.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrPaymentForbidden indicates the actor may not act on this transaction.
	ErrPaymentForbidden = errors.New("payment: forbidden")
	// ErrPaymentInvalidState indicates the transaction or order is in a state
	// that does not admit the operation.
	ErrPaymentInvalidState = errors.New("payment: invalid state")
	// ErrPaymentExpired indicates the attempt's payment window has closed.
	ErrPaymentExpired = errors.New("payment: attempt expired")
	// ErrPaymentRefundExceedsRemaining indicates the refund amount exceeds
	// the refundable balance.
	ErrPaymentRefundExceedsRemaining = errors.New("payment: refund exceeds remaining amount")
	// ErrPaymentProviderFailure indicates the provider rejected or never
	// received the dispatch. The attempt stays on record as failed.
	ErrPaymentProviderFailure = errors.New("payment: provider dispatch failed")
)

// systemActor stamps order transitions driven by reconciliation rather than
// a person.
var systemActor = domain.Actor{UserID: "system", Role: domain.RoleAdmin}

// payableOrderStatuses are the order states that admit a new payment attempt.
var payableOrderStatuses = []domain.OrderStatus{
	domain.OrderStatusPending,
	domain.OrderStatusPaymentPending,
	domain.OrderStatusPaymentFailed,
}

// PaymentGateway is the slice of the payments manager the service uses.
type PaymentGateway interface {
	Initiate(ctx context.Context, method domain.PaymentMethod, req payments.InitiationRequest) (payments.InitiationResult, error)
	ParseWebhook(ctx context.Context, slug string, body []byte, signature string) (payments.WebhookEvent, error)
	Refund(ctx context.Context, method domain.PaymentMethod, req payments.RefundRequest) error
}

// WebhookDeduper remembers processed webhook event ids.
type WebhookDeduper interface {
	Seen(ctx context.Context, key string, now time.Time, ttl time.Duration) (bool, error)
}

// PaymentServiceDeps bundles collaborators for the payment service.
type PaymentServiceDeps struct {
	Transactions  repositories.TransactionRepository
	Orders        OrderService
	Gateway       PaymentGateway
	Numbering     NumberingService
	Dedup         WebhookDeduper
	DedupTTL      time.Duration
	PaymentExpiry time.Duration
	Clock         func() time.Time
	IDGenerator   func() string
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type paymentService struct {
	transactions repositories.TransactionRepository
	orders       OrderService
	gateway      PaymentGateway
	numbering    NumberingService
	dedup        WebhookDeduper
	dedupTTL     time.Duration
	expiry       time.Duration
	clock        func() time.Time
	newID        func() string
	logger       func(context.Context, string, map[string]any)
}

// NewPaymentService wires dependencies into a PaymentService.
func NewPaymentService(deps PaymentServiceDeps) (PaymentService, error) {
	if deps.Transactions == nil {
		return nil, errors.New("payment service: transaction repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("payment service: order service is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("payment service: payment gateway is required")
	}
	if deps.Numbering == nil {
		return nil, errors.New("payment service: numbering service is required")
	}

	expiry := deps.PaymentExpiry
	if expiry <= 0 {
		expiry = 90 * time.Minute
	}
	dedupTTL := deps.DedupTTL
	if dedupTTL <= 0 {
		dedupTTL = 24 * time.Hour
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &paymentService{
		transactions: deps.Transactions,
		orders:       deps.Orders,
		gateway:      deps.Gateway,
		numbering:    deps.Numbering,
		dedup:        deps.Dedup,
		dedupTTL:     dedupTTL,
		expiry:       expiry,
		clock:        func() time.Time { return clock().UTC() },
		newID:        idGen,
		logger:       logger,
	}, nil
}

// InitiatePayment opens a payment attempt for an order that is still
// payable, persists the transaction, and mirrors the attempt on the order.
func (s *paymentService) InitiatePayment(ctx context.Context, cmd InitiatePaymentCommand) (PaymentInitiation, error) {
	if !cmd.Method.Valid() {
		return PaymentInitiation{}, fmt.Errorf("%w: unsupported payment method %q", ErrPaymentInvalidInput, cmd.Method)
	}

	order, err := s.orders.GetOrder(ctx, cmd.Actor, cmd.OrderID)
	if err != nil {
		return PaymentInitiation{}, s.mapOrderError(err)
	}
	if !statusIn(order.Status, payableOrderStatuses) {
		return PaymentInitiation{}, fmt.Errorf("%w: order %s is %s", ErrPaymentInvalidState, order.ID, order.Status)
	}

	now := s.clock()
	txID, err := s.numbering.NextTransactionID(cmd.Method, now)
	if err != nil {
		return PaymentInitiation{}, fmt.Errorf("%w: %v", ErrPaymentInvalidInput, err)
	}

	expiresAt := now.Add(s.expiry)
	tx := domain.Transaction{
		ID:       txID,
		OrderID:  order.ID,
		UserID:   order.UserID,
		Amount:   order.Totals.Total,
		Currency: order.Currency,
		Method:   cmd.Method,
		Status:   domain.TransactionStatusInitiated,
		StatusHistory: []domain.TransactionStatusEntry{{
			Status:     domain.TransactionStatusInitiated,
			Note:       "Payment initiated",
			Actor:      cmd.Actor.UserID,
			OccurredAt: now,
		}},
		TotalRefunded: decimal.Zero,
		ExpiresAt:     expiresAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.transactions.Insert(ctx, tx); err != nil {
		return PaymentInitiation{}, s.mapRepositoryError(err)
	}

	if _, err := s.orders.RecordPaymentAttempt(ctx, RecordPaymentAttemptCommand{
		OrderID: order.ID,
		ActorID: cmd.Actor.UserID,
		Record: domain.PaymentRecord{
			Method:        cmd.Method,
			Amount:        tx.Amount,
			Currency:      tx.Currency,
			Status:        domain.PaymentRecordStatusPending,
			TransactionID: tx.ID,
		},
	}); err != nil {
		s.logger(ctx, "payment.order.record.failed", map[string]any{
			"orderId":       order.ID,
			"transactionId": tx.ID,
			"error":         err.Error(),
		})
	}

	// The attempt is on record before the provider is involved, so a
	// dispatch failure leaves an auditable failed transaction and moves
	// the order to payment_failed.
	result, err := s.gateway.Initiate(ctx, cmd.Method, payments.InitiationRequest{
		TransactionID: txID,
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		Amount:        order.Totals.Total,
		Currency:      order.Currency,
		Email:         strings.TrimSpace(cmd.Email),
		PhoneNumber:   strings.TrimSpace(cmd.PhoneNumber),
		ReturnURL:     strings.TrimSpace(cmd.ReturnURL),
		ExpiresAt:     expiresAt,
	})
	if err != nil {
		s.applyTransactionStatus(&tx, domain.TransactionStatusFailed, "Provider dispatch failed", cmd.Actor.UserID, now)
		tx.UpdatedAt = now
		if updateErr := s.transactions.Update(ctx, tx); updateErr != nil {
			s.logger(ctx, "payment.initiate.record.failed", map[string]any{
				"transactionId": tx.ID,
				"error":         updateErr.Error(),
			})
		}
		s.syncOrderAfterPayment(ctx, tx, domain.TransactionStatusFailed)
		return PaymentInitiation{}, fmt.Errorf("%w: %v", ErrPaymentProviderFailure, err)
	}

	tx.Details = result.Details
	tx.UpdatedAt = now
	if err := s.transactions.Update(ctx, tx); err != nil {
		return PaymentInitiation{}, s.mapRepositoryError(err)
	}

	return PaymentInitiation{
		Transaction:  tx,
		ClientSecret: result.ClientSecret,
		RedirectURL:  result.RedirectURL,
		Instructions: result.Instructions,
		NextAction:   result.NextAction,
	}, nil
}

// HandleWebhook reconciles one provider notification. Business rejections
// (duplicates, unmatched references, illegal transitions) are logged and
// swallowed so the provider is always acknowledged; only persistence
// failures surface.
func (s *paymentService) HandleWebhook(ctx context.Context, cmd WebhookCommand) error {
	event, err := s.gateway.ParseWebhook(ctx, cmd.ProviderSlug, cmd.Body, cmd.Signature)
	if err != nil {
		s.logger(ctx, "webhook.parse.failed", map[string]any{
			"provider": cmd.ProviderSlug,
			"sourceIp": cmd.SourceIP,
			"error":    err.Error(),
		})
		return nil
	}

	now := s.clock()

	if s.dedup != nil && strings.TrimSpace(event.EventID) != "" {
		seen, err := s.dedup.Seen(ctx, dedupKey(event.Provider, event.EventID), now, s.dedupTTL)
		if err != nil {
			return fmt.Errorf("payment: webhook dedup: %w", err)
		}
		if seen {
			s.logger(ctx, "webhook.duplicate", map[string]any{
				"provider": event.Provider,
				"eventId":  event.EventID,
			})
			return nil
		}
	}

	tx, found, err := s.correlate(ctx, event)
	if err != nil {
		return err
	}
	if !found {
		s.logger(ctx, "webhook.unmatched", map[string]any{
			"provider":          event.Provider,
			"eventId":           event.EventID,
			"transactionId":     event.TransactionID,
			"merchantReference": event.MerchantReference,
			"sourceIp":          cmd.SourceIP,
		})
		return nil
	}

	tx.Webhooks = append(tx.Webhooks, domain.WebhookLogEntry{
		Provider:   event.Provider,
		Event:      event.Event,
		EventID:    event.EventID,
		Payload:    string(cmd.Body),
		SourceIP:   cmd.SourceIP,
		ReceivedAt: now,
	})

	target := event.Status.TransactionStatus()

	// A success that arrives after the window closed still completes the
	// attempt: the money moved. Anything else on an expired attempt expires
	// it instead.
	if tx.Expired(now) && target != domain.TransactionStatusCompleted && !terminalTransaction(tx.Status) {
		target = domain.TransactionStatusExpired
	}

	applied := false
	if tx.Status != target {
		if domain.CanTransitionTransaction(tx.Status, target) {
			note := event.Event
			if event.FailureReason != "" {
				note = event.FailureReason
			}
			s.applyTransactionStatus(&tx, target, note, webhookActor, now)
			s.applyReceipt(&tx, event)
			if target == domain.TransactionStatusCompleted {
				tx.Verified = true
				tx.VerificationMethod = verificationMethodWebhook
				tx.VerifiedAt = &now
			}
			applied = true
		} else {
			s.logger(ctx, "webhook.transition.rejected", map[string]any{
				"transactionId": tx.ID,
				"from":          string(tx.Status),
				"to":            string(target),
				"eventId":       event.EventID,
			})
		}
	}

	tx.UpdatedAt = now
	if err := s.transactions.Update(ctx, tx); err != nil {
		return s.mapRepositoryError(err)
	}

	if applied {
		s.syncOrderAfterPayment(ctx, tx, target)
	}
	return nil
}

// SubmitManualProof records the customer's proof of a manual settlement and
// queues the attempt as pending until an administrator verifies it. The
// order is kept in payment_pending while the review is open.
func (s *paymentService) SubmitManualProof(ctx context.Context, cmd ManualProofCommand) (domain.Transaction, error) {
	tx, err := s.loadAuthorized(ctx, cmd.Actor, cmd.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !tx.Method.ManualSettlement() {
		return domain.Transaction{}, fmt.Errorf("%w: method %s does not take manual proof", ErrPaymentInvalidState, tx.Method)
	}
	if !statusInTx(tx.Status, []domain.TransactionStatus{
		domain.TransactionStatusInitiated,
		domain.TransactionStatusPending,
		domain.TransactionStatusProcessing,
	}) {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s is %s", ErrPaymentInvalidState, tx.ID, tx.Status)
	}

	reference := strings.TrimSpace(cmd.Reference)
	if reference == "" {
		return domain.Transaction{}, fmt.Errorf("%w: settlement reference is required", ErrPaymentInvalidInput)
	}

	now := s.clock()
	if tx.Expired(now) {
		s.applyTransactionStatus(&tx, domain.TransactionStatusExpired, "Payment window closed", cmd.Actor.UserID, now)
		tx.UpdatedAt = now
		if err := s.transactions.Update(ctx, tx); err != nil {
			return domain.Transaction{}, s.mapRepositoryError(err)
		}
		return domain.Transaction{}, ErrPaymentExpired
	}

	switch {
	case tx.Details.BankTransfer != nil:
		tx.Details.BankTransfer.SubmittedReference = reference
		tx.Details.BankTransfer.ReceiptNumber = strings.TrimSpace(cmd.ReceiptNumber)
	case tx.Details.WireTransfer != nil:
		tx.Details.WireTransfer.SubmittedReference = reference
		tx.Details.WireTransfer.SenderName = strings.TrimSpace(cmd.SenderName)
	default:
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s has no manual settlement details", ErrPaymentInvalidState, tx.ID)
	}

	if tx.Status != domain.TransactionStatusPending {
		s.applyTransactionStatus(&tx, domain.TransactionStatusPending, "Proof of payment submitted", cmd.Actor.UserID, now)
	} else {
		tx.StatusHistory = append(tx.StatusHistory, domain.TransactionStatusEntry{
			Status:     tx.Status,
			Note:       "Proof of payment resubmitted",
			Actor:      cmd.Actor.UserID,
			OccurredAt: now,
		})
	}
	tx.UpdatedAt = now

	if err := s.transactions.Update(ctx, tx); err != nil {
		return domain.Transaction{}, s.mapRepositoryError(err)
	}
	s.syncOrderAfterPayment(ctx, tx, domain.TransactionStatusPending)
	return tx, nil
}

// VerifyManualPayment records an administrator's settlement decision.
func (s *paymentService) VerifyManualPayment(ctx context.Context, cmd VerifyManualPaymentCommand) (domain.Transaction, error) {
	if !cmd.Actor.IsAdmin() {
		return domain.Transaction{}, ErrPaymentForbidden
	}
	tx, err := s.findTransaction(ctx, cmd.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !tx.Method.ManualSettlement() {
		return domain.Transaction{}, fmt.Errorf("%w: method %s is not manually verified", ErrPaymentInvalidState, tx.Method)
	}
	if !statusInTx(tx.Status, []domain.TransactionStatus{
		domain.TransactionStatusInitiated,
		domain.TransactionStatusPending,
		domain.TransactionStatusProcessing,
	}) {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s is %s", ErrPaymentInvalidState, tx.ID, tx.Status)
	}

	now := s.clock()
	note := strings.TrimSpace(cmd.Note)

	if cmd.Approve {
		if note == "" {
			note = "Settlement verified"
		}
		s.applyTransactionStatus(&tx, domain.TransactionStatusCompleted, note, cmd.Actor.UserID, now)
		tx.Verified = true
		tx.VerificationMethod = verificationMethodManual
		tx.VerifiedBy = cmd.Actor.UserID
		tx.VerifiedAt = &now
	} else {
		if note == "" {
			note = "Settlement rejected"
		}
		s.applyTransactionStatus(&tx, domain.TransactionStatusFailed, note, cmd.Actor.UserID, now)
	}
	tx.UpdatedAt = now

	if err := s.transactions.Update(ctx, tx); err != nil {
		return domain.Transaction{}, s.mapRepositoryError(err)
	}

	if cmd.Approve {
		s.syncOrderAfterPayment(ctx, tx, domain.TransactionStatusCompleted)
	} else {
		s.syncOrderAfterPayment(ctx, tx, domain.TransactionStatusFailed)
	}
	return tx, nil
}

// RefundPayment returns funds against a completed transaction. An empty
// amount refunds the remaining balance.
func (s *paymentService) RefundPayment(ctx context.Context, cmd RefundPaymentCommand) (domain.Transaction, error) {
	if !cmd.Actor.IsAdmin() {
		return domain.Transaction{}, ErrPaymentForbidden
	}
	tx, err := s.findTransaction(ctx, cmd.TransactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !statusInTx(tx.Status, []domain.TransactionStatus{
		domain.TransactionStatusCompleted,
		domain.TransactionStatusPartiallyRefunded,
	}) {
		return domain.Transaction{}, fmt.Errorf("%w: transaction %s is %s", ErrPaymentInvalidState, tx.ID, tx.Status)
	}

	amount := domain.NormalizeAmount(cmd.Amount)
	remaining := tx.RemainingAmount()
	if amount.IsZero() {
		amount = remaining
	}
	if !amount.IsPositive() {
		return domain.Transaction{}, fmt.Errorf("%w: refund amount must be positive", ErrPaymentInvalidInput)
	}
	if amount.GreaterThan(remaining) {
		return domain.Transaction{}, fmt.Errorf("%w: %s remaining, %s requested",
			ErrPaymentRefundExceedsRemaining, remaining.StringFixed(2), amount.StringFixed(2))
	}

	now := s.clock()
	refundID := refundIDPrefix + s.newID()

	err = s.gateway.Refund(ctx, tx.Method, payments.RefundRequest{
		TransactionID:  tx.ID,
		Details:        tx.Details,
		Amount:         amount,
		Currency:       tx.Currency,
		Reason:         strings.TrimSpace(cmd.Reason),
		IdempotencyKey: refundID,
	})
	if err != nil && !errors.Is(err, payments.ErrRefundUnsupported) {
		return domain.Transaction{}, err
	}
	// Manual settlement methods refund out of band; the entry still records
	// the decision.

	// Refund entries start pending; settlement confirmation arrives out of
	// band (provider webhook or manual reconciliation).
	tx.Refunds = append(tx.Refunds, domain.Refund{
		ID:         refundID,
		Amount:     amount,
		Reason:     strings.TrimSpace(cmd.Reason),
		Status:     domain.RefundStatusPending,
		Actor:      cmd.Actor.UserID,
		OccurredAt: now,
	})
	tx.TotalRefunded = domain.NormalizeAmount(tx.TotalRefunded.Add(amount))

	target := domain.TransactionStatusPartiallyRefunded
	if !tx.RemainingAmount().IsPositive() {
		target = domain.TransactionStatusRefunded
	}
	note := fmt.Sprintf("Refunded %s %s", amount.StringFixed(2), tx.Currency)
	s.applyTransactionStatus(&tx, target, note, cmd.Actor.UserID, now)
	tx.UpdatedAt = now

	if err := s.transactions.Update(ctx, tx); err != nil {
		return domain.Transaction{}, s.mapRepositoryError(err)
	}

	if target == domain.TransactionStatusRefunded {
		s.syncOrderAfterPayment(ctx, tx, target)
	}
	return tx, nil
}

func (s *paymentService) GetTransaction(ctx context.Context, actor domain.Actor, transactionID string) (domain.Transaction, error) {
	return s.loadAuthorized(ctx, actor, transactionID)
}

func (s *paymentService) ListOrderTransactions(ctx context.Context, actor domain.Actor, orderID string) ([]domain.Transaction, error) {
	// Loading the order enforces ownership before any transaction is shown.
	order, err := s.orders.GetOrder(ctx, actor, orderID)
	if err != nil {
		return nil, s.mapOrderError(err)
	}
	txs, err := s.transactions.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, s.mapRepositoryError(err)
	}
	return txs, nil
}

func (s *paymentService) correlate(ctx context.Context, event payments.WebhookEvent) (domain.Transaction, bool, error) {
	if id := strings.TrimSpace(event.TransactionID); id != "" {
		tx, err := s.transactions.FindByID(ctx, id)
		if err == nil {
			return tx, true, nil
		}
		if !isNotFound(err) {
			return domain.Transaction{}, false, s.mapRepositoryError(err)
		}
	}
	if ref := strings.TrimSpace(event.MerchantReference); ref != "" {
		tx, err := s.transactions.FindByMerchantReference(ctx, ref)
		if err == nil {
			return tx, true, nil
		}
		if !isNotFound(err) {
			return domain.Transaction{}, false, s.mapRepositoryError(err)
		}
	}
	return domain.Transaction{}, false, nil
}

func (s *paymentService) applyTransactionStatus(tx *domain.Transaction, target domain.TransactionStatus, note, actor string, now time.Time) {
	tx.Status = target
	tx.StatusHistory = append(tx.StatusHistory, domain.TransactionStatusEntry{
		Status:     target,
		Note:       note,
		Actor:      actor,
		OccurredAt: now,
	})
}

func (s *paymentService) applyReceipt(tx *domain.Transaction, event payments.WebhookEvent) {
	receipt := strings.TrimSpace(event.ReceiptNumber)
	if receipt == "" {
		return
	}
	switch {
	case tx.Details.CardGateway != nil:
		tx.Details.CardGateway.ChargeID = receipt
	case tx.Details.MobileMoney != nil:
		tx.Details.MobileMoney.ReceiptNumber = receipt
	case tx.Details.BankTransfer != nil:
		tx.Details.BankTransfer.ReceiptNumber = receipt
	}
}

// syncOrderAfterPayment mirrors a transaction outcome onto the order.
// Failures are logged; the transaction record stays authoritative.
func (s *paymentService) syncOrderAfterPayment(ctx context.Context, tx domain.Transaction, target domain.TransactionStatus) {
	var orderTarget domain.OrderStatus
	switch target {
	case domain.TransactionStatusPending:
		orderTarget = domain.OrderStatusPaymentPending
	case domain.TransactionStatusCompleted:
		orderTarget = domain.OrderStatusPaid
	case domain.TransactionStatusFailed:
		orderTarget = domain.OrderStatusPaymentFailed
	case domain.TransactionStatusRefunded:
		orderTarget = domain.OrderStatusRefunded
	default:
		return
	}

	_, err := s.orders.TransitionStatus(ctx, TransitionOrderCommand{
		Actor:        systemActor,
		OrderID:      tx.OrderID,
		TargetStatus: orderTarget,
		Note:         fmt.Sprintf("Transaction %s %s", tx.ID, target),
	})
	if err != nil {
		s.logger(ctx, "payment.order.sync.failed", map[string]any{
			"orderId":       tx.OrderID,
			"transactionId": tx.ID,
			"target":        string(orderTarget),
			"error":         err.Error(),
		})
	}
}

func (s *paymentService) loadAuthorized(ctx context.Context, actor domain.Actor, transactionID string) (domain.Transaction, error) {
	tx, err := s.findTransaction(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, err
	}
	if !actor.IsAdmin() && (strings.TrimSpace(actor.UserID) == "" || actor.UserID != tx.UserID) {
		return domain.Transaction{}, ErrPaymentForbidden
	}
	return tx, nil
}

func (s *paymentService) findTransaction(ctx context.Context, transactionID string) (domain.Transaction, error) {
	transactionID = strings.TrimSpace(transactionID)
	if transactionID == "" {
		return domain.Transaction{}, fmt.Errorf("%w: transaction id is required", ErrPaymentInvalidInput)
	}
	tx, err := s.transactions.FindByID(ctx, transactionID)
	if err != nil {
		return domain.Transaction{}, s.mapRepositoryError(err)
	}
	return tx, nil
}

func (s *paymentService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("payment: conflict: %w", err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("payment: repository unavailable: %w", err)
		}
	}
	return err
}

func (s *paymentService) mapOrderError(err error) error {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		return fmt.Errorf("%w: %v", ErrPaymentNotFound, err)
	case errors.Is(err, ErrOrderForbidden):
		return ErrPaymentForbidden
	}
	return err
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

func statusIn(status domain.OrderStatus, set []domain.OrderStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

func statusInTx(status domain.TransactionStatus, set []domain.TransactionStatus) bool {
	for _, s := range set {
		if status == s {
			return true
		}
	}
	return false
}

func terminalTransaction(status domain.TransactionStatus) bool {
	switch status {
	case domain.TransactionStatusCompleted,
		domain.TransactionStatusRefunded,
		domain.TransactionStatusPartiallyRefunded,
		domain.TransactionStatusCancelled,
		domain.TransactionStatusExpired:
		return true
	}
	return false
}

func dedupKey(provider, eventID string) string {
	return provider + ":" + eventID
}
