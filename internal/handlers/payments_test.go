package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/services"
)

func paymentRouter(payments services.PaymentService) chi.Router {
	handler := NewPaymentHandlers(payments)
	router := chi.NewRouter()
	router.Route("/payments", handler.Routes)
	return router
}

func TestInitiatePaymentEndpoint(t *testing.T) {
	var captured services.InitiatePaymentCommand
	payments := &stubPaymentService{
		initiateFn: func(_ context.Context, cmd services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			captured = cmd
			return services.PaymentInitiation{
				Transaction:  sampleTransaction(),
				ClientSecret: "pi_123_secret",
				NextAction:   "confirm_card",
			}, nil
		},
	}
	router := paymentRouter(payments)

	body := []byte(`{"order_id":"ord_1","method":"Card_Gateway","email":"jordan@example.com"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader(body))
	rr := serveAs(router, req, customer)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_1" || captured.Method != domain.PaymentMethodCardGateway {
		t.Fatalf("command = %+v", captured)
	}

	var resp struct {
		Transaction struct {
			ID     string `json:"id"`
			Amount string `json:"amount"`
		} `json:"transaction"`
		ClientSecret string `json:"client_secret"`
		NextAction   string `json:"next_action"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Transaction.ID != "CRD-12345678-ABCD" || resp.Transaction.Amount != "14.90" {
		t.Fatalf("transaction = %+v", resp.Transaction)
	}
	if resp.ClientSecret != "pi_123_secret" || resp.NextAction != "confirm_card" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestInitiatePaymentInvalidStateConflict(t *testing.T) {
	payments := &stubPaymentService{
		initiateFn: func(context.Context, services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			return services.PaymentInitiation{}, services.ErrPaymentInvalidState
		},
	}
	router := paymentRouter(payments)
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader([]byte(`{"order_id":"ord_1","method":"card_gateway"}`)))
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestInitiatePaymentProviderFailureBadGateway(t *testing.T) {
	payments := &stubPaymentService{
		initiateFn: func(context.Context, services.InitiatePaymentCommand) (services.PaymentInitiation, error) {
			return services.PaymentInitiation{}, services.ErrPaymentProviderFailure
		},
	}
	router := paymentRouter(payments)
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader([]byte(`{"order_id":"ord_1","method":"card_gateway"}`)))
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestInitiatePaymentRequiresAuth(t *testing.T) {
	router := paymentRouter(&stubPaymentService{})
	req := httptest.NewRequest(http.MethodPost, "/payments", bytes.NewReader([]byte(`{}`)))
	rr := serveAs(router, req, domain.Actor{})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestGetTransactionEndpoint(t *testing.T) {
	payments := &stubPaymentService{
		getFn: func(_ context.Context, _ domain.Actor, transactionID string) (domain.Transaction, error) {
			if transactionID != "CRD-12345678-ABCD" {
				return domain.Transaction{}, services.ErrPaymentNotFound
			}
			return sampleTransaction(), nil
		},
	}
	router := paymentRouter(payments)

	req := httptest.NewRequest(http.MethodGet, "/payments/CRD-12345678-ABCD", nil)
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Transaction struct {
			Details map[string]string `json:"details"`
		} `json:"transaction"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Transaction.Details["card_last4"] != "4242" {
		t.Fatalf("details = %+v", resp.Transaction.Details)
	}
	if _, leaked := resp.Transaction.Details["intent_id"]; leaked {
		t.Fatal("gateway intent id must not be exposed")
	}
}

func TestListOrderTransactionsRequiresOrderID(t *testing.T) {
	router := paymentRouter(&stubPaymentService{})
	req := httptest.NewRequest(http.MethodGet, "/payments", nil)
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestSubmitProofEndpoint(t *testing.T) {
	var captured services.ManualProofCommand
	payments := &stubPaymentService{
		proofFn: func(_ context.Context, cmd services.ManualProofCommand) (domain.Transaction, error) {
			captured = cmd
			tx := sampleTransaction()
			tx.Status = domain.TransactionStatusPending
			return tx, nil
		},
	}
	router := paymentRouter(payments)

	body := []byte(`{"reference":"FT26082412345","receipt_number":"RCPT-9"}`)
	req := httptest.NewRequest(http.MethodPost, "/payments/BNK-12345678-ABCD:submit-proof", bytes.NewReader(body))
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rr.Code, rr.Body.String())
	}
	if captured.TransactionID != "BNK-12345678-ABCD" || captured.Reference != "FT26082412345" {
		t.Fatalf("command = %+v", captured)
	}
}

func TestSubmitProofExpiredConflict(t *testing.T) {
	payments := &stubPaymentService{
		proofFn: func(context.Context, services.ManualProofCommand) (domain.Transaction, error) {
			return domain.Transaction{}, services.ErrPaymentExpired
		},
	}
	router := paymentRouter(payments)
	req := httptest.NewRequest(http.MethodPost, "/payments/BNK-12345678-ABCD:submit-proof", bytes.NewReader([]byte(`{"reference":"x"}`)))
	rr := serveAs(router, req, customer)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d", rr.Code)
	}
}
