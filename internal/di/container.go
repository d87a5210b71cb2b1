package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/supplyvend/api/internal/domain"
	"github.com/supplyvend/api/internal/handlers"
	"github.com/supplyvend/api/internal/payments"
	"github.com/supplyvend/api/internal/platform/auth"
	"github.com/supplyvend/api/internal/platform/config"
	pfirestore "github.com/supplyvend/api/internal/platform/firestore"
	"github.com/supplyvend/api/internal/platform/idempotency"
	"github.com/supplyvend/api/internal/platform/jobs"
	"github.com/supplyvend/api/internal/platform/observability"
	firestoreRepo "github.com/supplyvend/api/internal/repositories/firestore"
	"github.com/supplyvend/api/internal/services"
)

const (
	webhookRateLimit  = 120
	webhookRateWindow = time.Minute

	readinessTimeout = 1500 * time.Millisecond
)

// Services bundles the service-layer contracts that handlers rely upon.
// Concrete implementations are assembled in NewContainer.
type Services struct {
	Checkout services.CheckoutService
	Orders   services.OrderService
	Payments services.PaymentService
	Stock    services.StockService
	Delivery services.DeliveryService
}

// Container wires repositories, services, payment adapters, and the HTTP
// router for runtime use.
type Container struct {
	Config   config.Config
	Logger   *zap.Logger
	Services Services
	Router   http.Handler

	firestore *pfirestore.Provider
	pubsub    *pubsub.Client
	topic     *pubsub.Topic
}

// NewContainer constructs the runtime dependency graph.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Container{
		Config:    cfg,
		Logger:    logger,
		firestore: pfirestore.NewProvider(cfg.Firestore),
	}

	if _, err := c.firestore.Client(ctx); err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}

	orderRepo, err := firestoreRepo.NewOrderRepository(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	productRepo, err := firestoreRepo.NewProductRepository(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build product repository: %w", err)
	}
	transactionRepo, err := firestoreRepo.NewTransactionRepository(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build transaction repository: %w", err)
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build counter repository: %w", err)
	}

	var events services.OrderEventPublisher
	if topicID := strings.TrimSpace(cfg.PubSub.Topic); topicID != "" {
		client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		c.pubsub = client
		c.topic = client.Topic(topicID)
		publisher, err := jobs.NewPubSubOrderEventPublisher(c.topic)
		if err != nil {
			return nil, fmt.Errorf("build order event publisher: %w", err)
		}
		events = publisher
	} else {
		logger.Warn("pubsub topic not configured; order events will not be published")
	}

	manager, err := buildPaymentManager(cfg.Providers, logger.Named("payments"))
	if err != nil {
		return nil, err
	}

	dedup, err := idempotency.NewFirestoreStore(c.firestore)
	if err != nil {
		return nil, fmt.Errorf("build webhook dedup store: %w", err)
	}

	numbering, err := services.NewNumberingService(services.NumberingServiceDeps{
		Counters: counterRepo,
	})
	if err != nil {
		return nil, fmt.Errorf("build numbering service: %w", err)
	}

	stock, err := services.NewStockService(services.StockServiceDeps{
		Products: productRepo,
		Logger:   observability.ServiceLogger(logger.Named("stock")),
	})
	if err != nil {
		return nil, fmt.Errorf("build stock service: %w", err)
	}

	delivery, err := services.NewDeliveryService(services.DeliveryServiceDeps{
		Orders:        orderRepo,
		SigningSecret: cfg.Delivery.SigningSecret,
		BaseURL:       cfg.Delivery.DownloadBaseURL,
		LinkTTL:       cfg.Delivery.LinkTTL,
		Logger:        observability.ServiceLogger(logger.Named("delivery")),
	})
	if err != nil {
		return nil, fmt.Errorf("build delivery service: %w", err)
	}

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   orderRepo,
		Stock:    stock,
		Delivery: delivery,
		Events:   events,
		Logger:   observability.ServiceLogger(logger.Named("orders")),
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Orders:    orderRepo,
		Products:  productRepo,
		Stock:     stock,
		Numbering: numbering,
		Pricing: services.PricingPolicy{
			Currency:         cfg.Pricing.Currency,
			TaxRate:          cfg.Pricing.TaxRate,
			ShippingFlatRate: cfg.Pricing.ShippingFlatRate,
		},
		Events: events,
		Logger: observability.ServiceLogger(logger.Named("checkout")),
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout service: %w", err)
	}

	paymentSvc, err := services.NewPaymentService(services.PaymentServiceDeps{
		Transactions:  transactionRepo,
		Orders:        orders,
		Gateway:       manager,
		Numbering:     numbering,
		Dedup:         dedup,
		DedupTTL:      cfg.Webhooks.DedupTTL,
		PaymentExpiry: cfg.Pricing.PaymentExpiry,
		Logger:        observability.ServiceLogger(logger.Named("payments")),
	})
	if err != nil {
		return nil, fmt.Errorf("build payment service: %w", err)
	}

	c.Services = Services{
		Checkout: checkout,
		Orders:   orders,
		Payments: paymentSvc,
		Stock:    stock,
		Delivery: delivery,
	}
	c.Router = buildRouter(c, logger)
	return c, nil
}

// Close releases the Firestore client and the Pub/Sub connection.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.topic != nil {
		c.topic.Stop()
	}
	if c.pubsub != nil {
		if err := c.pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.firestore != nil {
		if err := c.firestore.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildPaymentManager registers an adapter for every provider with usable
// configuration. Startup fails when no provider is configured at all, since
// the API would be unable to open any payment attempt.
func buildPaymentManager(cfg config.ProviderConfig, logger *zap.Logger) (*payments.Manager, error) {
	adapterLog := observability.ServiceLogger(logger)
	var regs []payments.Registration

	if strings.TrimSpace(cfg.StripeAPIKey) != "" {
		card, err := payments.NewCardGatewayProvider(payments.CardGatewayConfig{
			APIKey:        cfg.StripeAPIKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Logger:        adapterLog,
		})
		if err != nil {
			return nil, fmt.Errorf("build card gateway adapter: %w", err)
		}
		regs = append(regs, payments.Registration{
			Method:      domain.PaymentMethodCardGateway,
			Slug:        "card-gateway",
			Initializer: card,
		})
	}

	if strings.TrimSpace(cfg.MobileMoneyShortCode) != "" {
		wallet, err := payments.NewMobileMoneyProvider(payments.MobileMoneyConfig{
			ShortCode: cfg.MobileMoneyShortCode,
			Logger:    adapterLog,
		})
		if err != nil {
			return nil, fmt.Errorf("build mobile money adapter: %w", err)
		}
		regs = append(regs, payments.Registration{
			Method:      domain.PaymentMethodMobileMoney,
			Slug:        "mobile-money",
			Initializer: wallet,
		})
	}

	if strings.TrimSpace(cfg.AltGatewayBaseURL) != "" {
		alt, err := payments.NewAltGatewayProvider(payments.AltGatewayConfig{
			BaseURL: cfg.AltGatewayBaseURL,
			Logger:  adapterLog,
		})
		if err != nil {
			return nil, fmt.Errorf("build alt gateway adapter: %w", err)
		}
		regs = append(regs, payments.Registration{
			Method:      domain.PaymentMethodAltGateway,
			Slug:        "alt-gateway",
			Initializer: alt,
		})
	}

	if strings.TrimSpace(cfg.BankName) != "" && strings.TrimSpace(cfg.BankAccountNumber) != "" {
		bank, err := payments.NewBankTransferProvider(payments.BankTransferConfig{
			BankName:      cfg.BankName,
			AccountName:   cfg.BankAccountName,
			AccountNumber: cfg.BankAccountNumber,
		})
		if err != nil {
			return nil, fmt.Errorf("build bank transfer adapter: %w", err)
		}
		regs = append(regs, payments.Registration{
			Method:      domain.PaymentMethodBankTransfer,
			Slug:        "bank-transfer",
			Initializer: bank,
		})
	}

	if strings.TrimSpace(cfg.WireBeneficiary) != "" && strings.TrimSpace(cfg.WireIBAN) != "" {
		wire, err := payments.NewWireTransferProvider(payments.WireTransferConfig{
			BeneficiaryName: cfg.WireBeneficiary,
			SwiftCode:       cfg.WireSwiftCode,
			IBAN:            cfg.WireIBAN,
		})
		if err != nil {
			return nil, fmt.Errorf("build wire transfer adapter: %w", err)
		}
		regs = append(regs, payments.Registration{
			Method:      domain.PaymentMethodWireTransfer,
			Slug:        "wire-transfer",
			Initializer: wire,
		})
	}

	if len(regs) == 0 {
		return nil, errors.New("no payment providers configured")
	}
	return payments.NewManager(regs)
}

func buildRouter(c *Container, logger *zap.Logger) http.Handler {
	orderHandlers := handlers.NewOrderHandlers(c.Services.Checkout, c.Services.Orders)
	paymentHandlers := handlers.NewPaymentHandlers(c.Services.Payments)
	downloadHandlers := handlers.NewDownloadHandlers(c.Services.Delivery)
	adminHandlers := handlers.NewAdminHandlers(c.Services.Orders, c.Services.Payments, c.Services.Stock)
	webhookHandlers := handlers.NewWebhookHandlers(
		c.Services.Payments,
		handlers.WithWebhookRateLimit(webhookRateLimit, webhookRateWindow),
	)

	health := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck("firestore", c.firestoreReady),
	)

	return handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.RequestLogger(logger.Named("http")),
			auth.Identity,
		),
		handlers.WithHealthHandlers(health),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPaymentRoutes(paymentHandlers.Routes),
		handlers.WithDownloadRoutes(downloadHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithWebhookRoutes(webhookHandlers.Routes),
	)
}

func (c *Container) firestoreReady() error {
	ctx, cancel := context.WithTimeout(context.Background(), readinessTimeout)
	defer cancel()

	client, err := c.firestore.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collections(ctx).Next()
	if errors.Is(err, iterator.Done) {
		return nil
	}
	return err
}
