package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultCurrency         = "USD"
	defaultTaxRate          = "0.05"
	defaultShippingFlatRate = "25.00"
	defaultPaymentExpiry    = 90 * time.Minute
	defaultDownloadLinkTTL  = 72 * time.Hour
	defaultWebhookDedupTTL  = 24 * time.Hour
	defaultLowStockDefault  = 5
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	PubSub    PubSubConfig
	Providers ProviderConfig
	Pricing   PricingConfig
	Delivery  DeliveryConfig
	Webhooks  WebhookConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig configures the domain event topic.
type PubSubConfig struct {
	ProjectID string
	Topic     string
}

// ProviderConfig collects payment provider credentials and the static
// instruction fields surfaced for manual settlement methods.
type ProviderConfig struct {
	StripeAPIKey        string
	StripeWebhookSecret string

	MobileMoneyShortCode string

	AltGatewayBaseURL string

	BankName          string
	BankAccountName   string
	BankAccountNumber string

	WireBeneficiary string
	WireSwiftCode   string
	WireIBAN        string
}

// PricingConfig carries the totals computation inputs.
type PricingConfig struct {
	Currency         string
	TaxRate          decimal.Decimal
	ShippingFlatRate decimal.Decimal
	PaymentExpiry    time.Duration
}

// DeliveryConfig controls digital download link issuance.
type DeliveryConfig struct {
	DownloadBaseURL string
	SigningSecret   string
	LinkTTL         time.Duration
}

// WebhookConfig controls inbound webhook processing.
type WebhookConfig struct {
	DedupTTL time.Duration
}

// Load resolves configuration from a .env file overlaid by the process
// environment. Process env wins over file values.
func Load() (Config, error) {
	values, err := environmentValues(defaultEnvFile)
	if err != nil {
		return Config{}, err
	}
	return fromValues(values)
}

// LoadFromMap builds configuration from an explicit map, used in tests.
func LoadFromMap(values map[string]string) (Config, error) {
	return fromValues(values)
}

func fromValues(values map[string]string) (Config, error) {
	cfg := Config{
		Server: ServerConfig{
			Port:         stringValue(values, "PORT", defaultPort),
			ReadTimeout:  durationValue(values, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationValue(values, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationValue(values, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringValue(values, "FIRESTORE_PROJECT_ID", stringValue(values, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: stringValue(values, "FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID: stringValue(values, "PUBSUB_PROJECT_ID", stringValue(values, "GOOGLE_CLOUD_PROJECT", "")),
			Topic:     stringValue(values, "PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Providers: ProviderConfig{
			StripeAPIKey:         stringValue(values, "STRIPE_API_KEY", ""),
			StripeWebhookSecret:  stringValue(values, "STRIPE_WEBHOOK_SECRET", ""),
			MobileMoneyShortCode: stringValue(values, "MOBILE_MONEY_SHORTCODE", ""),
			AltGatewayBaseURL:    stringValue(values, "ALT_GATEWAY_BASE_URL", ""),
			BankName:             stringValue(values, "BANK_TRANSFER_BANK_NAME", ""),
			BankAccountName:      stringValue(values, "BANK_TRANSFER_ACCOUNT_NAME", ""),
			BankAccountNumber:    stringValue(values, "BANK_TRANSFER_ACCOUNT_NUMBER", ""),
			WireBeneficiary:      stringValue(values, "WIRE_TRANSFER_BENEFICIARY", ""),
			WireSwiftCode:        stringValue(values, "WIRE_TRANSFER_SWIFT", ""),
			WireIBAN:             stringValue(values, "WIRE_TRANSFER_IBAN", ""),
		},
		Delivery: DeliveryConfig{
			DownloadBaseURL: stringValue(values, "DOWNLOAD_BASE_URL", ""),
			SigningSecret:   stringValue(values, "DOWNLOAD_SIGNING_SECRET", ""),
			LinkTTL:         durationValue(values, "DOWNLOAD_LINK_TTL", defaultDownloadLinkTTL),
		},
		Webhooks: WebhookConfig{
			DedupTTL: durationValue(values, "WEBHOOK_DEDUP_TTL", defaultWebhookDedupTTL),
		},
	}

	taxRate, err := decimalValue(values, "ORDER_TAX_RATE", defaultTaxRate)
	if err != nil {
		return Config{}, err
	}
	shipping, err := decimalValue(values, "ORDER_SHIPPING_FLAT_RATE", defaultShippingFlatRate)
	if err != nil {
		return Config{}, err
	}
	cfg.Pricing = PricingConfig{
		Currency:         strings.ToUpper(stringValue(values, "ORDER_CURRENCY", defaultCurrency)),
		TaxRate:          taxRate,
		ShippingFlatRate: shipping,
		PaymentExpiry:    durationValue(values, "PAYMENT_EXPIRY", defaultPaymentExpiry),
	}

	if cfg.Pricing.TaxRate.IsNegative() {
		return Config{}, errors.New("config: ORDER_TAX_RATE must not be negative")
	}
	if cfg.Pricing.ShippingFlatRate.IsNegative() {
		return Config{}, errors.New("config: ORDER_SHIPPING_FLAT_RATE must not be negative")
	}

	return cfg, nil
}

// DefaultLowStockThreshold is applied to products that do not configure one.
func DefaultLowStockThreshold() int {
	if raw := strings.TrimSpace(os.Getenv("LOW_STOCK_THRESHOLD")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			return parsed
		}
	}
	return defaultLowStockDefault
}

func environmentValues(envFile string) (map[string]string, error) {
	values, err := loadDotEnv(envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	for _, entry := range os.Environ() {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		if key == "" {
			continue
		}
		values[key] = parts[1]
	}
	return values, nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: open env file %s: %w", path, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		if key == "" {
			continue
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: read env file %s: %w", path, err)
	}
	return values, nil
}

func stringValue(values map[string]string, key, fallback string) string {
	if v, ok := values[key]; ok {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func durationValue(values map[string]string, key string, fallback time.Duration) time.Duration {
	if v, ok := values[key]; ok {
		if parsed, err := time.ParseDuration(strings.TrimSpace(v)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func decimalValue(values map[string]string, key, fallback string) (decimal.Decimal, error) {
	raw := stringValue(values, key, fallback)
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("config: %s must be a decimal value: %w", key, err)
	}
	return parsed, nil
}
