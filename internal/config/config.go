package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName string
	ServerPort  int
	LogLevel    string

	DatabaseURL string

	// Storefront origin used to build checkout success and cancel links.
	PublicBaseURL string

	StripeSecretKey     string
	StripeWebhookSecret string

	TwilioAccountSID          string
	TwilioAPIKeySID           string
	TwilioAPIKeySecret        string
	TwilioMessagingServiceSID string

	OperatorJWTSecret []byte

	KafkaBrokers []string
	EventsTopic  string

	// Tenant slugs allowed to confirm orders without a processor signal,
	// on top of each tenant's own capability flag. Meant for verification
	// environments only.
	ManualConfirmTenants []string

	GatewayTimeout time.Duration
	SMSTimeout     time.Duration
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("notice: .env not found, using system environment: %v", err)
	}

	return Config{
		ServiceName: EnvDefault("SERVICE_NAME", "orderdesk"),
		ServerPort:  EnvIntDefault("SERVER_PORT", 8080),
		LogLevel:    EnvDefault("LOG_LEVEL", "info"),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		PublicBaseURL: EnvDefault("PUBLIC_BASE_URL", "http://localhost:8080"),

		StripeSecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
		StripeWebhookSecret: os.Getenv("STRIPE_ORDERS_WEBHOOK_SECRET"),

		TwilioAccountSID:          os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAPIKeySID:           os.Getenv("TWILIO_API_KEY_SID"),
		TwilioAPIKeySecret:        os.Getenv("TWILIO_API_KEY_SECRET"),
		TwilioMessagingServiceSID: os.Getenv("TWILIO_MESSAGING_SERVICE_SID"),

		OperatorJWTSecret: []byte(os.Getenv("OPERATOR_JWT_SECRET")),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		EventsTopic:  EnvDefault("ORDER_EVENTS_TOPIC", "order_events"),

		ManualConfirmTenants: CSV(os.Getenv("MANUAL_CONFIRM_TENANTS")),

		GatewayTimeout: EnvDurationDefault("GATEWAY_TIMEOUT", 10*time.Second),
		SMSTimeout:     EnvDurationDefault("SMS_TIMEOUT", 10*time.Second),
	}
}

func (c Config) SMSConfigured() bool {
	return c.TwilioAccountSID != "" &&
		c.TwilioAPIKeySID != "" &&
		c.TwilioAPIKeySecret != "" &&
		c.TwilioMessagingServiceSID != ""
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if os.Getenv(key) != "" {
		return os.Getenv(key)
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}
