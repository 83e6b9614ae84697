package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration
	Port          string
	Environment   string
	PublicBaseURL string

	// Portal backend
	PortalAPIURL     string
	PortalAPITimeout time.Duration

	// Redis configuration
	RedisURL       string
	StatusCacheTTL time.Duration

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string
	PubNubUserID       string

	// Checkout
	CheckoutSDKURL       string
	RedirectAllowedHosts []string

	// Reconciliation
	ReconcileInterval time.Duration
	ReconcileTimeout  time.Duration

	// Protection
	RateLimitPerMinute int

	// Monitoring
	EnableMetrics bool
}

// LoadConfig reads configuration from the environment. A .env file in the
// working directory is loaded first when present; real environment
// variables win over it.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		Port:          getEnv("PORT", "8090"),
		Environment:   getEnv("ENVIRONMENT", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:3000"), "/"),

		// Portal backend
		PortalAPIURL:     strings.TrimRight(getEnv("PORTAL_API_URL", "http://localhost:8000/api"), "/"),
		PortalAPITimeout: getEnvAsDuration("PORTAL_API_TIMEOUT", "10s"),

		// Redis
		RedisURL:       getEnv("REDIS_URL", "localhost:6379"),
		StatusCacheTTL: getEnvAsDuration("STATUS_CACHE_TTL", "30s"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),
		PubNubUserID:       getEnv("PUBNUB_USER_ID", "event-portal"),

		// Checkout
		CheckoutSDKURL:       getEnv("CHECKOUT_SDK_URL", "https://sdk.cashfree.com/js/v3/cashfree.js"),
		RedirectAllowedHosts: splitTrim(getEnv("REDIRECT_ALLOWED_HOSTS", "secure.payu.in,test.payu.in")),

		// Reconciliation
		ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", "2s"),
		ReconcileTimeout:  getEnvAsDuration("RECONCILE_TIMEOUT", "10s"),

		// Protection
		RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}
}

// ReturnURL is where a gateway sends the user after checkout.
func (c *Config) ReturnURL() string {
	return c.PublicBaseURL + "/payment/success"
}

func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil && duration > 0 {
		return duration
	}
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func splitTrim(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
