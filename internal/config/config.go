package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds process configuration shared by the api and worker binaries.
type Config struct {
	RunLocal bool
	Addr     string
	LogLevel string

	AWSRegion        string
	AWSEndpoint      string
	OrdersTable      string
	LedgerTable      string
	CustomersTable   string
	DeferredQueueURL string
	RestockQueueURL  string
	MetricsNamespace string

	MaxDraftOrders        int
	BackendMaxRetries     uint64
	BackendInitialBackoff time.Duration
	DeferredMaxAttempts   int
	DeferredDelay         time.Duration
	LedgerTTL             time.Duration

	VNPayHashSecret string
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; real environment variables win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		RunLocal: getBool("RUN_LOCAL", false),
		Addr:     getString("ADDR", ":8080"),
		LogLevel: getString("LOG_LEVEL", "info"),

		AWSRegion:        getString("AWS_REGION", "us-east-1"),
		AWSEndpoint:      os.Getenv("AWS_ENDPOINT_OVERRIDE"),
		OrdersTable:      getString("ORDERS_TABLE", "pos-orders"),
		LedgerTable:      getString("LEDGER_TABLE", "pos-payment-ledger"),
		CustomersTable:   getString("CUSTOMERS_TABLE", "pos-customers"),
		DeferredQueueURL: os.Getenv("DEFERRED_QUEUE_URL"),
		RestockQueueURL:  os.Getenv("RESTOCK_QUEUE_URL"),
		MetricsNamespace: getString("METRICS_NAMESPACE", "POS/Orders"),

		MaxDraftOrders:        getInt("MAX_DRAFT_ORDERS", 5),
		BackendMaxRetries:     uint64(getInt("BACKEND_MAX_RETRIES", 3)),
		BackendInitialBackoff: getDuration("BACKEND_INITIAL_BACKOFF", 200*time.Millisecond),
		DeferredMaxAttempts:   getInt("DEFERRED_MAX_ATTEMPTS", 10),
		DeferredDelay:         getDuration("DEFERRED_DELAY", time.Minute),
		LedgerTTL:             getDuration("LEDGER_TTL", 30*24*time.Hour),

		VNPayHashSecret: os.Getenv("VNPAY_HASH_SECRET"),
	}
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
