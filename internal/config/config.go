package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName          = "AzadBot"
	defaultAppEnv           = "development"
	defaultPort             = "8080"
	defaultLogLevel         = "info"
	defaultStoreDriver      = StoreDriverFile
	defaultStorePath        = "users.json"
	defaultShutdownDelay    = 10 * time.Second
	defaultOutboundTimeout  = 8 * time.Second
	defaultFeedCacheTTL     = 10 * time.Minute
	defaultReplayTTL        = 24 * time.Hour
	defaultClaimGrace       = 24 * time.Hour
	defaultPeriodDays       = 30
	defaultPrice            = "99"
	defaultRegion           = "IN"
	defaultSignatureHeader  = "X-Payment-Signature"
	defaultInboundRateLimit = 20
	defaultReplyMode        = ReplyModeAPI
	defaultOpenAIModel      = "gpt-4o"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMemory   = "memory"
	StoreDriverFile     = "file"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

// Reply modes accepted by REPLY_MODE.
const (
	ReplyModeAPI   = "api"
	ReplyModeTwiML = "twiml"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	AppEnv         string
	Port           string
	LogLevel       string
	ShutdownPeriod time.Duration

	StoreDriver string
	StorePath   string
	DatabaseURL string
	RedisURL    string

	OutboundTimeout  time.Duration
	DefaultRegion    string
	ReplyMode        string
	InboundRateLimit int
	WebhookReplayTTL time.Duration
	AdminAPIKeyHash  string
	PublicBaseURL    string

	Twilio       TwilioConfig
	News         NewsConfig
	Facebook     FacebookConfig
	OpenAI       OpenAIConfig
	Payment      PaymentConfig
	Subscription SubscriptionConfig
	FeedCacheTTL time.Duration
}

// TwilioConfig holds messaging provider credentials.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	WhatsAppNumber string
	BaseURL        string
}

// NewsConfig holds the headline feed settings.
type NewsConfig struct {
	APIKey  string
	BaseURL string
}

// FacebookConfig holds the page feed settings.
type FacebookConfig struct {
	AccessToken string
	PageID      string
	BaseURL     string
}

// OpenAIConfig holds AI answer settings.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// PaymentConfig holds payment processor settings.
type PaymentConfig struct {
	WebhookSecret   string
	SignatureHeader string
	APIKey          string
	AuthToken       string
	BaseURL         string
}

// SubscriptionConfig holds the plan price and length.
type SubscriptionConfig struct {
	Price      string
	PeriodDays int
	ClaimGrace time.Duration
}

// Load reads configuration values from the environment and populates a Config instance.
// A .env file in the working directory is loaded first when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		AppName:        getEnv("APP_NAME", defaultAppName),
		AppEnv:         getEnv("APP_ENV", defaultAppEnv),
		Port:           getEnv("PORT", defaultPort),
		LogLevel:       strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		ShutdownPeriod: defaultShutdownDelay,

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", defaultStoreDriver)),
		StorePath:   getEnv("STORE_PATH", defaultStorePath),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),

		DefaultRegion:   strings.ToUpper(getEnv("DEFAULT_REGION", defaultRegion)),
		ReplyMode:       strings.ToLower(getEnv("REPLY_MODE", defaultReplyMode)),
		AdminAPIKeyHash: os.Getenv("ADMIN_API_KEY_HASH"),
		PublicBaseURL:   strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		Twilio: TwilioConfig{
			AccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
			WhatsAppNumber: strings.TrimPrefix(os.Getenv("TWILIO_WHATSAPP_NUMBER"), "whatsapp:"),
			BaseURL:        getEnv("TWILIO_API_URL", "https://api.twilio.com"),
		},
		News: NewsConfig{
			APIKey:  os.Getenv("GNEWS_API_KEY"),
			BaseURL: getEnv("GNEWS_URL", "https://gnews.io/api/v4"),
		},
		Facebook: FacebookConfig{
			AccessToken: os.Getenv("FACEBOOK_ACCESS_TOKEN"),
			PageID:      os.Getenv("FACEBOOK_PAGE_ID"),
			BaseURL:     getEnv("FACEBOOK_GRAPH_URL", "https://graph.facebook.com/v15.0"),
		},
		OpenAI: OpenAIConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			Model:   getEnv("OPENAI_MODEL", defaultOpenAIModel),
			BaseURL: getEnv("OPENAI_URL", "https://api.openai.com/v1"),
		},
		Payment: PaymentConfig{
			WebhookSecret:   os.Getenv("PAYMENT_WEBHOOK_SECRET"),
			SignatureHeader: getEnv("PAYMENT_SIGNATURE_HEADER", defaultSignatureHeader),
			APIKey:          os.Getenv("INSTAMOJO_API_KEY"),
			AuthToken:       os.Getenv("INSTAMOJO_AUTH_TOKEN"),
			BaseURL:         getEnv("INSTAMOJO_URL", "https://www.instamojo.com/api/1.1"),
		},
		Subscription: SubscriptionConfig{
			Price: getEnv("SUBSCRIPTION_PRICE", defaultPrice),
		},
	}

	var err error
	if cfg.ShutdownPeriod, err = durationEnv("SHUTDOWN_TIMEOUT", defaultShutdownDelay); err != nil {
		return Config{}, err
	}
	if cfg.OutboundTimeout, err = durationEnv("OUTBOUND_TIMEOUT", defaultOutboundTimeout); err != nil {
		return Config{}, err
	}
	if cfg.FeedCacheTTL, err = durationEnv("FEED_CACHE_TTL", defaultFeedCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.WebhookReplayTTL, err = durationEnv("WEBHOOK_REPLAY_TTL", defaultReplayTTL); err != nil {
		return Config{}, err
	}
	if cfg.Subscription.ClaimGrace, err = durationEnv("CLAIM_GRACE", defaultClaimGrace); err != nil {
		return Config{}, err
	}
	if cfg.Subscription.PeriodDays, err = intEnv("SUBSCRIPTION_PERIOD_DAYS", defaultPeriodDays); err != nil {
		return Config{}, err
	}
	if cfg.InboundRateLimit, err = intEnv("INBOUND_RATE_PER_MINUTE", defaultInboundRateLimit); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Payment.WebhookSecret == "" {
		return fmt.Errorf("PAYMENT_WEBHOOK_SECRET must be set")
	}
	if c.Subscription.PeriodDays <= 0 {
		return fmt.Errorf("SUBSCRIPTION_PERIOD_DAYS must be positive")
	}

	switch c.StoreDriver {
	case StoreDriverMemory, StoreDriverFile:
	case StoreDriverRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must be set when STORE_DRIVER=%s", c.StoreDriver)
		}
	case StoreDriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when STORE_DRIVER=%s", c.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}

	switch c.ReplyMode {
	case ReplyModeAPI, ReplyModeTwiML:
	default:
		return fmt.Errorf("unknown REPLY_MODE %q", c.ReplyMode)
	}

	return nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a local/development environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.AppEnv) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// TwilioConfigured reports whether outbound messaging credentials are present.
func (c Config) TwilioConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != "" && c.Twilio.WhatsAppNumber != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// durationEnv reads KEY_SECONDS as an integer first, then KEY as a Go duration.
func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	secondsKey := key + "_SECONDS"
	if v := os.Getenv(secondsKey); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsKey, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return d, nil
	}
	return fallback, nil
}

func intEnv(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
