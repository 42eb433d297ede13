package routes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/azad-ai/azad_bot/internal/assistant"
	"github.com/azad-ai/azad_bot/internal/config"
	"github.com/azad-ai/azad_bot/internal/feeds"
	"github.com/azad-ai/azad_bot/internal/ledger"
	"github.com/azad-ai/azad_bot/internal/middleware"
	"github.com/azad-ai/azad_bot/internal/notification"
	"github.com/azad-ai/azad_bot/internal/paylink"
	"github.com/azad-ai/azad_bot/internal/router"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := newStore(ctx, d)
	if err != nil {
		return err
	}
	if !d.Cfg.IsDev() && d.Cache == nil {
		d.Logger.Warn("redis not configured: webhook replay guard and inbound rate limit are disabled")
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(middleware.Audit(d.Logger, "/healthz"))

	RegisterHealthRoutes(app, d, store)

	// Services and handlers
	subscriptions := ledger.New(store,
		ledger.WithClaimGrace(d.Cfg.Subscription.ClaimGrace),
		ledger.WithRegion(d.Cfg.DefaultRegion),
		ledger.WithLogger(d.Logger),
	)

	var notifier notification.Notifier
	if d.Cfg.TwilioConfigured() {
		notifier = notification.NewTwilioSender(d.Cfg.Twilio, d.Cfg.OutboundTimeout, d.Logger)
	} else {
		d.Logger.Warn("twilio not configured: replies are logged, not sent")
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	var webhookURL string
	if d.Cfg.PublicBaseURL != "" {
		webhookURL = d.Cfg.PublicBaseURL + paymentWebhookPath
	}
	collab := router.Collaborators{
		News:      feeds.NewNewsClient(d.Cfg.News, d.Cfg.OutboundTimeout, d.Cfg.FeedCacheTTL),
		Posts:     feeds.NewSocialClient(d.Cfg.Facebook, d.Cfg.OutboundTimeout, d.Cfg.FeedCacheTTL),
		Assistant: assistant.NewClient(d.Cfg.OpenAI, d.Cfg.OutboundTimeout),
		Links:     paylink.NewInstamojo(d.Cfg.Payment, d.Cfg.Subscription.Price, webhookURL, d.Cfg.OutboundTimeout),
	}
	messageRouter := router.New(subscriptions, collab, d.Cfg.DefaultRegion, d.Logger)

	messageHandler := router.NewHandler(messageRouter, notifier, d.Cfg.ReplyMode, d.Logger)
	ledgerHandler := ledger.NewHandler(subscriptions, ledger.HandlerConfig{
		Secret:          d.Cfg.Payment.WebhookSecret,
		SignatureHeader: d.Cfg.Payment.SignatureHeader,
		PeriodDays:      d.Cfg.Subscription.PeriodDays,
		Region:          d.Cfg.DefaultRegion,
	}, d.Logger)

	RegisterWebhookRoutes(app, d, messageHandler, ledgerHandler)
	RegisterAdminRoutes(app, d, ledgerHandler)

	return nil
}

// newStore selects the ledger backend named by STORE_DRIVER.
func newStore(ctx context.Context, d Deps) (ledger.Store, error) {
	switch d.Cfg.StoreDriver {
	case config.StoreDriverMemory:
		return ledger.NewMemoryStore(), nil
	case config.StoreDriverFile:
		return ledger.NewFileStore(d.Cfg.StorePath)
	case config.StoreDriverRedis:
		if d.Cache == nil {
			return nil, fmt.Errorf("redis is required when STORE_DRIVER=%s", d.Cfg.StoreDriver)
		}
		return ledger.NewRedisStore(d.Cache), nil
	case config.StoreDriverPostgres:
		if d.DB == nil {
			return nil, fmt.Errorf("database is required when STORE_DRIVER=%s", d.Cfg.StoreDriver)
		}
		return ledger.NewPostgresStore(ctx, d.DB)
	default:
		return nil, fmt.Errorf("unknown store driver %q", d.Cfg.StoreDriver)
	}
}
