package bootstrap

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jjtheshooterr/autobot/internal/calendar"
	appconfig "github.com/jjtheshooterr/autobot/internal/config"
	"github.com/jjtheshooterr/autobot/internal/conversation"
	"github.com/jjtheshooterr/autobot/internal/dedupe"
	"github.com/jjtheshooterr/autobot/internal/events"
	"github.com/jjtheshooterr/autobot/internal/leads"
	"github.com/jjtheshooterr/autobot/internal/llm"
	"github.com/jjtheshooterr/autobot/internal/messaging"
	"github.com/jjtheshooterr/autobot/internal/notify"
	obsmetrics "github.com/jjtheshooterr/autobot/internal/observability/metrics"
	"github.com/jjtheshooterr/autobot/internal/schedule"
	"github.com/jjtheshooterr/autobot/pkg/logging"
)

// Conversation bundles the booking pipeline pieces both binaries draw from:
// the API serves webhooks and enqueues, the worker drains the queue through
// the engine.
type Conversation struct {
	Engine    *conversation.Engine
	Publisher *conversation.Publisher
	Worker    *conversation.Worker
	Leads     leads.Repository
	Dedupe    *dedupe.Store
	Messaging *obsmetrics.MessagingMetrics
	Registry  *prometheus.Registry
}

// BuildConversation wires the full booking pipeline from config. The
// Postgres pool is required; Redis is optional and only speeds up webhook
// dedupe.
func BuildConversation(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *logging.Logger) (*Conversation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if pool == nil {
		return nil, fmt.Errorf("bootstrap: postgres pool is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	msgMetrics := obsmetrics.NewMessagingMetrics(registry)
	bookingMetrics := obsmetrics.NewBookingMetrics(registry)

	dynamoClient := dynamodb.NewFromConfig(awsCfg)
	repo := leads.NewDynamoRepository(dynamoClient, cfg.LeadsTable, logger)

	states := conversation.NewPGStateStore(pool)
	messageLog := conversation.NewPGMessageLog(pool)
	processed := events.NewProcessedStore(pool)
	dedupeStore := dedupe.NewStore(redisClient, processed, logger)

	calendarClient, err := BuildCalendar(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	generator := schedule.NewGenerator(calendarClient, cfg.BusinessTZ, logger,
		schedule.WithStartOffset(cfg.SearchLeadDays),
	)

	business := BuildBusiness(cfg)
	responder := conversation.NewResponder(business)
	answerer := conversation.NewAnswerer(
		buildLLMClient(ctx, cfg, awsCfg, logger),
		cfg.BedrockModelID,
		business,
		responder,
		logger,
	)
	notifier := notify.NewService(buildEmailSender(cfg, awsCfg, logger), cfg.OwnerEmail, cfg.BusinessName, logger)

	engine := conversation.NewEngine(
		repo,
		states,
		messageLog,
		generator,
		calendarClient,
		responder,
		answerer,
		notifier,
		business,
		logger,
		conversation.WithBookingMetrics(bookingMetrics),
	)

	publisher, worker, err := buildQueuePipeline(cfg, awsCfg, engine, msgMetrics, logger)
	if err != nil {
		return nil, err
	}

	return &Conversation{
		Engine:    engine,
		Publisher: publisher,
		Worker:    worker,
		Leads:     repo,
		Dedupe:    dedupeStore,
		Messaging: msgMetrics,
		Registry:  registry,
	}, nil
}

// BuildBusiness projects the configured business facts into the shape the
// responder and answerer consume.
func BuildBusiness(cfg *appconfig.Config) conversation.Business {
	return conversation.Business{
		Name:               cfg.BusinessName,
		Timezone:           cfg.BusinessTZ,
		PriceText:          cfg.PriceText,
		ServiceDescription: cfg.ServiceDesc,
		InclusionsText:     cfg.InclusionsText,
		AddOnsText:         cfg.AddOnsText,
		ServiceAreaText:    cfg.ServiceAreaText,
		DurationText:       cfg.DurationText,
	}
}

// BuildCalendar constructs the Google Calendar client from either a
// service-account credentials file or an OAuth refresh token.
func BuildCalendar(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*calendar.GoogleClient, error) {
	calCfg := calendar.Config{
		CalendarID:   cfg.GoogleCalendarID,
		Timezone:     cfg.BusinessTZ,
		ClientID:     cfg.GoogleOAuthClientID,
		ClientSecret: cfg.GoogleOAuthClientSecret,
		RefreshToken: cfg.GoogleOAuthRefreshToken,
	}
	if path := strings.TrimSpace(cfg.GoogleCredentialsFile); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: read google credentials: %w", err)
		}
		calCfg.CredentialsJSON = raw
	}
	client, err := calendar.NewGoogleClient(ctx, calCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: google calendar: %w", err)
	}
	return client, nil
}

func buildLLMClient(ctx context.Context, cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) llm.Client {
	var primary llm.Client
	if cfg.BedrockModelID != "" {
		primary = llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	}

	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Warn("gemini client unavailable", "error", err)
		} else if primary == nil {
			primary = gemini
		} else {
			return llm.NewFallbackClient(primary, gemini, logger.Logger)
		}
	}

	if primary == nil {
		logger.Warn("no LLM configured; free-form questions get deterministic answers only")
	}
	return primary
}

func buildEmailSender(cfg *appconfig.Config, awsCfg aws.Config, logger *logging.Logger) notify.EmailSender {
	switch strings.ToLower(strings.TrimSpace(cfg.EmailProvider)) {
	case "ses":
		if sender := notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.SESFromName,
		}, logger); sender != nil {
			return sender
		}
	case "sendgrid":
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Warn("email provider not configured; owner notifications are logged only", "provider", cfg.EmailProvider)
	return notify.NewStubEmailSender(logger)
}

func buildQueuePipeline(cfg *appconfig.Config, awsCfg aws.Config, engine *conversation.Engine, msgMetrics *obsmetrics.MessagingMetrics, logger *logging.Logger) (*conversation.Publisher, *conversation.Worker, error) {
	sender := messaging.NewMessengerSender(cfg.MessengerPageToken, logger)
	workerOpts := []conversation.WorkerOption{
		conversation.WithWorkerCount(cfg.WorkerCount),
		conversation.WithMessagingMetrics(msgMetrics),
	}

	if cfg.UseMemoryQueue {
		queue := conversation.NewMemoryQueue(256)
		logger.Info("using in-memory inbound queue")
		return conversation.NewPublisher(queue, logger),
			conversation.NewWorker(engine, queue, sender, logger, workerOpts...),
			nil
	}

	if strings.TrimSpace(cfg.InboundQueueURL) == "" {
		return nil, nil, fmt.Errorf("bootstrap: INBOUND_QUEUE_URL is required unless USE_MEMORY_QUEUE is set")
	}
	queue := conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL)
	return conversation.NewPublisher(queue, logger),
		conversation.NewWorker(engine, queue, sender, logger, workerOpts...),
		nil
}
