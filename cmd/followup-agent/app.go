package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"github.com/COG-GTM/fireflies-agent/internal/config"
	"github.com/COG-GTM/fireflies-agent/internal/constants"
	"github.com/COG-GTM/fireflies-agent/internal/delivery"
	"github.com/COG-GTM/fireflies-agent/internal/draft"
	"github.com/COG-GTM/fireflies-agent/internal/event"
	"github.com/COG-GTM/fireflies-agent/internal/generative"
	"github.com/COG-GTM/fireflies-agent/internal/logger"
	"github.com/COG-GTM/fireflies-agent/internal/meeting"
	"github.com/COG-GTM/fireflies-agent/internal/transcript"
	"github.com/COG-GTM/fireflies-agent/internal/webhook"
	"github.com/COG-GTM/fireflies-agent/pkg/circuitbreaker"
	"github.com/COG-GTM/fireflies-agent/pkg/health"
	"github.com/COG-GTM/fireflies-agent/pkg/metrics"
	"github.com/COG-GTM/fireflies-agent/pkg/middleware"
	"github.com/COG-GTM/fireflies-agent/pkg/ratelimit"
	"github.com/COG-GTM/fireflies-agent/pkg/retry"
)

type App struct {
	Config *config.Config
	Logger logger.Logger

	redis       *redis.Client
	memStore    *event.MemoryRecordStore
	records     event.RecordStore
	slackClient *slack.Client
	sink        *delivery.Sink
	dispatcher  *event.Dispatcher
	server      *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceName)
	}
	return &App{
		Config: cfg,
		Logger: log,
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.Register()

	if err := a.initRecordStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize record store: %w", err)
	}

	targetChannelID, err := a.initSlack(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize Slack: %w", err)
	}

	if err := a.initDispatcher(ctx, targetChannelID); err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initRecordStore(ctx context.Context) error {
	if a.Config.Dedup.Backend == constants.DedupBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", a.Config.Redis.Host, a.Config.Redis.Port),
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		a.redis = rdb
		a.records = event.NewRedisRecordStore(rdb, a.Config.Dedup.TTL)
		a.Logger.InfowCtx(ctx, "Using Redis dedup backend",
			"addr", fmt.Sprintf("%s:%d", a.Config.Redis.Host, a.Config.Redis.Port),
			"ttl", a.Config.Dedup.TTL,
		)
		return nil
	}

	a.memStore = event.NewMemoryRecordStore(a.Config.Dedup.TTL, a.Config.Dedup.MaxRecords)
	a.records = a.memStore
	a.Logger.InfowCtx(ctx, "Using in-memory dedup backend",
		"ttl", a.Config.Dedup.TTL,
		"max_records", a.Config.Dedup.MaxRecords,
	)
	return nil
}

// initSlack builds the delivery sink and resolves the target channel name
// to its ID once at startup, so a misconfigured channel fails the boot
// instead of the first event.
func (a *App) initSlack(ctx context.Context) (string, error) {
	a.slackClient = slack.New(a.Config.Slack.BotToken)
	a.sink = delivery.NewSink(a.slackClient, a.Logger)

	channelID, err := a.sink.ResolveChannelID(ctx, a.Config.Slack.TargetChannel)
	if err != nil {
		return "", fmt.Errorf("resolving channel %q: %w", a.Config.Slack.TargetChannel, err)
	}

	a.Logger.InfowCtx(ctx, "Resolved target channel",
		"channel", a.Config.Slack.TargetChannel,
		"channel_id", channelID,
	)
	return channelID, nil
}

func (a *App) initDispatcher(ctx context.Context, targetChannelID string) error {
	fetcher := transcript.NewClient(a.Config.Fireflies, a.Logger)

	var breaker *circuitbreaker.Wrapper
	if a.Config.CircuitBreaker.Enabled {
		cbCfg := circuitbreaker.Config{
			Name:        "fireflies",
			MaxRequests: a.Config.CircuitBreaker.MaxRequests,
			Interval:    a.Config.CircuitBreaker.Interval,
			Timeout:     a.Config.CircuitBreaker.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= a.Config.CircuitBreaker.MinRequests &&
					failureRatio >= a.Config.CircuitBreaker.FailureRatio
			},
		}
		breaker = circuitbreaker.NewWrapper(cbCfg)
	}

	resolver := transcript.NewResolver(fetcher, breaker, a.Logger)

	model := generative.NewClient(a.Config.Anthropic, a.Logger)
	extractor := meeting.NewExtractor(a.Config.Pipeline.ExtractionMode, model, a.Logger)

	templates, err := draft.LoadTemplates(a.Config.Pipeline.TemplatesDir)
	if err != nil {
		return fmt.Errorf("loading templates from %s: %w", a.Config.Pipeline.TemplatesDir, err)
	}
	generator := draft.NewGenerator(model, a.Config.Anthropic.MaxTokens, templates, a.Logger)

	a.dispatcher = event.NewDispatcher(
		event.Config{
			TargetChannelID: targetChannelID,
			Policy: retry.Policy{
				MaxAttempts:     a.Config.Pipeline.Retry.MaxAttempts,
				InitialInterval: a.Config.Pipeline.Retry.InitialInterval,
				MaxInterval:     a.Config.Pipeline.Retry.MaxInterval,
				Multiplier:      a.Config.Pipeline.Retry.Multiplier,
			},
			StageTimeout: a.Config.Pipeline.StageTimeout,
		},
		resolver,
		extractor,
		generator,
		a.sink,
		a.records,
		a.Logger,
	)

	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	if a.Config.RateLimit.Enabled {
		rlCfg := ratelimit.DefaultConfig()
		rlCfg.RPS = a.Config.RateLimit.RPS
		rlCfg.Burst = a.Config.RateLimit.Burst
		router.Use(ratelimit.Middleware(rlCfg))
	}

	healthRegistry := health.NewCheckerRegistry()
	if a.redis != nil {
		healthRegistry.Register(health.NewRedisChecker(a.redis))
	}
	healthRegistry.Register(health.NewSlackChecker(a.slackClient))

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler := webhook.NewHandler(a.dispatcher, a.Config.Slack.SigningSecret, a.Logger)
	handler.RegisterRoutes(router)

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.InfowCtx(ctx, "Shutting down follow-up agent")

	var errs []error

	if a.memStore != nil {
		a.memStore.Close()
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close error: %w", err))
		}
	}

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
