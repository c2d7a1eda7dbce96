// Package app wires configuration into the full service graph shared by
// the server and worker binaries: store backend, providers, activity
// fan-out, and every engine.
package app

import (
	"context"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/jrfdy6/aiclone-sub001/internal/activity"
	"github.com/jrfdy6/aiclone-sub001/internal/config"
	"github.com/jrfdy6/aiclone-sub001/internal/content"
	"github.com/jrfdy6/aiclone-sub001/internal/discovery"
	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/extractors"
	"github.com/jrfdy6/aiclone-sub001/internal/intelligence"
	"github.com/jrfdy6/aiclone-sub001/internal/learning"
	"github.com/jrfdy6/aiclone-sub001/internal/outreach"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/distlock"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/httpretry"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
	"github.com/jrfdy6/aiclone-sub001/internal/providers"
	"github.com/jrfdy6/aiclone-sub001/internal/research"
	"github.com/jrfdy6/aiclone-sub001/internal/scheduler"
	"github.com/jrfdy6/aiclone-sub001/internal/store"
)

// App is the wired service graph.
type App struct {
	Cfg     *config.Config
	Gateway *store.Gateway

	Bus        *activity.Bus
	Hub        *activity.Hub
	Dispatcher *activity.Dispatcher

	Research     *research.Pipeline
	Discovery    *discovery.Engine
	Outreach     *outreach.Engine
	Learning     *learning.Core
	Content      *content.Linker
	Intelligence *intelligence.Engine
	Scheduler    *scheduler.Scheduler

	redis *redis.Client
}

// New builds the graph. Absent provider credentials disable the matching
// provider; the pipelines degrade instead of failing to start.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	backend, err := newStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	gw := store.NewGateway(backend)

	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, domain.E(domain.KindConfig, "redis_bad_url", "invalid redis URL", err)
		}
		redisClient = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Warn("redis unreachable, using in-process fallbacks", "error", err.Error())
			redisClient = nil
		} else {
			cancel()
			logger.Info("redis connected")
		}
	}

	limiter := providers.NewRateLimiter(redisClient, nil, nil)
	sems := providers.NewSemaphores(cfg.Search.MaxConcurrency, cfg.Scrape.MaxConcurrency, cfg.LLM.MaxConcurrency)
	retryClient := httpretry.New(&http.Client{Timeout: 30 * time.Second}, 3)

	var search providers.WebSearch
	if cfg.Search.APIKey != "" {
		search = providers.NewGoogleSearch(cfg.Search.APIKey, cfg.Search.EngineID, retryClient, sems, limiter)
	} else {
		logger.Warn("web search disabled: no API key")
	}

	var scraper providers.Scrape
	if cfg.Scrape.APIKey != "" {
		scraper = providers.NewFirecrawlScraper(cfg.Scrape.APIKey, providers.ScrapeOptions{
			BaseURL:          cfg.Scrape.BaseURL,
			HostGap:          time.Duration(cfg.Scrape.PerHostGapMillis) * time.Millisecond,
			BreakerThreshold: cfg.Scrape.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.Scrape.BreakerCooldownS) * time.Second,
			Client:           retryClient,
			Semaphores:       sems,
			Limiter:          limiter,
		})
	} else {
		logger.Warn("scraping disabled: no API key")
	}

	var llm providers.LLM
	switch {
	case cfg.LLM.Provider == "bedrock":
		client, err := providers.NewBedrockClient(ctx, cfg.LLM.AWSRegion, cfg.LLM.BedrockModelID, sems, limiter)
		if err != nil {
			return nil, err
		}
		llm = client
	case cfg.LLM.APIKey != "":
		llm = providers.NewOpenAIClient(cfg.LLM.APIKey, cfg.LLM.Model, retryClient, sems, limiter)
	default:
		logger.Warn("llm disabled: no credentials")
	}

	feed := providers.NewGoogleNewsFeed()

	bus := activity.NewBus(gw, cfg.Realtime.BusCapacity, nil)
	hub := activity.NewHub(time.Duration(cfg.Realtime.HeartbeatSeconds) * time.Second)
	dispatcher := activity.NewDispatcher(gw, nil, nil,
		time.Duration(cfg.Realtime.WebhookTimeoutSeconds)*time.Second,
		cfg.Realtime.DisableAfterFailures)
	bus.Subscribe(hub)
	bus.Subscribe(dispatcher)

	var archiver learning.Archiver
	if cfg.Storage.S3Bucket != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Storage.AWSRegion),
			awsconfig.WithSharedConfigProfile(cfg.Storage.AWSProfile))
		if err != nil {
			return nil, domain.E(domain.KindConfig, "aws_config_failed", "loading AWS config for report archive", err)
		}
		archiver = learning.NewS3Archiver(s3.NewFromConfig(awsCfg), cfg.Storage.S3Bucket)
	}

	var pacerMix map[domain.Pillar]float64
	if len(cfg.Content.PacerMix) > 0 {
		pacerMix = make(map[domain.Pillar]float64, len(cfg.Content.PacerMix))
		for name, share := range cfg.Content.PacerMix {
			pacerMix[domain.Pillar(name)] = share
		}
	}
	core := learning.New(gw, distlock.NewLocker(redisClient), archiver, bus, learning.Options{PacerMix: pacerMix})

	pipeline := research.New(gw, search, scraper, llm, feed, bus, research.Options{
		BatchMode:    cfg.Pipeline.BatchMode,
		BatchItemCap: cfg.Pipeline.BatchItemCap,
		Timeout:      cfg.Pipeline.ResearchTimeout(),
		TargetKeep:   cfg.Pipeline.ProspectTargetKeep,
		Redis:        redisClient,
	})

	return &App{
		Cfg:        cfg,
		Gateway:    gw,
		Bus:        bus,
		Hub:        hub,
		Dispatcher: dispatcher,
		Research:   pipeline,
		Discovery: discovery.New(gw, search, scraper, extractors.NewRegistry(), bus, discovery.Options{
			Timeout: cfg.Pipeline.DiscoveryTimeout(),
		}),
		Outreach: outreach.New(gw, bus, core, outreach.Options{
			StealthRatio:     cfg.Outreach.StealthFounderRatio,
			MinPriorityScore: cfg.Outreach.MinPriorityScore,
			VariantsPerStep:  cfg.Outreach.VariantsPerStep,
		}),
		Learning:     core,
		Content:      content.New(gw, bus, nil),
		Intelligence: intelligence.New(search, llm, intelligence.Options{}),
		Scheduler:    scheduler.New(gw, pipeline, core, nil),
		redis:        redisClient,
	}, nil
}

// Close flushes the activity bus and releases shared clients.
func (a *App) Close() {
	a.Bus.Close()
	a.Dispatcher.Wait()
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func newStore(ctx context.Context, cfg config.StorageConfig) (store.Store, error) {
	switch cfg.Type {
	case "", "memory":
		logger.Warn("using in-memory store: data will not survive restarts")
		return store.NewMemory(), nil
	case "local":
		return store.NewLocal(cfg.LocalPath)
	case "postgres":
		return store.NewPostgres(cfg.DatabaseURL)
	case "dynamo":
		return store.NewDynamo(ctx, cfg.DynamoDBTable, cfg.AWSRegion, cfg.AWSProfile)
	default:
		return nil, domain.E(domain.KindConfig, "storage_bad_type", "unknown storage type "+cfg.Type, nil)
	}
}
