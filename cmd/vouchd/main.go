package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/keyward/vouch/adapters/authority"
	"github.com/keyward/vouch/adapters/events"
	"github.com/keyward/vouch/adapters/registry"
	"github.com/keyward/vouch/adapters/store"
	"github.com/keyward/vouch/adapters/tokenizer"
	"github.com/keyward/vouch/internal/config"
	"github.com/keyward/vouch/internal/metrics"
	"github.com/keyward/vouch/internal/origins"
	"github.com/keyward/vouch/internal/retry"
	"github.com/keyward/vouch/ports"
	"github.com/keyward/vouch/service"
	"github.com/keyward/vouch/transport/http"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// Generate a new ECDSA key pair (you would normally load this from somewhere secure)
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(err)
	}

	// Parse Redis URL and create client
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}

	redisClient := redis.NewClient(opts)

	// Initialize Watermill Redis publisher
	wmLogger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	// The anchor ledger lives in postgres when a DSN is configured
	var anchors ports.AnchorRegistry
	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			log.Fatalf("Failed to open postgres: %v", err)
		}
		anchors, err = registry.NewPostgres(db)
		if err != nil {
			log.Fatalf("Failed to prepare anchor registry: %v", err)
		}
	} else {
		anchors = registry.NewMemory()
	}

	tracker := origins.NewTracker(cfg.OriginCapacity, nil)
	meter := metrics.New()

	// Sign locally unless an upstream authority is configured
	var signer ports.SigningAuthority
	if cfg.AuthorityURL != "" {
		signer = authority.NewRemote(cfg.AuthorityURL, authority.DefaultRequestTimeout)
	} else {
		embedded, err := authority.NewEmbedded(context.Background(), anchors, store.NewRedisStore(redisClient), tracker, nil, cfg.SigningLatency)
		if err != nil {
			log.Fatalf("Failed to start signing authority: %v", err)
		}
		signer = embedded
	}

	var limiter *rate.Limiter
	if cfg.RegistrationInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.RegistrationInterval), cfg.RegistrationBurst)
	}

	codec := tokenizer.NewJWTCodec(privateKey)
	eventPub := events.NewWatermillPublisher(publisher)

	anchorService := service.NewAnchorService(anchors, codec, eventPub, limiter, nil, logger, meter)
	delegationService := service.NewDelegationService(signer, retry.Policy{
		Attempts:     cfg.PollAttempts,
		BaseInterval: cfg.PollBaseInterval,
	}, logger, meter)
	authorizeService := service.NewAuthorizeService(delegationService, eventPub, logger)

	// Setup Gin router
	router := http.SetupRouter(anchorService, authorizeService, signer, tracker, meter)

	// Start server
	if err := router.Run(cfg.Listen); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
