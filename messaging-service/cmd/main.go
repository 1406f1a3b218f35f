package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/cache"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/chatview"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/config"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/deeplink"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/handler"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/hub"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/identity"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/realtime"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/repository"
	"github.com/israelseleshi/building-management-system-sub000/messaging-service/internal/service"
	"github.com/israelseleshi/building-management-system-sub000/pkg/database"
	"github.com/israelseleshi/building-management-system-sub000/pkg/idgen"
	"github.com/israelseleshi/building-management-system-sub000/pkg/jwt"
	"github.com/israelseleshi/building-management-system-sub000/pkg/log"
	"github.com/israelseleshi/building-management-system-sub000/pkg/middleware"
	"github.com/israelseleshi/building-management-system-sub000/pkg/pubsub"
	"github.com/israelseleshi/building-management-system-sub000/pkg/storage"
)

func main() {
	var (
		cfg *config.Config
		err error
	)
	if len(os.Args) > 1 {
		cfg, err = config.LoadFile(os.Args[1])
	} else {
		cfg, err = config.Load("config", "config")
	}
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	log.Init(cfg.Log)
	l := log.L()

	// Relational store
	db, err := database.New(cfg.Database.ToDatabaseConfig())
	if err != nil {
		l.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close(db)

	useCassandra := cfg.Messages.Driver == "cassandra"
	if err := repository.Migrate(db, !useCassandra); err != nil {
		l.Fatal().Err(err).Msg("failed to auto-migrate")
	}
	l.Info().Str("driver", cfg.Database.Driver).Msg("database migration completed")

	participantRepo := repository.NewGormParticipantRepository(db)
	conversationRepo := repository.NewGormConversationRepository(db, idgen.NewUUIDGenerator())

	var messageRepo repository.MessageRepository
	if useCassandra {
		cassRepo, err := repository.NewCassandraMessageRepository(cfg.Cassandra)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create cassandra repository")
		}
		defer cassRepo.Close()
		messageRepo = cassRepo
	} else {
		messageRepo = repository.NewGormMessageRepository(db)
	}

	// History cache
	var historyCache cache.HistoryCache = cache.NewNopHistoryCache()
	if cfg.Cache.Driver == "redis" {
		redisCache, err := cache.NewRedisHistoryCache(cfg.Redis, cfg.Cache.Prefix)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create redis cache")
		}
		historyCache = redisCache
	}
	defer historyCache.Close()

	// Change feed
	feed, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		l.Fatal().Err(err).Str("driver", cfg.PubSub.Driver).Msg("failed to create pubsub")
	}
	defer feed.Close()

	broker := realtime.NewBroker(feed, idgen.NewKSUIDGenerator())
	defer broker.Close()

	// Deep-link tokens
	var tokenStore deeplink.TokenStore
	if cfg.DeepLink.TokenStore == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		tokenStore = deeplink.NewRedisTokenStore(rdb, cfg.DeepLink.TokenPrefix, cfg.DeepLink.TokenTTL)
	} else {
		tokenStore = deeplink.NewMemoryTokenStore(cfg.DeepLink.TokenTTL)
	}

	linkTokens, err := idgen.NewNanoIDGenerator(idgen.DefaultNanoIDSize, idgen.DefaultNanoIDAlphabet)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create link token generator")
	}
	localIDs, err := idgen.NewCUID2Generator(idgen.DefaultCUID2Length)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create local id generator")
	}

	jwtManager, err := jwt.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTL)
	if err != nil {
		l.Fatal().Err(err).Msg("failed to create jwt manager")
	}

	// Avatar URLs
	var avatarSigner storage.URLSigner
	switch cfg.Avatars.Driver {
	case "s3":
		s3Signer, err := storage.NewS3Signer(context.Background(), cfg.Avatars.S3)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create s3 avatar signer")
		}
		avatarSigner = s3Signer
	case "static":
		staticSigner, err := storage.NewStaticSigner(cfg.Avatars.BaseURL)
		if err != nil {
			l.Fatal().Err(err).Msg("failed to create static avatar signer")
		}
		avatarSigner = staticSigner
	}

	// Services
	idp := identity.NewContextProvider(participantRepo)
	participantDirectory := service.NewParticipantDirectory(participantRepo, avatarSigner, cfg.Avatars.URLTTL)
	conversationService := service.NewConversationService(idp, participantRepo, conversationRepo)
	messageService := service.NewMessageService(
		conversationRepo,
		messageRepo,
		historyCache,
		cfg.Cache.TTL,
		service.NewSummaryUpdater(conversationRepo),
		feed,
		idgen.NewULIDGenerator(),
	)

	// Hub
	wsHub := hub.NewHub(cfg.WebSocket)
	go wsHub.Run()

	// Handlers
	httpHandler := handler.NewHandler(
		conversationService,
		messageService,
		participantDirectory,
		idp,
		deeplink.NewComposer(linkTokens),
		middleware.NewAuthMiddleware(jwtManager),
	)
	wsHandler := handler.NewWSHandler(wsHub, jwtManager, idp, chatview.Deps{
		Resolver: conversationService,
		Store:    messageService,
		Broker:   broker,
		Tokens:   tokenStore,
		LocalIDs: localIDs,
	}, cfg.WebSocket)

	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(log.GinMiddleware(log.L(), "/health"))

	httpHandler.RegisterRoutes(router)
	wsHandler.RegisterRoutes(router)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		l.Info().Str("addr", addr).Str("pubsub", cfg.PubSub.Driver).Str("messages", cfg.Messages.Driver).Msg("messaging-service starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	l.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("server forced to shutdown")
	}
	wsHub.Stop()

	l.Info().Msg("server exited")
}
