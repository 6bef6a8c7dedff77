package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/adapters/events"
	"github.com/layer-3/walletauth/adapters/store"
	"github.com/layer-3/walletauth/adapters/tokenizer"
	"github.com/layer-3/walletauth/config"
	"github.com/layer-3/walletauth/internal/logging"
	"github.com/layer-3/walletauth/internal/metrics"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
	transport "github.com/layer-3/walletauth/transport/http"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	flags := pflag.NewFlagSet("walletauthd", pflag.ExitOnError)
	config.RegisterFlags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("walletauthd stopped", "error", err)
		os.Exit(1)
	}
}

type backends struct {
	nonces    ports.NonceStore
	tokens    ports.Store
	publisher message.Publisher
	sweep     func(ctx context.Context)
	close     func()
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	privateKey, ephemeral, err := cfg.PrivateKey()
	if err != nil {
		return err
	}
	if ephemeral {
		logger.Warn("no signing key configured, using an ephemeral one; tokens will not survive a restart")
	}

	b, err := newBackends(cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithNonceTTL(cfg.NonceTTL),
		service.WithSessionTTL(cfg.AccessTTL, cfg.RefreshTTL),
	}
	eventPub := events.NewWatermillPublisher(b.publisher, events.DefaultTopics(cfg.EventTopicPrefix))
	authService := service.NewAuthService(tokenizer.NewJWTTokenizer(privateKey, cfg.JWTIssuer), b.tokens, eventPub, opts...)
	nonceService := service.NewNonceService(b.nonces, opts...)
	authenticator := service.NewAuthenticator(nonceService, authService, eventPub, opts...)

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           transport.SetupRouter(authenticator, authService, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go b.sweep(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// newBackends picks Redis when a URL is configured and in-process stores otherwise
func newBackends(cfg *config.Config, logger *slog.Logger) (*backends, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	if cfg.RedisURL == "" {
		logger.Info("no redis configured, keeping state in memory")
		nonces := store.NewMemoryNonceStore()
		tokens := store.NewMemoryStore()
		publisher := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)

		return &backends{
			nonces:    nonces,
			tokens:    tokens,
			publisher: publisher,
			sweep: func(ctx context.Context) {
				nonces.RunSweeper(ctx, cfg.SweepInterval, time.Now, func(removed int) {
					metrics.NoncesSwept(removed)
					logger.Debug("swept expired entries", "challenges", removed, "revocations", tokens.Sweep(time.Now()))
				})
			},
			close: func() {
				if err := publisher.Close(); err != nil {
					logger.Warn("failed to close publisher", "error", err)
				}
			},
		}, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisClient := redis.NewClient(opts)

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		wmLogger,
	)
	if err != nil {
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}

	return &backends{
		nonces:    store.NewRedisNonceStore(redisClient),
		tokens:    store.NewRedisStore(redisClient),
		publisher: publisher,
		// Redis expires keys itself
		sweep: func(context.Context) {},
		close: func() {
			if err := publisher.Close(); err != nil {
				logger.Warn("failed to close publisher", "error", err)
			}
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed to close redis client", "error", err)
			}
		},
	}, nil
}
