package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/account-auth/internal/config"
	"github.com/iliyamo/account-auth/internal/database"
	"github.com/iliyamo/account-auth/internal/handler"
	"github.com/iliyamo/account-auth/internal/logging"
	"github.com/iliyamo/account-auth/internal/queue"
	"github.com/iliyamo/account-auth/internal/repository"
	"github.com/iliyamo/account-auth/internal/router"
	"github.com/iliyamo/account-auth/internal/service"
	"github.com/iliyamo/account-auth/internal/token"
)

func main() {
	if err := run(); err != nil {
		logging.NewJSON("").Error(context.Background(), "server exited", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.NewJSON(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := database.Migrate(ctx, db, cfg.DBDriver)
	if err != nil {
		return err
	}
	log.Info(ctx, "database ready", "driver", cfg.DBDriver, "migrations_applied", applied)

	// Redis is optional; without it the response cache is a pass-through.
	var rdb *redis.Client
	if cfg.Cache.Enabled {
		rdb = config.NewRedisClient(ctx, cfg.Redis)
		if rdb == nil {
			log.Warn(ctx, "redis unavailable, response cache disabled", "addr", cfg.Redis.Address())
		} else {
			defer rdb.Close()
		}
	}

	var events service.EventPublisher = queue.NopPublisher{}
	published := make(chan struct{})
	if cfg.Queue.EventsEnabled {
		async := queue.NewAsyncPublisher(queue.NewAMQPPublisher(cfg.Queue.URL, cfg.Queue.EventsQueueName),
			cfg.Queue.EventsBuffer, log)
		go func() {
			defer close(published)
			async.Run(ctx)
		}()
		events = async
	} else {
		close(published)
	}
	if cfg.Queue.RunConsumer {
		consumer := queue.NewConsumer(cfg.Queue, log)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error(ctx, "auth consumer stopped", "err", err)
			}
		}()
	}

	tokens, err := token.NewIssuer(token.Options{
		AccessSecret:  cfg.JWTSecret,
		RefreshSecret: cfg.RefreshSecret(),
		AccessTTL:     cfg.AccessTTL.Duration(),
		RefreshTTL:    cfg.RefreshTTL.Duration(),
	})
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db, database.DialectFor(cfg.DBDriver))
	verifier := service.NewVerifier(users, cfg.BcryptCost)
	sessions := service.NewSessionManager(users, verifier, tokens,
		service.SessionPolicy{StrictPersist: cfg.StrictRefreshPersist}, events, log)
	profiles := service.NewProfileService(users, tokens, cfg.BcryptCost, events, log)

	e := router.New(cfg, handler.NewAuthHandler(cfg, sessions, profiles, tokens, log), db, rdb)

	addr := ":" + cfg.Port
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "listening", "addr", addr, "env", cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info(shutdownCtx, "shutting down")
	err = e.Shutdown(shutdownCtx)
	// ctx is already cancelled; wait for the event buffer to flush.
	<-published
	return err
}
