package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/vedran77/pulsecore/internal/config"
	"github.com/vedran77/pulsecore/internal/database"
	"github.com/vedran77/pulsecore/internal/events"
	"github.com/vedran77/pulsecore/internal/logger"
	"github.com/vedran77/pulsecore/internal/metrics"
	"github.com/vedran77/pulsecore/internal/repository"
	"github.com/vedran77/pulsecore/internal/repository/memory"
	postgresrepo "github.com/vedran77/pulsecore/internal/repository/postgres"
	"github.com/vedran77/pulsecore/internal/service"
	"github.com/vedran77/pulsecore/internal/transport/http/handlers"
	"github.com/vedran77/pulsecore/internal/transport/http/middleware"
)

type stores struct {
	messages      repository.MessageRepository
	conversations repository.ConversationRepository
	cursors       repository.ReadCursorRepository
	members       repository.MembershipProvider
	identities    repository.IdentityProvider
	close         func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatal(err)
	}
	defer lg.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Storage
	s, err := openStores(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("storage init failed", "driver", cfg.StoreDriver, "error", err)
	}
	defer s.close()

	// Events
	var publisher events.Publisher = events.Noop{}
	if cfg.RedisAddr != "" {
		rp, err := events.NewRedisPublisher(cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			lg.Fatal("redis init failed", "addr", cfg.RedisAddr, "error", err)
		}
		publisher = rp
		lg.Info("publishing events to redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	}
	defer publisher.Close()

	// Services
	st := service.NewStorage(cfg.StorageTimeout, cfg.RetryDelay, m, lg)
	access := service.NewAccess(s.members, st)
	messages := service.NewMessageStore(s.messages, access, st, m)
	index := service.NewConversationIndex(s.conversations, s.messages, s.cursors, s.members, s.identities, st)
	threads := service.NewThreadEngine(messages, s.messages, access, st)
	reads := service.NewReadStateTracker(s.cursors, s.conversations, messages, index, access, st, m)
	delivery := service.NewDelivery(messages, index, threads, reads, publisher, lg)

	// Routes
	mux := http.NewServeMux()

	// Public
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	mux.Handle("GET /metrics", metrics.Handler(reg))

	// Protected
	limiter := middleware.NewWriteLimiter(cfg.WriteRatePerSec, cfg.WriteBurst)
	handlers.Register(mux, delivery, lg, middleware.Auth(cfg.JWTSecret), limiter.Limit)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           middleware.RequestLog(lg, m)(middleware.CORS(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			lg.Error("shutdown failed", "error", err)
		}
	}()

	lg.Info("starting server", "addr", srv.Addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Fatal("server failed", "error", err)
	}
	lg.Info("server stopped")
}

func openStores(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*stores, error) {
	if cfg.StoreDriver == "memory" {
		store := memory.NewStore()
		dir := memory.NewDirectory()
		lg.Warn("using in-memory store; data is lost on restart and the directory starts empty")
		return &stores{
			messages:      store,
			conversations: store,
			cursors:       store,
			members:       dir,
			identities:    dir,
			close:         func() {},
		}, nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pool, err := database.Connect(connectCtx, cfg)
	if err != nil {
		return nil, err
	}
	lg.Info("connected to database", "host", cfg.DBHost, "name", cfg.DBName)

	if cfg.DBMigrate {
		if err := database.Migrate(connectCtx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		lg.Info("schema applied")
	}

	return &stores{
		messages:      postgresrepo.NewMessageRepo(pool),
		conversations: postgresrepo.NewConversationRepo(pool),
		cursors:       postgresrepo.NewReadCursorRepo(pool),
		members:       postgresrepo.NewMembershipRepo(pool),
		identities:    postgresrepo.NewIdentityRepo(pool),
		close:         pool.Close,
	}, nil
}
