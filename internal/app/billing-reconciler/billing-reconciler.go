package billingreconciler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"

	"github.com/mealbook/billing-reconciler/internal/audit"
	"github.com/mealbook/billing-reconciler/internal/cache"
	"github.com/mealbook/billing-reconciler/internal/config"
	"github.com/mealbook/billing-reconciler/internal/lib/jwt"
	"github.com/mealbook/billing-reconciler/internal/lib/signature"
	"github.com/mealbook/billing-reconciler/internal/migrations"
	"github.com/mealbook/billing-reconciler/internal/paymentprovider"
	"github.com/mealbook/billing-reconciler/internal/services/entitlement"
	"github.com/mealbook/billing-reconciler/internal/services/reconciler"
	"github.com/mealbook/billing-reconciler/internal/storage/repository"
)

type App struct {
	server   *http.Server
	logger   *slog.Logger
	db       *repository.Storage
	auditCon io.Closer
}

// New собирает сервис: хранилище, кеш, очередь аудита и клиентов провайдера.
// Все обязательные зависимости создаются здесь и передаются явно; сбой любой
// из них — сбой старта, запросы не принимаются с полурабочими клиентами.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	db, err := repository.New(cfg.StorageConnectionString)
	if err != nil {
		return nil, err
	}
	if err = migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
		return nil, err
	}

	cacheRedis, err := cache.InitServer(ctx, cfg.RedisConnection)
	if err != nil {
		return nil, err
	}

	auditConn, err := audit.Connect(cfg.AuditQueue.AMQPURL, 5, 2*time.Second)
	if err != nil {
		return nil, err
	}
	auditPublisher, err := audit.NewPublisher(auditConn, cfg.AuditQueue.Exchange)
	if err != nil {
		return nil, err
	}

	verifier := signature.NewVerifier(cfg.Webhook.Secret, cfg.Webhook.Tolerance)
	providerClient := paymentprovider.NewClient(cfg.PaymentProvider)
	jwtMaker := jwt.NewJWTMaker(cfg.JWTToken.JWTSecretKey, cfg.JWTToken.TokenTTL)

	reconcilerService := reconciler.New(db, cacheRedis, auditPublisher, logger)
	entitlementService := entitlement.New(db, cacheRedis, logger)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, verifier, reconcilerService, entitlementService, providerClient, jwtMaker, db)

	srv := &http.Server{
		Addr:         cfg.AddressHTTP,
		Handler:      router,
		ReadTimeout:  cfg.TimeoutHTTP,
		WriteTimeout: cfg.TimeoutHTTP,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return &App{
		server:   srv,
		logger:   logger,
		db:       db,
		auditCon: auditConn,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		_ = a.auditCon.Close()
		_ = a.db.DB.Close()
		return err
	}
}
