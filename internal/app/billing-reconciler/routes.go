// Package billingreconciler предоставляет маршруты сервиса биллинга.
package billingreconciler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/mealbook/billing-reconciler/internal/http/handlers/billingwebhook"
	"github.com/mealbook/billing-reconciler/internal/http/handlers/checkoutcreate"
	"github.com/mealbook/billing-reconciler/internal/http/handlers/health"
	"github.com/mealbook/billing-reconciler/internal/http/handlers/premiumstatus"
	"github.com/mealbook/billing-reconciler/internal/http/middlewarectx"
	"github.com/mealbook/billing-reconciler/internal/lib/jwt"
	"github.com/mealbook/billing-reconciler/internal/paymentprovider"
	"github.com/mealbook/billing-reconciler/internal/services/entitlement"
	"github.com/mealbook/billing-reconciler/internal/services/reconciler"
	"github.com/mealbook/billing-reconciler/internal/storage/repository"
)

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(
	r chi.Router,
	logger *slog.Logger,
	verifier billingwebhook.Verifier,
	reconcilerService *reconciler.Service,
	entitlementService *entitlement.Service,
	providerClient *paymentprovider.Client,
	jwtMaker jwt.Maker,
	storage *repository.Storage,
) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	r.Route("/api/v1/billing", func(r chi.Router) {
		// Провайдер шлёт только POST; на прочие методы отвечаем 405
		// с заголовком Allow, чтобы доставка не уходила в ретраи.
		r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
			if strings.HasSuffix(req.URL.Path, "/webhook") {
				w.Header().Set("Allow", http.MethodPost)
			}
			w.WriteHeader(http.StatusMethodNotAllowed)
		})

		// Вебхук провайдера: аутентификация подписью, не токеном.
		r.Post("/webhook", billingwebhook.New(logger, verifier, reconcilerService).ServeHTTP)

		r.Get("/health", health.New(logger, storage).ServeHTTP)

		// Группа с JWT аутентификацией
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.JWTMiddleware(jwtMaker, logger))
			r.Use(middlewarectx.RateLimitMiddleware(logger))
			r.Post("/checkout", checkoutcreate.New(logger, providerClient).ServeHTTP)
			r.Get("/status", premiumstatus.New(logger, entitlementService).ServeHTTP)
		})
	})

	r.Handle("/metrics", promhttp.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
