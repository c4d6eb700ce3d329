package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/learnonline/commerce/internal/service/cart"
	"github.com/learnonline/commerce/internal/service/checkout"
	"github.com/learnonline/commerce/internal/service/processor"
	"github.com/learnonline/commerce/internal/service/refund"
	"github.com/learnonline/commerce/internal/service/webhook"
)

const (
	defaultRequestTimeout = 30 * time.Second
	maxBodyBytes          = 1 << 20 // 1MB
)

// Server собирает HTTP API: корзина, checkout, приём событий процессора и
// административные операции.
type Server struct {
	carts      *cart.Service
	checkout   *checkout.Orchestrator
	refunds    *refund.Processor
	gateway    *webhook.Gateway
	procConfig *processor.Config
	adminToken string
	logger     *log.Entry
}

// NewServer создаёт HTTP API сервер.
func NewServer(
	carts *cart.Service,
	co *checkout.Orchestrator,
	refunds *refund.Processor,
	gateway *webhook.Gateway,
	procConfig *processor.Config,
	adminToken string,
	logger *log.Entry,
) *Server {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Server{
		carts:      carts,
		checkout:   co,
		refunds:    refunds,
		gateway:    gateway,
		procConfig: procConfig,
		adminToken: adminToken,
		logger:     logger,
	}
}

// Router собирает chi-роутер со всеми маршрутами API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(defaultRequestTimeout))

	r.Route("/api/v1", func(r chi.Router) {
		// Webhook идёт до session middleware: подпись проверяется по сырому
		// телу, cookie здесь не нужны.
		r.Post("/webhooks/processor", s.handleWebhook)

		r.Group(func(r chi.Router) {
			r.Use(s.sessionMiddleware)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", s.handleGetCart)
				r.Delete("/", s.handleClearCart)
				r.Post("/items", s.handleAddItem)
				r.Put("/items/{itemID}", s.handleSetQuantity)
				r.Delete("/items/{itemID}", s.handleRemoveItem)
			})

			r.Post("/checkout", s.handleCheckout)
			r.Get("/orders/{orderID}", s.handleGetOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(s.adminMiddleware)

			r.Post("/orders/{orderID}/refund", s.handleRefund)
			r.Post("/orders/{orderID}/cancel", s.handleCancelOrder)
			r.Get("/processor-config", s.handleGetProcessorConfig)
			r.Put("/processor-config", s.handlePutProcessorConfig)
		})
	})

	return r
}
