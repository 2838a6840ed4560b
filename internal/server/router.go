package server

import (
	"net/http"
	"net/netip"
	"time"

	"storefront/internal/handlers"
	"storefront/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects everything the HTTP surface is built from.
type RouterConfig struct {
	Health   *handlers.HealthHandler
	Cart     *handlers.CartHandler
	Orders   *handlers.OrderHandler
	Admin    *handlers.AdminHandler
	Payments *handlers.PaymentHandler
	Status   *handlers.StatusHandler

	// Limiter guards order creation, payment verification and the status
	// socket.
	Limiter     middleware.RateLimiter
	AdminToken  string
	FrontendURL string
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []netip.Prefix
	// RequestTimeout bounds non-streaming requests. Zero disables it.
	RequestTimeout time.Duration
}

// NewRouter builds the storefront API router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(middleware.ClientIPMiddleware(cfg.TrustedProxies))
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.ErrorHandlingMiddleware)
	r.Use(middleware.SecurityHeadersMiddleware)
	r.Use(middleware.CORSMiddleware(middleware.DefaultCORSConfig(cfg.FrontendURL)))

	r.NotFound(middleware.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", cfg.Health.Health)

	// Paystack webhook: authenticated by signature, never rate limited
	r.Post("/webhook", cfg.Payments.PaystackWebhook)

	r.Route("/cart", func(r chi.Router) {
		r.Use(requestTimeout(cfg.RequestTimeout))
		r.Post("/", cfg.Cart.AddToCart)
		// On GET the id segment is the user id; elsewhere it is a line id
		r.Get("/{id}", cfg.Cart.GetCart)
		r.Post("/clear/{userID}", cfg.Cart.ClearCart)
		r.Put("/{id}", cfg.Cart.UpdateCartItem)
		r.Post("/{id}", cfg.Cart.UpdateCartItem)
		r.Delete("/{id}", cfg.Cart.RemoveFromCart)
	})

	r.Route("/orders", func(r chi.Router) {
		// The status socket is long-lived and must not sit behind a timeout
		r.With(middleware.RateLimit(cfg.Limiter, "ws")).Get("/{reference}/ws", cfg.Status.OrderStatusSocket)

		r.Group(func(r chi.Router) {
			r.Use(requestTimeout(cfg.RequestTimeout))
			r.With(middleware.RateLimit(cfg.Limiter, "orders")).Post("/", cfg.Orders.CreateOrder)
			r.Get("/{reference}", cfg.Orders.GetOrder)
			r.With(middleware.RateLimit(cfg.Limiter, "verify")).Get("/{reference}/verify", cfg.Orders.VerifyPayment)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAdminToken(cfg.AdminToken))
				r.Post("/{reference}/delivery-fee", cfg.Admin.QuoteDeliveryFee)
				r.Get("/{reference}/payments", cfg.Admin.PaymentHistory)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requestTimeout(cfg.RequestTimeout))
		r.Use(middleware.RequireAdminToken(cfg.AdminToken))
		r.Get("/orders", cfg.Admin.ListOrders)
	})

	return r
}

func requestTimeout(d time.Duration) func(http.Handler) http.Handler {
	if d <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return chimiddleware.Timeout(d)
}
