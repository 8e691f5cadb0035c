package api

import (
	"net/http"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/example/storefront/internal/api/middleware"
	"github.com/example/storefront/internal/auth"
	"github.com/example/storefront/internal/ratelimit"
)

// RouterConfig carries the cross-cutting pieces the router wires
// around handlers.
type RouterConfig struct {
	JWTService      *auth.JWTService
	CheckoutLimiter ratelimit.Limiter
}

func NewRouter(handlers *Handlers, authHandlers *AuthHandlers, admin *AdminHandlers, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	requireOperator := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(cfg.JWTService)(
			middleware.RequireRole(auth.RoleOperator)(h))
	}

	// Storefront
	mux.HandleFunc("/products", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetProducts(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	checkoutHandler := middleware.RateLimit(cfg.CheckoutLimiter)(http.HandlerFunc(handlers.Checkout))
	mux.HandleFunc("/checkout", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			checkoutHandler.ServeHTTP(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Provider callbacks
	mux.HandleFunc("/webhook", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.Webhook(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Auth
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			authHandlers.Login(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Admin
	mux.Handle("/admin/products", requireOperator(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			admin.CreateProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/admin/products/", requireOperator(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			admin.UpdateProduct(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/admin/reservations", requireOperator(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			admin.GetReservations(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/admin/sessions", requireOperator(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			admin.GetSessions(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/admin/refund", requireOperator(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			admin.Refund(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	mux.Handle("/admin/webhook", requireOperator(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			admin.SetupWebhook(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	}))

	return withLogging(mux)
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		zlog.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
