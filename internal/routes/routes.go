package routes

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/config"
	"github.com/AnshRaj112/expense-tracker-backend/internal/handlers"
	"github.com/AnshRaj112/expense-tracker-backend/internal/middleware"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/clientip"
)

// Deps carries everything the router needs. Redis, Mongo and Uploader may
// be nil.
type Deps struct {
	Config    *config.Config
	Logger    *zap.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Mongo     *mongo.Client
	Tokens    *services.TokenService
	Auth      *services.AuthService
	Expenses  *services.ExpenseService
	Hub       *services.ExpenseHub
	Uploader  services.AvatarUploader
	Validator *validation.Validator
}

// NewRouter builds the HTTP handler. Background goroutines started for rate
// limiter cleanup stop when ctx is done.
func NewRouter(ctx context.Context, d Deps) http.Handler {
	cfg := d.Config
	resolver := clientip.Resolver{TrustProxy: cfg.TrustProxy}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(d.Logger, resolver))
	r.Use(chimw.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	if cfg.IsProduction() {
		for _, mw := range middleware.ProductionSecurity(ctx, cfg.AllowedHost, resolver) {
			r.Use(mw)
		}
	}
	if d.Redis != nil {
		r.Use(middleware.NewRedisRateLimiter(d.Redis, resolver, d.Logger).Middleware(middleware.AuthPaths))
	} else {
		r.Use(middleware.MemoryAuthRateLimit(ctx, resolver))
	}

	health := handlers.NewHealthHandler(d.DB, d.Redis, d.Mongo)
	authHandler := handlers.NewAuthHandler(d.Auth, d.Validator, d.Logger)
	users := handlers.NewUserHandler(d.Auth, d.Uploader, d.Validator, d.Logger)
	expenses := handlers.NewExpenseHandler(d.Auth, d.Expenses, d.Validator, d.Logger)
	feed := handlers.NewExpenseFeedHandler(d.Auth, d.Hub, cfg.AllowedOrigins, d.Logger)

	r.Get("/health", health.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/categories", handlers.Categories)

	r.Post("/api/users/register", authHandler.Register)
	r.Post("/api/users/login", authHandler.Login)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(d.Tokens))

		r.Get("/api/users/me", users.Me)
		r.Get("/api/users/me/login-history", users.LoginHistory)
		r.Get("/api/users/{id}/profile", users.GetProfile)
		r.Put("/api/users/{id}/profile", users.UpdateProfile)
		r.Post("/api/users/{id}/profile/picture", users.UploadPicture)

		r.Get("/api/expenses", expenses.List)
		r.Post("/api/expenses", expenses.Create)
		r.Get("/api/expenses/{id}", expenses.Get)
		r.Put("/api/expenses/{id}", expenses.Update)
		r.Delete("/api/expenses/{id}", expenses.Delete)

		r.Get("/ws/expenses", feed.Serve)
	})

	return r
}
