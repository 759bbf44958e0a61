package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"github.com/AnshRaj112/expense-tracker-backend/internal/config"
	"github.com/AnshRaj112/expense-tracker-backend/internal/database"
	"github.com/AnshRaj112/expense-tracker-backend/internal/logger"
	"github.com/AnshRaj112/expense-tracker-backend/internal/routes"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

const shutdownTimeout = 15 * time.Second

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("invalid configuration", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer log.Sync()

	if envErr != nil {
		log.Debug("no .env file found")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var cipher *utils.FieldCipher
	if cfg.EncryptionKey == "" {
		log.Warn("ENCRYPTION_KEY not set; phone numbers are stored unencrypted",
			zap.String("hint", "generate a key with: openssl rand -base64 32"))
	} else {
		c, err := utils.NewFieldCipher(cfg.EncryptionKey)
		if err != nil {
			return err
		}
		cipher = c
	}

	log.Info("connecting to database", zap.String("driver", cfg.DatabaseDriver))
	db, err := database.Open(ctx, database.Dialect(cfg.DatabaseDriver), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	var redisClient *redis.Client
	if cfg.RedisURI != "" {
		redisClient, err = database.ConnectRedis(ctx, cfg.RedisURI)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		log.Info("redis connected")
	} else {
		log.Info("REDIS_URI not set; using in-process rate limiting and event fan-out")
	}

	var (
		mongoClient *mongo.Client
		audit       services.AuditLog
	)
	if cfg.MongoURI != "" {
		client, mdb, err := database.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return err
		}
		defer database.DisconnectMongo(client)
		mongoClient = client

		auditLog := services.NewMongoAuditLog(mdb, log)
		if err := auditLog.EnsureIndexes(ctx); err != nil {
			log.Warn("failed to ensure auth event indexes", zap.Error(err))
		}
		audit = auditLog
		log.Info("mongodb connected", zap.String("database", mdb.Name()))
	} else {
		log.Info("MONGODB_URI not set; authentication events are not recorded")
	}

	var uploader services.AvatarUploader
	if cfg.CloudinaryConfigured() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Warn("profile picture uploads disabled", zap.Error(err))
		} else {
			uploader = cld
		}
	} else {
		log.Info("cloudinary credentials not found; profile picture uploads disabled")
	}

	tokens := services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	auth := services.NewAuthService(
		database.NewUserStore(db, cipher).WithLogger(log),
		utils.NewPasswordHasher(utils.DefaultArgon2Params),
		tokens,
		audit,
		services.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration},
		log,
	)

	hub := services.NewExpenseHub(redisClient, log)
	go hub.Run(ctx)

	handler := routes.NewRouter(ctx, routes.Deps{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Redis:     redisClient,
		Mongo:     mongoClient,
		Tokens:    tokens,
		Auth:      auth,
		Expenses:  services.NewExpenseService(database.NewExpenseStore(db), hub, log),
		Hub:       hub,
		Uploader:  uploader,
		Validator: validation.New(),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("expense tracker backend listening",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Environment),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
