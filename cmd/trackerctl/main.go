package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/AnshRaj112/expense-tracker-backend/internal/config"
	"github.com/AnshRaj112/expense-tracker-backend/internal/database"
	"github.com/AnshRaj112/expense-tracker-backend/internal/logger"
	"github.com/AnshRaj112/expense-tracker-backend/internal/middleware"
	"github.com/AnshRaj112/expense-tracker-backend/internal/models"
	"github.com/AnshRaj112/expense-tracker-backend/internal/services"
	"github.com/AnshRaj112/expense-tracker-backend/internal/validation"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/clientip"
	"github.com/AnshRaj112/expense-tracker-backend/pkg/utils"
)

const usage = `Usage: trackerctl <command> [flags]

Commands:
  adduser    -email <email> -username <name> -first <name> -last <name> -accept-terms
  unlock     <email>        clear a login lockout
  disable    <email>        block an account from logging in
  enable     <email>        re-enable a disabled account
  unblock-ip <ip>           lift a login rate limit block (requires REDIS_URI)

Every command accepts -driver and -db to override DB_DRIVER and DATABASE_URL.`

func main() {
	_ = godotenv.Load()

	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return errors.New("missing command")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.WithComponent(logger.New("error", cfg.Environment), "trackerctl")
	ctx := context.Background()

	switch cmd, rest := args[0], args[1:]; cmd {
	case "adduser":
		return addUser(ctx, cfg, log, rest, stdin, stdout, stderr)
	case "unlock", "disable", "enable":
		return accountCommand(ctx, cfg, log, cmd, rest, stdout, stderr)
	case "unblock-ip":
		return unblockIP(ctx, cfg, log, rest, stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage)
		return flag.ErrHelp
	default:
		fmt.Fprintln(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// dbFlags registers the database overrides shared by every command.
func dbFlags(fs *flag.FlagSet, cfg *config.Config) (driver, dsn *string) {
	driver = fs.String("driver", cfg.DatabaseDriver, "Database driver: postgres or sqlite")
	dsn = fs.String("db", cfg.DatabaseURL, "Database URL or SQLite file path")
	return driver, dsn
}

func openDB(ctx context.Context, cfg *config.Config, log *zap.Logger, driver, dsn string) (*sql.DB, *database.UserStore, error) {
	var cipher *utils.FieldCipher
	if cfg.EncryptionKey != "" {
		c, err := utils.NewFieldCipher(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		cipher = c
	}

	db, err := database.Open(ctx, database.Dialect(driver), dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, database.NewUserStore(db, cipher).WithLogger(log), nil
}

func newAuthService(cfg *config.Config, users *database.UserStore, log *zap.Logger) *services.AuthService {
	return services.NewAuthService(
		users,
		utils.NewPasswordHasher(utils.DefaultArgon2Params),
		services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL),
		nil,
		services.LockoutPolicy{Threshold: cfg.LockoutThreshold, Duration: cfg.LockoutDuration},
		log,
	)
}

func addUser(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("adduser", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver, dsn := dbFlags(fs, cfg)
	email := fs.String("email", "", "Email address (login key)")
	username := fs.String("username", "", "Username")
	firstName := fs.String("first", "", "First name")
	lastName := fs.String("last", "", "Last name")
	passwordFlag := fs.String("password", "", "Password (optional, will prompt if omitted)")
	acceptTerms := fs.Bool("accept-terms", false, "Record acceptance of the terms and privacy policy on the user's behalf")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *username == "" {
		fs.PrintDefaults()
		return errors.New("missing required flags: email, username")
	}

	password := *passwordFlag
	if password == "" {
		fmt.Fprint(stdout, "Password: ")
		var err error
		password, err = readPassword(stdin)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(stdout)
	}

	req := models.RegisterRequest{
		Email:                 *email,
		Password:              password,
		Username:              *username,
		FirstName:             *firstName,
		LastName:              *lastName,
		TermsAccepted:         *acceptTerms,
		PrivacyPolicyAccepted: *acceptTerms,
	}
	if err := validation.New().Struct(req); err != nil {
		return err
	}

	db, users, err := openDB(ctx, cfg, log, *driver, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	profile, err := newAuthService(cfg, users, log).RegisterUser(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	fmt.Fprintf(stdout, "User %s created successfully with ID %s\n", profile.Email, profile.ID)
	return nil
}

func accountCommand(ctx context.Context, cfg *config.Config, log *zap.Logger, cmd string, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver, dsn := dbFlags(fs, cfg)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: trackerctl %s <email>", cmd)
	}
	email := utils.NormalizeEmail(fs.Arg(0))

	db, users, err := openDB(ctx, cfg, log, *driver, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if cmd == "unlock" {
		if err := newAuthService(cfg, users, log).UnlockUser(ctx, email); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Account %s unlocked\n", email)
		return nil
	}

	user, err := users.FindByEmail(ctx, email)
	if errors.Is(err, database.ErrNotFound) {
		return services.ErrUserNotFound
	}
	if err != nil {
		return err
	}
	enabled := cmd == "enable"
	if err := users.SetEnabled(ctx, user.ID, enabled, time.Now().UTC()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Account %s %sd\n", email, cmd)
	return nil
}

func unblockIP(ctx context.Context, cfg *config.Config, log *zap.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("unblock-ip", flag.ContinueOnError)
	fs.SetOutput(stderr)
	redisURI := fs.String("redis", cfg.RedisURI, "Redis URL")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: trackerctl unblock-ip <ip>")
	}
	if *redisURI == "" {
		return errors.New("REDIS_URI is not set; in-process limits reset on restart")
	}

	client, err := database.ConnectRedis(ctx, *redisURI)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer client.Close()

	limiter := middleware.NewRedisRateLimiter(client, clientip.Resolver{TrustProxy: cfg.TrustProxy}, log)
	ip := strings.TrimSpace(fs.Arg(0))
	if err := limiter.UnblockIP(ctx, ip); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "IP %s unblocked\n", ip)
	return nil
}

func readPassword(stdin io.Reader) (string, error) {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Pipes and tests supply the password as the first line.
	scanner := bufio.NewScanner(stdin)
	if scanner.Scan() {
		return scanner.Text(), nil
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}
