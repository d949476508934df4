package main

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"paygate/internal/auth"
	"paygate/internal/db"
	"paygate/internal/db/migrations"
	"paygate/internal/domain/auditlog"
	"paygate/internal/domain/channels"
	"paygate/internal/domain/orders"
	"paygate/internal/domain/storage"
	"paygate/internal/gateway"
	"paygate/internal/lock"
	"paygate/internal/payments"
	"paygate/internal/ratelimiter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoadRateLimiterConfig retrieves rate limiter settings from environment variables
func LoadRateLimiterConfig() ratelimiter.Config {
	defaultRequests := 200
	defaultEnabled := false

	requestsPerTimeFrame := defaultRequests
	if val, exists := os.LookupEnv("RATELIMITER_REQUESTS_COUNT"); exists {
		if parsedVal, err := strconv.Atoi(val); err == nil {
			requestsPerTimeFrame = parsedVal
		} else {
			fmt.Println("Invalid RATELIMITER_REQUESTS_COUNT, defaulting to", defaultRequests)
		}
	}

	enabled := defaultEnabled
	if val, exists := os.LookupEnv("RATE_LIMITER_ENABLED"); exists {
		if parsedVal, err := strconv.ParseBool(val); err == nil {
			enabled = parsedVal
		} else {
			fmt.Println("Invalid RATE_LIMITER_ENABLED, defaulting to", defaultEnabled)
		}
	}

	return ratelimiter.Config{
		RequestsPerTimeFrame: requestsPerTimeFrame,
		TimeFrame:            5 * time.Second,
		Enabled:              enabled,
	}
}

// NewLogger creates a new zap logger with color.
func NewLogger() (*zap.SugaredLogger, error) {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	core := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stdout), zapcore.InfoLevel)

	return zap.New(core).Sugar(), nil
}

var version = "0.3.0"

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func loadConfig() (config, error) {
	maxConns, err := intEnv("DB_MAX_CONNS", 30)
	if err != nil {
		return config{}, err
	}
	statementTimeout, err := durationEnv("DB_STATEMENT_TIMEOUT", 5*time.Second)
	if err != nil {
		return config{}, err
	}
	lockTTL, err := durationEnv("ORDER_LOCK_TTL", 30*time.Second)
	if err != nil {
		return config{}, err
	}
	expiry, err := durationEnv("ORDER_EXPIRY", gateway.DefaultOrderExpiry)
	if err != nil {
		return config{}, err
	}
	channelTimeout, err := durationEnv("CHANNEL_TIMEOUT", gateway.DefaultChannelTimeout)
	if err != nil {
		return config{}, err
	}
	tzOffset, err := intEnv("TRADE_NO_TZ_OFFSET_HOURS", 8)
	if err != nil {
		return config{}, err
	}
	tokenTTL, err := durationEnv("AUTH_TOKEN_TTL", 24*time.Hour)
	if err != nil {
		return config{}, err
	}

	return config{
		addr:    getenv("ADDR", ":8080"),
		env:     getenv("ENV", "development"),
		storage: getenv("STORAGE", "postgres"),
		db: dbConfig{
			addr:             os.Getenv("DB_ADDR"),
			maxConns:         int32(maxConns),
			maxIdleTime:      getenv("DB_MAX_IDLE_TIME", "15m"),
			statementTimeout: statementTimeout,
		},
		redis: redisConfig{
			addr:     os.Getenv("REDIS_ADDR"),
			password: os.Getenv("REDIS_PASSWORD"),
			lockTTL:  lockTTL,
		},
		audit: auditConfig{
			sink:     getenv("AUDIT_SINK", "postgres"),
			table:    getenv("AUDIT_DYNAMODB_TABLE", "payment_logs"),
			region:   getenv("AWS_REGION", "us-east-1"),
			endpoint: os.Getenv("DYNAMODB_ENDPOINT"),
		},
		payments: paymentsConfig{
			orderExpiry:    expiry,
			channelTimeout: channelTimeout,
			tzOffsetHours:  tzOffset,
			reloadSpec:     getenv("CHANNEL_RELOAD_SPEC", "@every 5m"),
			channelsFile:   os.Getenv("CHANNELS_FILE"),
			wechatBaseURL:  getenv("WECHAT_API_BASE", payments.DefaultWechatBaseURL),
		},
		auth: authConfig{
			basic: basicConfig{
				user: os.Getenv("AUTH_BASIC_USER"),
				pass: os.Getenv("AUTH_BASIC_PASS"),
			},
			token: tokenConfig{
				secret: os.Getenv("AUTH_TOKEN_SECRET"),
				iss:    getenv("AUTH_TOKEN_ISS", "paygate"),
				aud:    getenv("AUTH_TOKEN_AUD", "paygate-clients"),
				exp:    tokenTTL,
			},
		},
		rateLimiter: LoadRateLimiterConfig(),
	}, nil
}

// loadChannelsFile reads a JSON array of channel configurations for the
// in-memory store.
func loadChannelsFile(path string) (channels.StaticSource, error) {
	if path == "" {
		return channels.StaticSource{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []channels.Config
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return channels.StaticSource(out), nil
}

func newAdapterRegistry(cfg paymentsConfig) *payments.Registry {
	// Per-call deadlines come from the request context.
	httpClient := &http.Client{}

	adapters := payments.NewRegistry()
	adapters.Register(payments.PayWayWechatMweb, payments.NewWechatMwebAdapter(cfg.wechatBaseURL, httpClient))
	adapters.Register(payments.PayWayWechatMini, payments.NewWechatMiniAdapter(cfg.wechatBaseURL, httpClient))
	adapters.Register(payments.PayWayMercadoPago, payments.NewMercadoPagoAdapter())
	return adapters
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file loaded, using process environment")
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := NewLogger()
	if err != nil {
		fmt.Println("Error creating logger:", err)
		return
	}
	defer logger.Sync()

	ctx := context.Background()

	var (
		store  storage.Transactor
		source channels.Source
		pool   *pgxpool.Pool
	)
	switch cfg.storage {
	case "memory":
		static, err := loadChannelsFile(cfg.payments.channelsFile)
		if err != nil {
			logger.Fatal(err)
		}
		store, source = storage.NewMemory(), static
		logger.Warnw("using in-memory storage", "channels", len(static))
	default:
		pool, err = db.New(db.Config{
			Addr:             cfg.db.addr,
			MaxConns:         cfg.db.maxConns,
			MaxIdleTime:      cfg.db.maxIdleTime,
			StatementTimeout: cfg.db.statementTimeout,
		})
		if err != nil {
			logger.Fatal(err)
		}
		defer pool.Close()
		logger.Info("database connection pool established")

		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Infow("migrations applied", "files", applied)

		container := storage.NewContainer(pool)
		if cfg.audit.sink == "dynamodb" {
			ddb, err := auditlog.NewDynamoClient(ctx, cfg.audit.region, cfg.audit.endpoint)
			if err != nil {
				logger.Fatal(err)
			}
			container.UseAuditSink(auditlog.NewDynamoStore(ddb, cfg.audit.table))
			logger.Infow("audit log sink", "sink", "dynamodb", "table", cfg.audit.table)
		}
		store, source = container, container.Channels
	}

	registry := channels.NewRegistry(source, logger)
	if err := registry.Reload(ctx); err != nil {
		logger.Fatal(err)
	}

	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.payments.reloadSpec, func() {
		reloadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := registry.Reload(reloadCtx); err != nil {
			logger.Errorw("channel registry reload failed", "err", err)
		}
	}); err != nil {
		logger.Fatalw("invalid CHANNEL_RELOAD_SPEC", "spec", cfg.payments.reloadSpec, "err", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	var locker lock.KeyLocker = lock.NewLocalLocker()
	if cfg.redis.addr != "" {
		rdb := lock.NewRedisClient(cfg.redis.addr, cfg.redis.password)
		defer rdb.Close()
		locker = lock.NewRedsyncLocker(rdb, cfg.redis.lockTTL, logger)
		logger.Infow("order locks backed by redis", "addr", cfg.redis.addr)
	}

	svc := gateway.NewService(store, registry, newAdapterRegistry(cfg.payments), logger,
		gateway.WithOrderExpiry(cfg.payments.orderExpiry),
		gateway.WithChannelTimeout(cfg.payments.channelTimeout),
		gateway.WithNumberFormatter(orders.NewNumberFormatter(time.FixedZone("trade", cfg.payments.tzOffsetHours*60*60))),
		gateway.WithLocker(locker),
	)

	app := &application{
		config:        cfg,
		logger:        logger,
		gateway:       svc,
		channels:      registry,
		authenticator: auth.NewJWTAuthenticator(cfg.auth.token.secret, cfg.auth.token.aud, cfg.auth.token.iss),
		rateLimiter: ratelimiter.NewFixedWindowLimiter(
			cfg.rateLimiter.RequestsPerTimeFrame,
			cfg.rateLimiter.TimeFrame,
		),
	}

	// Metrics collected at /v1/debug/vars
	expvar.NewString("version").Set(version)
	if pool != nil {
		expvar.Publish("database", expvar.Func(func() any {
			s := pool.Stat()
			return map[string]int32{"total": s.TotalConns(), "idle": s.IdleConns(), "acquired": s.AcquiredConns()}
		}))
	}
	expvar.Publish("goroutines", expvar.Func(func() any {
		return runtime.NumGoroutine()
	}))

	mux := app.mount()

	logger.Fatal(app.run(mux))
}
