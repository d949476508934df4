package main

import (
	"context"
	"errors"
	"expvar"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"paygate/internal/auth"
	"paygate/internal/domain/channels"
	"paygate/internal/gateway"
	"paygate/internal/ratelimiter"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type application struct {
	config        config
	logger        *zap.SugaredLogger
	gateway       *gateway.Service
	channels      *channels.Registry
	authenticator auth.Authenticator
	rateLimiter   ratelimiter.Limiter
}

type config struct {
	addr        string
	env         string
	storage     string
	db          dbConfig
	redis       redisConfig
	audit       auditConfig
	payments    paymentsConfig
	auth        authConfig
	rateLimiter ratelimiter.Config
}

type authConfig struct {
	basic basicConfig
	token tokenConfig
}

type tokenConfig struct {
	secret string
	iss    string
	aud    string
	exp    time.Duration
}

type basicConfig struct {
	user string
	pass string
}

type dbConfig struct {
	addr             string
	maxConns         int32
	maxIdleTime      string
	statementTimeout time.Duration
}

type redisConfig struct {
	addr     string
	password string
	lockTTL  time.Duration
}

type auditConfig struct {
	sink     string
	table    string
	region   string
	endpoint string
}

type paymentsConfig struct {
	orderExpiry    time.Duration
	channelTimeout time.Duration
	tzOffsetHours  int
	reloadSpec     string
	channelsFile   string
	wechatBaseURL  string
}

func (app *application) mount() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", app.healthCheckHandler)
		r.With(app.BasicAuthMiddleware()).Get("/debug/vars", expvar.Handler().ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(app.ClientAuthMiddleware)
			r.Use(app.RateLimiterMiddleware)

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", app.createOrderHandler)
				r.Get("/", app.listOrdersHandler)
				r.Get("/{tradeNo}", app.getOrderHandler)
			})

			r.Route("/refunds", func(r chi.Router) {
				r.Post("/", app.createRefundHandler)
				r.Get("/{refundNo}", app.getRefundHandler)
			})
		})
	})
	return r
}

func (app *application) run(mux http.Handler) error {
	srv := &http.Server{
		Addr:         app.config.addr,
		Handler:      mux,
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 10,
		IdleTimeout:  time.Minute,
	}

	shutdown := make(chan error)

	go func() {
		quit := make(chan os.Signal, 1)

		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		s := <-quit

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		app.logger.Infow("signal caught", "signal", s.String())

		shutdown <- srv.Shutdown(ctx)
	}()

	app.logger.Infow("server has started", "addr", app.config.addr, "env", app.config.env)

	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	err = <-shutdown
	if err != nil {
		return err
	}

	app.logger.Infow("server has stopped", "addr", app.config.addr, "env", app.config.env)

	return nil
}
