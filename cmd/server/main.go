// Package main starts the CourseKeeper development backend: configuration,
// logging, database, repositories, services, handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atinyakov/CourseKeeper/internal/catalog"
	"github.com/atinyakov/CourseKeeper/internal/config"
	"github.com/atinyakov/CourseKeeper/internal/db"
	"github.com/atinyakov/CourseKeeper/internal/logger"
	"github.com/atinyakov/CourseKeeper/internal/repository"
	"github.com/atinyakov/CourseKeeper/internal/server/handler/http"
	"github.com/atinyakov/CourseKeeper/internal/service"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

const shutdownTimeout = 10 * time.Second

func main() {
	options, err := config.ParseServer(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	log := logger.NewWithConfig(logger.Config{Format: options.LogFormat})
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log.With(zap.String(logger.FieldService, "coursekeeper-server"))

	if err := run(options, zapLogger); err != nil {
		zapLogger.Fatal("server stopped", zap.Error(err))
	}
}

func run(options *config.ServerOptions, zapLogger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("cannot init database: %w", err)
	}
	defer postgresDB.Close()

	db.StartJanitor(ctx, postgresDB, options.JanitorInterval, options.PaymentTTL, zapLogger)

	userRepo := repository.NewPostgresUserRepository(postgresDB)
	tokenRepo := repository.NewPostgresTokenRepository(postgresDB)
	paymentRepo := repository.NewPostgresPaymentRepository(postgresDB)

	authService := service.NewAuthService(userRepo, tokenRepo, options.TokenTTL)
	accountService := service.NewAccountService(userRepo)
	paymentService := service.NewPaymentService(paymentRepo, userRepo, catalog.Default(), zapLogger)

	router := http.NewRouter(
		&http.AuthHandler{AuthService: authService},
		&http.AccountHandler{AccountService: accountService},
		&http.PaymentHandler{PaymentService: paymentService, PublicURL: options.PublicURL},
		authService,
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if options.TLSEnabled() {
			server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
			err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
		} else {
			zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
			err = server.ListenAndServe()
		}
		if errors.Is(err, nethttp.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		zapLogger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
