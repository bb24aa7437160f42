// Package main runs the CourseKeeper catalog client: an interactive shell
// that browses the catalog, gates content by purchase and runs checkout.
package main

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/access"
	"github.com/atinyakov/CourseKeeper/internal/catalog"
	"github.com/atinyakov/CourseKeeper/internal/checkout"
	"github.com/atinyakov/CourseKeeper/internal/client/account"
	"github.com/atinyakov/CourseKeeper/internal/client/api"
	"github.com/atinyakov/CourseKeeper/internal/client/storage"
	"github.com/atinyakov/CourseKeeper/internal/config"
	"github.com/atinyakov/CourseKeeper/internal/logger"
	"github.com/atinyakov/CourseKeeper/internal/models"
)

var (
	version   string
	buildDate string
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("CourseKeeper Client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	options, err := config.ParseClient(os.Args[1:])
	if err != nil {
		if errors.Is(err, config.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logger.NewWithConfig(logger.Config{Format: "console", Output: "stderr"})
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "failed to init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log.With(zap.String(logger.FieldService, "coursekeeper-client"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sh, closeStore, err := setup(ctx, *options, os.Stdin, os.Stdout, zapLogger)
	if err != nil {
		zapLogger.Error("failed to start client", zap.Error(err))
		os.Exit(1)
	}
	defer closeStore()

	fmt.Println("CourseKeeper. Type 'help' for a list of commands.")
	sh.run(ctx)
}

// openStore picks the Redis store when an address is configured and the
// local file otherwise.
func openStore(ctx context.Context, options config.ClientOptions) (storage.KV, func(), error) {
	if options.RedisAddr != "" {
		kv, err := storage.DialRedis(ctx, options.RedisAddr, options.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return kv, func() { _ = kv.Close() }, nil
	}
	kv, err := storage.NewFileKV(options.StoragePath)
	if err != nil {
		return nil, nil, err
	}
	return kv, func() {}, nil
}

func loadCatalog(path string) (*catalog.Index, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

// setup wires storage, the backend client, the account reconciler, the access
// rules and checkout into a shell.
func setup(ctx context.Context, options config.ClientOptions, in io.Reader, out io.Writer, log *zap.Logger) (*shell, func(), error) {
	policy, err := access.ParsePolicy(options.Prerequisites)
	if err != nil {
		return nil, nil, err
	}
	idx, err := loadCatalog(options.CatalogPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	httpClient, err := api.NewHTTPClient(options.CAPath, options.Timeout)
	if err != nil {
		return nil, nil, err
	}
	kv, closeStore, err := openStore(ctx, options)
	if err != nil {
		return nil, nil, fmt.Errorf("open storage: %w", err)
	}

	session := storage.NewSession(kv)
	remote := api.New(options.ServerURL, httpClient, session)
	accounts := account.New(remote, storage.NewPurchaseCache(kv, log).WithStages(idx), session, storage.NewOutbox(kv), log, account.Options{})

	opts := access.DefaultOptions()
	opts.Prerequisites = policy
	eval := access.New(idx, opts)

	return &shell{
		p:        newPrompter(in, out),
		out:      out,
		catalog:  idx,
		access:   eval,
		accounts: accounts,
		checkout: checkout.New(idx, eval, remote, accounts, session, log),
		session:  session,
		lang:     models.ParseLang(options.Lang),
		log:      log,
	}, closeStore, nil
}
