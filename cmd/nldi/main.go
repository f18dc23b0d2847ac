package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/internetofwater/nldi-go/internal/config"
	"github.com/internetofwater/nldi-go/internal/db"
	"github.com/internetofwater/nldi-go/internal/logger"
	"github.com/internetofwater/nldi-go/internal/lookup"
	"github.com/internetofwater/nldi-go/internal/navigate"
	"github.com/internetofwater/nldi-go/internal/openapi"
	"github.com/internetofwater/nldi-go/internal/pygeoapi"
	"github.com/internetofwater/nldi-go/internal/server"
	"github.com/internetofwater/nldi-go/internal/source"
	"github.com/internetofwater/nldi-go/internal/telemetry"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd = args[0]
		args = args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = runServe(args)
	case "align-sources":
		err = runAlign(args)
	case "openapi":
		err = runOpenAPI(args)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\nusage: nldi [serve|align-sources|openapi] [flags]\n", cmd)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and swaps in a logger tuned to it. The
// temporary logger only covers config loading itself.
func bootstrap(configPath string) (config.Config, *zap.Logger, error) {
	if configPath != "" {
		os.Setenv("NLDI_CONFIG", configPath)
	}

	boot, err := logger.New("production", "info")
	if err != nil {
		return config.Config{}, nil, err
	}

	cfg, err := config.Load(boot)
	if err != nil {
		return cfg, nil, err
	}

	log, err := logger.New(cfg.Logging.Environment, cfg.Logging.Level)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration YAML")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	metrics := telemetry.New()

	pool, err := db.New(ctx, cfg.Database, log, metrics)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := source.NewStore(pool, log)
	if len(cfg.Sources) > 0 {
		if err := store.Align(ctx, cfg.Sources); err != nil {
			return err
		}
	}
	registry := source.NewRegistry(store, log)
	if err := registry.Refresh(ctx); err != nil {
		return err
	}

	flowlines := lookup.NewFlowlineStore(pool, log)
	features := lookup.NewFeatureStore(pool, log)

	srv := server.New(server.Deps{
		Config:     cfg,
		Log:        log,
		Metrics:    metrics,
		Sources:    registry,
		Flowlines:  flowlines,
		Features:   features,
		Catchments: lookup.NewCatchmentStore(pool, log),
		Basins:     lookup.NewBasinStore(pool, log),
		Nav:        navigate.NewEngine(pool, flowlines, features, metrics, log),
		Remote:     pygeoapi.New(cfg.Pygeoapi, metrics, log),
		DB:         pool,
	})

	log.Info("starting nldi", zap.String("version", server.Version))
	return srv.Run(ctx)
}

func runAlign(args []string) error {
	fs := flag.NewFlagSet("align-sources", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration YAML")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured; nothing to align")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := db.New(ctx, cfg.Database, log, telemetry.New())
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := source.NewStore(pool, log).Align(ctx, cfg.Sources); err != nil {
		return err
	}
	log.Info("sources aligned", zap.Int("count", len(cfg.Sources)))
	return nil
}

func runOpenAPI(args []string) error {
	fs := flag.NewFlagSet("openapi", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration YAML")
	format := fs.String("format", "json", "output format: json or yaml")
	output := fs.String("output", "", "write to file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, log, err := bootstrap(*configPath)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	// The document is built from the configured sources; no database
	// connection is needed for offline generation.
	sources := make([]source.Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		sources = append(sources, source.Source{
			Suffix: strings.ToLower(s.SourceSuffix),
			Name:   s.SourceName,
			URI:    s.SourceURI,
		})
	}

	doc := openapi.Build(cfg, sources)

	var data []byte
	switch *format {
	case "json":
		data, err = doc.JSON(true)
	case "yaml":
		data, err = doc.YAML()
	default:
		return fmt.Errorf("unknown format %q: want json or yaml", *format)
	}
	if err != nil {
		return err
	}

	if *output == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(*output, data, 0o644)
}
