package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"oqt_service/internal/api"
	"oqt_service/internal/config"
	"oqt_service/internal/core"
	"oqt_service/internal/core/indicators"
	"oqt_service/internal/core/reports"
	"oqt_service/internal/definitions"
	"oqt_service/internal/domain/model"
	"oqt_service/internal/domain/repository"
	"oqt_service/internal/infrastructure/figure"
	"oqt_service/internal/infrastructure/mlclient"
	"oqt_service/internal/infrastructure/ohsome"
)

// command describes a CLI subcommand.
type command struct {
	name  string
	short string
	usage string
	run   func(ctx context.Context, cfg *config.ServiceConfig, args []string) error
}

var commands = []command{
	{name: "serve", short: "Start the HTTP API", usage: "oqt serve", run: runServe},
	{name: "list-indicators", short: "List indicator names", usage: "oqt list-indicators", run: runList("indicators")},
	{name: "list-reports", short: "List report names", usage: "oqt list-reports", run: runList("reports")},
	{name: "list-layers", short: "List layer names", usage: "oqt list-layers", run: runList("layers")},
	{name: "list-datasets", short: "List dataset names", usage: "oqt list-datasets", run: runList("datasets")},
	{
		name:  "create-indicator",
		short: "Compute one indicator",
		usage: "oqt create-indicator -i NAME -l LAYER (-d DATASET -f FID | --infile FILE) [--force]",
		run:   runCreateIndicator,
	},
	{
		name:  "create-report",
		short: "Compute one report",
		usage: "oqt create-report -r NAME (-d DATASET -f FID | --infile FILE) [--force]",
		run:   runCreateReport,
	},
	{
		name:  "create-all-indicators",
		short: "Compute every report indicator for every feature of a dataset",
		usage: "oqt create-all-indicators -d DATASET [--force]",
		run:   runCreateAllIndicators,
	},
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "oqt - OpenStreetMap data quality analysis\n\n")
	fmt.Fprintf(w, "Usage:\n  oqt <command> [arguments]\n\n")
	fmt.Fprintf(w, "Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-22s %s\n", cmd.name, cmd.short)
	}
}

func dispatch(ctx context.Context, cfg *config.ServiceConfig, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage(os.Stdout)
		return nil
	}
	for _, cmd := range commands {
		if cmd.name == args[0] {
			return cmd.run(ctx, cfg, args[1:])
		}
	}
	return fmt.Errorf("unknown command %q, run 'oqt help' for usage", args[0])
}

func main() {
	cfg := config.New()
	slog.SetDefault(newLogger(cfg))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, cfg, os.Args[1:]); err != nil {
		slog.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newLogger(cfg *config.ServiceConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// ---------------------------------------------------------------------------
// wiring
// ---------------------------------------------------------------------------

func loadRegistry(cfg *config.ServiceConfig) (*core.Registry, error) {
	var manifest *definitions.Manifest
	var err error
	if cfg.DefinitionsDir != "" {
		manifest, err = definitions.LoadDir(cfg.DefinitionsDir)
	} else {
		manifest, err = definitions.Load()
	}
	if err != nil {
		return nil, err
	}
	reg := core.NewRegistry(manifest)
	indicators.Register(reg)
	reports.Register(reg)
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// newService connects every collaborator. The returned close function
// releases the database pool.
func newService(ctx context.Context, cfg *config.ServiceConfig) (*core.QualityService, func(), error) {
	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, nil, err
	}

	dbCfg := cfg.GeodatabaseCfg
	db, err := repository.Connect(ctx, dbCfg.Driver, dbCfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	geodatabase := repository.NewGeodatabase(db, dbCfg.Schema, reg.Manifest().Datasets)

	deps := core.Deps{
		Statistics: newStatisticsClient(cfg),
		Raster:     newRasterClient(db, dbCfg),
		Aux:        geodatabase,
		Predictor:  mlclient.NewHTTPMLClient(cfg.MLServiceURL, cfg.HTTPTimeout),
		Renderer:   figure.NewSVGRenderer(),
		Logger:     slog.Default(),
	}
	closeDB := func() {
		if err := db.Close(); err != nil {
			slog.Warn("failed to close database", "error", err)
		}
	}
	return core.NewQualityService(reg, deps, geodatabase), closeDB, nil
}

func newStatisticsClient(cfg *config.ServiceConfig) model.StatisticsClient {
	if cfg.StatisticsCfg.Backend == "overpass" {
		return repository.NewOverpassRepository(cfg.StatisticsCfg.OverpassURL, cfg.StatisticsCfg.OverpassTimeout)
	}
	return ohsome.NewClient(cfg.StatisticsCfg.OhsomeURL, cfg.HTTPTimeout)
}

// newRasterClient returns nil for sqlite, which has no raster support.
func newRasterClient(db *sqlx.DB, dbCfg config.GeodatabaseConfig) model.RasterClient {
	if dbCfg.Driver != repository.DriverPostgres {
		return nil
	}
	return repository.NewRasterRepository(db, dbCfg.Schema)
}

// ---------------------------------------------------------------------------
// serve
// ---------------------------------------------------------------------------

func runServe(ctx context.Context, cfg *config.ServiceConfig, _ []string) error {
	svc, closeDB, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewRouter(api.NewHandler(svc), slog.Default()),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ---------------------------------------------------------------------------
// list
// ---------------------------------------------------------------------------

func runList(kind string) func(context.Context, *config.ServiceConfig, []string) error {
	return func(_ context.Context, cfg *config.ServiceConfig, _ []string) error {
		reg, err := loadRegistry(cfg)
		if err != nil {
			return err
		}
		var names []string
		switch kind {
		case "indicators":
			names = reg.IndicatorNames()
		case "reports":
			names = reg.ReportNames()
		case "layers":
			names = reg.Manifest().LayerNames()
		case "datasets":
			names = reg.Manifest().DatasetNames()
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}
}

// ---------------------------------------------------------------------------
// create
// ---------------------------------------------------------------------------

type targetFlags struct {
	dataset   string
	featureID int
	infile    string
	force     bool
}

func (t *targetFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&t.dataset, "d", "", "dataset name")
	fs.IntVar(&t.featureID, "f", -1, "feature id in the dataset")
	fs.StringVar(&t.infile, "infile", "", "GeoJSON file with the AOI")
	fs.BoolVar(&t.force, "force", false, "recompute even if a stored result exists")
}

func (t *targetFlags) target() (core.Target, error) {
	if t.infile != "" {
		raw, err := os.ReadFile(t.infile)
		if err != nil {
			return core.Target{}, fmt.Errorf("read %s: %w", t.infile, err)
		}
		aoi, err := model.ParseAOI(raw)
		if err != nil {
			return core.Target{}, err
		}
		return core.Target{AOI: aoi}, nil
	}
	target := core.Target{Dataset: t.dataset}
	if t.featureID >= 0 {
		id := t.featureID
		target.FeatureID = &id
	}
	return target, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runCreateIndicator(ctx context.Context, cfg *config.ServiceConfig, args []string) error {
	fs := flag.NewFlagSet("create-indicator", flag.ContinueOnError)
	name := fs.String("i", "", "indicator name")
	layer := fs.String("l", "", "layer name")
	var tf targetFlags
	tf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || *layer == "" {
		return fmt.Errorf("usage: oqt create-indicator -i NAME -l LAYER (-d DATASET -f FID | --infile FILE)")
	}
	target, err := tf.target()
	if err != nil {
		return err
	}

	svc, closeDB, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	view, err := svc.CreateIndicator(ctx, core.IndicatorRequest{Name: *name, Layer: *layer, Target: target, Force: tf.force})
	if err != nil {
		return err
	}
	return printJSON(view)
}

func runCreateReport(ctx context.Context, cfg *config.ServiceConfig, args []string) error {
	fs := flag.NewFlagSet("create-report", flag.ContinueOnError)
	name := fs.String("r", "", "report name")
	var tf targetFlags
	tf.register(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("usage: oqt create-report -r NAME (-d DATASET -f FID | --infile FILE)")
	}
	target, err := tf.target()
	if err != nil {
		return err
	}

	svc, closeDB, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	view, err := svc.CreateReport(ctx, core.ReportRequest{Name: *name, Target: target, Force: tf.force})
	if err != nil {
		return err
	}
	return printJSON(view)
}

func runCreateAllIndicators(ctx context.Context, cfg *config.ServiceConfig, args []string) error {
	fs := flag.NewFlagSet("create-all-indicators", flag.ContinueOnError)
	dataset := fs.String("d", "", "dataset name")
	force := fs.Bool("force", false, "recompute stored results")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dataset == "" {
		return fmt.Errorf("usage: oqt create-all-indicators -d DATASET [--force]")
	}

	svc, closeDB, err := newService(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	summary, err := svc.CreateAllIndicators(ctx, *dataset, *force)
	if err != nil {
		return err
	}
	slog.Info("all indicators created",
		"dataset", *dataset, "features", summary.Features, "created", summary.Created, "failed", summary.Failed)
	return nil
}
