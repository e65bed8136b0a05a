// Command posync runs the sync daemon: it polls a configured SQL Server
// database for changed rows, marks them transferred, and emails each
// site's changes as a CSV artifact.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ntchinda/posync/internal/bootstrap"
	"github.com/ntchinda/posync/internal/changedetect"
	"github.com/ntchinda/posync/internal/configstore"
	"github.com/ntchinda/posync/internal/model"
	"github.com/ntchinda/posync/internal/source"
	"github.com/ntchinda/posync/internal/supervisor"
	"github.com/ntchinda/posync/internal/trackingwriter"
)

// Run is the default subcommand: start the sync daemon and block until it
// is told to stop.
type Run struct {
	ConfigStore  string        `help:"Path to the local SQLite configuration store." default:"./posync.db"`
	ArtifactDir  string        `help:"Directory delta artifacts are written to." default:"./artifacts"`
	LogFile      string        `help:"Rotated log file path." default:"./posync.log"`
	Schema       string        `help:"Source database schema." default:"dbo"`
	TickInterval time.Duration `help:"How often to poll the source for changes." default:"60s"`
	Concurrency  int           `help:"Maximum concurrent site deliveries per tick." default:"4"`
	MetricsAddr  string        `help:"Address to serve Prometheus /metrics on (empty disables)." default:""`
}

func (r *Run) Run() error {
	logger := logrus.New()
	logger.SetOutput(&lumberjack.Logger{
		Filename:   r.LogFile,
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     30, // days
	})

	store, err := configstore.Open(r.ConfigStore)
	if err != nil {
		return err
	}
	defer store.Close()

	bindings, err := store.SiteBindings()
	if err != nil {
		return err
	}
	sites := make([]string, len(bindings))
	for i, b := range bindings {
		sites[i] = b.Site
	}

	params := model.SyncParameters{
		Sites:               sites,
		Tables:              defaultTables,
		SiteDependentTables: defaultSiteDependentTables,
		SiteKeyColumn:       defaultSiteKeyColumn,
		PrimaryKeyColumn:    defaultPrimaryKeyColumn,
		TickInterval:        r.TickInterval,
	}

	sup, err := supervisor.New(supervisor.Config{
		Store:        store,
		Params:       params,
		Schema:       r.Schema,
		ArtifactDir:  r.ArtifactDir,
		Concurrency:  r.Concurrency,
		SourceDBConf: source.NewDBConfig(),
	})
	if err != nil {
		return err
	}
	defer sup.Close()
	sup.SetLogger(logger)

	if r.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		sup.SetMetricsSink(supervisor.NewPrometheusSink(reg))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: r.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer metricsSrv.Close()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return sup.Run(ctx)
}

// Bootstrap performs the first-launch mark-then-mirror pass for every
// configured site and table, then exits. Operators run this once against a
// freshly onboarded site before the daemon's regular tick loop takes over.
// Generic tables are bootstrapped once per site, so the first site marks
// their pending rows and later sites' mirrors of them are empty. Running it
// again marks and mirrors only the rows pending at that moment (which a
// later tick then does not deliver) and replaces each table's earlier
// mirror.
type Bootstrap struct {
	ConfigStore string `help:"Path to the local SQLite configuration store." default:"./posync.db"`
	MirrorDir   string `help:"Directory to write each site's bootstrap mirror SQLite file to." default:"./bootstrap"`
	Schema      string `help:"Source database schema." default:"dbo"`
}

func (b *Bootstrap) Run() error {
	store, err := configstore.Open(b.ConfigStore)
	if err != nil {
		return err
	}
	defer store.Close()

	sourceCfg, err := store.SourceConfig()
	if err != nil {
		return err
	}
	dbConf := source.NewDBConfig()
	db, err := source.Open(sourceCfg, dbConf)
	if err != nil {
		return err
	}
	defer db.Close()

	bindings, err := store.SiteBindings()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(b.MirrorDir, 0o755); err != nil {
		return err
	}

	loader := &bootstrap.Loader{
		Detector: changedetect.New(db, b.Schema, model.DefaultTrackingTriplet),
		Writer:   trackingwriter.New(db, dbConf, b.Schema, model.DefaultTrackingTriplet),
		MirrorDB: func(site string) (*sql.DB, error) {
			return sql.Open("sqlite", filepath.Join(b.MirrorDir, site+".db"))
		},
	}

	ctx := context.Background()
	for _, binding := range bindings {
		for _, table := range defaultTables {
			if defaultSiteDependentTables[table] {
				continue
			}
			if err := loader.Run(ctx, binding.Site, table, defaultPrimaryKeyColumn, ""); err != nil {
				return fmt.Errorf("bootstrap %s/%s: %w", binding.Site, table, err)
			}
		}
		for table, siteCol := range defaultSiteKeyColumn {
			// Site-dependent tables are marked and mirrored by their site-key
			// column, not the generic primary key — the same column
			// restricts the read and identifies the rows to mark, matching
			// the regular tick path.
			if err := loader.Run(ctx, binding.Site, table, siteCol, siteCol); err != nil {
				return fmt.Errorf("bootstrap %s/%s: %w", binding.Site, table, err)
			}
		}
	}
	return nil
}

var cli struct {
	Run       Run       `cmd:"" default:"1" help:"Run the sync daemon."`
	Bootstrap Bootstrap `cmd:"" help:"Run the first-launch mark-then-mirror pass for every configured site, then exit."`
}

func main() {
	ctx := kong.Parse(&cli, kong.Name("posync"), kong.Description("Incremental SQL Server to per-site CSV/email sync daemon."))
	ctx.FatalIfErrorf(ctx.Run())
}
