// Package supervisor drives posync's tick loop: discover pending changes,
// mark them transferred, aggregate per site, build artifacts, and deliver
// them, on a fixed interval, with graceful shutdown and structured
// per-tick logging.
package supervisor

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/siddontang/loggers"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ntchinda/posync/internal/aggregator"
	"github.com/ntchinda/posync/internal/artifact"
	"github.com/ntchinda/posync/internal/changedetect"
	"github.com/ntchinda/posync/internal/configstore"
	"github.com/ntchinda/posync/internal/delivery"
	"github.com/ntchinda/posync/internal/errs"
	"github.com/ntchinda/posync/internal/model"
	"github.com/ntchinda/posync/internal/source"
	"github.com/ntchinda/posync/internal/trackingwriter"
)

var (
	statusInterval = 30 * time.Second
	watchdogGrace  = 2 * time.Minute
)

// markTransferrer is the subset of *trackingwriter.Writer the supervisor
// needs, narrowed to an interface so tick logic can be unit tested
// against a fake instead of a live source connection.
type markTransferrer interface {
	MarkTransferred(ctx context.Context, table, pkCol string, pkValues []string) (int64, error)
}

// artifactSender is the subset of *delivery.Sender the supervisor needs.
type artifactSender interface {
	Send(artifact model.Artifact, recipient string) error
}

// Supervisor owns the source connection pool and local config store for
// one tick loop. Its zero value is not usable; construct with New.
type Supervisor struct {
	store       *configstore.Store
	params      model.SyncParameters
	schema      string
	artifactDir string
	concurrency int

	db       *sql.DB
	detector *changedetect.Detector
	writer   markTransferrer
	sender   artifactSender

	logger  loggers.Advanced
	metrics Sink

	currentState atomic.Int32
	shutdown     chan struct{}
	wg           sync.WaitGroup
}

// Config bundles the inputs New needs beyond the config store, since the
// source pool and sender are opened once up front and reused every tick.
type Config struct {
	Store           *configstore.Store
	Params          model.SyncParameters
	Schema          string
	ArtifactDir     string
	Concurrency     int
	SourceDBConf    *source.DBConfig
	DeliveryEnabled bool
}

// New opens the source connection and email sender described by the
// config store and returns a ready-to-run Supervisor.
func New(cfg Config) (*Supervisor, error) {
	sourceCfg, err := cfg.Store.SourceConfig()
	if err != nil {
		return nil, err
	}
	db, err := source.Open(sourceCfg, cfg.SourceDBConf)
	if err != nil {
		return nil, &errs.ConfigError{Err: err}
	}

	transport, err := cfg.Store.EmailTransport()
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	s := &Supervisor{
		store:       cfg.Store,
		params:      cfg.Params,
		schema:      cfg.Schema,
		artifactDir: cfg.ArtifactDir,
		concurrency: concurrency,
		db:          db,
		detector:    changedetect.New(db, cfg.Schema, model.DefaultTrackingTriplet),
		writer:      trackingwriter.New(db, cfg.SourceDBConf, cfg.Schema, model.DefaultTrackingTriplet),
		sender:      delivery.NewSender(transport),
		logger:      logrus.New(),
		metrics:     NoopSink{},
		shutdown:    make(chan struct{}),
	}
	s.currentState.Store(int32(stateInit))
	return s, nil
}

// SetLogger overrides the default logrus logger, following the same
// injection point a migration runner exposes for its own logger.
func (s *Supervisor) SetLogger(l loggers.Advanced) { s.logger = l }

// SetMetricsSink overrides the default no-op metrics sink.
func (s *Supervisor) SetMetricsSink(sink Sink) { s.metrics = sink }

// Close releases the source connection pool.
func (s *Supervisor) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Run starts the tick loop and blocks until ctx is canceled or Stop is
// called. It never runs two ticks concurrently, and a shutdown request
// is honored between (table, site) pairs rather than mid-batch.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.currentState.Store(int32(stateRunning))
	s.logger.Infof("posync supervisor starting, tick interval %s", s.params.TickInterval)

	s.wg.Add(1)
	go s.dumpStatus(ctx)

	ticker := time.NewTicker(s.params.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.currentState.Store(int32(stateStopping))
			s.waitWithWatchdog(cancel)
			s.currentState.Store(int32(stateStopped))
			return ctx.Err()
		case <-s.shutdown:
			s.currentState.Store(int32(stateStopping))
			cancel()
			s.waitWithWatchdog(cancel)
			s.currentState.Store(int32(stateStopped))
			return nil
		case <-ticker.C:
			s.currentState.Store(int32(stateTicking))
			summary, err := s.tick(ctx)
			if err != nil {
				s.logger.Errorf("tick failed: %v", err)
			}
			s.logSummary(summary)
			s.metrics.ObserveTick(summary.RowsRead, summary.RowsMarked, summary.ArtifactsBuilt, summary.DeliveriesOK, summary.DeliveriesFailed)
			s.metrics.ObserveTickDuration(summary.Elapsed.Seconds())
			s.currentState.Store(int32(stateRunning))
		}
	}
}

// Stop requests a graceful shutdown; Run returns once the in-flight tick
// (if any) reaches its next (table, site) boundary.
func (s *Supervisor) Stop() {
	close(s.shutdown)
}

// waitWithWatchdog waits for the background status goroutine to exit,
// forcing cancellation if it hasn't wound down within watchdogGrace — a
// hard abort for the rare case a status tick is stuck.
func (s *Supervisor) waitWithWatchdog(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(watchdogGrace):
		s.logger.Warnf("watchdog: forcing shutdown after %s grace period", watchdogGrace)
		cancel()
		<-done
	}
}

func (s *Supervisor) dumpStatus(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logger.Infof("posync state=%s", tickState(s.currentState.Load()))
		}
	}
}

func (s *Supervisor) logSummary(r model.RunSummary) {
	s.logger.Infof(
		"tick complete in %s: rows_read=%d rows_marked=%d artifacts=%d delivered=%d failed=%d decode_errors=%d ineligible=%v not_found=%v",
		r.Elapsed, r.RowsRead, r.RowsMarked, r.ArtifactsBuilt, r.DeliveriesOK, r.DeliveriesFailed, r.DecodeErrors, r.IneligibleTables, r.NotFoundTables)
}

// tick runs one full discover-detect-mark-aggregate-build-deliver pass.
// Every failure is confined to the (table, site) where it occurred,
// except *errs.ConfigError, which aborts the tick outright.
func (s *Supervisor) tick(ctx context.Context) (model.RunSummary, error) {
	start := time.Now()
	summary := model.RunSummary{StartedAt: start}

	var genericChanges []model.TableChanges
	siteChanges := make(map[string][]model.TableChanges)

	for _, table := range s.params.Tables {
		select {
		case <-s.shutdown:
			summary.Elapsed = time.Since(start)
			return summary, nil
		default:
		}

		if s.params.SiteDependentTables[table] {
			siteCol := s.params.SiteKeyColumn[table]
			for _, site := range s.params.Sites {
				select {
				case <-s.shutdown:
					summary.Elapsed = time.Since(start)
					return summary, nil
				default:
				}
				// Site-dependent tables have no true per-row primary key in
				// this deployment: the site-key column both restricts the
				// read and identifies the rows to mark, so it is passed as
				// pkCol too.
				changes, err := s.detector.SiteTableChanges(ctx, table, siteCol, siteCol, site)
				if err := s.recordTableOutcome(&summary, table, err); err != nil {
					return summary, err
				}
				if err != nil {
					continue
				}
				s.recordDecodeErrors(&summary, table, changes)
				if err := s.markAndAccumulate(ctx, &summary, table, siteCol, changes); err != nil {
					s.logger.Warnf("marking %s for site %s: %v", table, site, err)
					continue
				}
				siteChanges[site] = append(siteChanges[site], changes)
			}
			continue
		}

		changes, err := s.detector.GenericTableChanges(ctx, table, s.params.PrimaryKeyColumn)
		if err := s.recordTableOutcome(&summary, table, err); err != nil {
			return summary, err
		}
		if err != nil {
			continue
		}
		s.recordDecodeErrors(&summary, table, changes)
		if err := s.markAndAccumulate(ctx, &summary, table, s.params.PrimaryKeyColumn, changes); err != nil {
			s.logger.Warnf("marking %s: %v", table, err)
			continue
		}
		genericChanges = append(genericChanges, changes)
	}

	changeSets := aggregator.Build(s.params.Sites, genericChanges, siteChanges)
	s.deliverAll(ctx, changeSets, &summary)

	summary.Elapsed = time.Since(start)
	return summary, nil
}

func (s *Supervisor) recordTableOutcome(summary *model.RunSummary, table string, err error) error {
	if err == nil {
		return nil
	}
	var cfgErr *errs.ConfigError
	if errors.As(err, &cfgErr) {
		return err
	}
	var notFound *errs.NotFoundError
	if errors.As(err, &notFound) {
		summary.NotFoundTables = append(summary.NotFoundTables, table)
		return nil
	}
	var ineligible *errs.IneligibleError
	if errors.As(err, &ineligible) {
		summary.IneligibleTables = append(summary.IneligibleTables, table)
		return nil
	}
	// Transient errors are logged and the table is skipped this tick;
	// the remote tracking triplet means it will simply be picked up again
	// on the next tick.
	s.logger.Warnf("reading %s: %v", table, err)
	return nil
}

// recordDecodeErrors surfaces any per-cell encoding failures the read
// reported: every EncodingError is logged, and the tick summary keeps a
// running count so it shows up in the tick-completion log line.
func (s *Supervisor) recordDecodeErrors(summary *model.RunSummary, table string, changes model.TableChanges) {
	if changes.DecodeErrors == 0 {
		return
	}
	summary.DecodeErrors += changes.DecodeErrors
	s.logger.Warnf("table %s: %d cell(s) failed to decode under windows-1252 and were substituted", table, changes.DecodeErrors)
}

func (s *Supervisor) markAndAccumulate(ctx context.Context, summary *model.RunSummary, table, pkCol string, changes model.TableChanges) error {
	summary.RowsRead += len(changes.Rows)
	keys := changedetect.PrimaryKeys(changes)
	if len(keys) == 0 {
		return nil
	}
	n, err := s.writer.MarkTransferred(ctx, table, pkCol, keys)
	summary.RowsMarked += int(n)
	return err
}

// deliverAll builds and sends each site's artifact concurrently, bounded
// by s.concurrency. One site's failure never blocks another's: each
// worker always returns nil to the group and records its own outcome.
func (s *Supervisor) deliverAll(ctx context.Context, changeSets []model.ChangeSet, summary *model.RunSummary) {
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, cs := range changeSets {
		cs := cs
		if !aggregator.HasChanges(cs) {
			s.logger.Infof("no changes for site %s", cs.Site)
			continue
		}
		g.Go(func() error {
			art, err := artifact.Build(s.artifactDir, cs, time.Now())
			if err != nil {
				s.logger.Errorf("building artifact for site %s: %v", cs.Site, err)
				mu.Lock()
				summary.DeliveriesFailed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			summary.ArtifactsBuilt++
			mu.Unlock()

			recipient := s.recipientFor(cs.Site)
			if sendErr := s.sender.Send(art, recipient); sendErr != nil {
				s.logger.Errorf("%v", sendErr)
				mu.Lock()
				summary.DeliveriesFailed++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			summary.DeliveriesOK++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Supervisor) recipientFor(site string) string {
	bindings, err := s.store.SiteBindings()
	if err != nil {
		return ""
	}
	for _, b := range bindings {
		if b.Site == site {
			return b.Email
		}
	}
	return ""
}
