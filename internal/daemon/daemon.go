package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"glot/internal/api"
	"glot/internal/budget"
	"glot/internal/capability"
	"glot/internal/config"
	"glot/internal/content"
	"glot/internal/genstate"
	"glot/internal/issuer"
	"glot/internal/jobqueue"
	"glot/internal/kv"
	"glot/internal/l10n"
	"glot/internal/logging"
	"glot/internal/overlay"
	"glot/internal/publish"
	"glot/internal/snapshot"
	"glot/internal/store"
	"glot/internal/sweeper"
	"glot/internal/translate"
)

// transport is the queue surface the daemon needs: producing for the
// issuer and coordinator, consuming for the workers.
type transport interface {
	jobqueue.Queue
	jobqueue.Consumer
}

// Daemon owns the pipeline services and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	db     *store.DB
	queue  transport
	nats   *jobqueue.NATSQueue
	source content.Source
	states *genstate.Store

	issuer      *issuer.Issuer
	worker      *translate.Worker
	coordinator *publish.Coordinator
	sweeper     *sweeper.Sweeper
	generate    *api.GenerateService

	apiSrv *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
	stops   []func()
}

// New opens the database and wires every pipeline service. Nothing runs
// until Start.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.Paths.DataDir)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		lockPath: filepath.Join(cfg.Paths.LogDir, "glotd.lock"),
	}
	d.lock = flock.New(d.lockPath)

	if err := d.wire(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

func (d *Daemon) wire() error {
	cfg := d.cfg

	d.source = content.NewCachedSource(content.NewSQLiteSource(d.db), cfg.AllowlistTTL())
	d.states = genstate.NewStore(d.db)
	overlays := overlay.NewStore(d.db)
	snapshots := snapshot.NewStore(d.db)
	gate := budget.NewGate(kv.NewStore(d.db), cfg.CounterTTL())

	grants, err := capability.NewIssuer(capability.Options{
		SigningKey:   cfg.Capability.SigningKey,
		TTL:          cfg.GrantTTL(),
		Providers:    cfg.Capability.Providers,
		Models:       cfg.Capability.Models,
		MaxTokens:    cfg.Capability.MaxTokens,
		MaxLatencyMS: cfg.Capability.MaxLatencyMS,
	})
	if err != nil {
		return err
	}

	if cfg.Queue.URL != "" {
		nats, err := jobqueue.ConnectNATS(cfg.Queue.URL)
		if err != nil {
			return err
		}
		d.nats = nats
		d.queue = nats
	} else {
		// Single-binary mode: jobs dispatch in process.
		d.queue = jobqueue.NewMemoryQueue()
	}

	executor, err := translate.NewHTTPExecutor(cfg.Executor.BaseURL, cfg.ExecutorTimeout())
	if err != nil {
		return err
	}

	d.issuer, err = issuer.New(issuer.Options{
		Source:           d.source,
		Snapshots:        snapshots,
		States:           d.states,
		Overlays:         overlays,
		Gate:             gate,
		Grants:           grants,
		Queue:            d.queue,
		TranslateSubject: cfg.Queue.TranslateSubject,
		CanonicalLocale:  cfg.Locales.Canonical,
		MaxAttempts:      cfg.Pipeline.MaxAttempts,
		StaleInFlight:    cfg.StaleInFlight(),
		BackoffBase:      cfg.BackoffBase(),
		BackoffCap:       cfg.BackoffCap(),
		Logger:           logging.NewComponentLogger(d.logger, "issuer"),
	})
	if err != nil {
		return err
	}

	d.worker, err = translate.NewWorker(translate.WorkerOptions{
		Source:      d.source,
		States:      d.states,
		Overlays:    overlays,
		Grants:   grants,
		Executor: executor,
		Limits: l10n.OpLimits{
			MaxOps:        cfg.Limits.MaxOps,
			MaxValueBytes: cfg.Limits.MaxOpValueBytes,
			MaxTotalBytes: cfg.Limits.MaxOverlayBytes,
		},
		MaxAttempts: cfg.Pipeline.MaxAttempts,
		BackoffBase: cfg.BackoffBase(),
		BackoffCap:  cfg.BackoffCap(),
		Logger:      logging.NewComponentLogger(d.logger, "translate"),
	})
	if err != nil {
		return err
	}

	blobs, err := publish.NewFSStore(cfg.Paths.RenderDir)
	if err != nil {
		return err
	}
	d.coordinator, err = publish.New(publish.Options{
		Blobs:          blobs,
		Renderer:       publish.NewLocaleRenderer(overlays, cfg.Locales.Canonical),
		Source:         d.source,
		Gate:           gate,
		Queue:          d.queue,
		Canonical:      cfg.Locales.Canonical,
		PublishSubject: cfg.Queue.PublishSubject,
		WaitTimeout:    cfg.PublishWaitTimeout(),
		PollInterval:   cfg.PublishPollInterval(),
		Logger:         logging.NewComponentLogger(d.logger, "publish"),
	})
	if err != nil {
		return err
	}

	d.sweeper, err = sweeper.New(sweeper.Options{
		States:        d.states,
		Source:        d.source,
		Issuer:        d.issuer,
		Interval:      cfg.SweepInterval(),
		BatchSize:     cfg.Pipeline.SweepBatchSize,
		MaxAttempts:   cfg.Pipeline.MaxAttempts,
		StaleInFlight: cfg.StaleInFlight(),
		BackoffBase:   cfg.BackoffBase(),
		BackoffCap:    cfg.BackoffCap(),
		Logger:        logging.NewComponentLogger(d.logger, "sweeper"),
	})
	if err != nil {
		return err
	}

	d.generate = api.NewGenerateService(d.states, d.issuer)
	d.apiSrv, err = newAPIServer(cfg, d, d.logger)
	return err
}

// Start acquires the lock, attaches the workers, and launches the sweeper
// and API server.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another glot daemon instance is already running")
	}

	d.ctx, d.cancel = context.WithCancel(ctx)

	stopTranslate, err := d.queue.Consume(d.cfg.Queue.TranslateSubject, d.cfg.Pipeline.TranslateWorkers, d.worker.Handler())
	if err != nil {
		return d.abortStart(fmt.Errorf("attach translate workers: %w", err))
	}
	d.stops = append(d.stops, stopTranslate)

	stopPublish, err := d.queue.Consume(d.cfg.Queue.PublishSubject, 1, d.coordinator.Handler())
	if err != nil {
		return d.abortStart(fmt.Errorf("attach publish worker: %w", err))
	}
	d.stops = append(d.stops, stopPublish)

	go d.sweeper.Run(d.ctx)

	if err := d.apiSrv.start(d.ctx); err != nil {
		return d.abortStart(err)
	}

	d.running.Store(true)
	d.logger.Info("glot daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("translate_workers", d.cfg.Pipeline.TranslateWorkers),
	)
	return nil
}

func (d *Daemon) abortStart(err error) error {
	for _, stop := range d.stops {
		stop()
	}
	d.stops = nil
	d.cancel()
	d.ctx = nil
	d.cancel = nil
	_ = d.lock.Unlock()
	return err
}

// Stop detaches the workers and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	for _, stop := range d.stops {
		stop()
	}
	d.stops = nil
	d.apiSrv.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("glot daemon stopped")
}

// Close stops the daemon and releases the queue and database.
func (d *Daemon) Close() error {
	d.Stop()
	d.nats.Close()
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Generate exposes the generate-state service to the API and tests.
func (d *Daemon) Generate() *api.GenerateService {
	return d.generate
}

// Publisher exposes the publish coordinator.
func (d *Daemon) Publisher() *publish.Coordinator {
	return d.coordinator
}

// DB exposes the shared database, letting callers seed content through the
// SQLite source.
func (d *Daemon) DB() *store.DB {
	return d.db
}

// APIAddr returns the bound API address, or empty when the server is off.
func (d *Daemon) APIAddr() string {
	return d.apiSrv.addr()
}

// Status reports runtime health.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	status := api.DaemonStatus{
		Running:      d.running.Load(),
		DBPath:       filepath.Join(d.cfg.Paths.DataDir, "glot.db"),
		LockFilePath: d.lockPath,
		Generation:   map[string]int{},
	}
	counts, err := d.states.Health(ctx)
	if err != nil {
		d.logger.Warn("generation health query failed", logging.Error(err))
		return status
	}
	for state, count := range counts {
		status.Generation[string(state)] = count
	}
	return status
}
