// Package driver runs the ingest and dispatch jobs on cron schedules.
// The two jobs share one mutex so they never run at the same time.
package driver

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Job is one periodic unit of work.
type Job func(ctx context.Context) error

// Options configures a Driver.
type Options struct {
	IngestSpec   string
	DispatchSpec string
	// Location evaluates the cron specs. Defaults to time.Local.
	Location *time.Location
	// RunOnStart runs ingest then dispatch once before the first tick.
	RunOnStart bool
}

// Driver owns the cron engine.
type Driver struct {
	cron     *cron.Cron
	ingest   Job
	dispatch Job
	opts     Options

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New registers both jobs. Invalid specs are returned as errors.
func New(ingest, dispatch Job, opts Options) (*Driver, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	logger := cronLogger{zap.L().Sugar().Named("cron")}
	c := cron.New(
		cron.WithLocation(opts.Location),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		cron:     c,
		ingest:   ingest,
		dispatch: dispatch,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}

	if _, err := c.AddFunc(opts.IngestSpec, func() { d.run("ingest", d.ingest) }); err != nil {
		cancel()
		return nil, eris.Wrapf(err, "driver: ingest spec %q", opts.IngestSpec)
	}
	if _, err := c.AddFunc(opts.DispatchSpec, func() { d.run("dispatch", d.dispatch) }); err != nil {
		cancel()
		return nil, eris.Wrapf(err, "driver: dispatch spec %q", opts.DispatchSpec)
	}
	return d, nil
}

// Start launches the cron engine in its own goroutine.
func (d *Driver) Start() {
	zap.L().Info("driver: starting",
		zap.String("ingest_spec", d.opts.IngestSpec),
		zap.String("dispatch_spec", d.opts.DispatchSpec),
	)
	if d.opts.RunOnStart {
		go func() {
			d.run("ingest", d.ingest)
			d.run("dispatch", d.dispatch)
		}()
	}
	d.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them to return
// or for ctx to expire.
func (d *Driver) Stop(ctx context.Context) error {
	zap.L().Info("driver: stopping")
	done := d.cron.Stop()
	d.cancel()
	select {
	case <-done.Done():
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "driver: stop")
	}
	// Wait for a RunOnStart job that cron does not track.
	d.mu.Lock()
	defer d.mu.Unlock()
	zap.L().Info("driver: stopped")
	return nil
}

// RunIngest runs the ingest job immediately under the shared lock.
func (d *Driver) RunIngest() error { return d.run("ingest", d.ingest) }

// RunDispatch runs the dispatch job immediately under the shared lock.
func (d *Driver) RunDispatch() error { return d.run("dispatch", d.dispatch) }

func (d *Driver) run(name string, job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil {
		return d.ctx.Err()
	}
	start := time.Now()
	log := zap.L().With(zap.String("job", name))
	log.Info("driver: job starting")

	err := job(d.ctx)
	if err != nil {
		log.Error("driver: job failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		return err
	}
	log.Info("driver: job complete", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// cronLogger adapts cron's logger onto zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
