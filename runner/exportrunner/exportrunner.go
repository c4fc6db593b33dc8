// Package exportrunner runs the extraction pipeline: token, paginated
// search, headquarters lookup, normalization, export and archive delivery.
package exportrunner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Tpgainz/sirene-export/export"
	"github.com/Tpgainz/sirene-export/ledger"
	"github.com/Tpgainz/sirene-export/metrics"
	"github.com/Tpgainz/sirene-export/normalize"
	"github.com/Tpgainz/sirene-export/notify"
	"github.com/Tpgainz/sirene-export/postgres"
	"github.com/Tpgainz/sirene-export/runner"
	"github.com/Tpgainz/sirene-export/sirene"
	"github.com/Tpgainz/sirene-export/storage"
	"github.com/Tpgainz/sirene-export/telemetry"
)

const setupTimeout = 30 * time.Second

type uploader interface {
	Upload(ctx context.Context, path string) (string, error)
}

// Result is what one extraction produced.
type Result struct {
	RunID      string
	TargetDate string
	Archive    string
	ObjectKey  string
	Rows       int
	Stats      normalize.Stats
}

type Runner struct {
	cfg        *runner.Config
	httpClient *http.Client
	policy     normalize.Policy
	delimiter  string
	encoding   export.Encoding
	recorder   *metrics.Recorder
	ledger     *ledger.Store
	db         *sql.DB
	uploader   uploader
	notifiers  []notify.Notifier
	closers    []io.Closer
	telemetry  *telemetry.Client
	now        func() time.Time
	sleep      func(context.Context, time.Duration) error
}

var _ runner.Runner = (*Runner)(nil)

// New validates the output settings and connects the optional sinks that
// cfg enables.
func New(cfg *runner.Config) (*Runner, error) {
	policy, err := normalize.ParsePolicy(cfg.OnRecordError)
	if err != nil {
		return nil, err
	}

	delimiter, err := export.ParseDelimiter(cfg.Delimiter)
	if err != nil {
		return nil, err
	}

	encoding, err := export.ParseEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	proxy := sirene.ProxyConfig{}
	if cfg.Proxy {
		proxy = sirene.ProxyConfig{HTTP: cfg.HTTPProxy, HTTPS: cfg.HTTPSProxy}
	}

	httpClient, err := sirene.NewHTTPClient(proxy)
	if err != nil {
		return nil, err
	}

	ans := Runner{
		cfg:        cfg,
		httpClient: httpClient,
		policy:     policy,
		delimiter:  delimiter,
		encoding:   encoding,
		recorder:   metrics.NewRecorder(),
		now:        time.Now,
	}

	if err := ans.connect(); err != nil {
		_ = ans.Close(context.Background())

		return nil, err
	}

	return &ans, nil
}

func (r *Runner) connect() error {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	cfg := r.cfg

	if cfg.LedgerPath != "" {
		store, err := ledger.Open(ctx, cfg.LedgerPath)
		if err != nil {
			return err
		}

		r.ledger = store
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}

		r.db = db
	}

	if cfg.S3Bucket != "" {
		up, err := storage.NewS3Uploader(ctx, storage.Config{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return err
		}

		r.uploader = up
	}

	if cfg.AMQPURL != "" {
		pub, err := notify.DialPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return err
		}

		r.notifiers = append(r.notifiers, pub)
		r.closers = append(r.closers, pub)
	}

	if cfg.CompletionURL != "" {
		r.notifiers = append(r.notifiers, notify.NewWebhook(cfg.CompletionURL))
	}

	tc, err := telemetry.New(cfg.PostHogAPIKey, cfg.PostHogEndpoint)
	if err != nil {
		return fmt.Errorf("error creating telemetry client: %w", err)
	}

	r.telemetry = tc

	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	_, err := r.Execute(ctx, runner.Job{Mode: r.cfg.RunMode, Date: r.cfg.Date})

	return err
}

func (r *Runner) Close(context.Context) error {
	var errs []error

	for _, c := range r.closers {
		errs = append(errs, c.Close())
	}

	if r.db != nil {
		errs = append(errs, r.db.Close())
	}

	if r.ledger != nil {
		errs = append(errs, r.ledger.Close())
	}

	if r.telemetry != nil {
		errs = append(errs, r.telemetry.Close())
	}

	return errors.Join(errs...)
}

// Execute runs job and records its outcome in the ledger, the metrics and
// telemetry.
func (r *Runner) Execute(ctx context.Context, job runner.Job) (*Result, error) {
	if err := job.Validate(); err != nil {
		return nil, err
	}

	mode := runner.ModeName(job.Mode)
	started := r.now()

	res := &Result{
		RunID:      uuid.NewString(),
		TargetDate: job.TargetDate(started),
	}

	logger := zerolog.Ctx(ctx).With().
		Str("run_id", res.RunID).
		Str("mode", mode).
		Logger()
	ctx = logger.WithContext(ctx)

	if job.Mode == runner.RunModeStatus {
		return res, r.status(ctx)
	}

	logger.Info().Str("date", res.TargetDate).Msg("starting extraction")

	if r.ledger != nil {
		if err := r.ledger.Begin(ctx, res.RunID, mode, res.TargetDate); err != nil {
			return nil, err
		}
	}

	err := r.extract(ctx, job.Mode, res)

	r.finish(context.WithoutCancel(ctx), mode, started, res, err)

	return res, err
}

func (r *Runner) client(ctx context.Context) (*sirene.Client, error) {
	token, err := sirene.AcquireToken(ctx, r.httpClient, r.cfg.EndpointToken, sirene.Credentials{
		ConsumerKey:    r.cfg.ConsumerKey,
		ConsumerSecret: r.cfg.ConsumerSecret,
	})
	if err != nil {
		return nil, err
	}

	return sirene.NewClient(sirene.ClientConfig{
		HTTPClient:        r.httpClient,
		SearchURL:         r.cfg.EndpointEtablissement,
		StatusURL:         r.cfg.EndpointInformations,
		Token:             token,
		RequestsPerMinute: r.cfg.RequestsPerMinute,
		Observer:          r.recorder,
		Now:               r.now,
		Sleep:             r.sleep,
	}), nil
}

func (r *Runner) extract(ctx context.Context, mode int, res *Result) error {
	client, err := r.client(ctx)
	if err != nil {
		return err
	}

	switch mode {
	case runner.RunModeUpdates:
		err = r.updates(ctx, client, res)
	case runner.RunModeProspects:
		err = r.prospects(ctx, client, res)
	default:
		err = fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, mode)
	}

	if err != nil {
		return err
	}

	if res.Archive == "" {
		return nil
	}

	return r.deliver(ctx, runner.ModeName(mode), res)
}

func (r *Runner) status(ctx context.Context) error {
	log := zerolog.Ctx(ctx)

	client, err := r.client(ctx)
	if err != nil {
		return err
	}

	st, err := client.Status(ctx)
	if err != nil {
		return err
	}

	st.Log(ctx, zerolog.InfoLevel)

	if r.ledger == nil {
		return nil
	}

	for _, mode := range []string{runner.ModeName(runner.RunModeUpdates), runner.ModeName(runner.RunModeProspects)} {
		run, err := r.ledger.Last(ctx, mode)
		if errors.Is(err, ledger.ErrNoRuns) {
			continue
		}

		if err != nil {
			return err
		}

		log.Info().
			Str("last_mode", run.Mode).
			Str("last_run_id", run.ID).
			Str("status", run.Status).
			Str("target_date", run.TargetDate).
			Time("started_at", run.StartedAt).
			Int("rows", run.Rows).
			Str("archive", run.Archive).
			Str("error", run.Error).
			Msg("last run")
	}

	return nil
}

// deliver uploads the archive and tells the consumers about it. A failed
// upload fails the run; a failed notification is only logged since the
// archive is already in place.
func (r *Runner) deliver(ctx context.Context, mode string, res *Result) error {
	log := zerolog.Ctx(ctx)

	if r.uploader != nil {
		key, err := r.uploader.Upload(ctx, res.Archive)
		if err != nil {
			return err
		}

		res.ObjectKey = key
	}

	msg := notify.Message{
		RunID:      res.RunID,
		Mode:       mode,
		TargetDate: res.TargetDate,
		Archive:    res.Archive,
		ObjectKey:  res.ObjectKey,
		Rows:       res.Rows,
		Created:    res.Stats.Created,
		Closed:     res.Stats.Closed,
		Skipped:    res.Stats.Skipped,
		FinishedAt: r.now().UTC(),
	}

	for _, n := range r.notifiers {
		if err := n.ArchiveReady(ctx, msg); err != nil {
			log.Warn().Err(err).Msg("archive notification failed")
		}
	}

	return nil
}

func (r *Runner) finish(ctx context.Context, mode string, started time.Time, res *Result, runErr error) {
	log := zerolog.Ctx(ctx)
	finished := r.now()

	r.recorder.RunFinished(mode, started, finished, runErr)

	if r.cfg.MetricsTextfile != "" {
		if err := r.recorder.WriteTextfile(r.cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Str("path", r.cfg.MetricsTextfile).Msg("error writing metrics")
		}
	}

	if r.ledger != nil {
		var err error

		if runErr != nil {
			err = r.ledger.Fail(ctx, res.RunID, runErr)
		} else {
			err = r.ledger.Complete(ctx, res.RunID, ledger.Result{
				Rows:    res.Rows,
				Created: res.Stats.Created,
				Closed:  res.Stats.Closed,
				Skipped: res.Stats.Skipped,
				Archive: res.Archive,
			})
		}

		if err != nil {
			log.Warn().Err(err).Msg("error recording run")
		}
	}

	_ = r.telemetry.RunCompleted(ctx, telemetry.Summary{
		RunID:      res.RunID,
		Mode:       mode,
		TargetDate: res.TargetDate,
		Rows:       res.Rows,
		Created:    res.Stats.Created,
		Closed:     res.Stats.Closed,
		Skipped:    res.Stats.Skipped,
		Duration:   finished.Sub(started),
		Err:        runErr,
	})

	if runErr != nil {
		log.Error().Err(runErr).Msg("extraction failed")

		return
	}

	log.Info().
		Dur("duration", finished.Sub(started)).
		Str("archive", res.Archive).
		Msg("extraction completed")
}
