package exportrunner

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/Tpgainz/sirene-export/export"
	"github.com/Tpgainz/sirene-export/normalize"
	"github.com/Tpgainz/sirene-export/postgres"
	"github.com/Tpgainz/sirene-export/runner"
	"github.com/Tpgainz/sirene-export/sirene"
)

const (
	updatesPrefix   = "sirc"
	prospectsPrefix = "prospects"
)

// sink fans a normalized row out to the export file, the postgres mirror
// and the row counter.
type sink struct {
	w      *export.Writer
	mirror *postgres.RowWriter
	r      *Runner
}

func (r *Runner) newSink(prefix string, schema *normalize.Schema, res *Result) (*sink, error) {
	w, err := export.Create(export.Options{
		Dir:        r.cfg.CSVFolder,
		Prefix:     prefix,
		TargetDate: res.TargetDate,
		Now:        r.now,
		Delimiter:  r.delimiter,
		Encoding:   r.encoding,
		Schema:     schema,
	})
	if err != nil {
		return nil, err
	}

	s := sink{w: w, r: r}

	if r.db != nil {
		s.mirror = postgres.NewRowWriter(r.db, res.RunID, res.TargetDate)
	}

	return &s, nil
}

func (s *sink) write(ctx context.Context, siret string, row *normalize.Row) error {
	if err := s.w.Append(row); err != nil {
		return err
	}

	if s.mirror != nil {
		if err := s.mirror.Add(ctx, siret, row); err != nil {
			return err
		}
	}

	s.r.recorder.RowExported(row.Schema().Name())

	return nil
}

func (s *sink) finalize(ctx context.Context, res *Result) error {
	if s.mirror != nil {
		if err := s.mirror.Flush(ctx); err != nil {
			return err
		}
	}

	archive, err := s.w.Finalize(ctx)
	if err != nil {
		return err
	}

	res.Archive = archive
	res.Rows = s.w.Rows()

	zerolog.Ctx(ctx).Info().
		Int("rows", res.Rows).
		Int("created", res.Stats.Created).
		Int("closed", res.Stats.Closed).
		Int("skipped", res.Stats.Skipped).
		Msg("export summary")

	return nil
}

// close releases the working file. After a failure the file stays on disk
// so the rows written so far can be inspected.
func (s *sink) close(ctx context.Context) {
	if err := s.w.Close(); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("path", s.w.WorkingPath()).Msg("error closing working file")
	}
}

func (r *Runner) logStatus(ctx context.Context, client *sirene.Client, level zerolog.Level) {
	st, err := client.Status(ctx)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("error reading service status")

		return
	}

	st.Log(ctx, level)
}

// updates exports every establishment processed on the target date. All
// pages are read before normalizing: branches need their headquarters,
// which are fetched in bulk.
func (r *Runner) updates(ctx context.Context, client *sirene.Client, res *Result) error {
	log := zerolog.Ctx(ctx)

	if r.cfg.Debug {
		r.logStatus(ctx, client, zerolog.DebugLevel)
	}

	var records []sirene.Establishment

	req := runner.UpdatesRequest(res.TargetDate, r.cfg.PageSize)

	err := sirene.Paginate(ctx, client, req, func(p *sirene.Page) error {
		if len(records) == 0 {
			log.Info().Int("total", p.Total).Msg("establishments to export")
		}

		records = append(records, p.Records...)

		log.Debug().Int("received", len(records)).Str("cursor", p.Cursor).Msg("page received")

		return nil
	})
	if err != nil {
		return err
	}

	keys := sirene.HeadquartersKeys(records)

	index, err := sirene.NewResolver(client).Resolve(ctx, keys)
	if err != nil {
		return err
	}

	log.Info().Int("keys", len(keys)).Int("resolved", len(index)).Msg("headquarters resolved")

	n := normalize.NewSIRC(normalize.Options{
		Headquarters: index,
		Policy:       r.policy,
		Now:          r.now,
	})

	s, err := r.newSink(updatesPrefix, n.Schema(), res)
	if err != nil {
		return err
	}

	defer s.close(ctx)

	for _, rec := range records {
		row, err := n.Normalize(ctx, rec)
		if err != nil {
			return err
		}

		if row == nil {
			continue
		}

		if err := s.write(ctx, rec.Siret(), row); err != nil {
			return err
		}
	}

	res.Stats = n.Stats()

	return s.finalize(ctx, res)
}

// prospects exports the active establishments of the configured NAF codes.
// Rows need nothing beyond their own record, so pages are written while the
// next ones are fetched.
func (r *Runner) prospects(ctx context.Context, client *sirene.Client, res *Result) error {
	log := zerolog.Ctx(ctx)

	r.logStatus(ctx, client, zerolog.InfoLevel)

	n := normalize.NewProspect(normalize.Options{
		Policy: r.policy,
		Now:    r.now,
	})

	s, err := r.newSink(prospectsPrefix, n.Schema(), res)
	if err != nil {
		return err
	}

	defer s.close(ctx)

	pages := make(chan *sirene.Page, 2)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(pages)

		req := runner.ProspectsRequest(r.cfg.Prospects, res.TargetDate, r.cfg.PageSize)

		return sirene.Paginate(gctx, client, req, func(p *sirene.Page) error {
			select {
			case pages <- p:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	g.Go(func() error {
		received := 0

		for p := range pages {
			if received == 0 {
				log.Info().Int("total", p.Total).Msg("establishments to export")
			}

			received += len(p.Records)

			for _, rec := range p.Records {
				row, err := n.Normalize(gctx, rec)
				if err != nil {
					return err
				}

				if row == nil {
					continue
				}

				if err := s.write(gctx, rec.Siret(), row); err != nil {
					return err
				}
			}

			log.Debug().Int("received", received).Msg("page written")
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	res.Stats = n.Stats()

	return s.finalize(ctx, res)
}
