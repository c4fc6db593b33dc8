package normalize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tpgainz/sirene-export/geo"
	"github.com/Tpgainz/sirene-export/sirene"
)

// Policy decides what happens to a record with a missing field.
type Policy int

const (
	// FailOnError aborts the run on the first bad record.
	FailOnError Policy = iota
	// SkipOnError logs and counts the bad record, then moves on.
	SkipOnError
)

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return FailOnError, nil
	case "skip":
		return SkipOnError, nil
	default:
		return FailOnError, fmt.Errorf("unknown record error policy %q (expected fail or skip)", s)
	}
}

func (p Policy) String() string {
	if p == SkipOnError {
		return "skip"
	}

	return "fail"
}

const (
	statusActive = "A"
	statusClosed = "F"
)

// Stats are the per run counters.
type Stats struct {
	Emitted int
	Created int
	Closed  int
	Skipped int
}

type Options struct {
	Geo          *geo.Table
	Headquarters sirene.Index
	Policy       Policy
	Now          func() time.Time
}

type mapFunc func(ctx context.Context, n *Normalizer, r view, rec sirene.Establishment) (row *Row, status string)

// Normalizer turns raw records into rows of one schema and keeps the run
// counters. It is not safe for concurrent use.
type Normalizer struct {
	schema *Schema
	mapRow mapFunc
	geo    *geo.Table
	index  sirene.Index
	policy Policy
	now    func() time.Time
	stats  Stats
}

func newNormalizer(schema *Schema, fn mapFunc, opts Options) *Normalizer {
	n := Normalizer{
		schema: schema,
		mapRow: fn,
		geo:    opts.Geo,
		index:  opts.Headquarters,
		policy: opts.Policy,
		now:    opts.Now,
	}

	if n.geo == nil {
		n.geo = geo.Regions
	}

	if n.now == nil {
		n.now = time.Now
	}

	return &n
}

// NewSIRC returns a Normalizer producing SIRC rows.
func NewSIRC(opts Options) *Normalizer {
	return newNormalizer(SIRC, mapSIRC, opts)
}

// NewProspect returns a Normalizer producing prospect rows.
func NewProspect(opts Options) *Normalizer {
	return newNormalizer(Prospect, mapProspect, opts)
}

func (n *Normalizer) Schema() *Schema {
	return n.schema
}

func (n *Normalizer) Stats() Stats {
	return n.stats
}

// Normalize maps rec to a row. With SkipOnError a record missing a field
// returns a nil row and a nil error.
func (n *Normalizer) Normalize(ctx context.Context, rec sirene.Establishment) (*Row, error) {
	log := zerolog.Ctx(ctx)

	acc := &accessor{siret: rec.Siret()}

	row, status := n.mapRow(ctx, n, acc.root(rec), rec)
	if acc.err != nil {
		if n.policy == SkipOnError {
			n.stats.Skipped++

			log.Warn().Err(acc.err).Msg("skipping record")

			return nil, nil
		}

		log.Debug().Interface("record", rec).Msg("record with missing key")

		return nil, acc.err
	}

	switch status {
	case statusActive:
		n.stats.Created++
	case statusClosed:
		n.stats.Closed++
	}

	n.stats.Emitted++

	return row, nil
}

func (n *Normalizer) workforceLabel(ctx context.Context, code string) string {
	if code == "" {
		return ""
	}

	label, ok := geo.WorkforceLabel(code)
	if !ok {
		zerolog.Ctx(ctx).Warn().Str("code", code).Msg("unknown workforce bracket")
	}

	return label
}
