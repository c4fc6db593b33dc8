// Package telemetry sends an anonymous run summary to PostHog.
package telemetry

import (
	"context"
	"runtime"
	"time"

	"github.com/posthog/posthog-go"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

const eventRunCompleted = "sirene_run_completed"

type Summary struct {
	RunID      string
	Mode       string
	TargetDate string
	Rows       int
	Created    int
	Closed     int
	Skipped    int
	Duration   time.Duration
	Err        error
}

type enqueuer interface {
	Enqueue(posthog.Message) error
	Close() error
}

// Client is a no-op when built without an API key.
type Client struct {
	ph    enqueuer
	facts func(context.Context) Facts
}

func New(apiKey, endpoint string) (*Client, error) {
	if apiKey == "" {
		return &Client{}, nil
	}

	cfg := posthog.Config{}
	if endpoint != "" {
		cfg.Endpoint = endpoint
	}

	ph, err := posthog.NewWithConfig(apiKey, cfg)
	if err != nil {
		return nil, err
	}

	return &Client{ph: ph, facts: HostFacts}, nil
}

func (c *Client) Enabled() bool {
	return c.ph != nil
}

// RunCompleted enqueues the summary of a finished run.
func (c *Client) RunCompleted(ctx context.Context, s Summary) error {
	if !c.Enabled() {
		return nil
	}

	f := c.facts(ctx)

	props := posthog.NewProperties().
		Set("run_id", s.RunID).
		Set("mode", s.Mode).
		Set("target_date", s.TargetDate).
		Set("rows", s.Rows).
		Set("created", s.Created).
		Set("closed", s.Closed).
		Set("skipped", s.Skipped).
		Set("duration_seconds", s.Duration.Seconds()).
		Set("success", s.Err == nil).
		Set("os", f.OS).
		Set("platform", f.Platform).
		Set("cpus", f.CPUs).
		Set("memory_bytes", f.MemoryBytes)

	err := c.ph.Enqueue(posthog.Capture{
		DistinctId: f.HostID,
		Event:      eventRunCompleted,
		Properties: props,
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Msg("telemetry event dropped")
	}

	return err
}

// Close flushes pending events.
func (c *Client) Close() error {
	if !c.Enabled() {
		return nil
	}

	return c.ph.Close()
}

// Facts describe the machine running the extraction.
type Facts struct {
	HostID      string
	OS          string
	Platform    string
	CPUs        int
	MemoryBytes uint64
}

// HostFacts reads host facts with gopsutil. Unavailable values stay zero.
func HostFacts(ctx context.Context) Facts {
	f := Facts{OS: runtime.GOOS, HostID: "unknown"}

	if info, err := host.InfoWithContext(ctx); err == nil {
		if info.HostID != "" {
			f.HostID = info.HostID
		}

		f.Platform = info.Platform + " " + info.PlatformVersion
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil {
		f.CPUs = n
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		f.MemoryBytes = vm.Total
	}

	return f
}
