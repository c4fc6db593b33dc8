// Package lambdaaws serves extraction jobs as an AWS Lambda function.
package lambdaaws

import (
	"context"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"

	"github.com/Tpgainz/sirene-export/runner"
	"github.com/Tpgainz/sirene-export/runner/exportrunner"
)

// Event is the invocation payload. An empty mode means updates, an empty
// date the default date of the mode.
type Event struct {
	Mode string `json:"mode"`
	Date string `json:"date"`
}

type Response struct {
	RunID      string `json:"run_id"`
	Mode       string `json:"mode"`
	TargetDate string `json:"target_date"`
	Archive    string `json:"archive,omitempty"`
	ObjectKey  string `json:"object_key,omitempty"`
	Rows       int    `json:"rows"`
	Created    int    `json:"created"`
	Closed     int    `json:"closed"`
	Skipped    int    `json:"skipped"`
}

type executor interface {
	Execute(ctx context.Context, job runner.Job) (*exportrunner.Result, error)
	Close(ctx context.Context) error
}

type Runner struct {
	exec   executor
	logger zerolog.Logger
}

var _ runner.Runner = (*Runner)(nil)

func New(cfg *runner.Config) (runner.Runner, error) {
	if cfg.RunMode != runner.RunModeAwsLambda {
		return nil, fmt.Errorf("%d is not supported run mode for lambdaaws", cfg.RunMode)
	}

	exec, err := exportrunner.New(cfg)
	if err != nil {
		return nil, err
	}

	return &Runner{exec: exec}, nil
}

// Run blocks serving invocations until the Lambda runtime stops the process.
func (r *Runner) Run(ctx context.Context) error {
	r.logger = *zerolog.Ctx(ctx)

	lambda.StartWithOptions(r.handler, lambda.WithContext(ctx))

	return nil
}

func (r *Runner) Close(ctx context.Context) error {
	return r.exec.Close(ctx)
}

func (r *Runner) handler(ctx context.Context, ev Event) (Response, error) {
	logger := r.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With().Str("aws_request_id", lc.AwsRequestID).Logger()
	}

	ctx = logger.WithContext(ctx)

	mode, err := runner.ParseMode(ev.Mode)
	if err != nil {
		return Response{}, err
	}

	logger.Info().Str("event_mode", ev.Mode).Str("event_date", ev.Date).Msg("invocation received")

	res, err := r.exec.Execute(ctx, runner.Job{Mode: mode, Date: ev.Date})
	if err != nil {
		return Response{}, err
	}

	return Response{
		RunID:      res.RunID,
		Mode:       runner.ModeName(mode),
		TargetDate: res.TargetDate,
		Archive:    res.Archive,
		ObjectKey:  res.ObjectKey,
		Rows:       res.Rows,
		Created:    res.Stats.Created,
		Closed:     res.Stats.Closed,
		Skipped:    res.Stats.Skipped,
	}, nil
}
