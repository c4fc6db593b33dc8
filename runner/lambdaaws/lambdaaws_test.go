package lambdaaws

import (
	"context"
	"testing"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tpgainz/sirene-export/normalize"
	"github.com/Tpgainz/sirene-export/runner"
	"github.com/Tpgainz/sirene-export/runner/exportrunner"
)

type fakeExecutor struct {
	jobs   []runner.Job
	err    error
	closed bool
}

func (f *fakeExecutor) Execute(_ context.Context, job runner.Job) (*exportrunner.Result, error) {
	f.jobs = append(f.jobs, job)

	if f.err != nil {
		return nil, f.err
	}

	return &exportrunner.Result{
		RunID:      "run-1",
		TargetDate: "2024-03-01",
		Archive:    "/data/sirc-2024-03-01.zip",
		ObjectKey:  "exports/sirc-2024-03-01.zip",
		Rows:       3,
		Stats:      normalize.Stats{Emitted: 3, Created: 2, Closed: 1},
	}, nil
}

func (f *fakeExecutor) Close(context.Context) error {
	f.closed = true

	return nil
}

func TestHandler(t *testing.T) {
	exec := &fakeExecutor{}
	r := &Runner{exec: exec, logger: zerolog.Nop()}

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})

	resp, err := r.handler(ctx, Event{Date: "2024-03-01"})
	require.NoError(t, err)

	assert.Equal(t, []runner.Job{{Mode: runner.RunModeUpdates, Date: "2024-03-01"}}, exec.jobs)
	assert.Equal(t, Response{
		RunID:      "run-1",
		Mode:       "updates",
		TargetDate: "2024-03-01",
		Archive:    "/data/sirc-2024-03-01.zip",
		ObjectKey:  "exports/sirc-2024-03-01.zip",
		Rows:       3,
		Created:    2,
		Closed:     1,
	}, resp)

	_, err = r.handler(context.Background(), Event{Mode: "Prospects"})
	require.NoError(t, err)
	assert.Equal(t, runner.RunModeProspects, exec.jobs[1].Mode)

	require.NoError(t, r.Close(context.Background()))
	assert.True(t, exec.closed)
}

func TestHandlerErrors(t *testing.T) {
	exec := &fakeExecutor{}
	r := &Runner{exec: exec, logger: zerolog.Nop()}

	_, err := r.handler(context.Background(), Event{Mode: "lambda"})
	require.ErrorIs(t, err, runner.ErrInvalidRunMode)
	assert.Empty(t, exec.jobs)

	exec.err = assert.AnError

	_, err = r.handler(context.Background(), Event{})
	require.ErrorIs(t, err, assert.AnError)
}

func TestNewRejectsOtherModes(t *testing.T) {
	_, err := New(&runner.Config{RunMode: runner.RunModeUpdates})
	assert.Error(t, err)
}
