package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/Tpgainz/sirene-export/runner"
	"github.com/Tpgainz/sirene-export/runner/exportrunner"
	"github.com/Tpgainz/sirene-export/runner/lambdaaws"
)

func main() {
	if _, err := os.Stat("/.dockerenv"); os.IsNotExist(err) {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			os.Stderr.WriteString("Warning: error loading .env file: " + err.Error() + "\n")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	runner.Banner()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan

		os.Stderr.WriteString("Received signal, shutting down...\n")

		cancel()
	}()

	cmd := runner.NewCommand(func(ctx context.Context, cfg *runner.Config) error {
		runnerInstance, err := runnerFactory(cfg)
		if err != nil {
			return err
		}

		defer func() {
			if err := runnerInstance.Close(context.WithoutCancel(ctx)); err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Msg("error closing runner")
			}
		}()

		return runnerInstance.Run(ctx)
	})

	if err := cmd.ExecuteContext(ctx); err != nil && !errors.Is(err, context.Canceled) {
		os.Stderr.WriteString(err.Error() + "\n")

		cancel()

		os.Exit(1)
	}

	cancel()

	os.Exit(0)
}

func runnerFactory(cfg *runner.Config) (runner.Runner, error) {
	switch cfg.RunMode {
	case runner.RunModeUpdates, runner.RunModeProspects, runner.RunModeStatus:
		return exportrunner.New(cfg)
	case runner.RunModeAwsLambda:
		return lambdaaws.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %d", runner.ErrInvalidRunMode, cfg.RunMode)
	}
}
