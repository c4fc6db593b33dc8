package runner

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

// ExecFunc runs one command once its configuration is loaded. The context
// carries the logger.
type ExecFunc func(ctx context.Context, cfg *Config) error

// NewCommand builds the command tree: updates, prospects, status and lambda.
func NewCommand(exec ExecFunc) *cobra.Command {
	var flags Flags

	root := &cobra.Command{
		Use:           "sirene-export",
		Short:         "Extract establishments from the INSEE Sirene API into zipped CSV files",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.ConfigFile, "config", "", "path to the JSON configuration file [default: "+DefaultConfigFile+" next to the binary]")
	root.PersistentFlags().BoolVar(&flags.Debug, "debug", false, "log API responses and the service status")
	root.PersistentFlags().BoolVar(&flags.Proxy, "proxy", false, "send requests through http_proxy/https_proxy")

	run := func(mode int) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(mode, flags)
			if err != nil {
				return err
			}

			logger := NewLogger(os.Stderr, cfg.Debug)

			return exec(logger.WithContext(cmd.Context()), cfg)
		}
	}

	updates := &cobra.Command{
		Use:   "updates",
		Short: "Export the establishments processed on a date into a SIRC file",
		Args:  cobra.NoArgs,
		RunE:  run(RunModeUpdates),
	}
	updates.Flags().StringVar(&flags.Date, "date", "", "date to retrieve, AAAA-MM-JJ [default: yesterday]")

	prospects := &cobra.Command{
		Use:   "prospects",
		Short: "Export the active establishments of the configured NAF codes",
		Args:  cobra.NoArgs,
		RunE:  run(RunModeProspects),
	}
	prospects.Flags().StringVar(&flags.Input, "input", "", "file with one NAF code per line, replaces the prospects key")

	status := &cobra.Command{
		Use:   "status",
		Short: "Log the Sirene service status and the last recorded runs",
		Args:  cobra.NoArgs,
		RunE:  run(RunModeStatus),
	}

	lambda := &cobra.Command{
		Use:   "lambda",
		Short: "Serve extraction events as an AWS Lambda function",
		Args:  cobra.NoArgs,
		RunE:  run(RunModeAwsLambda),
	}

	root.AddCommand(updates, prospects, status, lambda)

	return root
}
