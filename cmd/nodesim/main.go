// Command nodesim runs a simulated Stoffel MPC node (and coordinator) for
// local development: it accepts dispatched shares, evaluates the affine
// demo program share-wise, and serves result shares for polling.
package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/stoffel-labs/stoffel-go-sdk/internal/nodesim"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		log.Fatal().Err(err).Msg("nodesim failed")
	}
}

func newRootCmd() *cobra.Command {
	var (
		addr      string
		programID string
		delay     time.Duration
		pretty    bool
	)

	cmd := &cobra.Command{
		Use:   "nodesim",
		Short: "Run a simulated Stoffel MPC node",
		Run: func(cmd *cobra.Command, args []string) {
			if pretty {
				log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
			}

			server := nodesim.NewServer(programID, nodesim.WithResultDelay(delay))
			if err := server.Start(addr); err != nil {
				log.Fatal().Err(err).Str("addr", addr).Msg("failed to serve simulated node")
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&programID, "program", "secure_addition_v1", "program id this node pretends to run")
	cmd.Flags().DurationVar(&delay, "delay", 500*time.Millisecond, "simulated computation time before results are ready")
	cmd.Flags().BoolVar(&pretty, "pretty", false, "human-readable log output")

	return cmd
}
