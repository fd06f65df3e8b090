package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/waclaw/internal/agent"
	"github.com/local/waclaw/internal/bridge"
	"github.com/local/waclaw/internal/config"
	"github.com/local/waclaw/internal/metrics"
	"github.com/local/waclaw/internal/routing"
)

const version = "0.1.0"

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "waclaw",
		Short: "waclaw — WhatsApp bridge for Claude agents",
	}

	var verbose bool
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("waclaw v%s\n", version)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "auth",
		Short: "Pair with WhatsApp (shows QR code)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return bridge.Pair(cmd.Context(), cfg, log.Logger)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show pairing and routing status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			jid, err := bridge.PairedDevice(cmd.Context(), cfg, log.Logger)
			if err != nil {
				return err
			}
			if jid == nil {
				fmt.Println("Not paired. Run 'waclaw auth' to link a device.")
			} else {
				fmt.Printf("Paired as %s\n", jid.User)
			}

			routes, err := routing.Load(cfg.AgentRoutes, cfg.TriggerName)
			if err != nil {
				return err
			}
			fmt.Printf("Default agent: %s\n", routes.DefaultAgent)
			fmt.Printf("Agents: %d, routed chats: %d\n", len(routes.Agents), len(routes.Routes))
			fmt.Printf("Batch window: %s\n", cfg.BatchWindow)
			return nil
		},
	})

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the bridge (connect and serve until interrupted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			routes, err := routing.Load(cfg.AgentRoutes, cfg.TriggerName)
			if err != nil {
				return err
			}

			apiKey := os.Getenv("ANTHROPIC_API_KEY")
			if apiKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY not set")
			}
			dispatcher := agent.NewClaude(apiKey)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			b, err := bridge.New(ctx, cfg, routes, dispatcher, log.Logger)
			if err != nil {
				return err
			}

			if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
				go func() {
					log.Info().Str("addr", addr).Msg("serving metrics")
					if err := metrics.Serve(ctx, addr); err != nil {
						log.Error().Err(err).Msg("metrics server failed")
					}
				}()
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				signal.Reset(syscall.SIGINT, syscall.SIGTERM)
				cancel()
			}()

			return b.Run(ctx)
		},
	}
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090); empty disables")
	rootCmd.AddCommand(runCmd)

	return rootCmd
}

func main() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
