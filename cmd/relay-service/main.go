package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"otprelay/internal/config"
	"otprelay/internal/extraction"
	"otprelay/internal/logger"
	"otprelay/internal/sender"
	"otprelay/pkg/logging"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "relay-service",
		Short: "OTP relay",
		Long:  "Relay detects one-time passcodes in incoming messages and forwards each one exactly once",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(extractCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigFile() string {
	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
	}
	return configFile
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog(cmd.ErrOrStderr(), serviceName)

			if resolveConfigFile() == "" {
				earlyLog.Errorf("config file is required: use --config or CONFIG_FILE")
				return fmt.Errorf("config file is required")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Errorf("failed to load config: %v", err)
				return err
			}

			log, err := logger.New(logger.Options{
				Level:       cfg.Logging.Level,
				Format:      cfg.Logging.Format,
				ServiceName: serviceName,
			})
			if err != nil {
				earlyLog.Errorf("failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting OTP relay")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				if shutdownErr := app.Shutdown(context.Background()); shutdownErr != nil {
					log.ErrorwCtx(ctx, "Cleanup after failed start", "error", shutdownErr)
				}
				return err
			}

			log.InfowCtx(ctx, "Service running")
			if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

// extractCmd runs extraction and sender normalization on one message offline.
func extractCmd() *cobra.Command {
	var text, from string

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Show the OTP and sender key the relay would derive from a message",
		RunE: func(cmd *cobra.Command, args []string) error {
			extractionCfg := extraction.DefaultConfig()
			var overrides []sender.Override

			if resolveConfigFile() != "" {
				cfg, err := config.Load(configFile)
				if err != nil {
					return err
				}
				extractionCfg = extraction.Config{
					MinLength: cfg.Extraction.MinLength,
					MaxLength: cfg.Extraction.MaxLength,
					Keywords:  cfg.Extraction.Keywords,
					Regexes:   cfg.Extraction.Regexes,
				}
				for _, o := range cfg.Sender.Overrides {
					overrides = append(overrides, sender.Override{Match: o.Match, Token: o.Token})
				}
			}

			out := cmd.OutOrStdout()
			otp, found := extraction.New().Extract(text, extractionCfg)
			if found {
				fmt.Fprintf(out, "otp:        %s\n", otp)
			} else {
				fmt.Fprintln(out, "otp:        (none)")
			}
			if from != "" {
				fmt.Fprintf(out, "sender_key: %s\n", sender.New(overrides).Normalize(from))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Message body")
	cmd.Flags().StringVar(&from, "sender", "", "Sender address or app title")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}
