package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/FrenchMajesty/turbo-retry/config"
	"github.com/FrenchMajesty/turbo-retry/utils/logger"
	"github.com/spf13/cobra"
)

var (
	cfgPath  string
	envFiles []string
	isDebug  bool
)

var rootCmd = &cobra.Command{
	Use:   "turbo-retry",
	Short: "Retrying image generation and upload service",
	Long: `turbo-retry serves image generation and file uploads over HTTP. Every
upstream call runs through an exponential backoff executor whose retry state,
events and metrics are exposed alongside the API.`,
	SilenceUsage: true,
	RunE:         runServer,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "env files loaded before the config")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(envFiles...); err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if isDebug {
		cfg.Logging.Level = "debug"
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg, log)
	if err != nil {
		log.Printf("Failed to initialize: %v", err)
		return err
	}
	defer app.close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.server.Start()
	}()
	log.Printf("turbo-retry started (config %s, generator %s)", cfgPath, cfg.ImageGen.Provider)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server stopped: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Received signal, shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	app.images.Cancel()
	if err := app.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("error during shutdown: %w", err)
	}
	return nil
}

// loadConfig reads the config file, falling back to defaults when the default
// path does not exist
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	cfg, err := config.Load(cfgPath)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config") {
		defaults := config.Default()
		return &defaults, nil
	}
	return nil, err
}
