package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/omri0111-web/facepace-public/internal/config"
	"github.com/omri0111-web/facepace-public/internal/extractor"
	"github.com/omri0111-web/facepace-public/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the FacePace HTTP API.

The server exposes enrollment, recognition, people, photo and group endpoints
under /api/v1. The face model is prepared by POST /api/v1/init unless
--preload is given.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 8000, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().Bool("preload", false, "Initialize the face model at startup")
}

// resolveServeHostPort applies explicit flags on top of the environment.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("port") {
		cfg.Web.Port = mustGetInt(cmd, "port")
	}
	if cmd.Flags().Changed("host") {
		cfg.Web.Host = mustGetString(cmd, "host")
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer store.Close()
	fmt.Printf("Using %s backend\n", cfg.Storage.Backend)

	handle := newExtractorHandle(cfg)
	if mustGetBool(cmd, "preload") {
		opts := extractor.InitOptions{
			ModelPack: cfg.Embedding.ModelPack,
			DetWidth:  cfg.Embedding.DetWidth,
			DetHeight: cfg.Embedding.DetHeight,
		}
		if err := handle.Init(ctx, opts); err != nil {
			fmt.Printf("Warning: Failed to preload face model: %v\n", err)
			fmt.Printf("Call POST /api/v1/init to retry\n")
		} else {
			fmt.Printf("Face model %s ready\n", opts.ModelPack)
		}
	}

	if cfg.Web.APIToken == "" {
		fmt.Printf("Warning: WEB_API_TOKEN is not set, API routes are unauthenticated\n")
	}

	services := web.NewServices(cfg, handle, store)
	server := web.NewServer(cfg, services)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		saveHNSWIndex(store)

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting FacePace API on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
