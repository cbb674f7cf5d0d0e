package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/choreminder/choreminder/adapter/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		handler := api.NewHandler(api.HandlerConfig{
			Generator:    container.Generator,
			Conflicts:    container.ConflictDetector,
			Dispatcher:   container.Dispatcher,
			RuleRepo:     container.RuleRepo,
			ScheduleRepo: container.ScheduleRepo,
			HorizonDays:  container.Config.GenerateHorizon,
			Logger:       container.Logger,
		})

		serverCfg := api.DefaultServerConfig()
		if container.Config.APIAddr != "" {
			serverCfg.Addr = container.Config.APIAddr
		}
		server := api.NewServer(serverCfg, handler, container.Logger)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
