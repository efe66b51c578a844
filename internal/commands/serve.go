package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/qcscan/internal/api"
	"github.com/balkashynov/qcscan/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API used by scanner stations. Active sessions are reloaded
from the database on start.`,
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = a.Config.Server.Addr
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.Start(ctx); err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		srv := api.NewServer(a).NewHTTPServer(addr)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
		a.Logger.Info().Str("addr", addr).Msg("listening")

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				fmt.Printf("Error: %v\n", err)
			}
			return
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.Logger.Error().Err(err).Msg("shutdown failed")
		}
		a.Logger.Info().Msg("stopped")
	}),
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from server.addr)")
}
