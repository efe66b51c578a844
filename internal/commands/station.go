package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/tui"
)

var stationCmd = &cobra.Command{
	Use:   "station [worker-id]",
	Short: "Open the interactive scanner station for a worker",
	Long: `Open the scanner station. Codes typed or sent by a keyboard-wedge scanner
are submitted on Enter. The worker's active session is reused, or a new one is
started.`,
	Args: cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		workerID := args[0]

		session, err := a.Store.ActiveSessionForWorker(ctx, workerID)
		if errors.Is(err, db.ErrNotFound) {
			session, err = a.Sessions.CreateSession(ctx, workerID)
		}
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		result, err := tui.RunStation(tui.StationConfig{
			Scans:       a.Scans,
			Items:       a.Store,
			StepTimeout: a.Config.StepTimeout(),
			MaxParallel: a.Config.Inspection.MaxParallelItemsPerSession,
		}, *session)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		if !result.EndSession {
			fmt.Printf("\n💡 Session %s is still active for worker %s\n", session.ID, workerID)
			fmt.Printf("   Use 'qcscan status %s' to check it or 'qcscan logout %s' to end it.\n", workerID, workerID)
			return
		}

		aborted, err := a.Sessions.EndSession(ctx, session.ID, workerID)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		fmt.Printf("⏹️  Ended session for worker %s (%d scans", workerID, result.Scans)
		if aborted > 0 {
			fmt.Printf(", %d open item(s) aborted", aborted)
		}
		fmt.Println(")")
	}),
}
