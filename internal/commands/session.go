package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/db"
	"github.com/balkashynov/qcscan/internal/models"
)

var loginCmd = &cobra.Command{
	Use:   "login [worker-id]",
	Short: "Start a session for a worker",
	Long: `Start an inspection session for a worker. If the worker already has an
active session it is restarted: its open items are aborted and the clock resets.`,
	Args: cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		session, restarted, err := a.Sessions.Login(cmd.Context(), args[0])
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		if restarted {
			fmt.Printf("🔄 Restarted session for worker %s\n", session.WorkerID)
		} else {
			fmt.Printf("▶️  Started session for worker %s\n", session.WorkerID)
		}
		fmt.Printf("Session: %s\n", session.ID)
		fmt.Printf("Started at: %s\n", session.StartedAt.Format("15:04:05"))
	}),
}

var logoutCmd = &cobra.Command{
	Use:   "logout [worker-id]",
	Short: "End a worker's session",
	Args:  cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		session, ok := activeSession(a, cmd, args[0])
		if !ok {
			return
		}

		aborted, err := a.Sessions.EndSession(cmd.Context(), session.ID, session.WorkerID)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("⏹️  Ended session for worker %s after %s\n", session.WorkerID, formatDuration(time.Since(session.StartedAt)))
		if aborted > 0 {
			fmt.Printf("Aborted %d open item(s)\n", aborted)
		}
	}),
}

var restartCmd = &cobra.Command{
	Use:   "restart [worker-id]",
	Short: "Restart a worker's session",
	Args:  cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		session, ok := activeSession(a, cmd, args[0])
		if !ok {
			return
		}

		restarted, aborted, err := a.Sessions.RestartSession(cmd.Context(), session.ID, session.WorkerID)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("🔄 Restarted session %s\n", restarted.ID)
		fmt.Printf("Aborted %d open item(s)\n", aborted)
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status [worker-id]",
	Short: "Show active sessions",
	Long:  "Show the active session of a worker, or every active session when no worker is given",
	Args:  cobra.MaximumNArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		var sessions []models.WorkerSession
		if len(args) == 1 {
			session, ok := activeSession(a, cmd, args[0])
			if !ok {
				return
			}
			sessions = append(sessions, *session)
		} else {
			var err error
			sessions, err = a.Store.ActiveSessions(cmd.Context())
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				return
			}
		}

		if len(sessions) == 0 {
			fmt.Println("No active sessions")
			return
		}

		for _, s := range sessions {
			snap, err := a.Sessions.Snapshot(cmd.Context(), s.ID)
			if err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("⏱️  Worker %s, session %s\n", s.WorkerID, s.ID)
			fmt.Printf("Started at: %s (%s ago)\n", s.StartedAt.Format("15:04:05"), formatDuration(time.Since(s.StartedAt)))
			fmt.Printf("Active items: %d/%d\n", snap.ActiveCount, a.Config.Inspection.MaxParallelItemsPerSession)
			for _, code := range snap.PendingCodes {
				fmt.Printf("  awaiting exit: %s\n", code)
			}
		}
	}),
}

// activeSession looks up the worker's active session and prints why when
// there is none
func activeSession(a *app.App, cmd *cobra.Command, workerID string) (*models.WorkerSession, bool) {
	session, err := a.Store.ActiveSessionForWorker(cmd.Context(), workerID)
	if errors.Is(err, db.ErrNotFound) {
		fmt.Printf("No active session for worker %s\n", workerID)
		return nil, false
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return nil, false
	}
	return session, true
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	} else if d.Minutes() >= 1 {
		return fmt.Sprintf("%.0fm", d.Minutes())
	} else {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
}
