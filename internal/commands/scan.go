package commands

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/inspection"
)

var scanCmd = &cobra.Command{
	Use:   "scan [session-id] [code]",
	Short: "Submit a decoded scan for a session",
	Long: `Submit a decoded code for a session. The first scan of a code opens an
inspection item, the second one closes it.

Examples:
  qcscan scan 4f0c... ABC123
  qcscan scan 4f0c... ABC123 --ref cam1-000117`,
	Args: cobra.ExactArgs(2),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		ref, _ := cmd.Flags().GetString("ref")
		if ref == "" {
			ref = uuid.New().String()
		}

		outcome, ok := a.Scans.SubmitScan(cmd.Context(), args[0], args[1], ref)
		if !ok {
			fmt.Println("Scan ignored (duplicate)")
			return
		}
		printOutcome(outcome)
	}),
}

func init() {
	scanCmd.Flags().String("ref", "", "Scan record reference (default: generated)")
}

// printOutcome prints a scan outcome for the terminal
func printOutcome(o inspection.Outcome) {
	switch o.Type {
	case inspection.OutcomeEntranceStarted:
		fmt.Printf("▶️  %s\n", o.Message)
	case inspection.OutcomeExitCompleted:
		fmt.Printf("✅ %s\n", o.Message)
		if o.Overdue {
			fmt.Println("⚠️  Item exceeded the step timeout")
		}
	case inspection.OutcomeAlreadyCompleted, inspection.OutcomeLimitExceeded,
		inspection.OutcomeQRMismatch, inspection.OutcomeRateLimit:
		fmt.Printf("⛔ %s\n", o.Message)
	default:
		fmt.Printf("❌ %s\n", o.Message)
	}

	if o.Item != nil {
		fmt.Printf("Item #%d: %s (%s)\n", o.Item.ID, o.Item.Code, o.Item.Status)
		if o.Type == inspection.OutcomeExitCompleted {
			fmt.Printf("Duration: %s\n", formatDuration(time.Duration(o.DurationSeconds)*time.Second))
		}
	}
}
