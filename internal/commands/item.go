package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/inspection"
	"github.com/balkashynov/qcscan/internal/parser"
)

var abortCmd = &cobra.Command{
	Use:   "abort [item-id]",
	Short: "Abort an active inspection item",
	Args:  cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		itemID, ok := parseItemID(args[0])
		if !ok {
			return
		}
		reason, _ := cmd.Flags().GetString("reason")

		aborted, err := a.Sessions.AbortItem(cmd.Context(), itemID, reason)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}
		if !aborted {
			fmt.Printf("Item #%d is not active, nothing to abort\n", itemID)
			return
		}
		fmt.Printf("🛑 Aborted item #%d: %s\n", itemID, reason)
	}),
}

var qualityCmd = &cobra.Command{
	Use:   "quality [item-id]",
	Short: "Record quality results on an active item",
	Long: `Record quality results on an item that is still being inspected.

Examples:
  qcscan quality 42 --rating 4
  qcscan quality 42 --defects "scratch on lid" --rework`,
	Args: cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		itemID, ok := parseItemID(args[0])
		if !ok {
			return
		}

		var q inspection.Quality
		if cmd.Flags().Changed("rating") {
			rating, _ := cmd.Flags().GetInt("rating")
			q.Rating = &rating
		}
		q.DefectDescription, _ = cmd.Flags().GetString("defects")
		q.DefectsFound = q.DefectDescription != ""
		q.ReworkRequired, _ = cmd.Flags().GetBool("rework")

		if prio, _ := cmd.Flags().GetString("prio"); prio != "" {
			if !parser.IsValidPriority(prio) {
				fmt.Printf("Error: invalid priority '%s' (use low, medium or high)\n", prio)
				return
			}
			q.Priority = parser.PriorityToInt(prio)
		}

		item, err := a.Machine.RecordQuality(cmd.Context(), itemID, q)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			return
		}

		fmt.Printf("📝 Updated item #%d: %s\n", item.ID, item.Code)
		if item.Rating != nil {
			fmt.Printf("Rating: %d/5\n", *item.Rating)
		}
		if item.DefectsFound {
			fmt.Printf("Defects: %s\n", item.DefectDescription)
		}
		if item.ReworkRequired {
			fmt.Println("Rework required")
		}
	}),
}

func init() {
	abortCmd.Flags().StringP("reason", "r", "aborted by operator", "Reason recorded on the item")

	qualityCmd.Flags().Int("rating", 0, "Rating from 1 to 5")
	qualityCmd.Flags().String("defects", "", "Describe defects found")
	qualityCmd.Flags().Bool("rework", false, "Flag the item for rework")
	qualityCmd.Flags().String("prio", "", "Priority: low|medium|high")
}

func parseItemID(arg string) (uint, bool) {
	id, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		fmt.Printf("Error: invalid item ID '%s'\n", arg)
		return 0, false
	}
	return uint(id), true
}
