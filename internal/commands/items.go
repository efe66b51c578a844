package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/qcscan/internal/app"
	"github.com/balkashynov/qcscan/internal/models"
	"github.com/balkashynov/qcscan/internal/parser"
)

var itemsCmd = &cobra.Command{
	Use:     "items [session-id]",
	Aliases: []string{"ls"},
	Short:   "List the inspection items of a session",
	Args:    cobra.ExactArgs(1),
	Run: withApp(func(a *app.App, cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		switch status {
		case "", models.StatusActive, models.StatusCompleted, models.StatusAborted:
		default:
			fmt.Printf("Error: invalid status '%s' (use active, completed or aborted)\n", status)
			return
		}

		items, err := a.Store.ListItems(cmd.Context(), args[0], status)
		if err != nil {
			fmt.Printf("Error fetching items: %v\n", err)
			return
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(items); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			return
		}

		if len(items) == 0 {
			fmt.Println("No items found")
			return
		}

		fmt.Printf("%-6s %-10s %-30s %-9s %-6s %s\n", "ID", "STATUS", "CODE", "STARTED", "PRIO", "DURATION")
		fmt.Println(strings.Repeat("-", 80))

		now := time.Now()
		for _, item := range items {
			code := item.Code
			if len(code) > 28 {
				code = code[:25] + "..."
			}

			duration := "-"
			switch item.Status {
			case models.StatusCompleted:
				duration = formatDuration(time.Duration(item.DurationSeconds) * time.Second)
			case models.StatusActive:
				duration = formatDuration(item.Elapsed(now)) + " (running)"
			}

			fmt.Printf("%-6d %-10s %-30s %-9s %-6s %s\n",
				item.ID,
				item.Status,
				code,
				item.StartTime.Format("15:04:05"),
				parser.PriorityLabel(item.Priority),
				duration)
		}
	}),
}

func init() {
	itemsCmd.Flags().StringP("status", "s", "", "Filter by status: active|completed|aborted")
	itemsCmd.Flags().Bool("json", false, "JSON output")
}
