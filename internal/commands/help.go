package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show comprehensive help for qcscan",
	Long:  `Display detailed help for all qcscan commands and flags.`,
	Run: func(cmd *cobra.Command, args []string) {
		showCustomHelp()
	},
}

func showCustomHelp() {
	fmt.Print(`
 ██████╗  ██████╗███████╗ ██████╗ █████╗ ███╗   ██╗
██╔═══██╗██╔════╝██╔════╝██╔════╝██╔══██╗████╗  ██║
██║   ██║██║     ███████╗██║     ███████║██╔██╗ ██║
██║▄▄ ██║██║     ╚════██║██║     ██╔══██║██║╚██╗██║
╚██████╔╝╚██████╗███████║╚██████╗██║  ██║██║ ╚████║
 ╚══▀▀═╝  ╚═════╝╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═══╝

qcscan - two-scan quality-control inspection tracker

A code is scanned once when it enters inspection and once when it leaves.
Each worker has at most one active session; a session may hold several
items in inspection at the same time.

COMMANDS:

  serve                   Run the HTTP API for scanner stations
    --addr                Listen address (default :8080)

  station <worker>        Interactive scanner station
    Keys:
      enter         Submit the scanned code
      ctrl+e        End the session and quit
      esc/ctrl+c    Leave, session keeps running

  login <worker>          Start a session (restarts an existing one)
  logout <worker>         End the worker's session, aborting open items
  restart <worker>        Abort open items and reset the session clock
  status [worker]         Show active sessions and codes awaiting exit

  scan <session> <code>   Submit a decoded scan
    --ref                 Scan record reference

  items <session>         List inspection items
    -s, --status          Filter: active|completed|aborted
    --json                JSON output

  abort <item>            Abort an active item
    -r, --reason          Reason recorded on the item

  quality <item>          Record quality results on an active item
    --rating              1 to 5
    --defects             Defect description
    --rework              Flag for rework
    --prio                low|medium|high

  version                 Print version information
  help                    Show this help

GLOBAL FLAGS:

  -c, --config            Config file (default ~/.config/qcscan/config.yaml)
  --db                    sqlite database file (default ~/.qcscan/qcscan.db)
  --log-level             debug|info|warn|error

Every config key can be set from the environment, e.g.
QCSCAN_INSPECTION_MAX_PARALLEL_ITEMS_PER_SESSION=5

`)
}
