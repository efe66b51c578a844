package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/balkashynov/qcscan/internal/models"
)

// StationResult reports how the station was left
type StationResult struct {
	EndSession bool
	Scans      int
}

// RunStation starts the interactive scanner station for session
func RunStation(cfg StationConfig, session models.WorkerSession) (StationResult, error) {
	p := tea.NewProgram(NewStationModel(cfg, session), tea.WithAltScreen())

	finalModel, err := p.Run()
	if err != nil {
		return StationResult{}, err
	}

	m, ok := finalModel.(StationModel)
	if !ok {
		return StationResult{}, nil
	}
	return StationResult{EndSession: m.ending, Scans: m.scans}, nil
}
