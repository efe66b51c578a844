package session

import (
	"context"
	"time"

	"github.com/balkashynov/qcscan/internal/models"
)

// startWatcher launches the advisory overdue check of a session. Overdue
// items are logged once each and stay active. It must run before h is
// registered; the goroutine only reads the immutable h.id.
func (m *Manager) startWatcher(h *handle) {
	if m.overdueEvery <= 0 || m.stepTimeout <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	sessionID := h.id
	done := make(chan struct{})
	h.cancel = cancel
	h.done = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(m.overdueEvery)
		defer ticker.Stop()

		warned := make(map[uint]bool)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.checkOverdue(ctx, sessionID, warned)
			}
		}
	}()
}

// checkOverdue logs active items of sessionID older than the step timeout
func (m *Manager) checkOverdue(ctx context.Context, sessionID string, warned map[uint]bool) []models.InspectionItem {
	items, err := m.store.ListItems(ctx, sessionID, models.StatusActive)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("overdue check failed")
		}
		return nil
	}

	now := m.now()
	var overdue []models.InspectionItem
	for _, item := range items {
		elapsed := now.Sub(item.StartTime)
		if elapsed <= m.stepTimeout {
			continue
		}
		overdue = append(overdue, item)
		if warned[item.ID] {
			continue
		}
		warned[item.ID] = true
		m.logger.Warn().
			Str("session_id", sessionID).
			Uint("item_id", item.ID).
			Str("code", item.Code).
			Dur("elapsed", elapsed).
			Msg("item is overdue")
	}
	return overdue
}
