package hub

import (
	"context"
	"encoding/json"

	"github.com/gymstack/presenced/internal/message"
	"github.com/gymstack/presenced/internal/training"
)

// BroadcastTrainingLevel recomputes a user's training level from the
// records store and pushes it to that user's current connection only.
// Store failures are logged and absorbed: the prior summary stays intact
// and presence handling is unaffected. A user without a live connection
// still gets the in-memory summary update; the push is skipped.
func (h *Hub) BroadcastTrainingLevel(userID string) {
	if h.Store == nil {
		h.Logger.Debugf("No training store configured, skipping level push for %s", userID)
		return
	}

	records, err := h.Store.Records(context.Background(), userID)
	if err != nil {
		h.Logger.Warnf("Training records lookup failed for %s: %v", userID, err)
		return
	}

	summary := training.Summarize(records)

	h.mu.Lock()
	if entry, ok := h.presence[userID]; ok {
		s := summary
		entry.Training = &s
	}
	client, ok := h.conns[userID]
	h.mu.Unlock()

	if !ok {
		return
	}

	update := message.TrainingUpdate{
		Version:  message.Version,
		Type:     message.TypeTrainingLevel,
		Level:    summary.Level,
		Progress: summary.Progress,
	}
	data, err := json.Marshal(update)
	if err != nil {
		h.Logger.Errorf("Failed to marshal training update for %s: %v", userID, err)
		return
	}
	h.sendFrame(client, data)
	h.Logger.Debugf("Pushed training level %s (%d%%) to %s", summary.Level, summary.Progress, userID)
}
