package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/holter-node/internal/journal"
)

// handleListBoots returns recent boots, newest first.
func (s *Server) handleListBoots(w http.ResponseWriter, r *http.Request) {
	if !s.requireJournal(w) {
		return
	}

	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}

	boots, err := s.journal.ListBoots(r.Context(), limit)
	if err != nil {
		s.logger.Error("listing boots", "error", err)
		writeJournalFailure(w, "boots")
		return
	}
	if boots == nil {
		boots = []journal.Boot{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"boots": boots,
		"count": len(boots),
	})
}

// handleListEvents returns journaled events.
//
// Query parameters: boot_id, kind, limit.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireJournal(w) {
		return
	}

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}
	filter.Kind = journal.EventKind(r.URL.Query().Get("kind"))

	events, err := s.journal.ListEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing events", "error", err)
		writeJournalFailure(w, "events")
		return
	}
	if events == nil {
		events = []journal.Event{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"count":  len(events),
	})
}

// handleListMessages returns journaled MQTT messages.
//
// Query parameters: boot_id, limit.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if !s.requireJournal(w) {
		return
	}

	filter, ok := parseFilter(w, r)
	if !ok {
		return
	}

	messages, err := s.journal.ListMessages(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing messages", "error", err)
		writeJournalFailure(w, "messages")
		return
	}
	if messages == nil {
		messages = []journal.Message{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) requireJournal(w http.ResponseWriter) bool {
	if s.journal == nil {
		writeJournalUnavailable(w)
		return false
	}
	return true
}

func parseFilter(w http.ResponseWriter, r *http.Request) (journal.Filter, bool) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return journal.Filter{}, false
	}
	return journal.Filter{
		BootID: r.URL.Query().Get("boot_id"),
		Limit:  limit,
	}, true
}

// parseLimit reads ?limit=. Zero means the journal default.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeInvalidLimit, "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
