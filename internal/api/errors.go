package api

import (
	"encoding/json"
	"net/http"
)

// Error is the body of every non-2xx response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the status server.
const (
	ErrCodeInvalidLimit     = "invalid_limit"
	ErrCodeNoRoute          = "no_route"
	ErrCodeMethodNotAllowed = "method_not_allowed"
	ErrCodeJournalDisabled  = "journal_disabled"
	ErrCodeJournalQuery     = "journal_query_failed"
	ErrCodeInternal         = "internal_error"
)

// writeJSON encodes v as the response body. Encode errors mean the poller
// hung up and are dropped.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // client gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}

// writeJournalUnavailable answers journal queries when journal.enabled is false.
func writeJournalUnavailable(w http.ResponseWriter) {
	writeError(w, http.StatusServiceUnavailable, ErrCodeJournalDisabled,
		"journal is disabled; set journal.enabled to record boots, events and messages")
}

// writeJournalFailure reports a failed journal read without leaking SQL detail.
func writeJournalFailure(w http.ResponseWriter, what string) {
	writeError(w, http.StatusInternalServerError, ErrCodeJournalQuery, "reading "+what+" from the journal failed")
}
