package server

import (
	"github.com/matthewbaird/fioriexport/internal/export"
)

// ── Server → Client messages ────────────────────────────────────────────────

// ServerMessage is the envelope for all server-to-client WebSocket messages.
type ServerMessage struct {
	Type string `json:"type"` // "line", "done", "error"
	Data any    `json:"data,omitempty"`
}

// LineData carries one narrative line as the export produces it.
type LineData struct {
	Text string `json:"text"`
}

// ErrorData carries an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ExportResponse is the outcome of one export, sent as the body of
// POST /v1/apps/{id}/export and as the "done" message payload.
type ExportResponse struct {
	RunID       string         `json:"run_id"`
	Destination string         `json:"destination"`
	Failed      bool           `json:"failed"`
	Code        string         `json:"code,omitempty"`
	Narrative   []string       `json:"narrative"`
	Errors      []string       `json:"errors,omitempty"`
	Assets      []export.Asset `json:"assets,omitempty"`
	Elapsed     string         `json:"elapsed"`
}

func newExportResponse(res export.Result, elapsed string) ExportResponse {
	return ExportResponse{
		RunID:       res.RunID,
		Destination: res.Destination,
		Failed:      res.Failed(),
		Narrative:   res.Narrative,
		Errors:      res.ErrorMessages(),
		Assets:      res.Assets,
		Elapsed:     elapsed,
	}
}
