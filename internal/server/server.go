// Package server exposes app exports over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/matthewbaird/fioriexport/internal/action"
	"github.com/matthewbaird/fioriexport/internal/export"
	"github.com/matthewbaird/fioriexport/internal/store"
)

// Exporter runs one app export.
type Exporter interface {
	Run(ctx context.Context, in action.Input, progress export.Progress) (export.Result, error)
}

// Apps reads app records.
type Apps interface {
	Get(ctx context.Context, id uuid.UUID) (*store.App, error)
	List(ctx context.Context) ([]*store.App, error)
}

// Config holds server configuration.
type Config struct {
	Port     int
	BaseDir  string
	Apps     Apps
	Exporter Exporter
	Logger   *slog.Logger
}

type handler struct {
	cfg   Config
	locks *keyedLock
}

// NewRouter registers all routes.
func NewRouter(cfg Config) http.Handler {
	h := &handler{cfg: cfg, locks: newKeyedLock()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// Health check
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/v1/apps", func(r chi.Router) {
		r.Get("/", h.listApps)
		r.Post("/{id}/export", h.export)
		r.Get("/{id}/export/ws", h.exportStream)
	})
	return r
}

// Run starts the HTTP server and shuts it down when ctx is done.
func Run(ctx context.Context, cfg Config) error {
	addr := fmt.Sprintf(":%d", cfg.Port)
	cfg.Logger.Info("starting server", "addr", addr)

	server := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		server.Shutdown(context.Background())
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *handler) listApps(w http.ResponseWriter, r *http.Request) {
	apps, err := h.cfg.Apps.List(r.Context())
	if err != nil {
		writeErr(w, h.cfg.Logger, err)
		return
	}
	if apps == nil {
		apps = []*store.App{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"apps": apps})
}

// lockDestination resolves the record's destination and holds its lock. No
// two exports write the same folder at once.
func (h *handler) lockDestination(ctx context.Context, id uuid.UUID) (func(), error) {
	rec, err := h.cfg.Apps.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	req, err := action.NewRequest(rec, h.cfg.BaseDir)
	if err != nil {
		return nil, err
	}
	return h.locks.Lock(ctx, req.Destination)
}

func (h *handler) export(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	unlock, err := h.lockDestination(r.Context(), id)
	if err != nil {
		writeErr(w, h.cfg.Logger, err)
		return
	}
	defer unlock()

	start := time.Now()
	res, err := h.cfg.Exporter.Run(r.Context(), action.Input{ID: id}, nil)
	if err != nil && res.RunID == "" {
		writeErr(w, h.cfg.Logger, err)
		return
	}
	status, resp := h.outcome(res, err, time.Since(start))
	writeJSON(w, status, resp)
}

// outcome builds the response for a run that got as far as exporting. An
// error returned next to the result, such as a failed record update, decides
// the status even when the bundle itself was written.
func (h *handler) outcome(res export.Result, err error, elapsed time.Duration) (int, ExportResponse) {
	resp := newExportResponse(res, elapsed.String())
	if err != nil {
		status, code := errorStatus(err)
		if status == http.StatusInternalServerError {
			h.cfg.Logger.Error("export finished with error", "run", res.RunID, "error", err)
		}
		resp.Failed = true
		resp.Code = code
		resp.Errors = append(resp.Errors, err.Error())
		return status, resp
	}
	if resp.Failed {
		return http.StatusUnprocessableEntity, resp
	}
	return http.StatusOK, resp
}

// exportStream upgrades to WebSocket, sends every narrative line as a "line"
// message while the export runs and finishes with "done" or "error".
func (h *handler) exportStream(w http.ResponseWriter, r *http.Request) {
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.cfg.Logger.Warn("websocket accept", "error", err)
		return
	}
	defer conn.CloseNow()
	ctx := r.Context()

	unlock, err := h.lockDestination(ctx, id)
	if err != nil {
		_, code := errorStatus(err)
		h.send(ctx, conn, ServerMessage{Type: "error", Data: ErrorData{Code: code, Message: err.Error()}})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	defer unlock()

	start := time.Now()
	res, err := h.cfg.Exporter.Run(ctx, action.Input{ID: id}, func(line string) {
		h.send(ctx, conn, ServerMessage{Type: "line", Data: LineData{Text: line}})
	})
	if err != nil && res.RunID == "" {
		_, code := errorStatus(err)
		h.send(ctx, conn, ServerMessage{Type: "error", Data: ErrorData{Code: code, Message: err.Error()}})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	_, resp := h.outcome(res, err, time.Since(start))
	if err != nil {
		h.send(ctx, conn, ServerMessage{Type: "error", Data: ErrorData{Code: resp.Code, Message: err.Error()}})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	h.send(ctx, conn, ServerMessage{Type: "done", Data: resp})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *handler) send(ctx context.Context, conn *websocket.Conn, msg ServerMessage) {
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		h.cfg.Logger.Warn("websocket write error", "error", err)
	}
}
