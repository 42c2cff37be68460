package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/fioriexport/internal/action"
	"github.com/matthewbaird/fioriexport/internal/export"
	"github.com/matthewbaird/fioriexport/internal/logging"
	"github.com/matthewbaird/fioriexport/internal/store"
)

type fakeApps struct {
	apps map[uuid.UUID]*store.App
}

func (f *fakeApps) Get(ctx context.Context, id uuid.UUID) (*store.App, error) {
	if a, ok := f.apps[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("%w: %s", store.ErrNotFound, id)
}

func (f *fakeApps) List(ctx context.Context) ([]*store.App, error) {
	var out []*store.App
	for _, a := range f.apps {
		out = append(out, a)
	}
	return out, nil
}

type fakeExporter struct {
	lines []string
	errs  []error
	err   error
	// exported makes Run return err together with a full result, as when the
	// bundle was written but the record update failed.
	exported bool
}

func (f *fakeExporter) Run(ctx context.Context, in action.Input, progress export.Progress) (export.Result, error) {
	if f.err != nil && !f.exported {
		return export.Result{}, f.err
	}
	for _, l := range f.lines {
		if progress != nil {
			progress(l)
		}
	}
	return export.Result{
		RunID:       "run-1",
		Destination: "/exports/" + in.ID.String(),
		Narrative:   f.lines,
		Errors:      f.errs,
	}, f.err
}

func newTestServer(t *testing.T, exp *fakeExporter) (*httptest.Server, uuid.UUID) {
	t.Helper()
	id := uuid.New()
	apps := &fakeApps{apps: map[uuid.UUID]*store.App{
		id: {ID: id, AppID: "my.app", ExportFolder: "/exports/my.app"},
	}}
	srv := httptest.NewServer(NewRouter(Config{
		BaseDir:  t.TempDir(),
		Apps:     apps,
		Exporter: exp,
		Logger:   logging.Discard(),
	}))
	t.Cleanup(srv.Close)
	return srv, id
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExporter{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListApps(t *testing.T) {
	srv, id := newTestServer(t, &fakeExporter{})

	resp, err := http.Get(srv.URL + "/v1/apps/")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Apps []store.App `json:"apps"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Apps, 1)
	assert.Equal(t, id, body.Apps[0].ID)
	assert.Equal(t, "my.app", body.Apps[0].AppID)
}

func TestExport_Success(t *testing.T) {
	srv, id := newTestServer(t, &fakeExporter{lines: []string{"Exporting app files", "Exported to /exports/my.app"}})

	resp, err := http.Post(srv.URL+"/v1/apps/"+id.String()+"/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body ExportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	assert.False(t, body.Failed)
	assert.Equal(t, []string{"Exporting app files", "Exported to /exports/my.app"}, body.Narrative)
}

func TestExport_FailedRunIsUnprocessable(t *testing.T) {
	srv, id := newTestServer(t, &fakeExporter{errs: []error{errors.New("widget broke")}})

	resp, err := http.Post(srv.URL+"/v1/apps/"+id.String()+"/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body ExportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Failed)
	assert.Equal(t, []string{"widget broke"}, body.Errors)
}

func TestExport_Errors(t *testing.T) {
	for _, tc := range []struct {
		name   string
		path   string
		err    error
		status int
	}{
		{"invalid id", "/v1/apps/not-a-uuid/export", nil, http.StatusBadRequest},
		{"unknown record", "/v1/apps/" + uuid.NewString() + "/export", nil, http.StatusNotFound},
		{"ambiguous", "", action.ErrAmbiguousApp, http.StatusConflict},
		{"concurrent", "", store.ErrConcurrentModification, http.StatusConflict},
		{"unexpected", "", errors.New("disk on fire"), http.StatusInternalServerError},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, id := newTestServer(t, &fakeExporter{err: tc.err})
			path := tc.path
			if path == "" {
				path = "/v1/apps/" + id.String() + "/export"
			}

			resp, err := http.Post(srv.URL+path, "application/json", nil)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}

func TestExport_StampConflictAfterExport(t *testing.T) {
	stampErr := fmt.Errorf("stamping my.app: %w", store.ErrConcurrentModification)
	srv, id := newTestServer(t, &fakeExporter{lines: []string{"Exported to /exports/my.app"}, err: stampErr, exported: true})

	resp, err := http.Post(srv.URL+"/v1/apps/"+id.String()+"/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	var body ExportResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "run-1", body.RunID)
	assert.True(t, body.Failed)
	assert.Equal(t, "CONCURRENT_MODIFICATION", body.Code)
	assert.Equal(t, []string{stampErr.Error()}, body.Errors)
}

func TestExportStream_StampConflictEndsWithError(t *testing.T) {
	stampErr := fmt.Errorf("stamping my.app: %w", store.ErrConcurrentModification)
	srv, id := newTestServer(t, &fakeExporter{lines: []string{"one"}, err: stampErr, exported: true})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/apps/" + id.String() + "/export/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var line struct {
		Type string   `json:"type"`
		Data LineData `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &line))
	assert.Equal(t, "line", line.Type)

	var msg struct {
		Type string    `json:"type"`
		Data ErrorData `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "CONCURRENT_MODIFICATION", msg.Data.Code)
}

func TestExport_InvalidDestination(t *testing.T) {
	srv, id := newTestServer(t, &fakeExporter{err: fmt.Errorf("export folder: %w", action.ErrInvalidDestination)})

	resp, err := http.Post(srv.URL+"/v1/apps/"+id.String()+"/export", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExportStream_SendsLinesThenDone(t *testing.T) {
	srv, id := newTestServer(t, &fakeExporter{lines: []string{"one", "two"}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/apps/" + id.String() + "/export/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var types, texts []string
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		types = append(types, msg.Type)
		if msg.Type == "line" {
			var line LineData
			require.NoError(t, json.Unmarshal(msg.Data, &line))
			texts = append(texts, line.Text)
		}
		if msg.Type == "done" {
			var done ExportResponse
			require.NoError(t, json.Unmarshal(msg.Data, &done))
			assert.Equal(t, "run-1", done.RunID)
			break
		}
	}
	assert.Equal(t, []string{"line", "line", "done"}, types)
	assert.Equal(t, []string{"one", "two"}, texts)
	conn.Close(websocket.StatusNormalClosure, "")
}

func TestExportStream_UnknownRecord(t *testing.T) {
	srv, _ := newTestServer(t, &fakeExporter{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/apps/" + uuid.NewString() + "/export/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	var msg struct {
		Type string    `json:"type"`
		Data ErrorData `json:"data"`
	}
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "NOT_FOUND", msg.Data.Code)
}

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	locks := newKeyedLock()
	ctx := context.Background()

	unlock, err := locks.Lock(ctx, "/exports/a")
	require.NoError(t, err)

	// A different key is independent.
	other, err := locks.Lock(ctx, "/exports/b")
	require.NoError(t, err)
	other()

	// The same key waits until released or the context ends.
	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(short, "/exports/a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		again, err := locks.Lock(ctx, "/exports/a")
		if err == nil {
			close(acquired)
			again()
		}
	}()
	unlock()
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second holder never acquired the lock")
	}
	assert.Empty(t, locks.locks)
}
