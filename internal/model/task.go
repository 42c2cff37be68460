package model

// Task is the request context a widget is rendered against. Exports run
// outside any real HTTP request, so they use a synthetic task that carries no
// user input; the renderer still resolves prefill state from it exactly as it
// would for a live request.
type Task struct {
	PageAlias string
	WidgetID  string
	Offline   bool
	Prefill   map[string]any
}

// NewExportTask builds the no-op task for rendering w during an export.
func NewExportTask(w *Widget) *Task {
	return &Task{
		PageAlias: w.PageAlias(),
		WidgetID:  w.ID,
		Offline:   true,
		Prefill:   map[string]any{},
	}
}
