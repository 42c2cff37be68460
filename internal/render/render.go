// Package render declares the contract between the export pipeline and the
// component that turns widgets into UI5 source text.
package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewbaird/fioriexport/internal/model"
)

// Generator produces one source file.
type Generator interface {
	// Build returns the generated source text.
	Build(ctx context.Context) (string, error)
	// Path is the slash-separated path of the file inside the bundle.
	Path() string
}

// ViewGenerator is the view of one widget. Building the view registers the
// methods, modules and stylesheets its controller needs, so the view must be
// built before the controller.
type ViewGenerator interface {
	Generator
	Controller() (Generator, error)
}

// Renderer turns widgets into view/controller generators.
type Renderer interface {
	// Prefill resolves prefill state for a task the same way a live render
	// would.
	Prefill(ctx context.Context, task *model.Task) error
	// View returns the view generator for w. It fails with an
	// *UnsupportedError when w cannot be exported.
	View(ctx context.Context, w *model.Widget, task *model.Task) (ViewGenerator, error)
}

// Webapp is a renderer bound to one app that also serves the app's static
// routes: index.html, Component.js, manifest.json, resource bundles and
// static views/controllers.
type Webapp interface {
	Renderer
	App() *model.App
	RootPage() (*model.Page, error)
	StaticRoutes() []string
	Route(ctx context.Context, route string) (string, error)
}

// UnsupportedError reports a widget whose configuration cannot be exported.
// It is recoverable: the exporter records the reasons and moves on.
type UnsupportedError struct {
	WidgetID string
	Reasons  []string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("widget %s cannot be exported: %s", e.WidgetID, strings.Join(e.Reasons, "; "))
}

// UnsupportedReasons lists why the widget cannot be exported.
func (e *UnsupportedError) UnsupportedReasons() []string {
	return e.Reasons
}
