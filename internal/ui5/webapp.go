// Package ui5 generates SAPUI5 JS views, controllers and app entry files from
// the UI model.
//
// Sources are rendered with text/template from templates embedded in the
// binary. Views are generated first; while a view renders its widget tree it
// registers event handlers, external modules and stylesheets on its
// controller, which is why a controller can only be built after its view.
package ui5

import (
	"context"
	"embed"
	"fmt"
	"path"
	"strings"
	"text/template"
	"unicode"
	"unicode/utf8"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/model"
	"github.com/matthewbaird/fioriexport/internal/render"
)

//go:embed templates/*
var templateFS embed.FS

var templates = template.Must(template.New("ui5").Funcs(template.FuncMap{
	"escapeJS": escapeJS,
}).ParseFS(templateFS, "templates/*.tmpl"))

// Static views and controllers every app ships with, independent of pages.
var staticViews = []string{"App", "NotFound", "Offline"}

// Webapp renders one app. It is immutable once built; the export options are
// fixed at construction time.
type Webapp struct {
	catalog *model.Catalog
	app     *model.App
	opts    config.ExportOptions
}

var _ render.Webapp = (*Webapp)(nil)

// New binds the renderer to app using the given export options.
func New(catalog *model.Catalog, appAlias string, opts config.ExportOptions) (*Webapp, error) {
	app, err := catalog.App(appAlias)
	if err != nil {
		return nil, err
	}
	if _, err := catalog.Page(app.RootPage); err != nil {
		return nil, fmt.Errorf("app %s root page: %w", appAlias, err)
	}
	return &Webapp{catalog: catalog, app: app, opts: opts}, nil
}

// WithRootPage returns a copy of w that starts the app at another page.
func (w *Webapp) WithRootPage(alias string) (*Webapp, error) {
	if _, err := w.catalog.Page(alias); err != nil {
		return nil, fmt.Errorf("app %s root page: %w", w.app.Alias, err)
	}
	app := *w.app
	app.RootPage = alias
	return &Webapp{catalog: w.catalog, app: &app, opts: w.opts}, nil
}

func (w *Webapp) App() *model.App {
	return w.app
}

func (w *Webapp) Options() config.ExportOptions {
	return w.opts
}

func (w *Webapp) RootPage() (*model.Page, error) {
	return w.catalog.Page(w.app.RootPage)
}

// ComponentID is the UI5 component namespace ("my.app").
func (w *Webapp) ComponentID() string {
	return w.app.Alias
}

// StaticRoutes lists the non-page views and controllers of the app.
func (w *Webapp) StaticRoutes() []string {
	routes := []string{"controller/BaseController.js"}
	for _, name := range staticViews {
		routes = append(routes, "view/"+name+".view.js", "controller/"+name+".controller.js")
	}
	return routes
}

// Route renders a static app file.
func (w *Webapp) Route(ctx context.Context, route string) (string, error) {
	switch {
	case route == layout.IndexFile:
		return w.execute("index.html.tmpl", w.entryData())
	case route == layout.ComponentFile:
		return w.execute("Component.js.tmpl", w.entryData())
	case route == layout.ManifestFile:
		return w.manifest()
	case strings.HasPrefix(route, layout.I18nDir+"/"):
		return w.translation(route)
	case route == "controller/BaseController.js":
		return w.execute("BaseController.js.tmpl", w.entryData())
	}

	for _, name := range staticViews {
		data := staticData{entryData: w.entryData(), Name: name}
		switch route {
		case "view/" + name + ".view.js":
			return w.execute("static.view.js.tmpl", data)
		case "controller/" + name + ".controller.js":
			return w.execute("static.controller.js.tmpl", data)
		}
	}
	return "", fmt.Errorf("unknown route %q", route)
}

// Prefill fills task.Prefill from the widget's configured prefill values.
// Offline exports have no request data, so only static prefills apply.
func (w *Webapp) Prefill(ctx context.Context, task *model.Task) error {
	if task == nil {
		return fmt.Errorf("prefill: nil task")
	}
	target, err := w.catalog.Resolve(task.PageAlias + "#" + task.WidgetID)
	if err != nil {
		return fmt.Errorf("prefill: %w", err)
	}
	if task.Prefill == nil {
		task.Prefill = map[string]any{}
	}
	collectPrefill(target, task.Prefill)
	return nil
}

func collectPrefill(w *model.Widget, into map[string]any) {
	if p, ok := w.Options["prefill"].(map[string]any); ok {
		for k, v := range p {
			into[k] = v
		}
	}
	for _, ch := range w.Children {
		collectPrefill(ch, into)
	}
}

// View returns the view generator for widget. Unsupported widgets anywhere in
// the view's own tree fail here with a *render.UnsupportedError.
func (w *Webapp) View(ctx context.Context, widget *model.Widget, task *model.Task) (render.ViewGenerator, error) {
	if reasons := w.unsupported(widget); len(reasons) > 0 {
		return nil, &render.UnsupportedError{WidgetID: widget.ID, Reasons: reasons}
	}
	v := &View{webapp: w, widget: widget, task: task}
	v.controller = &Controller{view: v}
	return v, nil
}

func (w *Webapp) unsupported(widget *model.Widget) []string {
	var reasons []string
	var walk func(*model.Widget)
	walk = func(x *model.Widget) {
		if _, ok := elements[x.Type]; !ok {
			reasons = append(reasons, fmt.Sprintf("Widget type %s (%s) is not supported in exported apps", x.Type, x.ID))
		}
		if x.Action != nil && offlineUnsupportedActions[x.Action.Type] {
			reasons = append(reasons, fmt.Sprintf("Action %s of %s requires a live server", x.Action.Type, x.ID))
		}
		for _, ch := range x.Children {
			walk(ch)
		}
	}
	walk(widget)
	return reasons
}

// viewName is the UI5 module name of a widget's view.
func (w *Webapp) viewName(widget *model.Widget) string {
	return w.moduleName("view", widget)
}

func (w *Webapp) controllerName(widget *model.Widget) string {
	return w.moduleName("controller", widget)
}

func (w *Webapp) moduleName(kind string, widget *model.Widget) string {
	parts := []string{w.ComponentID(), kind}
	if widget.Page != nil && widget.Page.Namespace != "" {
		parts = append(parts, widget.Page.Namespace)
	}
	parts = append(parts, widget.ID)
	return strings.Join(parts, ".")
}

// elementID is the control id used in generated code. Exports always use
// short ids; the live facade prefixes the page alias.
func (w *Webapp) elementID(widget *model.Widget) string {
	if w.opts.ShortWidgetIDs || widget.Page == nil {
		return widget.ID
	}
	return widget.Page.Alias + "__" + widget.ID
}

func (w *Webapp) namespace(widget *model.Widget) string {
	if widget.Page == nil {
		return ""
	}
	return widget.Page.Namespace
}

// vendorURL is how generated code refers to a file below the vendor root.
func (w *Webapp) vendorURL(rel string) string {
	return path.Join(strings.TrimSuffix(w.opts.VendorURL, "/"), rel)
}

type entryData struct {
	ComponentID   string
	ComponentPath string
	Title         string
	UI5Resource   string
	RootView      string
	GlobalActions []string
}

type staticData struct {
	entryData
	Name string
}

func (w *Webapp) entryData() entryData {
	root := ""
	if p, err := w.RootPage(); err == nil {
		root = w.viewName(p.Widget)
	}
	return entryData{
		ComponentID:   w.ComponentID(),
		ComponentPath: layout.ComponentPath(w.ComponentID()),
		Title:         w.app.Name,
		UI5Resource:   w.opts.UI5Resource,
		RootView:      root,
		GlobalActions: w.opts.GlobalActions,
	}
}

func (w *Webapp) execute(name string, data any) (string, error) {
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return b.String(), nil
}

func escapeJS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "'", `\'`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	return s
}

func toPascal(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == ' '
	})
	for i, p := range parts {
		r, size := utf8.DecodeRuneInString(p)
		parts[i] = string(unicode.ToUpper(r)) + p[size:]
	}
	return strings.Join(parts, "")
}
