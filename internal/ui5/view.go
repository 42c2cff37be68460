package ui5

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/model"
	"github.com/matthewbaird/fioriexport/internal/render"
)

// ErrViewNotBuilt is returned when a controller is built before its view.
var ErrViewNotBuilt = errors.New("controller requested before its view was built")

// View generates the JS view of one widget.
type View struct {
	webapp     *Webapp
	widget     *model.Widget
	task       *model.Task
	controller *Controller
	built      bool
}

func (v *View) Path() string {
	return layout.ViewRel(v.webapp.namespace(v.widget), v.widget.ID)
}

func (v *View) Controller() (render.Generator, error) {
	return v.controller, nil
}

// Build renders the view and, as a side effect, registers everything the
// controller needs. Building twice starts the controller over.
func (v *View) Build(ctx context.Context) (string, error) {
	v.controller.reset()
	content, err := v.element(v.widget, 2)
	if err != nil {
		return "", err
	}
	src, err := v.webapp.execute("view.js.tmpl", viewData{
		ViewName:       v.webapp.viewName(v.widget),
		ControllerName: v.webapp.controllerName(v.widget),
		Content:        content,
	})
	if err != nil {
		return "", err
	}
	v.built = true
	return src, nil
}

func (v *View) element(w *model.Widget, depth int) (string, error) {
	el, ok := elements[w.Type]
	if !ok {
		return "", &render.UnsupportedError{WidgetID: w.ID, Reasons: []string{"unknown widget type " + w.Type}}
	}
	return el(v, w, depth)
}

func (v *View) children(w *model.Widget, depth int) ([]string, error) {
	out := make([]string, 0, len(w.Children))
	for _, ch := range w.Children {
		js, err := v.element(ch, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, js)
	}
	return out, nil
}

type viewData struct {
	ViewName       string
	ControllerName string
	Content        string
}

// Controller generates the JS controller belonging to a View.
type Controller struct {
	view        *View
	methods     map[string]method
	modules     map[string]string
	stylesheets []string
	onInit      []string
}

type method struct {
	Name string
	Args string
	Body string
}

type module struct {
	Name string
	Path string
}

func (c *Controller) reset() {
	c.methods = map[string]method{}
	c.modules = map[string]string{}
	c.stylesheets = nil
	c.onInit = nil
}

func (c *Controller) Path() string {
	return layout.ControllerRel(c.view.webapp.namespace(c.view.widget), c.view.widget.ID)
}

func (c *Controller) addMethod(name, args, body string) {
	c.methods[name] = method{Name: name, Args: args, Body: body}
}

// addModule registers an external JS module. path is relative to the
// vendor root and has no extension.
func (c *Controller) addModule(name, path string) {
	c.modules[name] = c.view.webapp.vendorURL(path)
}

func (c *Controller) addStylesheet(path string) {
	url := c.view.webapp.vendorURL(path)
	for _, s := range c.stylesheets {
		if s == url {
			return
		}
	}
	c.stylesheets = append(c.stylesheets, url)
}

func (c *Controller) addOnInit(js string) {
	c.onInit = append(c.onInit, js)
}

func (c *Controller) Build(ctx context.Context) (string, error) {
	if !c.view.built {
		return "", fmt.Errorf("%s: %w", c.view.widget.ID, ErrViewNotBuilt)
	}
	data := controllerData{
		Name:          c.view.webapp.controllerName(c.view.widget),
		ComponentPath: c.view.webapp.entryData().ComponentPath,
		Stylesheets:   c.stylesheets,
		OnInit:        c.onInit,
	}
	for name, p := range c.modules {
		data.Modules = append(data.Modules, module{Name: name, Path: p})
	}
	sort.Slice(data.Modules, func(i, j int) bool { return data.Modules[i].Name < data.Modules[j].Name })
	for _, m := range c.methods {
		data.Methods = append(data.Methods, m)
	}
	sort.Slice(data.Methods, func(i, j int) bool { return data.Methods[i].Name < data.Methods[j].Name })
	return c.view.webapp.execute("controller.js.tmpl", data)
}

type controllerData struct {
	Name          string
	ComponentPath string
	Modules       []module
	Stylesheets   []string
	OnInit        []string
	Methods       []method
}
