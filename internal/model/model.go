// Package model holds the metadata-driven UI model the exporter walks: apps,
// pages and their widget trees.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Action types that open another widget when triggered.
const (
	ActionShowWidget = "ShowWidget"
	ActionShowDialog = "ShowDialog"
)

var (
	// ErrAppNotFound indicates the requested app is not part of the model.
	ErrAppNotFound = errors.New("app not found in model")
	// ErrPageNotFound indicates a page alias does not resolve.
	ErrPageNotFound = errors.New("page not found in model")
	// ErrWidgetNotFound indicates a widget reference does not resolve.
	ErrWidgetNotFound = errors.New("widget not found in model")
)

// App is one UI5 app: its root page and declared languages.
type App struct {
	Alias           string                       `json:"-"`
	Name            string                       `json:"name"`
	RootPage        string                       `json:"root_page"`
	DefaultLanguage string                       `json:"default_language"`
	Languages       []string                     `json:"languages"`
	Translations    map[string]map[string]string `json:"translations"`
}

// AllLanguages returns the declared languages with the default language
// first and no case-insensitive duplicates.
func (a *App) AllLanguages() []string {
	out := []string{}
	seen := map[string]bool{}
	add := func(l string) {
		k := strings.ToLower(l)
		if l == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, l)
	}
	add(a.DefaultLanguage)
	for _, l := range a.Languages {
		add(l)
	}
	return out
}

// Page is a UI page with a single root widget.
type Page struct {
	Alias     string  `json:"-"`
	Namespace string  `json:"namespace"`
	Name      string  `json:"name"`
	Object    string  `json:"object"`
	Widget    *Widget `json:"widget"`
}

// Widget is a node in a page's widget tree.
type Widget struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Caption  string         `json:"caption"`
	Object   string         `json:"object"`
	Options  map[string]any `json:"options"`
	Children []*Widget      `json:"children"`
	Action   *Action        `json:"action"`

	Page   *Page   `json:"-"`
	Parent *Widget `json:"-"`
}

// Action is what a trigger widget (button, menu item) does when pressed.
// Target references another widget as "<page>" or "<page>#<widgetId>";
// Widget holds an inline definition or the resolved target.
type Action struct {
	Type    string  `json:"type"`
	Caption string  `json:"caption"`
	Target  string  `json:"target"`
	Widget  *Widget `json:"widget"`
}

// ShowsWidget reports whether triggering the action displays another widget.
func (a *Action) ShowsWidget() bool {
	if a == nil || a.Widget == nil {
		return false
	}
	return a.Type == ActionShowWidget || a.Type == ActionShowDialog
}

// IsTrigger reports whether w is a trigger whose action shows a widget.
func (w *Widget) IsTrigger() bool {
	return w != nil && w.Action.ShowsWidget()
}

// Option returns a string option or "".
func (w *Widget) Option(name string) string {
	if v, ok := w.Options[name].(string); ok {
		return v
	}
	return ""
}

func (w *Widget) PageAlias() string {
	if w.Page == nil {
		return ""
	}
	return w.Page.Alias
}

func (w *Widget) String() string {
	return fmt.Sprintf("%s %q (%s)", w.Type, w.Caption, w.ID)
}

// Catalog is a fully linked model: pages know their widgets, widgets know
// their page, and every action target is resolved.
type Catalog struct {
	Apps  map[string]*App
	Pages map[string]*Page
}

func (c *Catalog) App(alias string) (*App, error) {
	a, ok := c.Apps[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAppNotFound, alias)
	}
	return a, nil
}

func (c *Catalog) Page(alias string) (*Page, error) {
	p, ok := c.Pages[alias]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, alias)
	}
	return p, nil
}

// Resolve finds the widget a target reference points at.
func (c *Catalog) Resolve(ref string) (*Widget, error) {
	pageAlias, widgetID, _ := strings.Cut(ref, "#")
	p, err := c.Page(pageAlias)
	if err != nil {
		return nil, err
	}
	if widgetID == "" {
		if p.Widget == nil {
			return nil, fmt.Errorf("%w: page %s has no root widget", ErrWidgetNotFound, pageAlias)
		}
		return p.Widget, nil
	}
	if w := find(p.Widget, widgetID); w != nil {
		return w, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrWidgetNotFound, ref)
}

// PageAliases returns the page aliases in sorted order.
func (c *Catalog) PageAliases() []string {
	out := make([]string, 0, len(c.Pages))
	for a := range c.Pages {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

func find(w *Widget, id string) *Widget {
	if w == nil {
		return nil
	}
	if w.ID == id {
		return w
	}
	for _, ch := range w.Children {
		if hit := find(ch, id); hit != nil {
			return hit
		}
	}
	if w.Action != nil && w.Action.Target == "" {
		return find(w.Action.Widget, id)
	}
	return nil
}

// link wires parents, pages and inherited objects, then resolves targets.
// Targets are resolved after every page is attached so they may point
// anywhere, including back up the same tree.
func (c *Catalog) link() error {
	for alias, a := range c.Apps {
		a.Alias = alias
	}
	for _, alias := range c.PageAliases() {
		p := c.Pages[alias]
		p.Alias = alias
		if p.Widget == nil {
			return fmt.Errorf("page %s: %w: no root widget", alias, ErrWidgetNotFound)
		}
		attach(p, nil, p.Widget, p.Object)
	}

	var errs []error
	for _, alias := range c.PageAliases() {
		walkTriggers(c.Pages[alias].Widget, func(w *Widget) {
			if w.Action.Target == "" {
				return
			}
			target, err := c.Resolve(w.Action.Target)
			if err != nil {
				errs = append(errs, fmt.Errorf("page %s widget %s: %w", alias, w.ID, err))
				return
			}
			w.Action.Widget = target
		})
	}
	return errors.Join(errs...)
}

func attach(p *Page, parent, w *Widget, object string) {
	w.Page = p
	w.Parent = parent
	if w.Object == "" {
		w.Object = object
	}
	for _, ch := range w.Children {
		attach(p, w, ch, w.Object)
	}
	if w.Action != nil && w.Action.Target == "" && w.Action.Widget != nil {
		attach(p, w, w.Action.Widget, w.Object)
	}
}

// walkTriggers visits every widget carrying an action, following inline
// action widgets but never resolved targets.
func walkTriggers(w *Widget, fn func(*Widget)) {
	if w == nil {
		return
	}
	if w.Action != nil {
		inline := w.Action.Target == ""
		fn(w)
		if inline {
			walkTriggers(w.Action.Widget, fn)
		}
	}
	for _, ch := range w.Children {
		walkTriggers(ch, fn)
	}
}
