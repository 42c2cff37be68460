package ui5

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/model"
)

// manifest renders manifest.json. Export switches from the options end up in
// the OData data source settings.
func (w *Webapp) manifest() (string, error) {
	root, err := w.RootPage()
	if err != nil {
		return "", err
	}

	serviceURL := "/api/odata/" + layout.ComponentPath(w.ComponentID()) + "/"
	if !w.opts.UseRelativeURLs {
		serviceURL = "https://localhost" + serviceURL
	}

	dataSource := map[string]any{
		"uri":  serviceURL,
		"type": "OData",
		"settings": map[string]any{
			"odataVersion": "2.0",
			"adapter":      w.opts.ODataAdapter,
		},
	}

	routes, targets := []map[string]any{}, map[string]any{}
	for _, p := range w.reachablePages(root) {
		name := w.viewName(p.Widget)
		routes = append(routes, map[string]any{
			"name":    name,
			"pattern": routePattern(p, root),
			"target":  name,
		})
		targets[name] = map[string]any{
			"viewName": strings.TrimPrefix(name, w.ComponentID()+".view."),
			"viewType": "JS",
		}
	}
	targets["notFound"] = map[string]any{"viewName": "NotFound", "viewType": "JS"}

	m := map[string]any{
		"_version": "1.8.0",
		"sap.app": map[string]any{
			"id":                 w.ComponentID(),
			"type":               "application",
			"i18n":               layout.TranslationRel("", ""),
			"title":              w.app.Name,
			"applicationVersion": map[string]any{"version": "1.0.0"},
			"dataSources":        map[string]any{"mainService": dataSource},
			"offline":            true,
		},
		"sap.ui5": map[string]any{
			"rootView": map[string]any{
				"viewName": w.ComponentID() + ".view.App",
				"type":     "JS",
				"id":       "app",
			},
			"models": map[string]any{
				"i18n": map[string]any{
					"type": "sap.ui.model.resource.ResourceModel",
					"settings": map[string]any{
						"bundleName":     w.ComponentID() + ".i18n.i18n",
						"fallbackLocale": w.app.DefaultLanguage,
					},
				},
				"": map[string]any{
					"dataSource": "mainService",
					"settings": map[string]any{
						"useBatch":                w.opts.UseBatchWrites || w.opts.UseBatchDeletes || w.opts.UseBatchFunctionImports,
						"useBatchForDeletes":      w.opts.UseBatchDeletes,
						"useBatchForWrites":       w.opts.UseBatchWrites,
						"useBatchForFunctionCall": w.opts.UseBatchFunctionImports,
					},
				},
			},
			"routing": map[string]any{
				"config": map[string]any{
					"routerClass":        "sap.m.routing.Router",
					"viewPath":           w.ComponentID() + ".view",
					"controlId":          "app",
					"controlAggregation": "pages",
					"bypassed":           map[string]any{"target": "notFound"},
				},
				"routes":  routes,
				"targets": targets,
			},
		},
		"exface": map[string]any{
			"serverAdapter":              w.opts.ServerAdapter,
			"exportCredentials":          w.opts.ExportCredentials,
			"exportSapClient":            w.opts.ExportSAPClient,
			"useCombinedViewControllers": false,
		},
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	return string(b) + "\n", nil
}

// reachablePages returns the root page plus every page a ShowWidget action
// navigates to, breadth first and without duplicates.
func (w *Webapp) reachablePages(root *model.Page) []*model.Page {
	seen := map[string]bool{root.Alias: true}
	queue := []*model.Page{root}
	for i := 0; i < len(queue); i++ {
		var visit func(*model.Widget)
		visit = func(x *model.Widget) {
			if x == nil {
				return
			}
			if x.IsTrigger() && x.Action.Type == model.ActionShowWidget {
				if p := x.Action.Widget.Page; p != nil && !seen[p.Alias] && x.Action.Widget == p.Widget {
					seen[p.Alias] = true
					queue = append(queue, p)
				}
			}
			for _, ch := range x.Children {
				visit(ch)
			}
		}
		visit(queue[i].Widget)
	}
	return queue
}

func routePattern(p, root *model.Page) string {
	if p == root {
		return ""
	}
	return p.Alias
}

// translation renders a resource bundle route ("i18n/i18n_de.properties").
func (w *Webapp) translation(route string) (string, error) {
	name := strings.TrimSuffix(strings.TrimPrefix(route, layout.I18nDir+"/"), ".properties")
	lang := w.app.DefaultLanguage
	if rest, ok := strings.CutPrefix(name, "i18n_"); ok {
		lang = rest
	} else if name != "i18n" {
		return "", fmt.Errorf("unknown route %q", route)
	}

	texts := map[string]string{
		"APP_TITLE":      w.app.Name,
		"CLOSE":          "Close",
		"NOT_FOUND":      "Not found",
		"NOT_FOUND_TEXT": "The requested page does not exist.",
		"OFFLINE":        "Offline",
		"OFFLINE_TEXT":   "This view needs a connection to the server.",
	}
	for l, tr := range w.app.Translations {
		if !strings.EqualFold(l, lang) {
			continue
		}
		for k, v := range tr {
			texts[k] = v
		}
	}

	keys := make([]string, 0, len(texts))
	for k := range texts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, escapeProperty(texts[k]))
	}
	return b.String(), nil
}

func escapeProperty(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\r", `\r`, "=", `\=`, ":", `\:`)
	return r.Replace(s)
}
