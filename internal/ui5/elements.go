package ui5

import (
	"fmt"
	"sort"
	"strings"

	"github.com/matthewbaird/fioriexport/internal/model"
)

type elementFunc func(v *View, w *model.Widget, depth int) (string, error)

// elements maps widget types to their UI5 control generators. Types missing
// here cannot be exported.
var elements map[string]elementFunc

func init() {
	elements = map[string]elementFunc{
		"Panel":     panel,
		"Container": panel,
		"Dialog":    dialog,
		"DataTable": dataTable,
		"Form":      form,
		"Input":     input,
		"Text":      text,
		"Button":    button,
		"Chart":     chart,
	}
}

// Actions that need a round trip to a live server.
var offlineUnsupportedActions = map[string]bool{
	"DownloadFile":   true,
	"ExportXLSX":     true,
	"CallWebService": true,
}

// Default chart library, relative to the vendor root.
const (
	defaultChartLib = "npm-asset/echarts/dist/echarts.min"
	chartModuleName = "libs.exface.charts"
)

func indent(depth int) string {
	return strings.Repeat("\t", depth)
}

func joinChildren(items []string, depth int) string {
	if len(items) == 0 {
		return "[]"
	}
	return "[\n" + strings.Join(items, ",\n") + "\n" + indent(depth) + "]"
}

func panel(v *View, w *model.Widget, depth int) (string, error) {
	kids, err := v.children(w, depth)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`%snew sap.m.Panel("%s", {
%s	headerText: "%s",
%s	content: %s
%s})`, indent(depth), v.webapp.elementID(w), indent(depth), escapeJS(w.Caption), indent(depth), joinChildren(kids, depth+1), indent(depth)), nil
}

func dialog(v *View, w *model.Widget, depth int) (string, error) {
	kids, err := v.children(w, depth)
	if err != nil {
		return "", err
	}
	v.controller.addMethod("onClose"+toPascal(w.ID), "oEvent", "oEvent.getSource().getParent().close();")
	return fmt.Sprintf(`%snew sap.m.Dialog("%s", {
%s	title: "%s",
%s	content: %s,
%s	endButton: new sap.m.Button({text: "{i18n>CLOSE}", press: [oController.onClose%s, oController]})
%s})`, indent(depth), v.webapp.elementID(w), indent(depth), escapeJS(w.Caption), indent(depth), joinChildren(kids, depth+1), indent(depth), toPascal(w.ID), indent(depth)), nil
}

func dataTable(v *View, w *model.Widget, depth int) (string, error) {
	var buttons, other []*model.Widget
	for _, ch := range w.Children {
		if ch.Type == "Button" {
			buttons = append(buttons, ch)
		} else {
			other = append(other, ch)
		}
	}
	var tools []string
	for _, b := range buttons {
		js, err := v.element(b, depth+2)
		if err != nil {
			return "", err
		}
		tools = append(tools, js)
	}
	var cols []string
	for _, c := range other {
		cols = append(cols, fmt.Sprintf(`%snew sap.m.Column({header: new sap.m.Label({text: "%s"})})`, indent(depth+2), escapeJS(c.Caption)))
	}
	if w.Parent == nil {
		tools = append(tools, globalActionButtons(v, depth+2)...)
	}
	v.controller.addOnInit(fmt.Sprintf(`this.getView().setModel(new sap.ui.model.json.JSONModel({rows: []}), "%s");`, v.webapp.elementID(w)))
	return fmt.Sprintf(`%snew sap.m.Table("%s", {
%s	headerToolbar: new sap.m.OverflowToolbar({content: %s}),
%s	columns: %s
%s})`, indent(depth), v.webapp.elementID(w), indent(depth), joinChildren(tools, depth+1), indent(depth), joinChildren(cols, depth+1), indent(depth)), nil
}

func form(v *View, w *model.Widget, depth int) (string, error) {
	kids, err := v.children(w, depth)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`%snew sap.ui.layout.form.SimpleForm("%s", {
%s	title: "%s",
%s	editable: true,
%s	content: %s
%s})`, indent(depth), v.webapp.elementID(w), indent(depth), escapeJS(w.Caption), indent(depth), indent(depth), joinChildren(kids, depth+1), indent(depth)), nil
}

func input(v *View, w *model.Widget, depth int) (string, error) {
	value := ""
	if v.task != nil {
		if p, ok := v.task.Prefill[w.Option("attribute")]; ok {
			value = fmt.Sprint(p)
		}
	}
	return fmt.Sprintf(`%snew sap.m.Input("%s", {placeholder: "%s", value: "%s"})`,
		indent(depth), v.webapp.elementID(w), escapeJS(w.Caption), escapeJS(value)), nil
}

func text(v *View, w *model.Widget, depth int) (string, error) {
	return fmt.Sprintf(`%snew sap.m.Text("%s", {text: "%s"})`, indent(depth), v.webapp.elementID(w), escapeJS(w.Caption)), nil
}

func button(v *View, w *model.Widget, depth int) (string, error) {
	handler := "onPress" + toPascal(w.ID)
	body := "return;"
	if w.IsTrigger() {
		target := v.webapp.viewName(w.Action.Widget)
		switch w.Action.Type {
		case model.ActionShowDialog:
			body = fmt.Sprintf(`this.openDialog("%s", oEvent);`, target)
		default:
			body = fmt.Sprintf(`this.navTo("%s");`, target)
		}
	}
	v.controller.addMethod(handler, "oEvent", body)
	caption := w.Caption
	if caption == "" && w.Action != nil {
		caption = w.Action.Caption
	}
	return fmt.Sprintf(`%snew sap.m.Button("%s", {text: "%s", press: [oController.%s, oController]})`,
		indent(depth), v.webapp.elementID(w), escapeJS(caption), handler), nil
}

// chart renders an HTML placeholder and registers the chart library with the
// controller so it gets relocated into the export.
func chart(v *View, w *model.Widget, depth int) (string, error) {
	lib := w.Option("library")
	if lib == "" {
		lib = defaultChartLib
	}
	v.controller.addModule(chartModuleName, lib)
	if css := w.Option("stylesheet"); css != "" {
		v.controller.addStylesheet(css)
	}
	id := v.webapp.elementID(w)
	v.controller.addMethod("draw"+toPascal(w.ID), "", fmt.Sprintf(`var oChart = echarts.init(document.getElementById("%s_canvas")); return oChart;`, id))
	v.controller.addOnInit(fmt.Sprintf(`sap.ui.require(["%s"], function() {}.bind(this));`, strings.ReplaceAll(chartModuleName, ".", "/")))
	return fmt.Sprintf(`%snew sap.ui.core.HTML("%s", {content: "<div id=\"%s_canvas\" style=\"height: 400px\"></div>"})`,
		indent(depth), id, id), nil
}

// globalActionButtons renders the facade-wide actions added to every root
// toolbar. Exports clear them; only live rendering gets any.
func globalActionButtons(v *View, depth int) []string {
	actions := append([]string(nil), v.webapp.opts.GlobalActions...)
	sort.Strings(actions)
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, fmt.Sprintf(`%snew sap.m.Button({text: "%s", press: function() { exfLauncher.callAction("%s"); }})`,
			indent(depth), escapeJS(a), escapeJS(a)))
	}
	return out
}
