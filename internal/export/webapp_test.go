package export

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/logging"
	"github.com/matthewbaird/fioriexport/internal/model"
	"github.com/matthewbaird/fioriexport/internal/render"
)

var errNotBuilt = errors.New("view not built")

// fakeWebapp renders every widget to a one-line source and records what it
// was asked for.
type fakeWebapp struct {
	app  *model.App
	root *model.Page

	unsupported map[string]bool
	failOn      map[string]error
	panicOn     string
	libs        map[string]string

	builds []string
	routes []string
}

func newFakeWebapp(root *model.Page) *fakeWebapp {
	return &fakeWebapp{
		app: &model.App{
			Alias:           "my.app",
			Name:            "My App",
			RootPage:        root.Alias,
			DefaultLanguage: "en",
			Languages:       []string{"en", "de"},
		},
		root:        root,
		unsupported: map[string]bool{},
		failOn:      map[string]error{},
		libs:        map[string]string{},
	}
}

func (f *fakeWebapp) App() *model.App { return f.app }

func (f *fakeWebapp) RootPage() (*model.Page, error) { return f.root, nil }

func (f *fakeWebapp) StaticRoutes() []string {
	return []string{"controller/BaseController.js", "view/App.view.js", "controller/App.controller.js"}
}

func (f *fakeWebapp) Route(ctx context.Context, route string) (string, error) {
	f.routes = append(f.routes, route)
	return "// " + route + "\n", nil
}

func (f *fakeWebapp) Prefill(ctx context.Context, task *model.Task) error {
	task.Prefill = map[string]any{}
	return nil
}

func (f *fakeWebapp) View(ctx context.Context, w *model.Widget, task *model.Task) (render.ViewGenerator, error) {
	if f.unsupported[w.ID] {
		return nil, &render.UnsupportedError{WidgetID: w.ID, Reasons: []string{"type " + w.Type + " is not supported"}}
	}
	return &fakeView{f: f, w: w}, nil
}

type fakeView struct {
	f     *fakeWebapp
	w     *model.Widget
	built bool
}

func (v *fakeView) Path() string { return "view/" + v.w.ID + ".view.js" }

func (v *fakeView) Controller() (render.Generator, error) { return &fakeController{v: v}, nil }

func (v *fakeView) Build(ctx context.Context) (string, error) {
	v.f.builds = append(v.f.builds, v.w.ID)
	if v.f.panicOn == v.w.ID {
		panic("renderer exploded")
	}
	if err := v.f.failOn[v.w.ID]; err != nil {
		return "", err
	}
	v.built = true
	return "sap.ui.jsview(\"" + v.w.ID + "\");\n", nil
}

type fakeController struct {
	v *fakeView
}

func (c *fakeController) Path() string { return "controller/" + c.v.w.ID + ".controller.js" }

func (c *fakeController) Build(ctx context.Context) (string, error) {
	if !c.v.built {
		return "", errNotBuilt
	}
	return "sap.ui.define([], function() {});\n" + c.v.f.libs[c.v.w.ID], nil
}

// testPage links root and its descendants to a new page.
func testPage(alias string, root *model.Widget) *model.Page {
	p := &model.Page{Alias: alias, Widget: root}
	var attach func(parent, w *model.Widget)
	attach = func(parent, w *model.Widget) {
		w.Page = p
		w.Parent = parent
		for _, ch := range w.Children {
			attach(w, ch)
		}
	}
	attach(nil, root)
	return p
}

func trigger(id string, target *model.Widget) *model.Widget {
	return &model.Widget{ID: id, Type: "Button", Action: &model.Action{Type: model.ActionShowWidget, Widget: target}}
}

func testOptions(t *testing.T) config.ExportOptions {
	return config.ExportOptions{
		VendorRoot: t.TempDir(),
		VendorURL:  "vendor/",
		FacadePath: "exface/ui5facade",
		LinkDepth:  config.DefaultLinkDepth,
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func lastLine(res Result) string {
	if len(res.Narrative) == 0 {
		return ""
	}
	return res.Narrative[len(res.Narrative)-1]
}

// twoPages returns a home page whose table opens a details page.
func twoPages() (*model.Page, *model.Page) {
	details := &model.Widget{ID: "Details", Type: "Form"}
	home := &model.Widget{ID: "Home", Type: "Panel", Children: []*model.Widget{
		{ID: "Table1", Type: "DataTable", Children: []*model.Widget{trigger("BtnDetails", details)}},
	}}
	return testPage("home", home), testPage("details", details)
}

func TestExport_WritesCompleteBundle(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	dest := filepath.Join(t.TempDir(), "export")

	var streamed []string
	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, func(line string) {
		streamed = append(streamed, line)
	})

	require.False(t, res.Failed(), "errors: %v", res.Errors)
	assert.Equal(t, res.Narrative, streamed)
	assert.Equal(t, "Exported to "+dest, lastLine(res))
	assert.NotEmpty(t, res.RunID)

	for _, rel := range []string{
		"index.html",
		"Component.js",
		"manifest.json",
		"i18n/i18n.properties",
		"i18n/i18n_de.properties",
		"controller/BaseController.js",
		"view/App.view.js",
		"view/Home.view.js",
		"controller/Home.controller.js",
		"view/Details.view.js",
		"controller/Details.controller.js",
	} {
		assert.FileExists(t, filepath.Join(dest, filepath.FromSlash(rel)))
	}
	assert.DirExists(t, filepath.Join(dest, layout.LibsDir))
	assert.NoDirExists(t, dest+".bkp")
	assert.Equal(t, []string{"Home", "Details"}, webapp.builds)
	require.Len(t, res.Assets, 2)
	assert.Equal(t, "view/Home.view.js", res.Assets[0].View)
}

func TestExport_ManifestIsWrittenLast(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.False(t, res.Failed())
	require.NotEmpty(t, webapp.routes)
	assert.Equal(t, layout.ManifestFile, webapp.routes[len(webapp.routes)-1])
	assert.Equal(t, []string{layout.IndexFile, layout.ComponentFile}, webapp.routes[:2])
}

func TestExport_NarratesWidgetsWithIndentation(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.False(t, res.Failed())
	assert.Contains(t, res.Narrative, `Exported widget Panel "" (Home)`)
	assert.Contains(t, res.Narrative, `  + view/Home.view.js`)
	assert.Contains(t, res.Narrative, `  Exported widget Form "" (Details)`)
	assert.Contains(t, res.Narrative, `    + controller/Details.controller.js`)
}

func TestExport_ReplacesPreviousExportAndKeepsBackup(t *testing.T) {
	home, _ := twoPages()
	dest := filepath.Join(t.TempDir(), "export")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "old.txt"), []byte("previous"), 0o644))
	require.NoError(t, os.MkdirAll(dest+".bkp", 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest+".bkp", "stale.txt"), []byte("stale"), 0o644))

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), newFakeWebapp(home), dest, nil)

	require.False(t, res.Failed(), "errors: %v", res.Errors)
	assert.NoFileExists(t, filepath.Join(dest, "old.txt"))
	assert.FileExists(t, filepath.Join(dest, "manifest.json"))
	assert.Equal(t, "previous", readFile(t, filepath.Join(dest+".bkp", "old.txt")))
	assert.NoFileExists(t, filepath.Join(dest+".bkp", "stale.txt"))
}

func TestExport_FatalErrorRestoresPreviousFolder(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	webapp.failOn["Details"] = errors.New("template broken")

	dest := filepath.Join(t.TempDir(), "export")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "old.txt"), []byte("previous"), 0o644))

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.True(t, res.Failed())
	require.Len(t, res.Errors, 1)
	var werr *WidgetError
	require.ErrorAs(t, res.Errors[0], &werr)
	assert.Equal(t, "Details", werr.WidgetID)
	assert.Equal(t, "details", werr.Page)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "previous", readFile(t, filepath.Join(dest, "old.txt")))
	assert.NoDirExists(t, dest+".bkp")
	assert.Equal(t, "Export failed with 1 error(s). Previous state of the export folder has been restored", lastLine(res))
	assert.NotContains(t, webapp.routes, layout.ManifestFile)
}

func TestExport_FailureWithoutPreviousFolderRemovesOutput(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	webapp.failOn["Home"] = errors.New("template broken")
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.True(t, res.Failed())
	assert.NoDirExists(t, dest)
	assert.NoDirExists(t, dest+".bkp")
	assert.True(t, strings.HasSuffix(lastLine(res), "has been removed"))
	// The failure stops traversal, so the linked page is never built.
	assert.Equal(t, []string{"Home"}, webapp.builds)
}

// snapshot maps every file below dir to its content.
func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := map[string]string{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = readFile(t, p)
		return nil
	})
	require.NoError(t, err)
	return files
}

func TestExport_UnsupportedWidgetOnRerunRestoresPreviousExport(t *testing.T) {
	home, _ := twoPages()
	dest := filepath.Join(t.TempDir(), "export")
	exporter := New(testOptions(t), logging.Discard())

	first := exporter.Export(context.Background(), newFakeWebapp(home), dest, nil)
	require.False(t, first.Failed(), "errors: %v", first.Errors)
	before := snapshot(t, dest)
	require.Contains(t, before, "view/Details.view.js")

	webapp := newFakeWebapp(home)
	webapp.unsupported["Details"] = true
	res := exporter.Export(context.Background(), webapp, dest, nil)

	require.True(t, res.Failed())
	require.Len(t, res.Errors, 1)
	assert.Contains(t, lastLine(res), "Previous state of the export folder has been restored")
	assert.Equal(t, before, snapshot(t, dest))
	assert.NoDirExists(t, dest+".bkp")
}

func TestExport_ZeroLinkDepthExportsRootOnly(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	dest := filepath.Join(t.TempDir(), "export")
	opts := testOptions(t)
	opts.LinkDepth = 0

	res := New(opts, logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.False(t, res.Failed(), "errors: %v", res.Errors)
	assert.Equal(t, []string{"Home"}, webapp.builds)
	assert.NoFileExists(t, filepath.Join(dest, "view", "Details.view.js"))
}

func TestExport_PanicIsRecordedAndRolledBack(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	webapp.panicOn = "Details"
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.True(t, res.Failed())
	assert.Contains(t, res.Errors[0].Error(), "renderer exploded")
	assert.NoDirExists(t, dest)
}

func TestExport_UnsupportedWidgetDoesNotStopSiblings(t *testing.T) {
	chart := &model.Widget{ID: "Chart1", Type: "Gantt"}
	form := &model.Widget{ID: "Form1", Type: "Form"}
	home := &model.Widget{ID: "Home", Type: "Panel", Children: []*model.Widget{
		trigger("BtnChart", chart),
		trigger("BtnForm", form),
	}}
	page := testPage("home", home)
	testPage("chart", chart)
	testPage("form", form)

	webapp := newFakeWebapp(page)
	webapp.unsupported["Chart1"] = true
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.True(t, res.Failed())
	require.Len(t, res.Errors, 1)
	var werr *WidgetError
	require.ErrorAs(t, res.Errors[0], &werr)
	assert.Equal(t, "Chart1", werr.WidgetID)
	assert.Equal(t, []string{"Home", "Form1"}, webapp.builds)
	assert.Contains(t, res.Narrative, `  Skipped widget Gantt "" (Chart1)`)
	assert.NotContains(t, res.Narrative, `  Exported widget Gantt "" (Chart1)`)
	assert.Contains(t, res.Narrative, "    ERROR: type Gantt is not supported")
	assert.Contains(t, res.Narrative, `  Exported widget Form "" (Form1)`)
	assert.NoDirExists(t, dest)
}

func TestExportPage_CycleEndsAtLinkDepth(t *testing.T) {
	homeRoot := &model.Widget{ID: "Home", Type: "Panel"}
	detailsRoot := &model.Widget{ID: "Details", Type: "Form"}
	homeRoot.Children = []*model.Widget{trigger("ToDetails", detailsRoot)}
	detailsRoot.Children = []*model.Widget{trigger("ToHome", homeRoot)}
	home := testPage("home", homeRoot)
	testPage("details", detailsRoot)

	for _, tc := range []struct {
		depth int
		want  []string
	}{
		{0, []string{"Home"}},
		{1, []string{"Home", "Details"}},
		{3, []string{"Home", "Details", "Home", "Details"}},
		{5, []string{"Home", "Details", "Home", "Details", "Home", "Details"}},
	} {
		webapp := newFakeWebapp(home)
		run := NewRun(webapp, testOptions(t), t.TempDir(), logging.Discard(), nil)

		run.ExportPage(context.Background(), home, tc.depth)

		assert.Empty(t, run.Errors(), "depth %d", tc.depth)
		assert.Equal(t, tc.want, webapp.builds, "depth %d", tc.depth)
	}
}

func TestExportPage_DialogTargetsAreFollowed(t *testing.T) {
	dialog := &model.Widget{ID: "EditDialog", Type: "Dialog"}
	home := &model.Widget{ID: "Home", Type: "Panel", Children: []*model.Widget{{
		ID:     "BtnEdit",
		Type:   "Button",
		Action: &model.Action{Type: model.ActionShowDialog, Widget: dialog},
	}}}
	page := testPage("home", home)
	dialog.Page = page
	dialog.Parent = home.Children[0]

	webapp := newFakeWebapp(page)
	run := NewRun(webapp, testOptions(t), t.TempDir(), logging.Discard(), nil)
	run.ExportPage(context.Background(), page, 2)

	assert.Equal(t, []string{"Home", "EditDialog"}, webapp.builds)
	assert.FileExists(t, filepath.Join(run.Destination, "view", "EditDialog.view.js"))
}

func TestExport_SharedLibraryIsCopiedAndNarratedOnce(t *testing.T) {
	home, details := twoPages()
	webapp := newFakeWebapp(home)
	opts := testOptions(t)
	writeVendorFile(t, opts.VendorRoot, "npm-asset/echarts/dist/echarts.min.js", "echarts")
	ref := "jQuery.sap.registerModulePath('libs.exface.charts', 'vendor/npm-asset/echarts/dist/echarts.min');\n"
	webapp.libs["Home"] = ref
	webapp.libs[details.Widget.ID] = ref
	dest := filepath.Join(t.TempDir(), "export")

	res := New(opts, logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.False(t, res.Failed(), "errors: %v", res.Errors)
	count := 0
	for _, line := range res.Narrative {
		if strings.HasSuffix(line, "+ libs/npm-asset/echarts/dist/echarts.min.js") {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.FileExists(t, filepath.Join(dest, "libs", "npm-asset", "echarts", "dist", "echarts.min.js"))
	assert.Contains(t, readFile(t, filepath.Join(dest, "controller", "Details.controller.js")),
		"'libs/npm-asset/echarts/dist/echarts.min'")
}

func TestExport_MissingLibraryFailsTheRun(t *testing.T) {
	home, _ := twoPages()
	webapp := newFakeWebapp(home)
	webapp.libs["Home"] = "jQuery.sap.includeStyleSheet('vendor/nowhere/pkg/missing.css');\n"
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(context.Background(), webapp, dest, nil)

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Errors[0], ErrAssetMissing)
	assert.NoDirExists(t, dest)
}

func TestExport_CancelledContextRollsBack(t *testing.T) {
	home, _ := twoPages()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dest := filepath.Join(t.TempDir(), "export")

	res := New(testOptions(t), logging.Discard()).Export(ctx, newFakeWebapp(home), dest, nil)

	require.True(t, res.Failed())
	assert.ErrorIs(t, res.Errors[0], context.Canceled)
	assert.NoDirExists(t, dest)
}
