// Package layout computes where things live inside an exported webapp bundle.
//
// All relative paths are slash-separated regardless of the host OS. They only
// turn into OS paths when joined onto a destination root via Plan.Abs.
package layout

import (
	"path"
	"path/filepath"
	"strings"
)

// Top-level folders of an exported bundle.
const (
	ViewDir       = "view"
	ControllerDir = "controller"
	LibsDir       = "libs"
	I18nDir       = "i18n"
)

// Static entry files copied verbatim from generated output.
const (
	IndexFile     = "index.html"
	ComponentFile = "Component.js"
	ManifestFile  = "manifest.json"
)

// Skeleton lists the folders created before anything is written.
var Skeleton = []string{ViewDir, ControllerDir, LibsDir}

// Plan maps bundle-relative paths below a destination root.
type Plan struct {
	Root string
}

// New returns a Plan rooted at dir.
func New(dir string) Plan {
	return Plan{Root: filepath.Clean(dir)}
}

// Abs converts a slash-separated bundle path into an OS path below the root.
func (p Plan) Abs(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	if rel == "" {
		return p.Root
	}
	return filepath.Join(p.Root, filepath.FromSlash(rel))
}

// Rel is the inverse of Abs. It returns a slash-separated path.
func (p Plan) Rel(abs string) (string, error) {
	rel, err := filepath.Rel(p.Root, abs)
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}

// Libs is the folder relocated vendor assets are copied into.
func (p Plan) Libs() string {
	return p.Abs(LibsDir)
}

// NamespacePath turns a dotted namespace ("my.app.pages") into a path
// ("my/app/pages").
func NamespacePath(namespace string) string {
	namespace = strings.Trim(namespace, ".")
	if namespace == "" {
		return ""
	}
	return strings.ReplaceAll(namespace, ".", "/")
}

// ViewRel is the bundle path of a widget's view.
func ViewRel(namespace, widgetID string) string {
	return path.Join(ViewDir, NamespacePath(namespace), widgetID+".view.js")
}

// ControllerRel is the bundle path of a widget's controller.
func ControllerRel(namespace, widgetID string) string {
	return path.Join(ControllerDir, NamespacePath(namespace), widgetID+".controller.js")
}

// TranslationRel is the bundle path of the resource bundle for lang. The
// default language gets the base i18n.properties file; the comparison is
// case-insensitive.
func TranslationRel(lang, defaultLang string) string {
	if lang == "" || strings.EqualFold(lang, defaultLang) {
		return path.Join(I18nDir, "i18n.properties")
	}
	return path.Join(I18nDir, "i18n_"+lang+".properties")
}

// ComponentPath converts an app alias ("my.app") into its component path
// ("my/app").
func ComponentPath(appID string) string {
	return NamespacePath(appID)
}

// BackupPath is the sibling folder a pre-existing export is staged into.
func BackupPath(dest string) string {
	return filepath.Clean(dest) + ".bkp"
}
