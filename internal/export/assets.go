package export

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/layout"
)

var (
	modulePathRe = regexp.MustCompile(`registerModulePath\(\s*['"]([^'"]+)['"]\s*,\s*['"]([^'"]+)['"]`)
	styleSheetRe = regexp.MustCompile(`includeStyleSheet\(\s*['"]([^'"]+)['"]`)
)

// Files and folders next to a package's code that travel with it.
var companions = []string{"package.json", "LICENSE", "bower.json", "composer.json", "fonts"}

var remoteSchemes = []string{"http:", "https:", "ftp:"}

// Relocator copies vendor libraries referenced by generated controllers into
// the export's libs folder and rewrites the references to point there. A
// Relocator remembers what it copied and must not be shared between runs.
type Relocator struct {
	vendorRoot string
	vendorURL  string
	facadePath string

	folders map[string]bool
	assets  map[string]bool
}

// NewRelocator returns a Relocator reading from the vendor folder in opts.
func NewRelocator(opts config.ExportOptions) *Relocator {
	return &Relocator{
		vendorRoot: opts.VendorRoot,
		vendorURL:  strings.Trim(opts.VendorURL, "/"),
		facadePath: strings.Trim(opts.FacadePath, "/"),
		folders:    map[string]bool{},
		assets:     map[string]bool{},
	}
}

type reference struct {
	start    int
	url      string
	urlStart int
	module   bool
}

// Relocate rewrites the module paths and stylesheets in src that point into
// the vendor folder. Referenced files are copied below libsDir together with
// their folder and package companions. Remote URLs are left alone.
//
// The returned list holds the libs-relative paths of assets not seen before
// in this run or on disk; a missing vendor file fails with ErrAssetMissing.
func (r *Relocator) Relocate(src, libsDir string) (string, []string, error) {
	refs := r.references(src)
	if len(refs) == 0 {
		return src, nil, nil
	}

	present, err := listFiles(libsDir)
	if err != nil {
		return "", nil, err
	}

	var (
		b     strings.Builder
		fresh []string
		last  int
	)
	for _, ref := range refs {
		rel, err := r.resolve(ref)
		if err != nil {
			return "", nil, err
		}
		target, err := r.copy(rel, libsDir)
		if err != nil {
			return "", nil, fmt.Errorf("relocating %s: %w", ref.url, err)
		}
		if !r.assets[target] && !present[target] {
			fresh = append(fresh, path.Join(layout.LibsDir, target))
		}
		r.assets[target] = true

		rewritten := path.Join(layout.LibsDir, target)
		if ref.module {
			rewritten = strings.TrimSuffix(rewritten, path.Ext(rewritten))
		}
		b.WriteString(src[last:ref.urlStart])
		b.WriteString(rewritten)
		last = ref.urlStart + len(ref.url)
	}
	b.WriteString(src[last:])
	return b.String(), fresh, nil
}

// references finds the relocatable calls in src in source order.
func (r *Relocator) references(src string) []reference {
	var refs []reference
	for _, m := range modulePathRe.FindAllStringSubmatchIndex(src, -1) {
		refs = append(refs, reference{start: m[0], url: src[m[4]:m[5]], urlStart: m[4], module: true})
	}
	for _, m := range styleSheetRe.FindAllStringSubmatchIndex(src, -1) {
		refs = append(refs, reference{start: m[0], url: src[m[2]:m[3]], urlStart: m[2]})
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].start < refs[j].start })

	out := refs[:0]
	for _, ref := range refs {
		if isRemote(ref.url) {
			continue
		}
		out = append(out, ref)
	}
	return out
}

func isRemote(url string) bool {
	lower := strings.ToLower(url)
	for _, s := range remoteSchemes {
		if strings.HasPrefix(lower, s) {
			return true
		}
	}
	return false
}

// resolve maps a reference to a file path relative to the vendor root.
func (r *Relocator) resolve(ref reference) (string, error) {
	rel := strings.TrimPrefix(ref.url, "/")
	if r.vendorURL != "" {
		rel = strings.TrimPrefix(rel, r.vendorURL+"/")
	}
	rel = path.Clean(rel)
	if rel == "." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%w: %s", ErrAssetMissing, ref.url)
	}

	candidates := []string{rel}
	if ref.module {
		// Module paths carry no extension, but "echarts.min" already has a dot.
		candidates = []string{rel + ".js", rel}
	}
	for _, c := range candidates {
		info, err := os.Stat(filepath.Join(r.vendorRoot, filepath.FromSlash(c)))
		if err == nil && !info.IsDir() {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %s (looked in %s)", ErrAssetMissing, ref.url, r.vendorRoot)
}

// copy copies the folder holding rel, plus its package companions, into
// libsDir. Assets of the facade itself pull in the facade's whole JS library
// folder instead. It returns the asset's path relative to libsDir.
func (r *Relocator) copy(rel, libsDir string) (string, error) {
	folder := path.Dir(rel)
	if r.facadePath != "" && strings.HasPrefix(rel, r.facadePath+"/") {
		folder = r.facadePath + "/Facades/js"
	}

	if !r.folders[folder] && folder != "." && exists(r.vendorPath(folder)) {
		if err := copyTree(r.vendorPath(folder), r.libsPath(libsDir, folder), false, false); err != nil {
			return "", err
		}
	}
	r.folders[folder] = true
	if dst := r.libsPath(libsDir, rel); !exists(dst) {
		if err := copyFile(r.vendorPath(rel), dst, false); err != nil {
			return "", err
		}
	}

	if pkg := packageRoot(rel); pkg != "" {
		for _, name := range companions {
			src := r.vendorPath(path.Join(pkg, name))
			dst := r.libsPath(libsDir, path.Join(pkg, name))
			if !exists(src) || exists(dst) {
				continue
			}
			if err := copyAny(src, dst); err != nil {
				return "", err
			}
		}
	}
	return rel, nil
}

func (r *Relocator) libsPath(libsDir, rel string) string {
	return filepath.Join(libsDir, filepath.FromSlash(rel))
}

func (r *Relocator) vendorPath(rel string) string {
	return filepath.Join(r.vendorRoot, filepath.FromSlash(rel))
}

// packageRoot is the vendor/package folder of rel (its first two segments).
func packageRoot(rel string) string {
	parts := strings.SplitN(rel, "/", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[0] + "/" + parts[1]
}

// listFiles returns the slash-separated paths of all files below dir.
func listFiles(dir string) (map[string]bool, error) {
	out := map[string]bool{}
	if !exists(dir) {
		return out, nil
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "**", doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	for _, m := range matches {
		out[m] = true
	}
	return out, nil
}
