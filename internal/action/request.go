package action

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/matthewbaird/fioriexport/internal/config"
	"github.com/matthewbaird/fioriexport/internal/layout"
	"github.com/matthewbaird/fioriexport/internal/store"
)

var placeholderRe = regexp.MustCompile(`\[#([A-Za-z_]+)#\]`)

// Request is one app export, derived from its record. It does not change
// while the export runs.
type Request struct {
	AppID         string
	ComponentPath string
	RootPage      string
	Destination   string
	Flags         config.Flags
}

// NewRequest derives the request for rec. Relative destinations and records
// without a destination end up below baseDir.
func NewRequest(rec *store.App, baseDir string) (Request, error) {
	req := Request{
		AppID:         rec.AppID,
		ComponentPath: layout.ComponentPath(rec.AppID),
		RootPage:      rec.RootPage,
		Flags:         rec.Flags(),
	}

	tpl := rec.ExportFolder
	if strings.TrimSpace(tpl) == "" {
		tpl = "[#app_id#]"
	}
	dest, err := ResolvePlaceholders(tpl, map[string]string{
		"app_id":         rec.AppID,
		"alias":          rec.AppID,
		"name":           rec.Name,
		"component_path": req.ComponentPath,
		"id":             rec.ID.String(),
	})
	if err != nil {
		return Request{}, fmt.Errorf("export folder of %s: %w", rec.AppID, err)
	}
	if strings.TrimSpace(dest) == "" {
		return Request{}, fmt.Errorf("%w: %q resolves to an empty path for %s", ErrInvalidDestination, tpl, rec.AppID)
	}
	relative := !filepath.IsAbs(dest)
	if relative {
		dest = filepath.Join(baseDir, dest)
	}
	dest = filepath.Clean(dest)
	if err := checkDestination(dest, baseDir, relative); err != nil {
		return Request{}, fmt.Errorf("export folder %q of %s: %w", tpl, rec.AppID, err)
	}
	req.Destination = dest
	return req, nil
}

// checkDestination rejects folders whose backup rename would take other
// exports with it. Relative templates must stay strictly below baseDir.
func checkDestination(dest, baseDir string, relative bool) error {
	if dest == filepath.Dir(dest) {
		return fmt.Errorf("%w: %s is a filesystem root", ErrInvalidDestination, dest)
	}
	base := filepath.Clean(baseDir)
	if dest == base {
		return fmt.Errorf("%w: %s is the export base dir", ErrInvalidDestination, dest)
	}
	if !relative {
		return nil
	}
	rel, err := filepath.Rel(base, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s is not below %s", ErrInvalidDestination, dest, base)
	}
	return nil
}

// ResolvePlaceholders replaces "[#field#]" markers in tpl with values from
// fields. Field names are matched case-insensitively; unknown fields are an
// error.
func ResolvePlaceholders(tpl string, fields map[string]string) (string, error) {
	var missing []string
	out := placeholderRe.ReplaceAllStringFunc(tpl, func(m string) string {
		name := strings.ToLower(placeholderRe.FindStringSubmatch(m)[1])
		v, ok := fields[name]
		if !ok {
			missing = append(missing, name)
			return m
		}
		return v
	})
	if len(missing) > 0 {
		return "", fmt.Errorf("unknown placeholder(s) %s in %q", strings.Join(missing, ", "), tpl)
	}
	return out, nil
}
