package export

import (
	"context"
	"fmt"

	"github.com/matthewbaird/fioriexport/internal/layout"
)

// ExportTranslations writes one resource bundle per app language. The
// default language goes to the unsuffixed i18n.properties.
func (r *Run) ExportTranslations(ctx context.Context) error {
	app := r.webapp.App()
	langs := app.AllLanguages()
	if len(langs) == 0 {
		langs = []string{""}
	}
	for _, lang := range langs {
		rel := layout.TranslationRel(lang, app.DefaultLanguage)
		if err := r.copyRoute(ctx, rel); err != nil {
			return fmt.Errorf("translation %s: %w", lang, err)
		}
	}
	return nil
}

// copyRoute writes the renderer's output for a static route to the same
// path inside the bundle.
func (r *Run) copyRoute(ctx context.Context, route string) error {
	content, err := r.webapp.Route(ctx, route)
	if err != nil {
		return err
	}
	if err := r.write(route, content); err != nil {
		return err
	}
	r.say("  + %s", route)
	return nil
}
