package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/matthewbaird/fioriexport/internal/model"
)

// ExportPage writes the view and controller of page's root widget and of
// everything reachable from it through show-widget actions, following at
// most linkDepth links. Errors are recorded on the run, never returned.
//
// Traversal keeps no visited set: a widget reachable along several paths is
// generated once per path (later writes replace earlier ones) and cycles end
// only when the depth runs out.
func (r *Run) ExportPage(ctx context.Context, page *model.Page, linkDepth int) {
	if page == nil || page.Widget == nil {
		r.fail(fmt.Errorf("page has no root widget"))
		return
	}
	if err := r.exportWidget(ctx, page.Widget, linkDepth, 0); err != nil {
		r.logger.Error("page export failed", "page", page.Alias, "error", err)
		r.fail(err)
		r.say("ERROR: %v", err)
	}
}

// exportWidget generates w and recurses into the widgets it can open. A
// widget that cannot be exported is recorded and skipped; its targets are
// still visited. Any other error stops the traversal.
func (r *Run) exportWidget(ctx context.Context, w *model.Widget, linkDepth, level int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	asset, reasons, err := r.generate(ctx, w)
	if err != nil {
		return r.widgetError(w, err)
	}
	if reasons != nil {
		r.say("%sSkipped widget %s", pad(level), w)
		for _, reason := range reasons {
			r.say("%s  ERROR: %s", pad(level), reason)
		}
		r.fail(r.widgetError(w, fmt.Errorf("not supported in exported apps: %s", strings.Join(reasons, "; "))))
	} else {
		r.say("%sExported widget %s", pad(level), w)
		r.assets = append(r.assets, asset)
		r.say("%s  + %s", pad(level), asset.View)
		r.say("%s  + %s", pad(level), asset.Controller)
		for _, lib := range asset.Libs {
			r.say("%s  + %s", pad(level), lib)
		}
	}

	if linkDepth <= 0 {
		return nil
	}
	for _, target := range showWidgetTargets(w) {
		if err := r.exportWidget(ctx, target, linkDepth-1, level+1); err != nil {
			return err
		}
	}
	return nil
}

// generate renders and writes one widget's view and controller. The view is
// built first because building it is what fills the controller.
func (r *Run) generate(ctx context.Context, w *model.Widget) (Asset, []string, error) {
	task := model.NewExportTask(w)
	if err := r.webapp.Prefill(ctx, task); err != nil {
		return Asset{}, nil, err
	}

	view, err := r.webapp.View(ctx, w, task)
	if reasons, ok := unsupportedReasons(err); ok {
		return Asset{}, reasons, nil
	}
	if err != nil {
		return Asset{}, nil, err
	}
	controller, err := view.Controller()
	if err != nil {
		return Asset{}, nil, err
	}

	viewSrc, err := view.Build(ctx)
	if reasons, ok := unsupportedReasons(err); ok {
		return Asset{}, reasons, nil
	}
	if err != nil {
		return Asset{}, nil, fmt.Errorf("building view: %w", err)
	}
	controllerSrc, err := controller.Build(ctx)
	if reasons, ok := unsupportedReasons(err); ok {
		return Asset{}, reasons, nil
	}
	if err != nil {
		return Asset{}, nil, fmt.Errorf("building controller: %w", err)
	}
	if viewSrc == "" {
		return Asset{}, nil, fmt.Errorf("view %s: %w", view.Path(), ErrEmptySource)
	}
	if controllerSrc == "" {
		return Asset{}, nil, fmt.Errorf("controller %s: %w", controller.Path(), ErrEmptySource)
	}

	controllerSrc, libs, err := r.relocator.Relocate(controllerSrc, r.plan.Libs())
	if err != nil {
		return Asset{}, nil, err
	}

	asset := Asset{View: view.Path(), Controller: controller.Path(), Libs: libs}
	if err := r.write(asset.View, viewSrc); err != nil {
		return Asset{}, nil, err
	}
	if err := r.write(asset.Controller, controllerSrc); err != nil {
		return Asset{}, nil, err
	}
	return asset, nil, nil
}

func (r *Run) write(rel, content string) error {
	return writeFile(r.plan.Abs(rel), content)
}

func (r *Run) widgetError(w *model.Widget, err error) *WidgetError {
	return &WidgetError{
		WidgetID:   w.ID,
		WidgetType: w.Type,
		Caption:    w.Caption,
		Object:     w.Object,
		Page:       w.PageAlias(),
		Err:        err,
	}
}

// showWidgetTargets returns the widgets opened by show-widget actions of w
// and its descendants, in tree order. Triggers are not searched below.
func showWidgetTargets(w *model.Widget) []*model.Widget {
	var out []*model.Widget
	var walk func(*model.Widget)
	walk = func(x *model.Widget) {
		if x.IsTrigger() {
			out = append(out, x.Action.Widget)
			return
		}
		for _, ch := range x.Children {
			walk(ch)
		}
	}
	walk(w)
	return out
}
