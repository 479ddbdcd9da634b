package playout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/teampat/obs-playout-mac/internal/switcher"
)

// Reconciler converges the engine's scene/source graph toward the desired
// display state for the two managed sources, tolerating partial prior state:
// a source may not exist yet, may exist outside the target scene, or the
// target scene itself may have changed since the last operation.
type Reconciler struct {
	eng Engine
	cfg func() Config
	log *slog.Logger
}

// NewReconciler returns a Reconciler driving eng. cfg is re-read on every
// operation so scene and source-name changes take effect immediately.
func NewReconciler(eng Engine, cfg func() Config, log *slog.Logger) *Reconciler {
	return &Reconciler{eng: eng, cfg: cfg, log: log}
}

// sourceName returns the configured engine source name for a managed kind.
func (r *Reconciler) sourceName(kind MediaKind) string {
	if kind == KindImage {
		return r.cfg().ImageSource
	}
	return r.cfg().VideoSource
}

func inputKind(kind MediaKind) string {
	if kind == KindImage {
		return imageInputKind
	}
	return videoInputKind
}

// resolveScene returns the scene the managed sources must live in. In follow
// mode this asks the engine for its active program scene, so it must be
// re-evaluated on every operation that needs it.
func (r *Reconciler) resolveScene(ctx context.Context) (string, error) {
	target := r.cfg().TargetScene
	if target != "" && target != FollowCurrentScene {
		return target, nil
	}
	return r.eng.CurrentProgramScene(ctx)
}

// EnsureSource converges the engine to "the managed source exists and is
// attached to the target scene". Idempotent over any initial engine state:
// absent sources are created inside the target scene, sources that exist
// elsewhere are attached without recreation (preserving their settings).
// Failure here is fatal: content cannot go on air without a sink source.
func (r *Reconciler) EnsureSource(ctx context.Context, kind MediaKind) StepOutcome {
	scene, err := r.resolveScene(ctx)
	if err != nil {
		return stepFatal(fmt.Errorf("resolve target scene: %w", err))
	}
	name := r.sourceName(kind)

	_, _, err = r.eng.GetInputSettings(ctx, name)
	switch {
	case err == nil:
		// Input exists; make sure it is a member of the target scene.
	case switcher.IsNotFound(err):
		if err := r.eng.CreateInput(ctx, scene, name, inputKind(kind), nil); err != nil {
			return stepFatal(fmt.Errorf("create input %s: %w", name, err))
		}
		r.log.Info("created managed source",
			slog.String("source", name),
			slog.String("scene", scene))
		return stepOK()
	default:
		return stepFatal(fmt.Errorf("get input settings for %s: %w", name, err))
	}

	_, err = r.eng.SceneItemID(ctx, scene, name)
	switch {
	case err == nil:
		return stepOK()
	case switcher.IsNotFound(err):
		if _, err := r.eng.CreateSceneItem(ctx, scene, name); err != nil {
			return stepFatal(fmt.Errorf("attach %s to scene %s: %w", name, scene, err))
		}
		r.log.Info("attached managed source to target scene",
			slog.String("source", name),
			slog.String("scene", scene))
		return stepOK()
	default:
		return stepFatal(fmt.Errorf("list scene items of %s: %w", scene, err))
	}
}

// ShowSource enables the managed source's scene item. Best-effort: a missing
// item is logged and skipped, since the scene may have changed externally.
func (r *Reconciler) ShowSource(ctx context.Context, kind MediaKind) StepOutcome {
	return r.setEnabled(ctx, kind, true)
}

// HideSource disables the managed source's scene item. Best-effort like
// ShowSource.
func (r *Reconciler) HideSource(ctx context.Context, kind MediaKind) StepOutcome {
	return r.setEnabled(ctx, kind, false)
}

func (r *Reconciler) setEnabled(ctx context.Context, kind MediaKind, enabled bool) StepOutcome {
	name := r.sourceName(kind)
	scene, err := r.resolveScene(ctx)
	if err != nil {
		return r.skip("resolve target scene", name, err)
	}
	itemID, err := r.eng.SceneItemID(ctx, scene, name)
	if err != nil {
		return r.skip("find scene item", name, err)
	}
	if err := r.eng.SetSceneItemEnabled(ctx, scene, itemID, enabled); err != nil {
		return r.skip("set item enabled", name, err)
	}
	return stepOK()
}

// FitToCanvas places the managed source's scene item at the origin, scaled
// to fit inside the engine canvas with aspect ratio preserved and no crop or
// rotation. Cosmetic and best-effort: it never blocks playout.
func (r *Reconciler) FitToCanvas(ctx context.Context, kind MediaKind) StepOutcome {
	name := r.sourceName(kind)
	scene, err := r.resolveScene(ctx)
	if err != nil {
		return r.skip("resolve target scene", name, err)
	}
	width, height, err := r.eng.CanvasSize(ctx)
	if err != nil {
		return r.skip("read canvas size", name, err)
	}
	itemID, err := r.eng.SceneItemID(ctx, scene, name)
	if err != nil {
		return r.skip("find scene item", name, err)
	}

	transform := map[string]any{
		"positionX":       0.0,
		"positionY":       0.0,
		"rotation":        0.0,
		"boundsType":      "OBS_BOUNDS_SCALE_INNER",
		"boundsAlignment": 0,
		"boundsWidth":     float64(width),
		"boundsHeight":    float64(height),
		"cropLeft":        0,
		"cropRight":       0,
		"cropTop":         0,
		"cropBottom":      0,
	}
	if err := r.eng.SetSceneItemTransform(ctx, scene, itemID, transform); err != nil {
		return r.skip("set transform", name, err)
	}
	return stepOK()
}

// skip logs a degraded step and returns its skipped outcome.
func (r *Reconciler) skip(reason, source string, err error) StepOutcome {
	r.log.Warn("reconcile step skipped",
		slog.String("step", reason),
		slog.String("source", source),
		slog.String("error", err.Error()))
	return stepSkipped(reason, err)
}
