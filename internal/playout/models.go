package playout

import "time"

// MediaKind identifies what class of media is on air.
type MediaKind string

const (
	KindNone  MediaKind = "none"
	KindVideo MediaKind = "video"
	KindImage MediaKind = "image"
)

// FollowCurrentScene is the target-scene setting meaning "place managed
// sources into whatever scene OBS currently has in program". An empty
// setting means the same thing.
const FollowCurrentScene = "-current-"

// OnAirRecord is the single source of truth for current playout state.
// It is replaced atomically on every transition, never field-patched.
type OnAirRecord struct {
	Kind      MediaKind `json:"kind"`
	Path      string    `json:"path,omitempty"`
	Filename  string    `json:"filename,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`

	// DurationSec is the probed length of the on-air video in seconds.
	// Nil for images, for empty state, and when probing failed.
	DurationSec *float64 `json:"duration,omitempty"`
}

// ProgressSample is a point-in-time read of the engine's playback position
// for the on-air video. The zero value is the synthetic "no media" sample.
type ProgressSample struct {
	HasMedia    bool    `json:"has_media"`
	Playing     bool    `json:"playing"`
	State       string  `json:"state,omitempty"`
	DurationSec float64 `json:"duration"`
	CursorSec   float64 `json:"cursor"`
}

// Snapshot is the full observer-facing state: pushed to joining observers
// and served by the state endpoint.
type Snapshot struct {
	OBSConnected bool        `json:"obs_connected"`
	OnAir        OnAirRecord `json:"on_air"`
}

// Config is the runtime playout configuration, resolved from the settings
// store on every operation so setting changes take effect immediately.
type Config struct {
	MediaRoot   string
	OBSURL      string
	OBSPassword string
	TargetScene string
	VideoSource string
	ImageSource string
}

// StepStatus classifies the outcome of a single reconcile step.
type StepStatus int

const (
	// StepOK means the step converged engine state as requested.
	StepOK StepStatus = iota
	// StepSkipped means a best-effort step found no matching engine object
	// or hit an engine error; playout proceeds without it.
	StepSkipped
	// StepFatal means a must-succeed step failed; the transition aborts.
	StepFatal
)

// StepOutcome is the tagged result of a reconcile step, so callers and
// tests can assert which category a step fell into instead of relying on
// swallowed errors.
type StepOutcome struct {
	Status StepStatus
	Reason string
	Err    error
}

func stepOK() StepOutcome {
	return StepOutcome{Status: StepOK}
}

func stepSkipped(reason string, err error) StepOutcome {
	return StepOutcome{Status: StepSkipped, Reason: reason, Err: err}
}

func stepFatal(err error) StepOutcome {
	return StepOutcome{Status: StepFatal, Err: err}
}

// Fatal reports whether the step aborted its transition.
func (o StepOutcome) Fatal() bool { return o.Status == StepFatal }

// Skipped reports whether the step was skipped as best-effort.
func (o StepOutcome) Skipped() bool { return o.Status == StepSkipped }
