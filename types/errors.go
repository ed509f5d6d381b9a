package types

import (
	"errors"
	"fmt"
)

// ErrNoAsset is returned by an asset provider that found nothing
var ErrNoAsset = errors.New("no asset found")

// Stage names a compile step, used in CompilationError
type Stage string

const (
	StageLoad       Stage = "load"
	StageNarration  Stage = "narration"
	StageReferences Stage = "references"
	StageLayers     Stage = "layers"
	StagePlan       Stage = "plan"
	StageRender     Stage = "render"
)

// ValidationError means the document is structurally malformed at Path.
type ValidationError struct {
	Path   string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error at %s: %s", e.Path, e.Reason)
}

// ReferenceError means a time reference could not be resolved.
type ReferenceError struct {
	LayerID   string
	Expr      string
	SegmentID string
	Field     string
	Reason    string
}

func (e ReferenceError) Error() string {
	msg := "reference error"
	if e.LayerID != "" {
		msg += " in " + e.LayerID
	}
	if e.Expr != "" {
		msg += fmt.Sprintf(" (%q)", e.Expr)
	}
	return msg + ": " + e.Reason
}

// SynthesisFailure means speech synthesis failed for a narration segment.
type SynthesisFailure struct {
	SegmentID string
	Err       error
}

func (e SynthesisFailure) Error() string {
	return fmt.Sprintf("synthesis failed for segment %q: %v", e.SegmentID, e.Err)
}

func (e SynthesisFailure) Unwrap() error { return e.Err }

// AcquisitionFailure means no provider or download produced a layer's asset.
type AcquisitionFailure struct {
	LayerID  string
	Provider string
	Err      error
}

func (e AcquisitionFailure) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("acquisition failed for %s via %s: %v", e.LayerID, e.Provider, e.Err)
	}
	return fmt.Sprintf("acquisition failed for %s: %v", e.LayerID, e.Err)
}

func (e AcquisitionFailure) Unwrap() error { return e.Err }

// CompilationError is the only error Compile returns. It names the stage that
// failed and the entity (segment or layer id) involved, if any.
type CompilationError struct {
	Stage    Stage
	EntityID string
	Reason   string
	Err      error
}

func (e CompilationError) Error() string {
	if e.EntityID != "" {
		return fmt.Sprintf("compile failed at %s (%s): %s", e.Stage, e.EntityID, e.Reason)
	}
	return fmt.Sprintf("compile failed at %s: %s", e.Stage, e.Reason)
}

func (e CompilationError) Unwrap() error { return e.Err }
