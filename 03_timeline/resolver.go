// Package timeline turns layer time references into absolute seconds using
// the narration timeline. References point at a narration segment field and
// never at another reference.
package timeline

import (
	"fmt"
	"strings"

	"json2video/types"
)

// Span is a resolved [Start, End) interval in seconds
type Span struct {
	Start float64
	End   float64
}

// Duration is End - Start
func (s Span) Duration() float64 { return s.End - s.Start }

// Lookup finds a narration segment by id
type Lookup interface {
	Segment(id string) (*types.NarrationSegment, bool)
}

// ParseRef splits "<id>.<field>". The id may itself contain dots; the field
// is everything after the last one.
func ParseRef(expr string) (string, types.TimeField, error) {
	i := strings.LastIndex(expr, ".")
	if i <= 0 || i == len(expr)-1 {
		return "", "", types.ReferenceError{Expr: expr, Reason: "expected \"<segment id>.<field>\""}
	}
	return expr[:i], types.TimeField(expr[i+1:]), nil
}

// Resolve returns the absolute seconds a reference points at
func Resolve(ref types.TimeRef, segments Lookup) (float64, error) {
	switch ref.Kind {
	case types.RefLiteral:
		return ref.Seconds, nil
	case types.RefMissing:
		return 0, types.ReferenceError{Reason: "time reference is missing"}
	}

	id, field, err := ParseRef(ref.Expr)
	if err != nil {
		return 0, err
	}
	if !field.Valid() {
		return 0, types.ReferenceError{Expr: ref.Expr, SegmentID: id, Field: string(field),
			Reason: fmt.Sprintf("unknown field %q", field)}
	}
	seg, ok := segments.Segment(id)
	if !ok {
		return 0, types.ReferenceError{Expr: ref.Expr, SegmentID: id, Field: string(field),
			Reason: fmt.Sprintf("unknown segment id %q", id)}
	}
	if seg.Timing == nil {
		return 0, types.ReferenceError{Expr: ref.Expr, SegmentID: id, Field: string(field),
			Reason: fmt.Sprintf("field %q of segment %q is not computed yet", field, id)}
	}

	switch field {
	case types.FieldStartTime:
		return seg.Timing.StartTime, nil
	case types.FieldVoiceStartTime:
		return seg.Timing.VoiceStartTime, nil
	case types.FieldVoiceEndTime:
		return seg.Timing.VoiceEndTime, nil
	default:
		return seg.Timing.EndTime, nil
	}
}

// ResolveSpan resolves a layer's start and end and checks 0 <= start < end.
// Errors carry the layer id.
func ResolveSpan(layerID string, start, end types.TimeRef, segments Lookup) (Span, error) {
	s, err := Resolve(start, segments)
	if err != nil {
		return Span{}, withLayer(err, layerID, "start_time")
	}
	e, err := Resolve(end, segments)
	if err != nil {
		return Span{}, withLayer(err, layerID, "end_time")
	}
	if s < 0 {
		return Span{}, types.ReferenceError{LayerID: layerID, Reason: fmt.Sprintf("start %.3fs is negative", s)}
	}
	if e <= s {
		return Span{}, types.ReferenceError{LayerID: layerID,
			Reason: fmt.Sprintf("end %.3fs is not after start %.3fs", e, s)}
	}
	return Span{Start: s, End: e}, nil
}

func withLayer(err error, layerID, key string) error {
	if rerr, ok := err.(types.ReferenceError); ok {
		rerr.LayerID = layerID
		rerr.Reason = key + ": " + rerr.Reason
		return rerr
	}
	return err
}

// Check resolves the span of every layer in doc, in declaration order, and
// returns the failures
func Check(doc *types.Document) []error {
	type layer struct {
		id         string
		start, end types.TimeRef
	}
	var layers []layer
	for _, l := range doc.Videos {
		layers = append(layers, layer{l.ID(), l.Start, l.End})
	}
	for _, l := range doc.Images {
		layers = append(layers, layer{l.ID(), l.Start, l.End})
	}
	for _, l := range doc.Audio {
		layers = append(layers, layer{l.ID(), l.Start, l.End})
	}
	for _, l := range doc.Texts {
		layers = append(layers, layer{l.ID(), l.Start, l.End})
	}

	var errs []error
	for _, l := range layers {
		if _, err := ResolveSpan(l.id, l.start, l.end, doc); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
