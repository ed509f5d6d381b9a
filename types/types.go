package types

import (
	"encoding/json"
	"fmt"
)

// Canvas is the output resolution in pixels
type Canvas struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// RGB is a background or fill colour
type RGB [3]int

// CaptionSettings controls the optional caption track built from narration
type CaptionSettings struct {
	Enabled         bool    `json:"enabled"`
	Color           string  `json:"color"`
	BackgroundColor string  `json:"background_color"`
	FontSize        float64 `json:"font_size"`
	Font            string  `json:"font"`
}

// TimeField names one of the computed timing fields of a narration segment
type TimeField string

const (
	FieldStartTime      TimeField = "start_time"
	FieldEndTime        TimeField = "end_time"
	FieldVoiceStartTime TimeField = "voice_start_time"
	FieldVoiceEndTime   TimeField = "voice_end_time"
)

// Valid reports whether f is a field a reference may point at
func (f TimeField) Valid() bool {
	switch f {
	case FieldStartTime, FieldEndTime, FieldVoiceStartTime, FieldVoiceEndTime:
		return true
	}
	return false
}

// RefKind tells literal, symbolic and absent time references apart
type RefKind int

const (
	RefMissing RefKind = iota
	RefLiteral
	RefSymbolic
)

// TimeRef is a layer start/end: either seconds or an "<id>.<field>" expression.
// Symbolic expressions are kept verbatim and parsed when resolved.
type TimeRef struct {
	Kind    RefKind
	Seconds float64
	Expr    string
}

// Seconds builds a literal reference
func Seconds(v float64) TimeRef {
	return TimeRef{Kind: RefLiteral, Seconds: v}
}

// Expr builds a symbolic reference
func Expr(expr string) TimeRef {
	return TimeRef{Kind: RefSymbolic, Expr: expr}
}

// Missing reports whether the document omitted this reference
func (r TimeRef) Missing() bool {
	return r.Kind == RefMissing
}

func (r TimeRef) String() string {
	switch r.Kind {
	case RefLiteral:
		return fmt.Sprintf("%g", r.Seconds)
	case RefSymbolic:
		return r.Expr
	}
	return "<missing>"
}

func (r TimeRef) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RefLiteral:
		return json.Marshal(r.Seconds)
	case RefSymbolic:
		return json.Marshal(r.Expr)
	}
	return []byte("null"), nil
}

// SegmentTiming holds the fields computed by the narration resolver
type SegmentTiming struct {
	StartTime      float64 `json:"start_time"`
	VoiceStartTime float64 `json:"voice_start_time"`
	VoiceEndTime   float64 `json:"voice_end_time"`
	EndTime        float64 `json:"end_time"`
	Duration       float64 `json:"duration"`
	AudioFile      string  `json:"audio_file"`
}

// NarrationSegment is one spoken line of the script. Timing stays nil until
// narration has been synthesized.
type NarrationSegment struct {
	ID                string         `json:"id"`
	Text              string         `json:"text"`
	VoiceStartOffset  float64        `json:"voice_start_offset"`
	PostPauseDuration float64        `json:"post_pause_duration"`
	Timing            *SegmentTiming `json:"timing,omitempty"`
}

// Bound is a max_width/max_height value: "full", a pixel count, or unset
type Bound struct {
	Full   bool
	Pixels int
	Set    bool
}

// FullBound is the "full" sentinel
func FullBound() Bound { return Bound{Full: true, Set: true} }

// PixelBound is an explicit pixel bound
func PixelBound(px int) Bound { return Bound{Pixels: px, Set: true} }

// Limit returns the effective bound against a canvas dimension.
// Unset and "full" expand to the canvas; explicit bounds never exceed it.
func (b Bound) Limit(canvasDim int) int {
	if !b.Set || b.Full {
		return canvasDim
	}
	if b.Pixels < canvasDim {
		return b.Pixels
	}
	return canvasDim
}

// LayerKind identifies the kind of a layer in the plan
type LayerKind string

const (
	KindVideo      LayerKind = "video"
	KindImage      LayerKind = "image"
	KindAudio      LayerKind = "audio"
	KindText       LayerKind = "text"
	KindCaption    LayerKind = "caption"
	KindBackground LayerKind = "background"
	KindNarration  LayerKind = "narration"
)

// LayerBase holds the fields every layer shares
type LayerBase struct {
	Name      string
	Index     int
	Start     TimeRef
	End       TimeRef
	ZIndex    *int
	Opacity   float64
	Position  *[2]float64
	MaxWidth  Bound
	MaxHeight Bound
	Rotation  float64
}

// LayerID names a layer for logs and errors: its declared id, or its
// collection and index.
func (b LayerBase) LayerID(collection string) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("%s[%d]", collection, b.Index)
}

// SourceType says how an image layer's source_content is interpreted
type SourceType string

const (
	SourcePath   SourceType = "path"
	SourcePrompt SourceType = "prompt"
	SourceURL    SourceType = "url"
)

type VideoLayer struct {
	LayerBase
	Path   string
	Volume float64
}

func (l VideoLayer) ID() string { return l.LayerID("videos") }

type ImageLayer struct {
	LayerBase
	SourceType    SourceType
	SourceContent string
}

func (l ImageLayer) ID() string { return l.LayerID("images") }

type AudioLayer struct {
	LayerBase
	Path   string
	Volume float64
	IsTemp bool
}

func (l AudioLayer) ID() string { return l.LayerID("audio") }

type TextLayer struct {
	LayerBase
	Content     string
	Font        string
	FontSize    float64
	Color       string
	ShadowColor string
}

func (l TextLayer) ID() string { return l.LayerID("text") }

// Document is the validated composition input
type Document struct {
	Canvas          Canvas
	BackgroundColor RGB
	Captions        CaptionSettings
	Script          []NarrationSegment
	Videos          []VideoLayer
	Images          []ImageLayer
	Audio           []AudioLayer
	Texts           []TextLayer
}

// Segment finds a narration segment by id
func (d *Document) Segment(id string) (*NarrationSegment, bool) {
	for i := range d.Script {
		if d.Script[i].ID == id {
			return &d.Script[i], true
		}
	}
	return nil, false
}
