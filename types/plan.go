package types

// Box is a layer's rendered rectangle on the canvas. X/Y is the top-left
// corner and may be negative when a layer hangs off the canvas.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
}

// TextStyle carries what the renderer needs to draw text and captions
type TextStyle struct {
	Content     string  `json:"content"`
	Font        string  `json:"font"`
	FontSize    float64 `json:"font_size"`
	Color       string  `json:"color"`
	ShadowColor string  `json:"shadow_color,omitempty"`
	StrokeColor string  `json:"stroke_color,omitempty"`
	StrokeWidth float64 `json:"stroke_width,omitempty"`
}

// VisualEntry is one time-placed visual layer of the plan
type VisualEntry struct {
	LayerID  string     `json:"layer_id"`
	Kind     LayerKind  `json:"kind"`
	Source   string     `json:"source,omitempty"`
	Start    float64    `json:"start"`
	End      float64    `json:"end"`
	ZIndex   int        `json:"z_index"`
	Opacity  float64    `json:"opacity"`
	Rotation float64    `json:"rotation,omitempty"`
	Box      Box        `json:"box"`
	Text     *TextStyle `json:"text,omitempty"`
	Color    *RGB       `json:"color,omitempty"`
}

// Duration is End - Start
func (v VisualEntry) Duration() float64 { return v.End - v.Start }

// AudioEntry is one clip of the audio mix
type AudioEntry struct {
	SourceID string    `json:"source_id"`
	Kind     LayerKind `json:"kind"`
	Path     string    `json:"path"`
	Start    float64   `json:"start"`
	End      float64   `json:"end"`
	Volume   float64   `json:"volume"`
}

// SkippedLayer records a layer dropped from the plan and why
type SkippedLayer struct {
	LayerID string    `json:"layer_id"`
	Kind    LayerKind `json:"kind"`
	Reason  string    `json:"reason"`
}

// LayerOutcome is the assembler's per-layer result: either resolved entries
// or the error that caused the layer to be skipped.
type LayerOutcome struct {
	LayerID string
	Kind    LayerKind
	Seq     int
	Visual  *VisualEntry
	Audio   *AudioEntry
	Err     error
}

// Skipped reports whether the layer was dropped
func (o LayerOutcome) Skipped() bool { return o.Err != nil }

// CompositionPlan is the compiler's output, handed to an external renderer
type CompositionPlan struct {
	RunID           string             `json:"run_id"`
	Canvas          Canvas             `json:"canvas"`
	BackgroundColor RGB                `json:"background_color"`
	TotalDuration   float64            `json:"total_duration"`
	Visual          []VisualEntry      `json:"visual"`
	Audio           []AudioEntry       `json:"audio"`
	Narration       []NarrationSegment `json:"narration"`
	Subtitles       string             `json:"subtitles,omitempty"`
	Skipped         []SkippedLayer     `json:"skipped,omitempty"`
	Resources       []string           `json:"resources,omitempty"`
	Output          string             `json:"output,omitempty"`
}
