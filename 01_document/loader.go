// Package document loads a composition document and checks its structure.
// Structural problems abort with a types.ValidationError naming the path;
// semantic problems (bad references, missing media) are left to later stages,
// which skip the affected layer only.
package document

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"json2video/config"
	"json2video/types"
)

// Format is the serialization of a raw document
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Loader builds typed documents, filling in configured defaults
type Loader struct {
	canvas     types.Canvas
	background types.RGB
	log        *zap.SugaredLogger
}

// NewLoader creates a Loader using cfg.Defaults for canvas and background
func NewLoader(cfg *config.Config, logger *zap.Logger) *Loader {
	return &Loader{
		canvas:     types.Canvas{Width: cfg.Defaults.Width, Height: cfg.Defaults.Height},
		background: cfg.BackgroundRGB(),
		log:        logger.Named("document").Sugar(),
	}
}

// LoadFile reads a .json, .yaml or .yml document
func (l *Loader) LoadFile(path string) (*types.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.ValidationError{Path: path, Reason: err.Error()}
	}
	format := FormatJSON
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	}
	doc, err := l.Load(data, format)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return doc, nil
}

// Load decodes and validates raw document bytes
func (l *Loader) Load(data []byte, format Format) (*types.Document, error) {
	var tree any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, types.ValidationError{Path: "$", Reason: "malformed YAML: " + err.Error()}
		}
	default:
		if err := json.Unmarshal(data, &tree); err != nil {
			return nil, types.ValidationError{Path: "$", Reason: "malformed JSON: " + err.Error()}
		}
	}
	return l.FromTree(tree)
}

// FromTree validates an already decoded map/array tree
func (l *Loader) FromTree(tree any) (*types.Document, error) {
	root, err := asObject(node{v: tree})
	if err != nil {
		return nil, err
	}

	doc := &types.Document{
		Canvas:          l.canvas,
		BackgroundColor: l.background,
	}
	if err := l.parseExtraArgs(root, doc); err != nil {
		return nil, err
	}
	if doc.Script, err = l.parseScript(root); err != nil {
		return nil, err
	}
	if doc.Videos, err = l.parseVideos(root); err != nil {
		return nil, err
	}
	if doc.Images, err = l.parseImages(root); err != nil {
		return nil, err
	}
	if doc.Audio, err = l.parseAudio(root); err != nil {
		return nil, err
	}
	if doc.Texts, err = l.parseTexts(root); err != nil {
		return nil, err
	}

	l.log.Infof("loaded document: %d script, %d video, %d image, %d audio, %d text",
		len(doc.Script), len(doc.Videos), len(doc.Images), len(doc.Audio), len(doc.Texts))
	return doc, nil
}

func (l *Loader) parseExtraArgs(root object, doc *types.Document) error {
	if !root.has("extra_args") {
		return nil
	}
	extra, err := asObject(root.child("extra_args"))
	if err != nil {
		return err
	}

	if extra.has("resolution") {
		res, err := asObject(extra.child("resolution"))
		if err != nil {
			return err
		}
		for _, k := range []string{"width", "height"} {
			v, err := res.integer(k)
			if err != nil {
				return err
			}
			if v == nil {
				return res.key(k).fail("is required")
			}
			if *v <= 0 {
				return res.child(k).fail("must be positive")
			}
			if k == "width" {
				doc.Canvas.Width = *v
			} else {
				doc.Canvas.Height = *v
			}
		}
	}

	if extra.has("background_color") {
		rgb, err := parseColor(extra.child("background_color"))
		if err != nil {
			return err
		}
		doc.BackgroundColor = rgb
	}

	if extra.has("captions") {
		c, err := asObject(extra.child("captions"))
		if err != nil {
			return err
		}
		caps := &doc.Captions
		if caps.Enabled, err = c.boolean("enabled", false); err != nil {
			return err
		}
		if caps.Color, err = c.str("color", false, "white"); err != nil {
			return err
		}
		if caps.BackgroundColor, err = c.str("background_color", false, "black"); err != nil {
			return err
		}
		if caps.FontSize, err = c.nonNegative("font_size", float64(doc.Canvas.Height)*0.05); err != nil {
			return err
		}
		if caps.Font, err = c.str("font", false, ""); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) parseScript(root object) ([]types.NarrationSegment, error) {
	entries, err := root.array("script")
	if err != nil {
		return nil, err
	}
	segments := make([]types.NarrationSegment, 0, len(entries))
	seen := make(map[string]bool, len(entries))
	for _, n := range entries {
		o, err := asObject(n)
		if err != nil {
			return nil, err
		}
		idKey := "id"
		if !o.has("id") && o.has("_id") {
			idKey = "_id"
		}
		id, err := o.str(idKey, true, "")
		if err != nil {
			return nil, err
		}
		if seen[id] {
			return nil, o.key(idKey).fail("duplicate segment id %q", id)
		}
		seen[id] = true

		seg := types.NarrationSegment{ID: id}
		if seg.Text, err = o.str("text", true, ""); err != nil {
			return nil, err
		}
		if seg.VoiceStartOffset, err = o.nonNegative("voice_start_time", 0); err != nil {
			return nil, err
		}
		if seg.PostPauseDuration, err = o.nonNegative("post_pause_duration", 0); err != nil {
			return nil, err
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func (l *Loader) parseVideos(root object) ([]types.VideoLayer, error) {
	entries, err := root.array("videos")
	if err != nil {
		return nil, err
	}
	out := make([]types.VideoLayer, 0, len(entries))
	for i, n := range entries {
		o, err := asObject(n)
		if err != nil {
			return nil, err
		}
		v := types.VideoLayer{}
		if v.LayerBase, err = l.parseBase(o, i, true); err != nil {
			return nil, err
		}
		if v.Path, err = o.str("video_path", true, ""); err != nil {
			return nil, err
		}
		if v.Volume, err = o.nonNegative("volume", 1); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (l *Loader) parseImages(root object) ([]types.ImageLayer, error) {
	entries, err := root.array("images")
	if err != nil {
		return nil, err
	}
	out := make([]types.ImageLayer, 0, len(entries))
	for i, n := range entries {
		o, err := asObject(n)
		if err != nil {
			return nil, err
		}
		img := types.ImageLayer{}
		if img.LayerBase, err = l.parseBase(o, i, true); err != nil {
			return nil, err
		}
		st, err := o.str("source_type", false, string(types.SourcePrompt))
		if err != nil {
			return nil, err
		}
		switch types.SourceType(st) {
		case types.SourcePath, types.SourcePrompt, types.SourceURL:
			img.SourceType = types.SourceType(st)
		default:
			return nil, o.child("source_type").fail("must be one of path, prompt, url; got %q", st)
		}
		if img.SourceContent, err = o.str("source_content", true, ""); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, nil
}

func (l *Loader) parseAudio(root object) ([]types.AudioLayer, error) {
	entries, err := root.array("audio")
	if err != nil {
		return nil, err
	}
	out := make([]types.AudioLayer, 0, len(entries))
	for i, n := range entries {
		o, err := asObject(n)
		if err != nil {
			return nil, err
		}
		a := types.AudioLayer{}
		if a.LayerBase, err = l.parseBase(o, i, false); err != nil {
			return nil, err
		}
		if a.Path, err = o.str("audio_path", true, ""); err != nil {
			return nil, err
		}
		if a.Volume, err = o.nonNegative("volume", 1); err != nil {
			return nil, err
		}
		if a.IsTemp, err = o.boolean("is_temp", false); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (l *Loader) parseTexts(root object) ([]types.TextLayer, error) {
	entries, err := root.array("text")
	if err != nil {
		return nil, err
	}
	out := make([]types.TextLayer, 0, len(entries))
	for i, n := range entries {
		o, err := asObject(n)
		if err != nil {
			return nil, err
		}
		t := types.TextLayer{}
		if t.LayerBase, err = l.parseBase(o, i, true); err != nil {
			return nil, err
		}
		if t.Content, err = o.str("content", true, ""); err != nil {
			return nil, err
		}
		if t.Font, err = o.str("font", false, "Arial"); err != nil {
			return nil, err
		}
		if t.FontSize, err = o.nonNegative("font_size", 0); err != nil {
			return nil, err
		}
		if t.Color, err = o.str("color", false, "white"); err != nil {
			return nil, err
		}
		if t.ShadowColor, err = o.str("shadow_color", false, "black"); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// parseBase reads the fields shared by every layer. z_index and rotation are
// only read for visual layers.
func (l *Loader) parseBase(o object, index int, visual bool) (types.LayerBase, error) {
	b := types.LayerBase{Index: index}
	var err error

	if b.Name, err = o.str("id", false, ""); err != nil {
		return b, err
	}
	if b.Start, err = parseTimeRef(o, "start_time"); err != nil {
		return b, err
	}
	if b.End, err = parseTimeRef(o, "end_time"); err != nil {
		return b, err
	}
	if b.Opacity, err = o.number("opacity", 1); err != nil {
		return b, err
	}
	if b.Opacity < 0 || b.Opacity > 1 {
		return b, o.child("opacity").fail("must be within [0, 1], got %g", b.Opacity)
	}
	if b.Position, err = l.parsePosition(o); err != nil {
		return b, err
	}
	if b.MaxWidth, err = parseBound(o, "max_width"); err != nil {
		return b, err
	}
	if b.MaxHeight, err = parseBound(o, "max_height"); err != nil {
		return b, err
	}
	if !visual {
		return b, nil
	}
	if b.ZIndex, err = o.integer("z_index"); err != nil {
		return b, err
	}
	if b.Rotation, err = o.number("rotation", 0); err != nil {
		return b, err
	}
	return b, nil
}

func parseTimeRef(o object, k string) (types.TimeRef, error) {
	if !o.has(k) {
		return types.TimeRef{}, nil
	}
	c := o.child(k)
	if s, ok := c.v.(string); ok {
		// numeric strings are literals, anything else is resolved later
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			if f < 0 {
				return types.TimeRef{}, c.fail("must not be negative")
			}
			return types.Seconds(f), nil
		}
		return types.Expr(s), nil
	}
	f, ok := toFloat(c.v)
	if !ok {
		return types.TimeRef{}, c.fail("expected seconds or \"<id>.<field>\", got %s", typeName(c.v))
	}
	if f < 0 {
		return types.TimeRef{}, c.fail("must not be negative")
	}
	return types.Seconds(f), nil
}

func parseBound(o object, k string) (types.Bound, error) {
	if !o.has(k) {
		return types.Bound{}, nil
	}
	c := o.child(k)
	if s, ok := c.v.(string); ok {
		if s == "full" {
			return types.FullBound(), nil
		}
		return types.Bound{}, c.fail("expected an integer or \"full\", got %q", s)
	}
	px, ok := toInt(c.v)
	if !ok {
		return types.Bound{}, c.fail("expected an integer or \"full\", got %s", typeName(c.v))
	}
	if px <= 0 {
		return types.Bound{}, c.fail("must be positive")
	}
	return types.PixelBound(px), nil
}

// parsePosition tolerates a position that is not a pair, centring the layer
func (l *Loader) parsePosition(o object) (*[2]float64, error) {
	if !o.has("position") {
		return nil, nil
	}
	c := o.child("position")
	list, ok := c.v.([]any)
	if !ok || len(list) != 2 {
		l.log.Warnf("invalid position at %s: %v, centring layer", c.path, c.v)
		return nil, nil
	}
	var pos [2]float64
	for i, v := range list {
		f, ok := toFloat(v)
		if !ok {
			return nil, c.index(i).fail("expected a percentage, got %s", typeName(v))
		}
		pos[i] = f
	}
	return &pos, nil
}

var namedColors = map[string]types.RGB{
	"white": {255, 255, 255},
	"black": {0, 0, 0},
	"red":   {255, 0, 0},
	"green": {0, 128, 0},
	"blue":  {0, 0, 255},
	"gray":  {128, 128, 128},
	"grey":  {128, 128, 128},
}

func parseColor(n node) (types.RGB, error) {
	switch v := n.v.(type) {
	case string:
		if rgb, ok := namedColors[strings.ToLower(v)]; ok {
			return rgb, nil
		}
		hex := strings.TrimPrefix(v, "#")
		if len(hex) == 6 {
			if x, err := strconv.ParseUint(hex, 16, 32); err == nil {
				return types.RGB{int(x >> 16 & 0xff), int(x >> 8 & 0xff), int(x & 0xff)}, nil
			}
		}
		return types.RGB{}, n.fail("unknown colour %q", v)
	case []any:
		if len(v) != 3 {
			return types.RGB{}, n.fail("expected [r, g, b]")
		}
		var rgb types.RGB
		for i, c := range v {
			x, ok := toInt(c)
			if !ok || x < 0 || x > 255 {
				return types.RGB{}, n.index(i).fail("expected an integer in [0, 255]")
			}
			rgb[i] = x
		}
		return rgb, nil
	}
	return types.RGB{}, n.fail("expected a colour name, hex string or [r, g, b]")
}
