package visuals

import (
	"math"
	"strings"
	"unicode/utf8"

	"json2video/types"
)

const (
	imageZoom         = 1.1
	textWidthShare    = 0.8
	maxFontShare      = 0.06
	textLineHeight    = 1.2
	averageGlyphShare = 0.55 // average glyph width as a share of font size
)

// Place converts a percentage position of the layer's centre into the
// top-left offset of a w x h box. A nil position centres the box.
func Place(canvas types.Canvas, pos *[2]float64, w, h int) (float64, float64) {
	px, py := 50.0, 50.0
	if pos != nil {
		px, py = pos[0], pos[1]
	}
	x := px/100*float64(canvas.Width) - float64(w)/2
	y := py/100*float64(canvas.Height) - float64(h)/2
	return x, y
}

// TargetBox is the box max_width/max_height allow on this canvas
func TargetBox(canvas types.Canvas, maxW, maxH types.Bound) (int, int) {
	return maxW.Limit(canvas.Width), maxH.Limit(canvas.Height)
}

// FitImage scales an image to fit the target box keeping its aspect ratio,
// then zooms it by 10%
func FitImage(targetW, targetH, imgW, imgH int) (int, int) {
	if imgW <= 0 || imgH <= 0 {
		return targetW, targetH
	}
	scale := math.Min(
		float64(targetW)/float64(imgW)*imageZoom,
		float64(targetH)/float64(imgH)*imageZoom,
	)
	return int(math.Ceil(float64(imgW) * scale)), int(math.Ceil(float64(imgH) * scale))
}

// FitVideo scales a clip to the canvas height keeping its aspect ratio
func FitVideo(canvas types.Canvas, vidW, vidH int) (int, int) {
	if vidW <= 0 || vidH <= 0 {
		return canvas.Width, canvas.Height
	}
	w := int(math.Round(float64(vidW) * float64(canvas.Height) / float64(vidH)))
	return w, canvas.Height
}

// FontSize caps the requested size at 6% of the canvas height; zero means the cap
func FontSize(canvas types.Canvas, requested float64) float64 {
	limit := math.Floor(float64(canvas.Height) * maxFontShare)
	if requested <= 0 || requested > limit {
		return limit
	}
	return math.Floor(requested)
}

// TextBox is 80% of the canvas wide. Its height estimates how many lines the
// content wraps to at the given font size.
func TextBox(canvas types.Canvas, content string, fontSize float64) (int, int) {
	w := int(float64(canvas.Width) * textWidthShare)
	perLine := int(float64(w) / (fontSize * averageGlyphShare))
	if perLine < 1 {
		perLine = 1
	}

	lines := 0
	for _, para := range strings.Split(content, "\n") {
		n := utf8.RuneCountInString(para)
		lines += max(1, (n+perLine-1)/perLine)
	}
	h := int(math.Ceil(float64(lines) * fontSize * textLineHeight))
	return w, h
}
