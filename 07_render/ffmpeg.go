package render

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"json2video/lifecycle"
	"json2video/types"
)

// FFmpegRenderer draws the plan in a single ffmpeg pass: a colour base as
// long as the composition, every visual entry overlaid in plan order, and the
// audio entries delayed to their start and mixed.
type FFmpegRenderer struct {
	outputTarget
	fps int
	log *zap.SugaredLogger
}

func (r *FFmpegRenderer) Render(ctx context.Context, plan *types.CompositionPlan, tracker *lifecycle.Tracker) (string, error) {
	outFile, err := r.path(plan.RunID)
	if err != nil {
		return "", err
	}
	args := ffmpegArgs(plan, r.fps, outFile)

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.log.Infof("rendering %d visual and %d audio entries (%.2fs)...", len(plan.Visual), len(plan.Audio), plan.TotalDuration)
	if out, err := exec.CommandContext(ctx, "ffmpeg", args...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("ffmpeg render: %w: %s", err, tail(string(out), 300))
	}
	r.log.Infof("final video ready: %s", outFile)
	return outFile, nil
}

func ffmpegArgs(plan *types.CompositionPlan, fps int, outFile string) []string {
	if fps <= 0 {
		fps = 30
	}
	bg := plan.BackgroundColor
	args := []string{"-y",
		"-f", "lavfi", "-i", fmt.Sprintf("color=c=0x%02x%02x%02x:s=%dx%d:r=%d:d=%.3f",
			bg[0], bg[1], bg[2], plan.Canvas.Width, plan.Canvas.Height, fps, plan.TotalDuration),
	}
	input := 1
	var filters []string
	last := "[0:v]"

	for i, v := range plan.Visual {
		out := fmt.Sprintf("[bg%d]", i+1)
		enable := fmt.Sprintf("enable='between(t,%.3f,%.3f)'", v.Start, v.End)

		switch v.Kind {
		case types.KindImage, types.KindVideo:
			if v.Kind == types.KindImage {
				args = append(args, "-loop", "1", "-t", fmt.Sprintf("%.3f", v.End), "-i", v.Source)
			} else {
				args = append(args, "-i", v.Source)
			}
			chain := []string{}
			if v.Kind == types.KindVideo {
				chain = append(chain,
					fmt.Sprintf("trim=duration=%.3f", v.Duration()),
					fmt.Sprintf("setpts=PTS-STARTPTS+%.3f/TB", v.Start),
				)
			}
			chain = append(chain, fmt.Sprintf("scale=%d:%d", v.Box.Width, v.Box.Height), "format=rgba")
			if v.Opacity < 1 {
				chain = append(chain, fmt.Sprintf("colorchannelmixer=aa=%.3f", v.Opacity))
			}
			if v.Rotation != 0 {
				rad := v.Rotation * math.Pi / 180
				chain = append(chain, fmt.Sprintf("rotate=%.6f:c=none:ow=rotw(%.6f):oh=roth(%.6f)", rad, rad, rad))
			}
			layer := fmt.Sprintf("[l%d]", i+1)
			filters = append(filters,
				fmt.Sprintf("[%d:v]%s%s", input, strings.Join(chain, ","), layer),
				fmt.Sprintf("%s%soverlay=x=%.0f:y=%.0f:%s%s", last, layer, v.Box.X, v.Box.Y, enable, out),
			)
			input++
		case types.KindText, types.KindCaption:
			filters = append(filters, last+drawText(v, enable)+out)
		default:
			// the colour base already covers background entries
			continue
		}
		last = out
	}

	var mix []string
	for i, a := range plan.Audio {
		args = append(args, "-i", a.Path)
		delayMs := int(math.Round(a.Start * 1000))
		label := fmt.Sprintf("[a%d]", i+1)
		filters = append(filters, fmt.Sprintf("[%d:a]atrim=duration=%.3f,adelay=%d|%d,volume=%.3f%s",
			input, a.End-a.Start, delayMs, delayMs, a.Volume, label))
		mix = append(mix, label)
		input++
	}
	if len(mix) > 0 {
		filters = append(filters, fmt.Sprintf("%samix=inputs=%d:duration=longest:normalize=0[aout]", strings.Join(mix, ""), len(mix)))
	}

	if len(filters) > 0 {
		args = append(args, "-filter_complex", strings.Join(filters, ";"))
	}
	args = append(args, "-map", last)
	if len(mix) > 0 {
		args = append(args, "-map", "[aout]", "-c:a", "aac", "-b:a", "192k")
	}
	args = append(args,
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "22",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprint(fps),
		"-t", fmt.Sprintf("%.3f", plan.TotalDuration),
		"-movflags", "+faststart",
		outFile,
	)
	return args
}

func drawText(v types.VisualEntry, enable string) string {
	st := v.Text
	if st == nil {
		st = &types.TextStyle{}
	}
	color := st.Color
	if color == "" {
		color = "white"
	}
	opts := []string{
		"text='" + escapeDrawText(st.Content) + "'",
		fmt.Sprintf("fontsize=%.0f", st.FontSize),
		fmt.Sprintf("fontcolor=%s@%.3f", color, v.Opacity),
		// centre the text inside its box
		fmt.Sprintf("x=%.0f+(%d-text_w)/2", v.Box.X, v.Box.Width),
		fmt.Sprintf("y=%.0f+(%d-text_h)/2", v.Box.Y, v.Box.Height),
	}
	if st.Font != "" {
		if strings.ContainsAny(st.Font, `/\`) {
			opts = append(opts, "fontfile='"+escapeDrawText(st.Font)+"'")
		} else {
			opts = append(opts, "font='"+escapeDrawText(st.Font)+"'")
		}
	}
	if st.ShadowColor != "" {
		opts = append(opts, "shadowcolor="+st.ShadowColor, "shadowx=2", "shadowy=2")
	}
	if st.StrokeColor != "" && st.StrokeWidth > 0 {
		opts = append(opts, "bordercolor="+st.StrokeColor, fmt.Sprintf("borderw=%.0f", st.StrokeWidth))
	}
	opts = append(opts, enable)
	return "drawtext=" + strings.Join(opts, ":")
}

// escapeDrawText escapes what drawtext treats specially inside a quoted value
func escapeDrawText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		`'`, `'\''`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return r.Replace(s)
}
