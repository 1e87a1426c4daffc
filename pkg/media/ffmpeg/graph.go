package ffmpeg

import (
	"fmt"
	"strings"

	"github.com/reelforge/reelforge/pkg/media"
)

// graphBuilder compiles a clip's op list into an ffmpeg filter_complex
// string. Input 0 is always the clip source; B-roll overlays add further
// inputs as they appear.
type graphBuilder struct {
	clip   *clip
	inputs []string
	chains []string
	label  int
}

func newGraphBuilder(c *clip) *graphBuilder {
	return &graphBuilder{clip: c, inputs: []string{c.source}}
}

// build returns the filtergraph, the output video/audio labels and the
// full input list.
func (g *graphBuilder) build() (filterComplex, videoLabel, audioLabel string, inputs []string) {
	current := "[0:v]"
	for _, op := range g.clip.ops {
		current = g.compileOp(current, op)
	}

	audioLabel = g.compileAudio()

	if len(g.chains) == 0 {
		return "", "0:v", audioLabel, g.inputs
	}
	return strings.Join(g.chains, ";"), current, audioLabel, g.inputs
}

func (g *graphBuilder) next() string {
	g.label++
	return fmt.Sprintf("[v%d]", g.label)
}

func (g *graphBuilder) emit(in, filters, out string) string {
	g.chains = append(g.chains, in+filters+out)
	return out
}

func (g *graphBuilder) compileOp(in string, op media.Op) string {
	switch o := op.(type) {
	case media.TrimOp:
		return g.compileTrim(in, o)

	case media.MirrorOp:
		return g.emit(in, "hflip", g.next())

	case media.ZoomOp:
		return g.emit(in, fmt.Sprintf(
			"scale=iw*%[1]f:ih*%[1]f,crop=iw/%[1]f:ih/%[1]f", o.Factor), g.next())

	case media.SpeedOp:
		return g.emit(in, fmt.Sprintf("setpts=PTS/%f", o.Factor), g.next())

	case media.JitterOp:
		z := o.Zoom
		amp := o.Intensity * 10
		return g.emit(in, fmt.Sprintf(
			"scale=iw*%[1]f:ih*%[1]f,"+
				"crop=w=iw/%[1]f:h=ih/%[1]f:"+
				"x='(iw-ow)/2+%[2]f*(random(%[3]d)-0.5)':"+
				"y='(ih-oh)/2+%[2]f*(random(%[4]d)-0.5)'",
			z, amp, o.Seed%1000, (o.Seed+1)%1000), g.next())

	case media.WarmOverlayOp:
		return g.emit(in, fmt.Sprintf(
			"drawbox=c=orange@%f:t=fill:enable='between(t,%f,%f)'",
			o.Opacity, o.Start, o.Start+o.Duration), g.next())

	case media.GlowOp:
		split1, split2 := g.next(), g.next()
		g.chains = append(g.chains, fmt.Sprintf("%ssplit%s%s", in, split1, split2))
		blurred := g.emit(split2, fmt.Sprintf(
			"eq=brightness=%f:contrast=%f,gblur=sigma=15",
			o.LumaDelta/255, 1+o.ContrastDelta), g.next())
		out := g.next()
		g.chains = append(g.chains, fmt.Sprintf(
			"%s%sblend=all_mode=screen:all_opacity=%f%s", split1, blurred, o.SelfBlend, out))
		return out

	case media.GrainOp:
		return g.emit(in, fmt.Sprintf("noise=alls=8:allf=t+u:all_seed=%d", o.Seed%100000), g.next())

	case media.GrayscaleOp:
		return g.emit(in, "hue=s=0", g.next())

	case media.GlitchOp:
		return g.emit(in, fmt.Sprintf(
			"colorchannelmixer=rr=%f:gg=%f:bb=%f,"+
				"scale=iw*%[4]f:ih*%[4]f,crop=iw/%[4]f:ih/%[4]f",
			o.R, o.G, o.B, o.Rescale), g.next())

	case media.FlashOp:
		filters := make([]string, 0, len(o.Times))
		for _, t := range o.Times {
			filters = append(filters, fmt.Sprintf(
				"drawbox=c=white@%f:t=fill:enable='between(t,%f,%f)'",
				o.Opacity, t, t+o.Duration))
		}
		if len(filters) == 0 {
			return in
		}
		return g.emit(in, strings.Join(filters, ","), g.next())

	case media.BRollOverlayOp:
		idx := len(g.inputs)
		g.inputs = append(g.inputs, o.Path)
		scaled := g.emit(fmt.Sprintf("[%d:v]", idx),
			fmt.Sprintf("scale=iw:ih,setpts=PTS-STARTPTS+%f/TB", o.Start), g.next())
		out := g.next()
		g.chains = append(g.chains, fmt.Sprintf(
			"%s%soverlay=x=0:y=0:enable='between(t,%f,%f)'%s",
			in, scaled, o.Start, o.Start+o.MaxDuration, out))
		return out

	case media.CaptionsOp:
		filters := make([]string, 0, len(o.Items))
		for _, caption := range o.Items {
			filters = append(filters, drawtext(caption))
		}
		if len(filters) == 0 {
			return in
		}
		return g.emit(in, strings.Join(filters, ","), g.next())

	case media.UseAudioOp:
		// Audio mapping happens in compileAudio.
		return in
	}
	return in
}

// compileTrim concatenates the segments.
func (g *graphBuilder) compileTrim(in string, o media.TrimOp) string {
	if len(o.Segments) == 1 {
		seg := o.Segments[0]
		return g.emit(in, fmt.Sprintf(
			"trim=start=%f:end=%f,setpts=PTS-STARTPTS", seg.Start, seg.End), g.next())
	}

	splits := make([]string, len(o.Segments))
	for i := range o.Segments {
		splits[i] = g.next()
	}
	g.chains = append(g.chains, fmt.Sprintf("%ssplit=%d%s", in, len(o.Segments), strings.Join(splits, "")))

	parts := make([]string, len(o.Segments))
	for i, seg := range o.Segments {
		parts[i] = g.emit(splits[i], fmt.Sprintf(
			"trim=start=%f:end=%f,setpts=PTS-STARTPTS", seg.Start, seg.End), g.next())
	}
	out := g.next()
	g.chains = append(g.chains, fmt.Sprintf(
		"%sconcat=n=%d:v=1:a=0%s", strings.Join(parts, ""), len(parts), out))
	return out
}

// compileAudio builds the audio chain from the designated audio source:
// the source file's audio with the source clip's trim applied, untouched
// by any visual operation.
func (g *graphBuilder) compileAudio() string {
	audio := g.clip.audio
	if audio == nil {
		return ""
	}
	var segments []media.Segment
	for _, op := range audio.ops {
		if trim, ok := op.(media.TrimOp); ok {
			segments = trim.Segments
		}
	}
	if len(segments) == 0 {
		return "0:a?"
	}
	if len(segments) == 1 {
		seg := segments[0]
		out := "[aout]"
		g.chains = append(g.chains, fmt.Sprintf(
			"[0:a]atrim=start=%f:end=%f,asetpts=PTS-STARTPTS%s", seg.Start, seg.End, out))
		return out
	}

	splits := make([]string, len(segments))
	for i := range segments {
		splits[i] = fmt.Sprintf("[as%d]", i)
	}
	g.chains = append(g.chains, fmt.Sprintf("[0:a]asplit=%d%s", len(segments), strings.Join(splits, "")))
	parts := make([]string, len(segments))
	for i, seg := range segments {
		parts[i] = fmt.Sprintf("[at%d]", i)
		g.chains = append(g.chains, fmt.Sprintf(
			"%satrim=start=%f:end=%f,asetpts=PTS-STARTPTS%s", splits[i], seg.Start, seg.End, parts[i]))
	}
	out := "[aout]"
	g.chains = append(g.chains, fmt.Sprintf(
		"%sconcat=n=%d:v=0:a=1%s", strings.Join(parts, ""), len(parts), out))
	return out
}

func drawtext(c media.Caption) string {
	var b strings.Builder
	b.WriteString("drawtext=text='")
	b.WriteString(escapeText(c.Text))
	b.WriteString("'")
	if c.FontPath != "" {
		fmt.Fprintf(&b, ":fontfile=%s", c.FontPath)
	}
	fmt.Fprintf(&b, ":fontsize=%d:fontcolor=%s", c.FontSize, c.Color)
	fmt.Fprintf(&b, ":borderw=%.1f:bordercolor=%s", c.StrokeWidth, c.StrokeColor)
	fmt.Fprintf(&b, ":x=(w-text_w)/2:y=h*%f", c.RelativeY)
	fmt.Fprintf(&b, ":enable='between(t,%f,%f)'", c.Start, c.End)
	return b.String()
}

// escapeText escapes drawtext metacharacters.
func escapeText(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\\\'`,
		`:`, `\:`,
		`%`, `\%`,
	)
	return replacer.Replace(s)
}
