// Package figure renders indicator figures as standalone SVG.
package figure

import (
	"fmt"
	"html"
	"math"
	"strings"

	"oqt_service/internal/domain/model"
)

const (
	width   = 600.0
	height  = 400.0
	marginL = 70.0
	marginR = 20.0
	marginT = 40.0
	marginB = 50.0
)

var labelColors = map[model.Label]string{
	model.LabelGreen:     "#6bb36b",
	model.LabelYellow:    "#f2c94c",
	model.LabelRed:       "#e05d5d",
	model.LabelUndefined: "#9e9e9e",
}

var lineColors = []string{"#1f77b4", "#555555", "#999999", "#d62728"}

// SVGRenderer draws lines, shaded bands, points, bars and markers on one pair
// of linear axes.
type SVGRenderer struct{}

func NewSVGRenderer() *SVGRenderer {
	return &SVGRenderer{}
}

type scale struct {
	min, max float64
	from, to float64
}

func (s scale) at(v float64) float64 {
	if s.max == s.min {
		return s.from
	}
	return s.from + (v-s.min)/(s.max-s.min)*(s.to-s.from)
}

type extent struct {
	min, max float64
}

func newExtent() extent { return extent{min: math.Inf(1), max: math.Inf(-1)} }

func (e *extent) add(vs ...float64) {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		e.min = math.Min(e.min, v)
		e.max = math.Max(e.max, v)
	}
}

// bounds returns a non-empty range that includes zero.
func (e extent) bounds() (float64, float64) {
	lo, hi := math.Min(e.min, 0), math.Max(e.max, 0)
	if math.IsInf(lo, 0) || math.IsInf(hi, 0) {
		return 0, 1
	}
	if hi == lo {
		hi = lo + 1
	}
	return lo, hi
}

func (r *SVGRenderer) Render(fig model.Figure) (string, error) {
	xs, ys := newExtent(), newExtent()
	for _, l := range fig.Lines {
		if len(l.X) != len(l.Y) {
			return "", fmt.Errorf("line %q has %d x and %d y values", l.Name, len(l.X), len(l.Y))
		}
		xs.add(l.X...)
		ys.add(l.Y...)
	}
	for _, p := range fig.Points {
		xs.add(p.X)
		ys.add(p.Y)
	}
	for _, b := range fig.Bars {
		xs.add(b.X0, b.X1)
		ys.add(b.Height)
	}
	for _, m := range fig.Markers {
		xs.add(m.X)
	}
	for _, b := range fig.Bands {
		ys.add(b.Lower, b.Upper)
	}

	xlo, xhi := xs.bounds()
	ylo, yhi := ys.bounds()
	x := scale{min: xlo, max: xhi, from: marginL, to: width - marginR}
	y := scale{min: ylo, max: yhi * 1.05, from: height - marginB, to: marginT}

	var sb strings.Builder
	fmt.Fprintf(&sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%g" height="%g" viewBox="0 0 %g %g">`, width, height, width, height)
	sb.WriteString(`<rect width="100%" height="100%" fill="#ffffff"/>`)

	for _, b := range fig.Bands {
		top, bottom := y.at(math.Min(b.Upper, y.max)), y.at(math.Max(b.Lower, y.min))
		fmt.Fprintf(&sb, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" fill-opacity="0.3"/>`,
			x.from, top, x.to-x.from, math.Max(bottom-top, 0), labelColors[b.Label])
	}
	for _, b := range fig.Bars {
		left, right := x.at(b.X0), x.at(b.X1)
		top, bottom := y.at(b.Height), y.at(0)
		color, ok := labelColors[b.Label]
		if !ok {
			color = lineColors[0]
		}
		fmt.Fprintf(&sb, `<rect x="%.2f" y="%.2f" width="%.2f" height="%.2f" fill="%s" stroke="#ffffff"/>`,
			left, top, math.Max(right-left, 0), math.Max(bottom-top, 0), color)
	}
	for i, l := range fig.Lines {
		points := make([]string, len(l.X))
		for j := range l.X {
			points[j] = fmt.Sprintf("%.2f,%.2f", x.at(l.X[j]), y.at(l.Y[j]))
		}
		dash := ""
		if l.Dashed {
			dash = ` stroke-dasharray="6 4"`
		}
		fmt.Fprintf(&sb, `<polyline points="%s" fill="none" stroke="%s" stroke-width="2"%s><title>%s</title></polyline>`,
			strings.Join(points, " "), lineColors[i%len(lineColors)], dash, html.EscapeString(l.Name))
	}
	for _, m := range fig.Markers {
		fmt.Fprintf(&sb, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#000000" stroke-dasharray="2 2"><title>%s</title></line>`,
			x.at(m.X), y.from, x.at(m.X), y.to, html.EscapeString(m.Name))
	}
	for _, p := range fig.Points {
		fmt.Fprintf(&sb, `<circle cx="%.2f" cy="%.2f" r="5" fill="#d62728"><title>%s</title></circle>`,
			x.at(p.X), y.at(p.Y), html.EscapeString(p.Name))
	}

	writeAxes(&sb, x, y)
	fmt.Fprintf(&sb, `<text x="%g" y="24" text-anchor="middle" font-size="16">%s</text>`, width/2, html.EscapeString(fig.Title))
	fmt.Fprintf(&sb, `<text x="%g" y="%g" text-anchor="middle" font-size="12">%s</text>`,
		(x.from+x.to)/2, height-10, html.EscapeString(fig.XLabel))
	fmt.Fprintf(&sb, `<text x="16" y="%g" text-anchor="middle" font-size="12" transform="rotate(-90 16 %g)">%s</text>`,
		(y.from+y.to)/2, (y.from+y.to)/2, html.EscapeString(fig.YLabel))
	sb.WriteString(`</svg>`)
	return sb.String(), nil
}

func writeAxes(sb *strings.Builder, x, y scale) {
	fmt.Fprintf(sb, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#000000"/>`, x.from, y.from, x.to, y.from)
	fmt.Fprintf(sb, `<line x1="%.2f" y1="%.2f" x2="%.2f" y2="%.2f" stroke="#000000"/>`, x.from, y.from, x.from, y.to)
	const ticks = 5
	for i := 0; i <= ticks; i++ {
		xv := x.min + (x.max-x.min)*float64(i)/ticks
		fmt.Fprintf(sb, `<text x="%.2f" y="%.2f" text-anchor="middle" font-size="10">%s</text>`,
			x.at(xv), y.from+14, tick(xv))
		yv := y.min + (y.max-y.min)*float64(i)/ticks
		fmt.Fprintf(sb, `<text x="%.2f" y="%.2f" text-anchor="end" font-size="10">%s</text>`,
			x.from-4, y.at(yv)+3, tick(yv))
	}
}

func tick(v float64) string {
	switch a := math.Abs(v); {
	case a == 0:
		return "0"
	case a >= 1000:
		return fmt.Sprintf("%.0f", v)
	case a >= 1:
		return fmt.Sprintf("%.1f", v)
	default:
		return fmt.Sprintf("%.2g", v)
	}
}
