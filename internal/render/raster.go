package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg"
	"image/png"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const (
	borderWidth  = 2
	fillAlpha    = 51
	labelHeight  = 16
	labelPadX    = 4
	blankCanvasW = 400
	blankCanvasH = 300

	axisColor     = "#333"
	tickColor     = "#666"
	tickFontSize  = 8
	titleFontSize = 10
	legendSwatch  = 10
	legendWidth   = 90
)

// basicfont has no CJK glyphs, raster labels use these ASCII names.
var asciiNames = strings.NewReplacer(
	"需手术", "needs-surgery",
	"手术", "surgery",
	"观察", "observation",
	"未知", "unknown",
	"正常", "normal",
	"轻度", "mild",
	"中度", "moderate",
	"重度", "severe",
	"面积", "area",
	"检测置信度分布", "Detection confidence",
	"病变严重程度分布", "Severity distribution",
)

func asciiLabel(s string) string {
	s = asciiNames.Replace(s)
	var b strings.Builder
	for _, r := range s {
		switch {
		case r == '²':
			b.WriteString("2")
		case r < 0x80:
			b.WriteRune(r)
		default:
			b.WriteByte('?')
		}
	}
	return b.String()
}

// ParseHex parses #rgb or #rrggbb, returning opaque gray on malformed input.
func ParseHex(s string) color.RGBA {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if len(s) != 6 || err != nil {
		return color.RGBA{R: 0x99, G: 0x99, B: 0x99, A: 0xff}
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}

func rectOf(b OverlayBox) image.Rectangle {
	return image.Rect(int(b.X), int(b.Y), int(b.X+b.Width), int(b.Y+b.Height))
}

// DrawOverlay draws the boxes onto dst in displayed-image coordinates.
func DrawOverlay(dst draw.Image, boxes []OverlayBox) {
	face := basicfont.Face7x13
	white := image.NewUniform(color.White)

	for _, b := range boxes {
		c := ParseHex(b.Color)
		r := rectOf(b).Intersect(dst.Bounds())
		if r.Empty() {
			continue
		}

		fill := color.NRGBA{R: c.R, G: c.G, B: c.B, A: fillAlpha}
		draw.Draw(dst, r, image.NewUniform(fill), image.Point{}, draw.Over)

		border := image.NewUniform(c)
		for _, edge := range []image.Rectangle{
			image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+borderWidth),
			image.Rect(r.Min.X, r.Max.Y-borderWidth, r.Max.X, r.Max.Y),
			image.Rect(r.Min.X, r.Min.Y, r.Min.X+borderWidth, r.Max.Y),
			image.Rect(r.Max.X-borderWidth, r.Min.Y, r.Max.X, r.Max.Y),
		} {
			draw.Draw(dst, edge.Intersect(r), border, image.Point{}, draw.Src)
		}

		text := asciiLabel(b.Label)
		dr := &font.Drawer{Dst: dst, Src: white, Face: face}
		tw := dr.MeasureString(text).Ceil()
		top := r.Min.Y - labelHeight
		if top < dst.Bounds().Min.Y {
			top = r.Min.Y
		}
		bg := image.Rect(r.Min.X, top, r.Min.X+tw+labelPadX*2, top+labelHeight)
		draw.Draw(dst, bg.Intersect(dst.Bounds()), border, image.Point{}, draw.Src)
		dr.Dot = fixed.Point26_6{X: fixed.I(r.Min.X + labelPadX), Y: fixed.I(top + labelHeight - 4)}
		dr.DrawString(text)

		if b.AreaLabel != "" {
			gray := image.NewUniform(color.RGBA{R: 0x66, G: 0x66, B: 0x66, A: 0xff})
			ar := &font.Drawer{Dst: dst, Src: gray, Face: face,
				Dot: fixed.Point26_6{X: fixed.I(r.Min.X), Y: fixed.I(r.Max.Y + labelHeight - 2)}}
			ar.DrawString(asciiLabel(b.AreaLabel))
		}
	}
}

// OverlayImage scales src to the view's display size and draws the overlay.
// An undecodable or empty src yields a blank canvas.
func OverlayImage(src []byte, v *View) *image.RGBA {
	var img image.Image
	if len(src) > 0 {
		if decoded, _, err := image.Decode(bytes.NewReader(src)); err == nil {
			img = decoded
		}
	}

	w, h := int(v.Geometry.DisplayWidth), int(v.Geometry.DisplayHeight)
	if w <= 0 || h <= 0 {
		if img != nil {
			w, h = img.Bounds().Dx(), img.Bounds().Dy()
		} else {
			w, h = blankCanvasW, blankCanvasH
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	if img != nil {
		xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	}
	DrawOverlay(dst, v.Overlay)
	return dst
}

func OverlayPNG(w io.Writer, src []byte, v *View) error {
	return png.Encode(w, OverlayImage(src, v))
}

func chartColor(hex string) drawing.Color {
	c := ParseHex(hex)
	return drawing.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

func fillRect(r chart.Renderer, x, y, w, h float64, c drawing.Color) {
	r.SetFillColor(c)
	r.SetStrokeWidth(0)
	r.MoveTo(int(x), int(y))
	r.LineTo(int(x+w), int(y))
	r.LineTo(int(x+w), int(y+h))
	r.LineTo(int(x), int(y+h))
	r.Close()
	r.Fill()
}

// ChartPNG rasterizes a laid out chart with the go-chart PNG renderer.
func ChartPNG(w io.Writer, cv *ChartView) error {
	if cv == nil || len(cv.Bars) == 0 {
		return fmt.Errorf("chart has no bars")
	}
	r, err := chart.PNG(int(cv.Width), int(cv.Height))
	if err != nil {
		return fmt.Errorf("create renderer: %w", err)
	}
	f, err := chart.GetDefaultFont()
	if err != nil {
		return fmt.Errorf("load chart font: %w", err)
	}
	r.SetFont(f)

	fillRect(r, 0, 0, cv.Width, cv.Height, drawing.ColorWhite)

	bottom := cv.Height - cv.Padding
	r.SetStrokeColor(chartColor(axisColor))
	r.SetStrokeWidth(1)
	r.MoveTo(int(cv.Padding), int(cv.Padding))
	r.LineTo(int(cv.Padding), int(bottom))
	r.LineTo(int(cv.Width-cv.Padding), int(bottom))
	r.Stroke()

	r.SetFontSize(tickFontSize)
	r.SetFontColor(chartColor(tickColor))
	for _, t := range cv.YTicks {
		tb := r.MeasureText(t.Label)
		r.Text(t.Label, int(cv.Padding)-tb.Width()-4, int(t.Y)+tb.Height()/2)
	}

	for _, b := range cv.Bars {
		fillRect(r, b.X, b.Y, b.Width, b.Height, chartColor(b.Color))

		r.SetFontColor(chartColor(axisColor))
		vb := r.MeasureText(b.ValueText)
		r.Text(b.ValueText, int(b.X+b.Width/2)-vb.Width()/2, int(b.Y)-4)

		r.SetTextRotation(b.LabelRotation * math.Pi / 180)
		r.Text(asciiLabel(b.Label), int(b.LabelX), int(b.LabelY))
		r.ClearTextRotation()
	}

	r.SetFontSize(titleFontSize)
	r.SetFontColor(chartColor(axisColor))
	title := asciiLabel(cv.Title)
	tb := r.MeasureText(title)
	r.Text(title, int(cv.Width)/2-tb.Width()/2, int(cv.Padding)/2+tb.Height()/2)

	r.SetFontSize(tickFontSize)
	x := cv.Width - cv.Padding - legendWidth*float64(len(cv.Legend))
	for _, l := range cv.Legend {
		fillRect(r, x, cv.Padding-legendSwatch-4, legendSwatch, legendSwatch, chartColor(l.Color))
		r.SetFontColor(chartColor(tickColor))
		r.Text(asciiLabel(l.Label), int(x+legendSwatch+4), int(cv.Padding-4))
		x += legendWidth
	}

	return r.Save(w)
}
