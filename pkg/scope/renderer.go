package scope

import (
	"fmt"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"github.com/itohio/golongboard/pkg/history"
)

var (
	gridColor    = color.RGBA{R: 40, G: 40, B: 40, A: 255}
	labelColor   = color.RGBA{R: 150, G: 150, B: 150, A: 255}
	speedColor   = color.RGBA{R: 255, G: 165, B: 0, A: 255}   // Orange
	dutyColor    = color.RGBA{R: 100, G: 200, B: 255, A: 255} // Light blue
	batteryColor = color.RGBA{R: 80, G: 200, B: 80, A: 255}   // Green
	brakeColor   = color.RGBA{R: 200, G: 60, B: 60, A: 90}
	lowColor     = color.RGBA{R: 200, G: 200, B: 60, A: 90}
)

const (
	marginLeft   = float32(60.0)
	marginRight  = float32(50.0)
	marginTop    = float32(20.0)
	marginBottom = float32(40.0)
)

// scopeRenderer renders the scope widget.
type scopeRenderer struct {
	scope *ScopeWidget

	grid    *canvas.Rectangle
	objects []fyne.CanvasObject

	lastSize fyne.Size
}

// MinSize returns the minimum size of the widget.
func (r *scopeRenderer) MinSize() fyne.Size {
	return fyne.NewSize(400, 300)
}

// Layout arranges the widget components.
func (r *scopeRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)

	if r.lastSize != size {
		r.lastSize = size
		r.scope.BaseWidget.Refresh()
	}
}

// plot maps data coordinates to the drawing area.
type plot struct {
	x, y, w, h float32
	xMin, xMax time.Time
}

func (p plot) px(t time.Time) float32 {
	span := p.xMax.Sub(p.xMin).Seconds()
	if span <= 0 {
		return p.x
	}
	return p.x + float32(t.Sub(p.xMin).Seconds()/span)*p.w
}

func (p plot) py(v, full float64) float32 {
	if full <= 0 {
		return p.y + p.h
	}
	return p.y + p.h - float32(v/full)*p.h
}

// Refresh updates the widget display.
func (r *scopeRenderer) Refresh() {
	r.scope.mu.RLock()
	points := r.scope.display
	segments := r.scope.segments
	speedMax := r.scope.speedMax
	xMin := r.scope.xMin
	xMax := r.scope.xMax
	r.scope.mu.RUnlock()

	size := r.scope.Size()
	if size.Width == 0 || size.Height == 0 {
		return
	}

	r.objects = []fyne.CanvasObject{r.grid}

	p := plot{
		x:    marginLeft,
		y:    marginTop,
		w:    size.Width - marginLeft - marginRight,
		h:    size.Height - marginTop - marginBottom,
		xMin: xMin,
		xMax: xMax,
	}

	r.drawSegments(p, segments)
	r.drawGrid(p, speedMax)

	if len(points) > 1 {
		r.drawTrace(p, points, speedColor, 2, speedMax, func(pt point) float64 { return pt.speed })
		r.drawTrace(p, points, dutyColor, 1.5, 100, func(pt point) float64 { return pt.duty })
		r.drawTrace(p, points, batteryColor, 1, 100, func(pt point) float64 { return pt.battery })
	}
}

// drawGrid draws the grid with km/h on the left axis and % on the right.
func (r *scopeRenderer) drawGrid(p plot, speedMax float64) {
	const numHLines = 5
	for i := range numHLines + 1 {
		y := p.y + float32(i)*p.h/numHLines
		r.line(fyne.NewPos(p.x, y), fyne.NewPos(p.x+p.w, y), gridColor, 1)

		frac := 1 - float64(i)/numHLines
		r.text(fmt.Sprintf("%.1f", speedMax*frac), fyne.NewPos(p.x-5, y-6), fyne.TextAlignTrailing)
		r.text(fmt.Sprintf("%.0f%%", 100*frac), fyne.NewPos(p.x+p.w+5, y-6), fyne.TextAlignLeading)
	}
	r.text("km/h", fyne.NewPos(p.x-5, p.y-18), fyne.TextAlignTrailing)

	const numVLines = 10
	span := p.xMax.Sub(p.xMin)
	for i := range numVLines + 1 {
		x := p.x + float32(i)*p.w/numVLines
		r.line(fyne.NewPos(x, p.y), fyne.NewPos(x, p.y+p.h), gridColor, 1)

		offset := span * time.Duration(i) / numVLines
		r.text(formatTime(offset), fyne.NewPos(x-20, p.y+p.h+5), fyne.TextAlignCenter)
	}
}

// drawTrace draws one value series as connected line segments.
func (r *scopeRenderer) drawTrace(p plot, points []point, c color.Color, width float32, full float64, value func(point) float64) {
	prev := fyne.NewPos(p.px(points[0].at), p.py(value(points[0]), full))
	for _, pt := range points[1:] {
		next := fyne.NewPos(p.px(pt.at), p.py(value(pt), full))
		r.line(prev, next, c, width)
		prev = next
	}
}

// drawSegments shades brake and low-power runs.
func (r *scopeRenderer) drawSegments(p plot, segments []history.Segment) {
	for _, seg := range segments {
		c := brakeColor
		if seg.Reason != "brake" {
			c = lowColor
		}
		x0 := p.px(seg.StartTime)
		x1 := p.px(seg.EndTime)
		if x1-x0 < 2 {
			x1 = x0 + 2
		}
		rect := canvas.NewRectangle(c)
		rect.Move(fyne.NewPos(x0, p.y))
		rect.Resize(fyne.NewSize(x1-x0, p.h))
		r.objects = append(r.objects, rect)
	}
}

// Objects returns all canvas objects for rendering.
func (r *scopeRenderer) Objects() []fyne.CanvasObject {
	return r.objects
}

// Destroy cleans up resources.
func (r *scopeRenderer) Destroy() {}

func (r *scopeRenderer) line(a, b fyne.Position, c color.Color, width float32) {
	l := canvas.NewLine(c)
	l.Position1 = a
	l.Position2 = b
	l.StrokeWidth = width
	r.objects = append(r.objects, l)
}

func (r *scopeRenderer) text(s string, pos fyne.Position, align fyne.TextAlign) {
	t := canvas.NewText(s, labelColor)
	t.TextSize = 10
	t.Alignment = align
	t.Move(pos)
	r.objects = append(r.objects, t)
}

func formatTime(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
