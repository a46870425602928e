package scope

import (
	"image/color"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/itohio/golongboard/pkg/config"
	"github.com/itohio/golongboard/pkg/history"
	"github.com/itohio/golongboard/pkg/telemetry"
)

// point is one plotted record.
type point struct {
	at      time.Time
	speed   float64 // km/h
	duty    float64 // %
	battery float64 // %
}

// ScopeWidget is a custom Fyne widget that plots speed, duty, and battery history.
type ScopeWidget struct {
	widget.BaseWidget

	window time.Duration

	// Data (protected by mu)
	mu       sync.RWMutex
	points   []point
	segments []history.Segment

	// Display buffer (reused for downsampling)
	display []point

	// Auto-scaling of the speed axis; duty and battery use a fixed 0..100 axis
	speedMax   float64
	xMin, xMax time.Time

	maxDisplayPoints int
}

// New creates a new ScopeWidget instance.
func New(cfg config.DashboardConfig) *ScopeWidget {
	maxPoints := cfg.MaxPoints
	if maxPoints <= 0 {
		maxPoints = config.Default().Dashboard.MaxPoints
	}
	s := &ScopeWidget{
		window:           cfg.Window,
		points:           make([]point, 0),
		display:          make([]point, 0, maxPoints),
		maxDisplayPoints: maxPoints,
	}
	s.ExtendBaseWidget(s)
	s.Refresh()
	return s
}

// UpdateData updates the widget with new history.
// This should be called from the history callback using fyne.Do().
func (s *ScopeWidget) UpdateData(records []telemetry.Record, segments []history.Segment) {
	s.mu.Lock()

	points := make([]point, len(records))
	for i, r := range records {
		points[i] = point{
			at:      r.Timestamp,
			speed:   float64(r.SpeedKMH),
			duty:    float64(r.Duty),
			battery: float64(r.BatteryPercent),
		}
	}
	s.display = history.Downsample(s.display, points, s.maxDisplayPoints)
	s.points = points
	s.segments = segments

	s.updateAutoScale()

	s.mu.Unlock()

	s.Refresh()
}

// updateAutoScale calculates axis ranges from current data.
func (s *ScopeWidget) updateAutoScale() {
	s.speedMax = 5 // km/h
	if len(s.display) == 0 {
		s.xMin = time.Now()
		s.xMax = s.xMin.Add(s.window)
		return
	}

	for _, p := range s.display {
		if p.speed > s.speedMax {
			s.speedMax = p.speed
		}
	}
	s.speedMax *= 1.1

	s.xMin = s.display[0].at
	s.xMax = s.display[len(s.display)-1].at
	if s.xMax.Sub(s.xMin) < s.window {
		s.xMax = s.xMin.Add(s.window)
	}
}

// CreateRenderer creates the widget renderer.
func (s *ScopeWidget) CreateRenderer() fyne.WidgetRenderer {
	grid := canvas.NewRectangle(color.RGBA{R: 20, G: 20, B: 20, A: 255})
	return &scopeRenderer{
		scope:   s,
		grid:    grid,
		objects: []fyne.CanvasObject{grid},
	}
}
