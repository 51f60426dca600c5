package camera

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/focusd/privguard/internal/domain"
)

// WindowTitle is the debug feed window name.
const WindowTitle = "Privacy Guard - Camera Feed"

var (
	colorAlert   = color.RGBA{R: 255, A: 255}
	colorOK      = color.RGBA{G: 255, A: 255}
	colorText    = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	colorTesting = color.RGBA{R: 255, G: 200, A: 255}
)

// Overlay implements domain.FeedDisplay with a HighGUI window. It must be
// driven from the goroutine that created it.
type Overlay struct {
	window *gocv.Window
}

// NewOverlay creates a display; the window opens on the first Show.
func NewOverlay() *Overlay {
	return &Overlay{}
}

// Show annotates a copy of frame and displays it.
func (o *Overlay) Show(frame *domain.Frame, status domain.FeedStatus) int {
	if frame.Empty() {
		return -1
	}
	img, err := frameToMat(frame)
	if err != nil {
		return -1
	}
	defer img.Close()

	for _, b := range status.Boxes {
		gocv.Rectangle(&img, image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height), colorAlert, 2)
	}
	for i, line := range statusLines(status) {
		scale := 0.7
		if i == 0 {
			scale = 1.0
		}
		gocv.PutText(&img, line.text, image.Pt(10, 30+i*35), gocv.FontHersheySimplex, scale, line.color, 2)
	}

	if o.window == nil {
		o.window = gocv.NewWindow(WindowTitle)
	}
	o.window.IMShow(img)
	return o.window.WaitKey(1)
}

// Hide closes the window.
func (o *Overlay) Hide() {
	if o.window != nil {
		o.window.Close()
		o.window = nil
	}
}

// Close releases the window.
func (o *Overlay) Close() error {
	o.Hide()
	return nil
}

type overlayLine struct {
	text  string
	color color.RGBA
}

func statusLines(s domain.FeedStatus) []overlayLine {
	head := overlayLine{"MONITORING", colorOK}
	if s.Motion {
		head = overlayLine{"MOTION DETECTED", colorAlert}
	}
	lines := []overlayLine{
		head,
		{fmt.Sprintf("Detections: %d", s.Detections), colorText},
		{"Uptime: " + formatUptime(s.Uptime), colorText},
		{fmt.Sprintf("Sensitivity: %.0f", s.Sensitivity), colorText},
	}
	if s.TestMode {
		lines = append(lines, overlayLine{"TEST MODE", colorTesting})
	}
	return lines
}

// formatUptime renders H:MM:SS.
func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d/time.Minute) % 60
	sec := int(d/time.Second) % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}

// Ensure Overlay implements domain.FeedDisplay.
var _ domain.FeedDisplay = (*Overlay)(nil)
