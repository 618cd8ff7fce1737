package vision

import (
	"fmt"
	"image"
	"image/color"

	"camcontrol/internal/config"

	"github.com/lucasb-eyer/go-colorful"
	"gocv.io/x/gocv"
)

const (
	// MinArea is the default minimum contour area in pixels.
	MinArea = 500
	// BoxThickness is the default annotation line width.
	BoxThickness = 2
)

// HueRange is an inclusive OpenCV HSV window (H in 0..179, S and V in 0..255).
type HueRange struct {
	HueMin, HueMax int
	SatMin, SatMax int
	ValMin, ValMax int
}

// RedRanges capture red on both sides of the hue wrap-around.
var RedRanges = []HueRange{
	{HueMin: 0, HueMax: 10, SatMin: 100, SatMax: 255, ValMin: 100, ValMax: 255},
	{HueMin: 160, HueMax: 179, SatMin: 100, SatMax: 255, ValMin: 100, ValMax: 255},
}

// Result is the per-frame detection outcome.
type Result struct {
	Present bool
	Boxes   []image.Rectangle
}

// Detector thresholds frames against fixed hue ranges and reports the
// connected regions large enough to count as the target.
type Detector struct {
	ranges    []HueRange
	minArea   float64
	boxColor  color.RGBA
	thickness int
}

// NewDetector builds the red detector from config. BOX_COLOR is a hex colour.
func NewDetector(cfg *config.Config) (*Detector, error) {
	boxColor, err := ParseColor(cfg.BoxColor)
	if err != nil {
		return nil, err
	}

	minArea := cfg.MinArea
	if minArea <= 0 {
		minArea = MinArea
	}
	thickness := cfg.BoxThickness
	if thickness <= 0 {
		thickness = BoxThickness
	}

	return &Detector{
		ranges:    RedRanges,
		minArea:   minArea,
		boxColor:  boxColor,
		thickness: thickness,
	}, nil
}

// ParseColor converts "#rrggbb" into an opaque color.RGBA.
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid box color %q: %w", hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}

// Detect runs the threshold/contour pass over a BGR frame. The frame is not modified.
func (d *Detector) Detect(frame gocv.Mat) (Result, error) {
	if frame.Empty() {
		return Result{}, fmt.Errorf("empty frame")
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(frame, &hsv, gocv.ColorBGRToHSV); err != nil {
		return Result{}, fmt.Errorf("failed to convert frame to HSV: %w", err)
	}

	mask := d.Mask(hsv)
	defer mask.Close()

	contours := gocv.FindContours(mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	result := Result{Boxes: []image.Rectangle{}}
	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) < d.minArea {
			continue
		}
		result.Present = true
		result.Boxes = append(result.Boxes, gocv.BoundingRect(contour))
	}

	return result, nil
}

// Mask returns the union of every configured range over an HSV frame.
// The caller owns the returned Mat.
func (d *Detector) Mask(hsv gocv.Mat) gocv.Mat {
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), hsv.Rows(), hsv.Cols(), gocv.MatTypeCV8U)

	part := gocv.NewMat()
	defer part.Close()

	for _, r := range d.ranges {
		lower := gocv.NewScalar(float64(r.HueMin), float64(r.SatMin), float64(r.ValMin), 0)
		upper := gocv.NewScalar(float64(r.HueMax), float64(r.SatMax), float64(r.ValMax), 0)
		gocv.InRangeWithScalar(hsv, lower, upper, &part)
		gocv.BitwiseOr(mask, part, &mask)
	}
	return mask
}

// Annotate draws every box onto the frame in place.
func (d *Detector) Annotate(frame *gocv.Mat, boxes []image.Rectangle) error {
	for _, box := range boxes {
		if err := gocv.Rectangle(frame, box, d.boxColor, d.thickness); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}
	}
	return nil
}

// EncodeJPEG encodes a frame. Quality 0 leaves the encoder default.
func EncodeJPEG(frame gocv.Mat, quality int) ([]byte, error) {
	var (
		buf *gocv.NativeByteBuffer
		err error
	)
	if quality > 0 {
		buf, err = gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{int(gocv.IMWriteJpegQuality), quality})
	} else {
		buf, err = gocv.IMEncode(gocv.JPEGFileExt, frame)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}
