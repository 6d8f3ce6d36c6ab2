package detect

import (
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"
	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
)

// synthGrid draws rows x cols solid bright circles of the given radius on a
// dark grayscale canvas, spaced evenly, and returns the image.
func synthGrid(t *testing.T, rows, cols, radius, spacing int) gocv.Mat {
	t.Helper()
	h := rows*spacing + spacing
	w := cols*spacing + spacing
	img := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8U)
	img.SetTo(gocv.NewScalar(20, 0, 0, 0))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			cx := spacing/2 + c*spacing
			cy := spacing/2 + r*spacing
			gocv.Circle(&img, image.Pt(cx, cy), radius, color.RGBA{R: 220, G: 220, B: 220, A: 255}, -1)
		}
	}
	return img
}

func TestDetectCirclesFindsSyntheticGrid(t *testing.T) {
	img := synthGrid(t, 4, 10, 30, 90)
	defer img.Close()

	th := model.DefaultThresholds()
	th.MinAreaPx2 = 500
	th.MaxAreaPx2 = 5000
	d := NewDetector(th)

	centers, err := d.DetectCircles(img)
	require.NoError(t, err)
	require.Len(t, centers, 40)
}

func TestDetectCirclesRejectsEmptyImage(t *testing.T) {
	d := NewDetector(model.DefaultThresholds())
	_, err := d.DetectCircles(gocv.NewMat())
	require.ErrorIs(t, err, model.ErrInvalidImage)
}

func TestDetectCirclesRejectsColorImage(t *testing.T) {
	d := NewDetector(model.DefaultThresholds())
	color := gocv.NewMatWithSize(10, 10, gocv.MatTypeCV8UC3)
	defer color.Close()
	_, err := d.DetectCircles(color)
	require.ErrorIs(t, err, model.ErrInvalidImage)
}

func TestDetectCirclesEmptyWhenNothingPasses(t *testing.T) {
	img := gocv.NewMatWithSize(200, 200, gocv.MatTypeCV8U)
	defer img.Close()
	img.SetTo(gocv.NewScalar(50, 0, 0, 0))

	d := NewDetector(model.DefaultThresholds())
	centers, err := d.DetectCircles(img)
	require.NoError(t, err)
	require.Empty(t, centers)
}
