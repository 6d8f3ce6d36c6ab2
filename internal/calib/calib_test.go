package calib

import (
	"image"
	"testing"

	"github.com/chewxy/math32"
	"gocv.io/x/gocv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
)

func blankImage(t *testing.T, cols, rows int) gocv.Mat {
	t.Helper()
	return gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8UC1)
}

const (
	testFx, testFy = 2400.0, 2400.0
	testCx, testCy = 1224.0, 1024.0
)

func project(p model.Point3D, z float32) model.Point2D {
	return model.Point2D{
		X: testFx*(p.X/z) + testCx,
		Y: testFy*(p.Y/z) + testCy,
	}
}

// rotateAndTranslate applies a small pitch/yaw tilt then shifts the board
// to distance z, modeling one calibration-photo viewpoint.
func rotateAndTranslate(p model.Point3D, pitchDeg, yawDeg, z float32) model.Point3D {
	const deg2rad = math32.Pi / 180.0
	pitch, yaw := pitchDeg*deg2rad, yawDeg*deg2rad

	// yaw around Y, then pitch around X
	x1 := p.X*math32.Cos(yaw) + p.Z*math32.Sin(yaw)
	z1 := -p.X*math32.Sin(yaw) + p.Z*math32.Cos(yaw)
	y2 := p.Y*math32.Cos(pitch) - z1*math32.Sin(pitch)
	z2 := p.Y*math32.Sin(pitch) + z1*math32.Cos(pitch)

	return model.Point3D{X: x1, Y: y2, Z: z2 + z}
}

func syntheticMonoViews(t *testing.T, views int) ([][]model.Point3D, [][]model.Point2D) {
	t.Helper()
	world := model.DefaultWorldPoints().Simplified().Slice()

	objectPoints := make([][]model.Point3D, views)
	imagePoints := make([][]model.Point2D, views)
	for v := 0; v < views; v++ {
		pitch := float32(v-views/2) * 4
		yaw := float32(v%3-1) * 6
		z := float32(450 + v*20)

		objectPoints[v] = world
		imagePoints[v] = make([]model.Point2D, len(world))
		for i, p := range world {
			tp := rotateAndTranslate(p, pitch, yaw, z)
			imagePoints[v][i] = project(tp, tp.Z)
		}
	}
	return objectPoints, imagePoints
}

func TestCalibrateMonoRecoversKnownIntrinsics(t *testing.T) {
	objectPoints, imagePoints := syntheticMonoViews(t, 8)
	imageSize := image.Pt(2448, 2048)

	result, err := CalibrateMono(objectPoints, imagePoints, imageSize)
	require.NoError(t, err)
	require.Len(t, result.CameraMatrix, 3)
	require.Len(t, result.DistCoeffs, 5)

	assert.InDelta(t, testFx, result.CameraMatrix[0][0], testFx*0.2)
	assert.InDelta(t, testFy, result.CameraMatrix[1][1], testFy*0.2)
	assert.Less(t, result.ReprojectionError, 5.0)
}

func TestCalibrateMonoRejectsEmptySampleSet(t *testing.T) {
	_, err := CalibrateMono(nil, nil, image.Pt(100, 100))
	require.ErrorIs(t, err, model.ErrInitialization)
}

func TestCalibrateMonoRejectsMismatchedSampleSet(t *testing.T) {
	objectPoints, imagePoints := syntheticMonoViews(t, 3)
	_, err := CalibrateMono(objectPoints, imagePoints[:2], image.Pt(2448, 2048))
	require.ErrorIs(t, err, model.ErrInitialization)
}

func TestCalibrateStereoExtrinsicsRecoversKnownBaseline(t *testing.T) {
	world := model.DefaultWorldPoints().Simplified().Slice()
	const baselineMM = 65.0

	views := 10
	leftImagePoints := make([][]model.Point2D, views)
	rightImagePoints := make([][]model.Point2D, views)
	for v := 0; v < views; v++ {
		pitch := float32(v-views/2) * 3
		yaw := float32(v%4-2) * 5
		z := float32(500 + v*15)

		leftImagePoints[v] = make([]model.Point2D, len(world))
		rightImagePoints[v] = make([]model.Point2D, len(world))
		for i, p := range world {
			tp := rotateAndTranslate(p, pitch, yaw, z)
			leftImagePoints[v][i] = project(tp, tp.Z)

			rightView := tp
			rightView.X -= baselineMM
			rightImagePoints[v][i] = project(rightView, rightView.Z)
		}
	}

	mono := MonoCalibration{
		CameraMatrix: [][]float64{{testFx, 0, testCx}, {0, testFy, testCy}, {0, 0, 1}},
		DistCoeffs:   []float64{0, 0, 0, 0, 0},
		ImageSize:    image.Pt(2448, 2048),
	}

	result, err := CalibrateStereoExtrinsics(world, leftImagePoints, rightImagePoints, mono, mono, 0.1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.SamplesUsed, 8)
	require.Len(t, result.T, 3)

	assert.InDelta(t, -baselineMM, result.T[0], 10)
}

func TestCalibrateStereoExtrinsicsRejectsTooFewPairs(t *testing.T) {
	world := model.DefaultWorldPoints().Simplified().Slice()
	mono := MonoCalibration{
		CameraMatrix: [][]float64{{testFx, 0, testCx}, {0, testFy, testCy}, {0, 0, 1}},
		DistCoeffs:   []float64{0, 0, 0, 0, 0},
	}

	leftImagePoints := make([][]model.Point2D, 2)
	rightImagePoints := make([][]model.Point2D, 2)
	for v := range leftImagePoints {
		leftImagePoints[v] = make([]model.Point2D, len(world))
		rightImagePoints[v] = make([]model.Point2D, len(world))
		for i, p := range world {
			leftImagePoints[v][i] = project(p, 500)
			rightImagePoints[v][i] = project(p, 500)
		}
	}

	_, err := CalibrateStereoExtrinsics(world, leftImagePoints, rightImagePoints, mono, mono, 0.1)
	require.ErrorIs(t, err, model.ErrInitialization)
}

func TestStereoRectifyAndBuildMapsProducesMatchingDimensions(t *testing.T) {
	mono := MonoCalibration{
		CameraMatrix: [][]float64{{testFx, 0, testCx}, {0, testFy, testCy}, {0, 0, 1}},
		DistCoeffs:   []float64{0, 0, 0, 0, 0},
	}
	extrinsics := StereoExtrinsicsResult{
		R: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		T: []float64{-65, 0, 0},
	}
	imageSize := image.Pt(2448, 2048)

	result, err := StereoRectifyAndBuildMaps(mono, mono, extrinsics, imageSize)
	require.NoError(t, err)

	rows, cols := result.Maps.Dims()
	assert.Equal(t, imageSize.Y, rows)
	assert.Equal(t, imageSize.X, cols)
	assert.Len(t, result.Params.Q, 4)
}

func TestFindGridReturnsFalseOnBlankImage(t *testing.T) {
	img := blankImage(t, 640, 480)
	defer img.Close()

	_, ok := FindGrid(img, image.Pt(4, 11))
	assert.False(t, ok)
}
