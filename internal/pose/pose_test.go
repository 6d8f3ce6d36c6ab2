package pose

import (
	"testing"

	"gocv.io/x/gocv"
	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
)

func identityCameraMats() (gocv.Mat, gocv.Mat) {
	cameraMatrix := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	cameraMatrix.SetDoubleAt(0, 0, 2400)
	cameraMatrix.SetDoubleAt(1, 1, 2400)
	cameraMatrix.SetDoubleAt(0, 2, 1224)
	cameraMatrix.SetDoubleAt(1, 2, 1024)
	cameraMatrix.SetDoubleAt(2, 2, 1)

	distCoeffs := gocv.NewMatWithSize(5, 1, gocv.MatTypeCV64F)
	return cameraMatrix, distCoeffs
}

// projectFrontalGrid builds synthetic image points for a board held flat,
// perpendicular to the optical axis, at distance z millimeters, using a
// simple pinhole projection so the resulting pose should read ~0,0,0.
func projectFrontalGrid(t *testing.T, world model.WorldPointList, cameraMatrix gocv.Mat, z float32) []model.Point2D {
	t.Helper()
	fx := float32(cameraMatrix.GetDoubleAt(0, 0))
	fy := float32(cameraMatrix.GetDoubleAt(1, 1))
	cx := float32(cameraMatrix.GetDoubleAt(0, 2))
	cy := float32(cameraMatrix.GetDoubleAt(1, 2))

	out := make([]model.Point2D, model.NumGridPoints)
	for i := 0; i < model.NumGridPoints; i++ {
		p := world[i]
		out[i] = model.Point2D{
			X: fx*(p.X/z) + cx,
			Y: fy*(p.Y/z) + cy,
		}
	}
	return out
}

func TestCheckSingleEyePoseFrontalBoardPasses(t *testing.T) {
	cameraMatrix, distCoeffs := identityCameraMats()
	defer cameraMatrix.Close()
	defer distCoeffs.Close()

	world := model.DefaultWorldPoints().Simplified()
	centers := projectFrontalGrid(t, world, cameraMatrix, 500)

	result, err := CheckSingleEyePose(centers, world, cameraMatrix, distCoeffs, model.DefaultThresholds())
	require.NoError(t, err)
	require.True(t, result.Pass, "roll=%v pitch=%v yaw=%v", result.RollDeg, result.PitchDeg, result.YawDeg)
}

func TestCheckSingleEyePoseRejectsWrongPointCount(t *testing.T) {
	cameraMatrix, distCoeffs := identityCameraMats()
	defer cameraMatrix.Close()
	defer distCoeffs.Close()

	world := model.DefaultWorldPoints().Simplified()
	_, err := CheckSingleEyePose(make([]model.Point2D, 10), world, cameraMatrix, distCoeffs, model.DefaultThresholds())
	require.ErrorIs(t, err, model.ErrPoseSolverFailure)
}
