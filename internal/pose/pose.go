// Package pose estimates a single eye's orientation relative to the
// calibration board via planar PnP (C3), grounded on the teacher's gocv
// calib3d usage idiom (camera matrix / distortion coefficients carried as
// gocv.Mat, loaded through internal/params) and math32 for scalar trig.
package pose

import (
	"fmt"

	"github.com/chewxy/math32"
	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/model"
)

// SingleEyePoseResult holds one eye's recovered board orientation.
type SingleEyePoseResult struct {
	RollDeg  float32
	PitchDeg float32
	YawDeg   float32
	Pass     bool
}

// CheckSingleEyePose pairs centers[i] with worldPoints[i] (already
// translated so index 0 sits at the origin — see model.WorldPointList.
// Simplified) and solves the planar PnP problem with IPPE, then reads the
// board's roll/pitch/yaw out of the recovered rotation and translation.
func CheckSingleEyePose(centers []model.Point2D, worldPoints model.WorldPointList, cameraMatrix, distCoeffs gocv.Mat, th model.Thresholds) (SingleEyePoseResult, error) {
	if len(centers) != model.NumGridPoints {
		return SingleEyePoseResult{}, fmt.Errorf("%w: expected %d centers, got %d", model.ErrPoseSolverFailure, model.NumGridPoints, len(centers))
	}

	objectPoints := make([]gocv.Point3f, model.NumGridPoints)
	imagePoints := make([]gocv.Point2f, model.NumGridPoints)
	for i := 0; i < model.NumGridPoints; i++ {
		wp := worldPoints[i]
		objectPoints[i] = gocv.Point3f{X: wp.X, Y: wp.Y, Z: wp.Z}
		imagePoints[i] = gocv.Point2f{X: centers[i].X, Y: centers[i].Y}
	}

	objVec := gocv.NewPoint3fVectorFromPoints(objectPoints)
	defer objVec.Close()
	imgVec := gocv.NewPoint2fVectorFromPoints(imagePoints)
	defer imgVec.Close()

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	ok := gocv.SolvePnP(objVec, imgVec, cameraMatrix, distCoeffs, &rvec, &tvec, false, gocv.SolvePnPIPPE)
	if !ok {
		return SingleEyePoseResult{}, fmt.Errorf("%w: SolvePnP did not converge", model.ErrPoseSolverFailure)
	}

	rmat := gocv.NewMat()
	defer rmat.Close()
	gocv.Rodrigues(rvec, &rmat)
	if rmat.Rows() != 3 || rmat.Cols() != 3 {
		return SingleEyePoseResult{}, fmt.Errorf("%w: Rodrigues produced a %dx%d matrix", model.ErrPoseSolverFailure, rmat.Rows(), rmat.Cols())
	}

	r10 := float32(rmat.GetDoubleAt(1, 0))
	r00 := float32(rmat.GetDoubleAt(0, 0))

	tx := float32(tvec.GetDoubleAt(0, 0))
	ty := float32(tvec.GetDoubleAt(1, 0))
	tz := float32(tvec.GetDoubleAt(2, 0))
	if tz == 0 {
		return SingleEyePoseResult{}, fmt.Errorf("%w: degenerate translation (tz=0)", model.ErrPoseSolverFailure)
	}

	const rad2deg = 180.0 / math32.Pi
	roll := math32.Atan2(r10, r00) * rad2deg
	pitch := math32.Atan(ty/tz) * rad2deg
	yaw := math32.Atan(tx/tz) * rad2deg

	result := SingleEyePoseResult{RollDeg: roll, PitchDeg: pitch, YawDeg: yaw}
	result.Pass = math32.Abs(roll) <= th.RollDeg &&
		math32.Abs(pitch) <= th.PitchYawDeg &&
		math32.Abs(yaw) <= th.PitchYawDeg
	return result, nil
}
