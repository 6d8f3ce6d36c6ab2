package align

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/pose"
)

func gridPoints(offsetX, offsetY float32) []model.Point2D {
	pts := make([]model.Point2D, model.NumGridPoints)
	for i := range pts {
		pts[i] = model.Point2D{X: float32(i)*10 + offsetX, Y: float32(i)*5 + offsetY}
	}
	return pts
}

func TestCheckDualEyeAlignmentPerfectOverlapPasses(t *testing.T) {
	th := model.DefaultThresholds()
	left := gridPoints(0, 0)
	right := gridPoints(0, 0)

	result, err := CheckDualEyeAlignment(left, right, th, image.Pt(2448, 2048), "")
	require.NoError(t, err)
	assert.True(t, result.Pass)
	assert.Zero(t, result.MeanDx)
	assert.Zero(t, result.MeanDy)
	assert.Zero(t, result.MaxErr)
}

func TestCheckDualEyeAlignmentLengthMismatch(t *testing.T) {
	th := model.DefaultThresholds()
	_, err := CheckDualEyeAlignment(gridPoints(0, 0), gridPoints(0, 0)[:10], th, image.Pt(100, 100), "")
	require.ErrorIs(t, err, model.ErrLengthMismatch)
}

func TestCheckDualEyeAlignmentLargeOffsetFails(t *testing.T) {
	th := model.DefaultThresholds()
	left := gridPoints(0, 0)
	right := gridPoints(500, 500)

	result, err := CheckDualEyeAlignment(left, right, th, image.Pt(2448, 2048), "")
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.InDelta(t, 500, result.MeanDx, 0.01)
}

func TestPercentileNearestRankWithRounding(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	got := percentile(data, 95)
	// index = round(0.95 * 9) = round(8.55) = 9 -> value 10
	assert.Equal(t, float32(10), got)
}

func TestCheckLeftEyeCenteringWithinTolerance(t *testing.T) {
	th := model.DefaultThresholds()
	centers := make([]model.Point2D, model.NumGridPoints)
	centers[0] = th.ExpectedTopRight
	centers[model.NumGridPoints-1] = th.ExpectedBottomLeft

	result, err := CheckLeftEyeCentering(centers, th)
	require.NoError(t, err)
	assert.True(t, result.IsCentered)
}

func TestCheckLeftEyeCenteringOutsideTolerance(t *testing.T) {
	th := model.DefaultThresholds()
	centers := make([]model.Point2D, model.NumGridPoints)
	centers[0] = model.Point2D{X: th.ExpectedTopRight.X + 500, Y: th.ExpectedTopRight.Y}
	centers[model.NumGridPoints-1] = th.ExpectedBottomLeft

	result, err := CheckLeftEyeCentering(centers, th)
	require.NoError(t, err)
	assert.False(t, result.IsCentered)
}

func TestCheckLeftEyeCenteringWrongCount(t *testing.T) {
	th := model.DefaultThresholds()
	_, err := CheckLeftEyeCentering(make([]model.Point2D, 10), th)
	require.Error(t, err)
}

func TestCalculateAdjustmentVectorsPrioritizesLeftPose(t *testing.T) {
	th := model.DefaultThresholds()
	leftPose := &pose.SingleEyePoseResult{RollDeg: 20, Pass: false}
	rightPose := &pose.SingleEyePoseResult{Pass: true}

	vectors := CalculateAdjustmentVectors(leftPose, nil, rightPose, nil, th)
	assert.Equal(t, PriorityLeftEyePose, vectors.Priority)
	assert.InDelta(t, -20, vectors.LeftEyeAdjustment.RollAdjustment, 0.01)
}

func TestCalculateAdjustmentVectorsComplete(t *testing.T) {
	th := model.DefaultThresholds()
	leftPose := &pose.SingleEyePoseResult{Pass: true}
	rightPose := &pose.SingleEyePoseResult{Pass: true}
	centering := &CenteringResult{IsCentered: true}
	alignment := &DualEyeAlignmentResult{RMS: 1, P95: 1, MaxErr: 1, Pass: true}

	vectors := CalculateAdjustmentVectors(leftPose, centering, rightPose, alignment, th)
	assert.Equal(t, PriorityComplete, vectors.Priority)
}
