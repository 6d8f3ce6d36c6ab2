package model

// Thresholds holds the pass/fail comparison points used throughout the
// pipeline. The canonical values below are empirically tuned to a specific
// sensor and projector pairing (§6 of the design notes); they are exposed
// as struct fields rather than constants so test fixtures and the
// calibration workflow can override them without touching shared state.
type Thresholds struct {
	RollDeg            float32
	PitchYawDeg        float32
	RMSPx              float32
	P95Px              float32
	MaxErrPx           float32
	CenteringTolerance float32
	ExpectedTopRight   Point2D
	ExpectedBottomLeft Point2D
	MinAreaPx2         float32
	MaxAreaPx2         float32
	SafeCap            int
}

// DefaultThresholds returns the canonical thresholds for the 2448x2048
// reference sensor.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RollDeg:            5.0,
		PitchYawDeg:        10.0,
		RMSPx:              100.0,
		P95Px:              100.0,
		MaxErrPx:           200.0,
		CenteringTolerance: 50.0,
		ExpectedTopRight:   Point2D{X: 1735, Y: 545},
		ExpectedBottomLeft: Point2D{X: 1215, Y: 970},
		MinAreaPx2:         1600,
		MaxAreaPx2:         14000,
		SafeCap:            200,
	}
}
