// Package params loads and saves the calibration parameter files the
// alignment system depends on (camera intrinsics, stereo extrinsics,
// rectification parameters and remap maps), and converts between their
// YAML-friendly slice representation and gocv.Mat.
package params

// CameraIntrinsics is a single camera's 3x3 matrix and 5 distortion
// coefficients, both 64-bit per the sensor-calibration convention.
type CameraIntrinsics struct {
	CameraMatrix [][]float64 `yaml:"camera_matrix"`
	DistCoeffs   []float64   `yaml:"dist_coeffs"`
}

// StereoExtrinsics is the rotation and translation between the two camera
// frames recovered by stereo calibration.
type StereoExtrinsics struct {
	R [][]float64 `yaml:"r"`
	T []float64   `yaml:"t"`
}

// RectifyParams holds the per-eye rectification transforms and the
// disparity-to-depth mapping matrix produced by stereo rectification.
type RectifyParams struct {
	R1 [][]float64 `yaml:"r1"`
	R2 [][]float64 `yaml:"r2"`
	P1 [][]float64 `yaml:"p1"`
	P2 [][]float64 `yaml:"p2"`
	Q  [][]float64 `yaml:"q"`
}

// RectifyMaps holds the four float32 remap arrays (x/y per eye) applied by
// the rectification glue on every frame.
type RectifyMaps struct {
	LeftMap1  [][]float32 `yaml:"left_map1"`
	LeftMap2  [][]float32 `yaml:"left_map2"`
	RightMap1 [][]float32 `yaml:"right_map1"`
	RightMap2 [][]float32 `yaml:"right_map2"`
}

// Dims returns the rows/cols of the maps, or (0,0) if empty.
func (m RectifyMaps) Dims() (rows, cols int) {
	if len(m.LeftMap1) == 0 {
		return 0, 0
	}
	return len(m.LeftMap1), len(m.LeftMap1[0])
}
