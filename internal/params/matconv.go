package params

import "gocv.io/x/gocv"

// MatToSlice64 converts a CV_64F Mat to a [][]float64, generalizing the
// teacher's matToSlice2D helper (cmd/calib_stereo/calibrate.go) so it can
// back any of this package's YAML structs, not just calibration JSON.
func MatToSlice64(m gocv.Mat) [][]float64 {
	rows, cols := m.Rows(), m.Cols()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float64, cols)
		for j := 0; j < cols; j++ {
			out[i][j] = m.GetDoubleAt(i, j)
		}
	}
	return out
}

// Slice64ToMat converts a [][]float64 to a new CV_64F Mat. The caller owns
// the returned Mat and must Close it.
func Slice64ToMat(data [][]float64) gocv.Mat {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.SetDoubleAt(i, j, data[i][j])
		}
	}
	return m
}

// Vec64ToMat converts a flat []float64 to an Nx1 CV_64F column Mat.
func Vec64ToMat(data []float64) gocv.Mat {
	m := gocv.NewMatWithSize(len(data), 1, gocv.MatTypeCV64F)
	for i, v := range data {
		m.SetDoubleAt(i, 0, v)
	}
	return m
}

// MatToVec64 converts an Nx1 (or 1xN) CV_64F Mat to a flat []float64.
func MatToVec64(m gocv.Mat) []float64 {
	n := m.Rows() * m.Cols()
	out := make([]float64, n)
	if m.Cols() == 1 {
		for i := 0; i < n; i++ {
			out[i] = m.GetDoubleAt(i, 0)
		}
		return out
	}
	for i := 0; i < n; i++ {
		out[i] = m.GetDoubleAt(0, i)
	}
	return out
}

// MatToSlice32 converts a CV_32F Mat to a [][]float32, the 32-bit sibling of
// MatToSlice64 used for the rectification remap arrays.
func MatToSlice32(m gocv.Mat) [][]float32 {
	rows, cols := m.Rows(), m.Cols()
	out := make([][]float32, rows)
	for i := 0; i < rows; i++ {
		out[i] = make([]float32, cols)
		for j := 0; j < cols; j++ {
			out[i][j] = m.GetFloatAt(i, j)
		}
	}
	return out
}

// Slice32ToMat converts a [][]float32 to a new CV_32F Mat. The caller owns
// the returned Mat and must Close it.
func Slice32ToMat(data [][]float32) gocv.Mat {
	rows := len(data)
	cols := 0
	if rows > 0 {
		cols = len(data[0])
	}
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV32F)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			m.SetFloatAt(i, j, data[i][j])
		}
	}
	return m
}

// ToMats returns the camera matrix and distortion coefficients as
// owned Mats, ready for gocv calib3d calls. Caller must Close both.
func (c CameraIntrinsics) ToMats() (cameraMatrix, distCoeffs gocv.Mat) {
	return Slice64ToMat(c.CameraMatrix), Vec64ToMat(c.DistCoeffs)
}
