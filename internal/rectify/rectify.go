// Package rectify loads precomputed undistort/rectify maps and applies them
// to raw stereo frames (C7), mirroring the teacher's
// StereoCalibration.InitRectifyMaps/Rectify pair but loading its maps lazily
// from a parameter file instead of building them during an interactive
// calibration session.
package rectify

import (
	"fmt"
	"image/color"
	"sync"

	"gocv.io/x/gocv"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/params"
)

// Maps holds the four remap arrays (two per eye) as gocv Mats ready for
// cv.Remap. It owns the underlying Mats and must be Closed once.
type Maps struct {
	mu sync.Mutex

	LeftMap1, LeftMap2   gocv.Mat
	RightMap1, RightMap2 gocv.Mat
	loaded               bool
}

// NewMaps returns an unloaded Maps; call EnsureLoaded before use.
func NewMaps() *Maps {
	return &Maps{}
}

// EnsureLoaded loads the remap arrays from path exactly once; repeated calls
// are no-ops, matching the Rust original's ensure_maps_loaded idempotency
// check so a per-frame call site never pays the I/O cost twice.
func (m *Maps) EnsureLoaded(path string, rows, cols int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loaded {
		return nil
	}

	loaded, err := params.LoadRectifyMaps(path, rows, cols)
	if err != nil {
		return fmt.Errorf("loading rectify maps: %w", err)
	}

	m.LeftMap1 = params.Slice32ToMat(loaded.LeftMap1)
	m.LeftMap2 = params.Slice32ToMat(loaded.LeftMap2)
	m.RightMap1 = params.Slice32ToMat(loaded.RightMap1)
	m.RightMap2 = params.Slice32ToMat(loaded.RightMap2)
	m.loaded = true
	return nil
}

// Loaded reports whether EnsureLoaded has successfully populated the maps.
func (m *Maps) Loaded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loaded
}

// Close releases the underlying Mats. Safe to call on an unloaded Maps.
func (m *Maps) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.loaded {
		return
	}
	m.LeftMap1.Close()
	m.LeftMap2.Close()
	m.RightMap1.Close()
	m.RightMap2.Close()
	m.loaded = false
}

// RemapLeft applies the left-eye undistort/rectify map to src.
func (m *Maps) RemapLeft(src gocv.Mat) (gocv.Mat, error) {
	m.mu.Lock()
	map1, map2, loaded := m.LeftMap1, m.LeftMap2, m.loaded
	m.mu.Unlock()
	return remap(src, map1, map2, loaded)
}

// RemapRight applies the right-eye undistort/rectify map to src.
func (m *Maps) RemapRight(src gocv.Mat) (gocv.Mat, error) {
	m.mu.Lock()
	map1, map2, loaded := m.RightMap1, m.RightMap2, m.loaded
	m.mu.Unlock()
	return remap(src, map1, map2, loaded)
}

func remap(src, map1, map2 gocv.Mat, loaded bool) (gocv.Mat, error) {
	if !loaded {
		return gocv.Mat{}, fmt.Errorf("%w: rectify maps not loaded", model.ErrInitialization)
	}
	if src.Empty() {
		return gocv.Mat{}, fmt.Errorf("%w: empty source image", model.ErrInvalidImage)
	}

	dst := gocv.NewMat()
	gocv.Remap(src, &dst, &map1, &map2, gocv.InterpolationLinear, gocv.BorderConstant, color.RGBA{})
	return dst, nil
}
