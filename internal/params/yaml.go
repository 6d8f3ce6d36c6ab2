package params

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/itohio/opticalign/internal/model"
)

// Load reads a YAML file into v, wrapping I/O and decode errors with the
// file path and model.ErrInitialization so session startup can surface a
// single, unambiguous failure.
func Load(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: reading %s: %v", model.ErrInitialization, path, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: parsing %s: %v", model.ErrInitialization, path, err)
	}
	return nil
}

// Save writes v to path as YAML with a 2-space indent, matching the
// teacher's x/marshaller/yaml encoder configuration.
func Save(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	defer enc.Close()

	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return nil
}

// LoadCameraIntrinsics loads one camera's parameter file.
func LoadCameraIntrinsics(path string) (CameraIntrinsics, error) {
	var c CameraIntrinsics
	if err := Load(path, &c); err != nil {
		return CameraIntrinsics{}, err
	}
	if len(c.CameraMatrix) != 3 || len(c.DistCoeffs) != 5 {
		return CameraIntrinsics{}, fmt.Errorf("%w: %s: expected 3x3 camera matrix and 5 dist coeffs, got %dx? and %d",
			model.ErrInitialization, path, len(c.CameraMatrix), len(c.DistCoeffs))
	}
	return c, nil
}

// LoadStereoExtrinsics loads the stereo R/T parameter file.
func LoadStereoExtrinsics(path string) (StereoExtrinsics, error) {
	var s StereoExtrinsics
	if err := Load(path, &s); err != nil {
		return StereoExtrinsics{}, err
	}
	if len(s.R) != 3 || len(s.T) != 3 {
		return StereoExtrinsics{}, fmt.Errorf("%w: %s: malformed stereo extrinsics", model.ErrInitialization, path)
	}
	return s, nil
}

// LoadRectifyParams loads the rectification transform parameter file.
func LoadRectifyParams(path string) (RectifyParams, error) {
	var r RectifyParams
	if err := Load(path, &r); err != nil {
		return RectifyParams{}, err
	}
	return r, nil
}

// LoadRectifyMaps loads the four remap arrays and validates they all share
// the same dimensions and match the expected image size.
func LoadRectifyMaps(path string, wantRows, wantCols int) (RectifyMaps, error) {
	var m RectifyMaps
	if err := Load(path, &m); err != nil {
		return RectifyMaps{}, err
	}
	rows, cols := m.Dims()
	if rows != wantRows || cols != wantCols {
		return RectifyMaps{}, fmt.Errorf("%w: %s: maps are %dx%d, expected %dx%d",
			model.ErrInitialization, path, rows, cols, wantRows, wantCols)
	}
	for name, arr := range map[string][][]float32{
		"left_map1": m.LeftMap1, "left_map2": m.LeftMap2,
		"right_map1": m.RightMap1, "right_map2": m.RightMap2,
	} {
		if len(arr) != wantRows || (wantRows > 0 && len(arr[0]) != wantCols) {
			return RectifyMaps{}, fmt.Errorf("%w: %s: %s has mismatched dimensions", model.ErrInitialization, path, name)
		}
	}
	return m, nil
}
