package params

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCameraIntrinsicsSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "left_camera_params.yaml")

	want := CameraIntrinsics{
		CameraMatrix: [][]float64{
			{2400, 0, 1224},
			{0, 2400, 1024},
			{0, 0, 1},
		},
		DistCoeffs: []float64{-0.1, 0.05, 0, 0, 0},
	}

	require.NoError(t, Save(path, &want))
	got, err := LoadCameraIntrinsics(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestLoadCameraIntrinsicsRejectsMalformed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, Save(path, &CameraIntrinsics{
		CameraMatrix: [][]float64{{1, 0}, {0, 1}},
		DistCoeffs:   []float64{0, 0, 0, 0, 0},
	}))

	_, err := LoadCameraIntrinsics(path)
	require.Error(t, err)
}

func TestLoadRectifyMapsValidatesDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rectify_maps.yaml")

	maps := RectifyMaps{
		LeftMap1:  [][]float32{{0, 1}, {2, 3}},
		LeftMap2:  [][]float32{{0, 1}, {2, 3}},
		RightMap1: [][]float32{{0, 1}, {2, 3}},
		RightMap2: [][]float32{{0, 1}, {2, 3}},
	}
	require.NoError(t, Save(path, &maps))

	_, err := LoadRectifyMaps(path, 2, 2)
	require.NoError(t, err)

	_, err = LoadRectifyMaps(path, 10, 10)
	require.Error(t, err)
}
