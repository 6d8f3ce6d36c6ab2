package system

import (
	"image"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/params"
)

func writeFixtures(t *testing.T) (leftPath, rightPath, stereoPath, rectifyPath string) {
	t.Helper()
	dir := t.TempDir()

	intrinsics := params.CameraIntrinsics{
		CameraMatrix: [][]float64{{2400, 0, 1224}, {0, 2400, 1024}, {0, 0, 1}},
		DistCoeffs:   []float64{0, 0, 0, 0, 0},
	}
	leftPath = filepath.Join(dir, "left.yaml")
	rightPath = filepath.Join(dir, "right.yaml")
	require.NoError(t, params.Save(leftPath, &intrinsics))
	require.NoError(t, params.Save(rightPath, &intrinsics))

	stereo := params.StereoExtrinsics{
		R: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		T: []float64{-65, 0, 0},
	}
	stereoPath = filepath.Join(dir, "stereo.yaml")
	require.NoError(t, params.Save(stereoPath, &stereo))

	rect := params.RectifyParams{
		R1: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		R2: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}},
		P1: [][]float64{{2400, 0, 1224, 0}, {0, 2400, 1024, 0}, {0, 0, 1, 0}},
		P2: [][]float64{{2400, 0, 1224, 0}, {0, 2400, 1024, 0}, {0, 0, 1, 0}},
		Q:  [][]float64{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 0, 1}, {0, 0, 0, 0}},
	}
	rectifyPath = filepath.Join(dir, "rectify.yaml")
	require.NoError(t, params.Save(rectifyPath, &rect))

	return
}

func TestNewLoadsAllParameterFiles(t *testing.T) {
	leftPath, rightPath, stereoPath, rectifyPath := writeFixtures(t)

	sys, err := New(image.Pt(2448, 2048), leftPath, rightPath, stereoPath, rectifyPath, model.DefaultThresholds())
	require.NoError(t, err)
	defer sys.Close()

	require.Len(t, sys.WorldPoints, model.NumGridPoints)
	require.Equal(t, model.Point3D{}, sys.WorldPoints[0])
}

func TestNewFailsOnMissingFile(t *testing.T) {
	_, _, stereoPath, rectifyPath := writeFixtures(t)
	_, err := New(image.Pt(10, 10), "/nonexistent/left.yaml", "/nonexistent/right.yaml", stereoPath, rectifyPath, model.DefaultThresholds())
	require.Error(t, err)
}
