package rectify

import (
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"
	"github.com/stretchr/testify/require"

	"github.com/itohio/opticalign/internal/model"
	"github.com/itohio/opticalign/internal/params"
)

func writeIdentityMaps(t *testing.T, rows, cols int) string {
	t.Helper()
	mk := func() [][]float32 {
		out := make([][]float32, rows)
		for r := 0; r < rows; r++ {
			out[r] = make([]float32, cols)
			for c := 0; c < cols; c++ {
				out[r][c] = float32(c)
			}
		}
		return out
	}
	mkY := func() [][]float32 {
		out := make([][]float32, rows)
		for r := 0; r < rows; r++ {
			out[r] = make([]float32, cols)
			for c := 0; c < cols; c++ {
				out[r][c] = float32(r)
			}
		}
		return out
	}
	maps := params.RectifyMaps{LeftMap1: mk(), LeftMap2: mkY(), RightMap1: mk(), RightMap2: mkY()}
	path := filepath.Join(t.TempDir(), "maps.yaml")
	require.NoError(t, params.Save(path, &maps))
	return path
}

func TestEnsureLoadedIsIdempotent(t *testing.T) {
	path := writeIdentityMaps(t, 4, 4)
	m := NewMaps()
	defer m.Close()

	require.NoError(t, m.EnsureLoaded(path, 4, 4))
	require.True(t, m.Loaded())
	require.NoError(t, m.EnsureLoaded(path, 4, 4))
}

func TestRemapBeforeLoadFails(t *testing.T) {
	m := NewMaps()
	img := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8U)
	defer img.Close()

	_, err := m.RemapLeft(img)
	require.ErrorIs(t, err, model.ErrInitialization)
}

func TestRemapEmptyImageFails(t *testing.T) {
	path := writeIdentityMaps(t, 4, 4)
	m := NewMaps()
	defer m.Close()
	require.NoError(t, m.EnsureLoaded(path, 4, 4))

	_, err := m.RemapLeft(gocv.NewMat())
	require.ErrorIs(t, err, model.ErrInvalidImage)
}
