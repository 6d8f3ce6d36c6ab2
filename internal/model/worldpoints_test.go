package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateWorldPointsDeterministic(t *testing.T) {
	a := GenerateWorldPoints(DiagonalSpacingMM)
	b := GenerateWorldPoints(DiagonalSpacingMM)
	require.Equal(t, a, b)
}

func TestWorldPointsCanonicalEndpoints(t *testing.T) {
	pts := DefaultWorldPoints()
	x := DiagonalSpacingMM / 1.4142135
	assert.InDelta(t, 9*x, pts[0].X, 1e-3)
	assert.InDelta(t, 0, pts[0].Y, 1e-3)
	assert.InDelta(t, 0, pts[39].X, 1e-3)
	assert.InDelta(t, 7*x, pts[39].Y, 1e-3)
}

func TestSimplifiedReOrigins(t *testing.T) {
	pts := DefaultWorldPoints().Simplified()
	assert.Equal(t, Point3D{}, pts[0])
}
