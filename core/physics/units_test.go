package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestTargetBox(t *testing.T) {
	box, err := TargetBox(0.01, 50)
	require.NoError(t, err)
	assert.InDelta(t, box.X, box.Y, 1e-12)
	assert.InDelta(t, box.X, box.Z, 1e-12)
	// number density is preserved
	assert.InDelta(t, 0.01, 50/Volume(box), 1e-12)

	box, err = TargetBox(1.0, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 10.0, box.X, 1e-9)
}

func TestTargetBox_Invalid(t *testing.T) {
	_, err := TargetBox(0, 10)
	assert.Error(t, err)
	_, err = TargetBox(1.32, 0)
	assert.Error(t, err)
}

func TestTauKT(t *testing.T) {
	assert.InDelta(t, 0.5, TauKT(0.005, 100), 1e-12)
	assert.InDelta(t, 0.01, TauKT(0.001, 10), 1e-12)
}

func TestBoxSliceRoundTrip(t *testing.T) {
	box := r3.Vec{X: 1, Y: 2, Z: 3}
	back, err := BoxFromSlice(BoxSlice(box))
	require.NoError(t, err)
	assert.Equal(t, box, back)

	_, err = BoxFromSlice([]float64{1, 2})
	assert.Error(t, err)
}
