package nn

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyArch() Arch {
	return Arch{InputSize: 8, InChannels: 3, Widths: []int{2, 3}, NumClasses: 4}
}

func randomInput(rng *rand.Rand, a Arch) []float32 {
	x := make([]float32, a.InputLen())
	for i := range x {
		x[i] = rng.Float32()
	}
	return x
}

func TestNewNetwork_ParamNamesAndShapes(t *testing.T) {
	n, err := NewNetwork(tinyArch(), 1)
	require.NoError(t, err)
	var names []string
	for _, p := range n.Params() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{
		"backbone.conv1.weight", "backbone.conv1.bias",
		"backbone.conv2.weight", "backbone.conv2.bias",
		"fc.weight", "fc.bias",
	}, names)
	ps := n.Params()
	assert.Equal(t, []int{2, 3, 3, 3}, ps[0].Shape)
	assert.Equal(t, []int{3, 2, 3, 3}, ps[2].Shape)
	assert.Equal(t, []int{4, 3}, ps[4].Shape)
	assert.Equal(t, 2*27+2+3*18+3+12+4, n.NumParams())
}

func TestNewNetwork_RejectsBadArch(t *testing.T) {
	_, err := NewNetwork(Arch{InputSize: 8, InChannels: 3, NumClasses: 2}, 1)
	assert.Error(t, err)
	_, err = NewNetwork(Arch{InputSize: 8, InChannels: 3, Widths: []int{4}, NumClasses: 0}, 1)
	assert.Error(t, err)
}

func TestNewNetwork_DeterministicForSeed(t *testing.T) {
	a, err := NewNetwork(tinyArch(), 7)
	require.NoError(t, err)
	b, err := NewNetwork(tinyArch(), 7)
	require.NoError(t, err)
	c, err := NewNetwork(tinyArch(), 8)
	require.NoError(t, err)
	assert.Equal(t, a.Params()[0].Data, b.Params()[0].Data)
	assert.NotEqual(t, a.Params()[0].Data, c.Params()[0].Data)
}

func TestForwardBatch_OutputShape(t *testing.T) {
	arch := tinyArch()
	n, err := NewNetwork(arch, 1)
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(3))
	for _, batch := range []int{1, 3, 7} {
		xs := make([][]float32, batch)
		for i := range xs {
			xs[i] = randomInput(rng, arch)
		}
		out, err := n.ForwardBatch(context.Background(), xs, 2)
		require.NoError(t, err)
		require.Len(t, out, batch)
		for _, row := range out {
			assert.Len(t, row, arch.NumClasses)
		}
	}
}

func TestForward_RejectsWrongInputSize(t *testing.T) {
	n, err := NewNetwork(tinyArch(), 1)
	require.NoError(t, err)
	_, err = n.Forward(make([]float32, 10))
	require.Error(t, err)
	assert.True(t, IsShapeMismatch(err))
}

func TestForward_Deterministic(t *testing.T) {
	arch := tinyArch()
	n, err := NewNetwork(arch, 1)
	require.NoError(t, err)
	n.Eval()
	x := randomInput(rand.New(rand.NewSource(5)), arch)
	a, err := n.Forward(x)
	require.NoError(t, err)
	b, err := n.Forward(x)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResetHead_ChangesClassCount(t *testing.T) {
	n, err := NewNetwork(tinyArch(), 1)
	require.NoError(t, err)
	require.NoError(t, n.ResetHead(6, 2))
	assert.Equal(t, 6, n.Arch().NumClasses)
	y, err := n.Forward(make([]float32, n.Arch().InputLen()))
	require.NoError(t, err)
	assert.Len(t, y, 6)
	assert.Error(t, n.ResetHead(0, 2))
}

func TestFreeze(t *testing.T) {
	n, err := NewNetwork(tinyArch(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"fc.weight", "fc.bias"}, n.Freeze([]string{"fc"}))
	assert.Equal(t, []string{"backbone.conv2.weight", "backbone.conv2.bias", "fc.weight", "fc.bias"},
		n.Freeze([]string{"fc", "backbone.conv2"}))
	assert.Len(t, n.Freeze([]string{"*"}), 6)
	// "backbone.conv" is not a full path segment and matches nothing.
	assert.Empty(t, n.Freeze([]string{"backbone.conv"}))
	n.Freeze([]string{"*"})
	n.Eval()
	for _, p := range n.Params() {
		assert.False(t, p.Trainable, p.Name)
	}
}
