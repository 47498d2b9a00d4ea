package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imgclassd/internal/nn"
)

func sampleNetwork(t *testing.T) *nn.Network {
	t.Helper()
	n, err := nn.NewNetwork(nn.Arch{InputSize: 8, InChannels: 3, Widths: []int{2, 3}, NumClasses: 4}, 1)
	require.NoError(t, err)
	return n
}

func TestEncodeDecode_PreservesParamsAndMetadata(t *testing.T) {
	n := sampleNetwork(t)
	arch := n.Arch()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := Artifact{
		Params: n.StateDict(),
		Meta: Metadata{
			Labels:    []string{"a", "b", "c", "d"},
			Arch:      &arch,
			RunID:     "run-1",
			CreatedAt: created,
			Epochs:    2,
			FinalLoss: 1.25,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, in))

	out, err := Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, in.Params.Names(), out.Params.Names())
	for _, name := range in.Params.Names() {
		want, _ := in.Params.Get(name)
		got, ok := out.Params.Get(name)
		require.True(t, ok, name)
		wd, _ := nn.Float32s(want)
		gd, _ := nn.Float32s(got)
		assert.Equal(t, wd, gd, name)
		assert.Equal(t, nn.ShapeOf(want), nn.ShapeOf(got), name)
	}
	assert.Equal(t, FormatV1, out.Meta.Format)
	assert.Equal(t, in.Meta.Labels, out.Meta.Labels)
	require.NotNil(t, out.Meta.Arch)
	assert.True(t, arch.Equal(*out.Meta.Arch))
	assert.Equal(t, "run-1", out.Meta.RunID)
	assert.True(t, created.Equal(out.Meta.CreatedAt))
	assert.Equal(t, 2, out.Meta.Epochs)
	assert.Equal(t, 1.25, out.Meta.FinalLoss)
}

func TestEncode_HeaderIsAligned(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Artifact{Params: sampleNetwork(t).StateDict()}))
	n := binary.LittleEndian.Uint64(buf.Bytes()[:8])
	assert.Zero(t, n%8)
	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(buf.Bytes()[8:8+n], &header))
	assert.Contains(t, header, "fc.weight")
	assert.Contains(t, header, "__metadata__")
}

func TestDecode_WithoutLabelsLeavesThemNil(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, Artifact{Params: sampleNetwork(t).StateDict()}))
	out, err := Decode(&buf)
	require.NoError(t, err)
	assert.Nil(t, out.Meta.Labels)
	assert.Nil(t, out.Meta.Arch)
}

func TestDecode_RejectsCorruptInput(t *testing.T) {
	var good bytes.Buffer
	require.NoError(t, Encode(&good, Artifact{Params: sampleNetwork(t).StateDict()}))
	full := good.Bytes()

	cases := map[string][]byte{
		"empty":          {},
		"short length":   full[:4],
		"truncated data": full[:len(full)-4],
		"extra data":     append(append([]byte(nil), full...), 0, 0, 0, 0),
		"huge header":    binary.LittleEndian.AppendUint64(nil, 1<<40),
	}
	for name, b := range cases {
		_, err := Decode(bytes.NewReader(b))
		assert.Error(t, err, name)
	}
}

func TestDecode_RejectsUnknownDtypeAndFormat(t *testing.T) {
	build := func(header string, data []byte) []byte {
		out := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
		out = append(out, header...)
		return append(out, data...)
	}
	_, err := Decode(bytes.NewReader(build(`{"w":{"dtype":"F16","shape":[2],"data_offsets":[0,4]}}`, make([]byte, 4))))
	assert.ErrorContains(t, err, "dtype")
	_, err = Decode(bytes.NewReader(build(`{"__metadata__":{"format":"other.v9"},"w":{"dtype":"F32","shape":[1],"data_offsets":[0,4]}}`, make([]byte, 4))))
	assert.ErrorContains(t, err, "format")
	_, err = Decode(bytes.NewReader(build(`{"w":{"dtype":"F32","shape":[3],"data_offsets":[0,4]}}`, make([]byte, 4))))
	assert.ErrorContains(t, err, "exceeds offsets span")
	_, err = Decode(bytes.NewReader(build(`{"w":{"dtype":"F32","shape":[1],"data_offsets":[0,8]}}`, make([]byte, 8))))
	assert.ErrorContains(t, err, "needs 4 bytes")
}

func TestDecode_RejectsOverflowingShape(t *testing.T) {
	header := `{"fc.weight":{"dtype":"F32","shape":[1073741824,1073741824,4],"data_offsets":[0,0]}}`
	b := binary.LittleEndian.AppendUint64(nil, uint64(len(header)))
	b = append(b, header...)
	var err error
	require.NotPanics(t, func() { _, err = Decode(bytes.NewReader(b)) })
	assert.ErrorContains(t, err, "fc.weight")
}

func TestWriteReadFile_OverwritesExisting(t *testing.T) {
	p := filepath.Join(t.TempDir(), "model_weights.safetensors")
	require.NoError(t, os.WriteFile(p, []byte("stale"), 0o644))
	n := sampleNetwork(t)
	require.NoError(t, WriteFile(p, Artifact{Params: n.StateDict(), Meta: Metadata{Labels: []string{"w", "x", "y", "z"}}}))
	a, err := ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, 6, a.Params.Len())
	assert.Equal(t, []string{"w", "x", "y", "z"}, a.Meta.Labels)

	fresh := sampleNetwork(t)
	require.NoError(t, fresh.Load(a.Params))
}

func TestReadFile_Missing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.safetensors"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
