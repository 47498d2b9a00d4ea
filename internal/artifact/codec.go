package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"gorgonia.org/tensor"

	"imgclassd/internal/nn"
)

const (
	metadataKey  = "__metadata__"
	dtypeF32     = "F32"
	maxHeaderLen = 100 << 20
)

// tensorInfo is one header entry. Offsets are relative to the start of the
// data section; data is little-endian, C order.
type tensorInfo struct {
	DType       string    `json:"dtype"`
	Shape       []uint64  `json:"shape"`
	DataOffsets [2]uint64 `json:"data_offsets"`
}

// Encode writes a to w. Tensors are laid out in the mapping's insertion order.
func Encode(w io.Writer, a Artifact) error {
	if a.Params == nil {
		return errors.New("encode artifact: nil params")
	}
	meta, err := a.Meta.encode()
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	header := make(map[string]any, a.Params.Len()+1)
	header[metadataKey] = meta
	names := a.Params.Names()
	datas := make([][]float32, len(names))
	var offset uint64
	for i, name := range names {
		if name == metadataKey {
			return fmt.Errorf("encode artifact: reserved tensor name %q", name)
		}
		t, _ := a.Params.Get(name)
		data, err := nn.Float32s(t)
		if err != nil {
			return fmt.Errorf("encode %s: %w", name, err)
		}
		shape := nn.ShapeOf(t)
		info := tensorInfo{DType: dtypeF32, Shape: make([]uint64, len(shape))}
		for j, d := range shape {
			info.Shape[j] = uint64(d)
		}
		size := uint64(len(data)) * 4
		info.DataOffsets = [2]uint64{offset, offset + size}
		offset += size
		header[name] = info
		datas[i] = data
	}
	hb, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	// Pad the header with spaces so the data section starts 8-byte aligned.
	if rem := len(hb) % 8; rem != 0 {
		hb = append(hb, bytes.Repeat([]byte{' '}, 8-rem)...)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hb)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	buf := make([]byte, 0, 4096)
	for _, data := range datas {
		for _, v := range data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
			if len(buf) >= 4092 {
				if _, err := w.Write(buf); err != nil {
					return err
				}
				buf = buf[:0]
			}
		}
	}
	if len(buf) > 0 {
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

type namedInfo struct {
	name string
	info tensorInfo
}

// Decode reads a complete artifact from r.
func Decode(r io.Reader) (Artifact, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Artifact{}, fmt.Errorf("read header length: %w", err)
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	if n == 0 || n > maxHeaderLen {
		return Artifact{}, fmt.Errorf("invalid header length %d", n)
	}
	hb := make([]byte, n)
	if _, err := io.ReadFull(r, hb); err != nil {
		return Artifact{}, fmt.Errorf("read header: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(hb, &raw); err != nil {
		return Artifact{}, fmt.Errorf("parse header: %w", err)
	}
	var metaRaw map[string]string
	if m, ok := raw[metadataKey]; ok {
		if err := json.Unmarshal(m, &metaRaw); err != nil {
			return Artifact{}, fmt.Errorf("parse metadata: %w", err)
		}
		delete(raw, metadataKey)
	}
	meta, err := decodeMetadata(metaRaw)
	if err != nil {
		return Artifact{}, err
	}

	entries := make([]namedInfo, 0, len(raw))
	for name, msg := range raw {
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return Artifact{}, fmt.Errorf("parse tensor %s: %w", name, err)
		}
		entries = append(entries, namedInfo{name: name, info: info})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].info.DataOffsets[0] < entries[j].info.DataOffsets[0]
	})

	data, err := io.ReadAll(r)
	if err != nil {
		return Artifact{}, fmt.Errorf("read data: %w", err)
	}
	params := nn.NewParams()
	var next uint64
	for _, e := range entries {
		t, err := decodeTensor(e, data, next)
		if err != nil {
			return Artifact{}, err
		}
		params.Set(e.name, t)
		next = e.info.DataOffsets[1]
	}
	if next != uint64(len(data)) {
		return Artifact{}, fmt.Errorf("data section has %d bytes, header describes %d", len(data), next)
	}
	return Artifact{Params: params, Meta: meta}, nil
}

func decodeTensor(e namedInfo, data []byte, expectBegin uint64) (*tensor.Dense, error) {
	info := e.info
	if info.DType != dtypeF32 {
		return nil, fmt.Errorf("tensor %s: unsupported dtype %q", e.name, info.DType)
	}
	begin, end := info.DataOffsets[0], info.DataOffsets[1]
	if begin != expectBegin {
		return nil, fmt.Errorf("tensor %s: data offsets [%d,%d) leave a gap or overlap", e.name, begin, end)
	}
	if end < begin || end > uint64(len(data)) {
		return nil, fmt.Errorf("tensor %s: data offsets [%d,%d) out of range (%d bytes)", e.name, begin, end, len(data))
	}
	span := (end - begin) / 4
	shape := make([]int, len(info.Shape))
	elems := uint64(1)
	for i, d := range info.Shape {
		if d > math.MaxInt32 {
			return nil, fmt.Errorf("tensor %s: dimension %d too large", e.name, d)
		}
		shape[i] = int(d)
		if d != 0 && elems > span/d {
			return nil, fmt.Errorf("tensor %s: shape %v exceeds offsets span of %d bytes", e.name, info.Shape, end-begin)
		}
		elems *= d
	}
	if len(shape) == 0 {
		return nil, fmt.Errorf("tensor %s: scalar tensors are not supported", e.name)
	}
	if elems*4 != end-begin {
		return nil, fmt.Errorf("tensor %s: shape %v needs %d bytes, offsets span %d", e.name, shape, elems*4, end-begin)
	}
	vals := make([]float32, elems)
	raw := data[begin:end]
	for i := range vals {
		vals[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return nn.NewTensor(shape, vals), nil
}
