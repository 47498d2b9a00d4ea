// Package artifact reads and writes the weight file handed from training to
// serving. The container follows the safetensors layout: an 8-byte
// little-endian header length, a JSON header describing every tensor plus a
// string-to-string __metadata__ section, then the packed tensor data.
package artifact

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"imgclassd/internal/common/fsutil"
	"imgclassd/internal/nn"
)

// FormatV1 identifies artifacts written by this package.
const FormatV1 = "imgclass.v1"

// Metadata keys stored in the header's __metadata__ section.
const (
	keyFormat    = "format"
	keyLabels    = "labels"
	keyArch      = "arch"
	keyRunID     = "run_id"
	keyCreatedAt = "created_at"
	keyEpochs    = "epochs"
	keyFinalLoss = "final_loss"
)

// Metadata describes how an artifact was produced. Labels is the class
// table in class-index order; it is nil for artifacts that did not record one.
type Metadata struct {
	Format    string
	Labels    []string
	Arch      *nn.Arch
	RunID     string
	CreatedAt time.Time
	Epochs    int
	FinalLoss float64
}

// Artifact is a parameter mapping plus its metadata.
type Artifact struct {
	Params *nn.Params
	Meta   Metadata
}

// WriteFile encodes a to path atomically, replacing any existing file.
func WriteFile(path string, a Artifact) error {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return err
	}
	if err := fsutil.WriteFileAtomic(p, 0o644, func(w io.Writer) error { return Encode(w, a) }); err != nil {
		return fmt.Errorf("write artifact %s: %w", p, err)
	}
	return nil
}

// ReadFile decodes the artifact at path.
func ReadFile(path string) (Artifact, error) {
	p, err := fsutil.ExpandHome(path)
	if err != nil {
		return Artifact{}, err
	}
	f, err := os.Open(p)
	if err != nil {
		return Artifact{}, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()
	a, err := Decode(f)
	if err != nil {
		return Artifact{}, fmt.Errorf("read artifact %s: %w", p, err)
	}
	return a, nil
}

func (m Metadata) encode() (map[string]string, error) {
	out := map[string]string{keyFormat: FormatV1}
	if m.Labels != nil {
		b, err := json.Marshal(m.Labels)
		if err != nil {
			return nil, err
		}
		out[keyLabels] = string(b)
	}
	if m.Arch != nil {
		b, err := json.Marshal(m.Arch)
		if err != nil {
			return nil, err
		}
		out[keyArch] = string(b)
	}
	if m.RunID != "" {
		out[keyRunID] = m.RunID
	}
	if !m.CreatedAt.IsZero() {
		out[keyCreatedAt] = m.CreatedAt.UTC().Format(time.RFC3339)
	}
	if m.Epochs > 0 {
		out[keyEpochs] = strconv.Itoa(m.Epochs)
	}
	if m.Epochs > 0 || m.FinalLoss != 0 {
		out[keyFinalLoss] = strconv.FormatFloat(m.FinalLoss, 'g', -1, 64)
	}
	return out, nil
}

func decodeMetadata(raw map[string]string) (Metadata, error) {
	var m Metadata
	m.Format = raw[keyFormat]
	if m.Format != "" && m.Format != FormatV1 {
		return m, fmt.Errorf("unsupported artifact format %q", m.Format)
	}
	if v, ok := raw[keyLabels]; ok {
		if err := json.Unmarshal([]byte(v), &m.Labels); err != nil {
			return m, fmt.Errorf("metadata labels: %w", err)
		}
		if m.Labels == nil {
			m.Labels = []string{}
		}
	}
	if v, ok := raw[keyArch]; ok {
		var a nn.Arch
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return m, fmt.Errorf("metadata arch: %w", err)
		}
		m.Arch = &a
	}
	m.RunID = raw[keyRunID]
	if v, ok := raw[keyCreatedAt]; ok {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return m, fmt.Errorf("metadata created_at: %w", err)
		}
		m.CreatedAt = t
	}
	if v, ok := raw[keyEpochs]; ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return m, fmt.Errorf("metadata epochs: %w", err)
		}
		m.Epochs = n
	}
	if v, ok := raw[keyFinalLoss]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return m, fmt.Errorf("metadata final_loss: %w", err)
		}
		m.FinalLoss = f
	}
	return m, nil
}
