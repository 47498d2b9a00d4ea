package dataset

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CIFAR-10 binary layout: one label byte then 32x32 red, green and blue planes.
const (
	cifarSide      = 32
	cifarPlane     = cifarSide * cifarSide
	cifarRecordLen = 1 + 3*cifarPlane
	cifarBatchDir  = "cifar-10-batches-bin"
)

var (
	cifarTrainFiles = []string{"data_batch_1.bin", "data_batch_2.bin", "data_batch_3.bin", "data_batch_4.bin", "data_batch_5.bin"}
	cifarTestFiles  = []string{"test_batch.bin"}
)

// CIFAR10 is the CIFAR-10 dataset loaded from its binary distribution.
type CIFAR10 struct {
	classes []string
	labels  []uint8
	pixels  []byte
}

// OpenCIFAR10 loads the training (or test) split from root, which holds the
// extracted cifar-10-batches-bin directory.
func OpenCIFAR10(root string, train bool) (*CIFAR10, error) {
	dir := filepath.Join(root, cifarBatchDir)
	classes, err := readClassNames(filepath.Join(dir, "batches.meta.txt"))
	if err != nil {
		return nil, err
	}
	files := cifarTrainFiles
	if !train {
		files = cifarTestFiles
	}
	ds := &CIFAR10{classes: classes}
	for _, name := range files {
		f, err := os.Open(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("open cifar batch: %w", err)
		}
		err = ds.readRecords(f, name)
		f.Close()
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}

// ReadCIFAR10 parses records from r using classes as the label table.
func ReadCIFAR10(r io.Reader, classes []string) (*CIFAR10, error) {
	ds := &CIFAR10{classes: append([]string(nil), classes...)}
	if err := ds.readRecords(r, "stream"); err != nil {
		return nil, err
	}
	return ds, nil
}

func (c *CIFAR10) readRecords(r io.Reader, name string) error {
	rec := make([]byte, cifarRecordLen)
	for n := 0; ; n++ {
		_, err := io.ReadFull(r, rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s: record %d: %w", name, n, err)
		}
		if int(rec[0]) >= len(c.classes) {
			return fmt.Errorf("%s: record %d: label %d outside %d classes", name, n, rec[0], len(c.classes))
		}
		c.labels = append(c.labels, rec[0])
		c.pixels = append(c.pixels, rec[1:]...)
	}
}

func readClassNames(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open class names: %w", err)
	}
	defer f.Close()
	var names []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			names = append(names, s)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read class names: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no class names in %s", path)
	}
	return names, nil
}

func (c *CIFAR10) Len() int          { return len(c.labels) }
func (c *CIFAR10) Classes() []string { return append([]string(nil), c.classes...) }
func (c *CIFAR10) Label(i int) int   { return int(c.labels[i]) }

// Image returns sample i as a 32x32 RGBA image.
func (c *CIFAR10) Image(i int) (image.Image, error) {
	if i < 0 || i >= c.Len() {
		return nil, fmt.Errorf("index %d out of range [0,%d)", i, c.Len())
	}
	px := c.pixels[i*3*cifarPlane : (i+1)*3*cifarPlane]
	img := image.NewRGBA(image.Rect(0, 0, cifarSide, cifarSide))
	for j := 0; j < cifarPlane; j++ {
		o := j * 4
		img.Pix[o] = px[j]
		img.Pix[o+1] = px[cifarPlane+j]
		img.Pix[o+2] = px[2*cifarPlane+j]
		img.Pix[o+3] = 0xff
	}
	return img, nil
}
