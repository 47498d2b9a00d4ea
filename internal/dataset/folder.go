package dataset

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"imgclassd/internal/imageproc"
)

var folderExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}

// Folder is an image-per-file dataset laid out as root/<class>/<file>.
// Classes are the sorted subdirectory names.
type Folder struct {
	classes []string
	paths   []string
	labels  []int
}

// OpenFolder indexes root. Files are decoded lazily by Image.
func OpenFolder(root string) (*Folder, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read dataset dir: %w", err)
	}
	f := &Folder{}
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			f.classes = append(f.classes, e.Name())
		}
	}
	sort.Strings(f.classes)
	if len(f.classes) < 2 {
		return nil, fmt.Errorf("dataset dir %s: need at least 2 class directories, found %d", root, len(f.classes))
	}
	for label, class := range f.classes {
		files, err := os.ReadDir(filepath.Join(root, class))
		if err != nil {
			return nil, fmt.Errorf("read class dir: %w", err)
		}
		for _, file := range files {
			if file.IsDir() || !folderExts[strings.ToLower(filepath.Ext(file.Name()))] {
				continue
			}
			f.paths = append(f.paths, filepath.Join(root, class, file.Name()))
			f.labels = append(f.labels, label)
		}
	}
	if len(f.paths) == 0 {
		return nil, fmt.Errorf("dataset dir %s: no images", root)
	}
	return f, nil
}

func (f *Folder) Len() int          { return len(f.paths) }
func (f *Folder) Classes() []string { return append([]string(nil), f.classes...) }
func (f *Folder) Label(i int) int   { return f.labels[i] }

// Image reads and decodes sample i.
func (f *Folder) Image(i int) (image.Image, error) {
	b, err := os.ReadFile(f.paths[i])
	if err != nil {
		return nil, err
	}
	d := imageproc.Decode(b)
	if !d.OK() {
		return nil, fmt.Errorf("%s: %w", f.paths[i], d.Err)
	}
	return d.Image, nil
}
