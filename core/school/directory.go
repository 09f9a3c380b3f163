package school

import (
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/pkg/errors"

	appfs "github.com/trezcool/examreg/fs"
)

// Directory is the read-only school reference dataset, indexed by (schCode, lgaCode).
type Directory struct {
	entries []Data
	names   map[string]string
}

func NewDirectory(entries []Data) *Directory {
	dir := &Directory{entries: entries, names: make(map[string]string, len(entries))}
	for _, e := range entries {
		key := e.SchCode + "|" + e.LGACode
		if _, ok := dir.names[key]; !ok {
			dir.names[key] = e.SchName
		}
	}
	return dir
}

// LoadDirectory reads the dataset bundled with the binary.
func LoadDirectory() (*Directory, error) {
	return LoadDirectoryFS(appfs.FS, appfs.SchoolsDataPath)
}

func LoadDirectoryFS(fsys fs.FS, path string) (*Directory, error) {
	raw, err := fs.ReadFile(fsys, path)
	if err != nil {
		return nil, errors.Wrap(err, "reading school dataset")
	}
	var entries []Data
	if err = json.Unmarshal(raw, &entries); err != nil {
		return nil, errors.Wrap(err, "decoding school dataset")
	}
	return NewDirectory(entries), nil
}

// Entries returns a copy of the dataset.
func (dir *Directory) Entries() []Data {
	out := make([]Data, len(dir.entries))
	copy(out, dir.entries)
	return out
}

func (dir *Directory) Len() int {
	return len(dir.entries)
}

// Lookup returns the school name for an exact (schCode, lgaCode) match.
func (dir *Directory) Lookup(schCode, lgaCode string) (string, bool) {
	name, ok := dir.names[schCode+"|"+lgaCode]
	return name, ok
}

// Name is Lookup with the "UNKNOWN (Code: X)" fallback.
func (dir *Directory) Name(schCode, lgaCode string) string {
	if name, ok := dir.Lookup(schCode, lgaCode); ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN (Code: %s)", schCode)
}
