/*
Package extract locates and reads the spreadsheet extracts.

PURPOSE:
  Latest picks, in a directory, the most recently modified file whose name
  contains a format tag. Reader turns the first sheet of a workbook into a
  reconcile.RawBatch: the first row is the header, every following
  non-empty row is a data row.

SEE ALSO:
  - ingest/runner.go: calls Latest then Reader.ReadFile for each format
*/
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoExtract is returned when no file in the directory carries the tag.
var ErrNoExtract = errors.New("no extract found")

// Found is a discovered extract.
type Found struct {
	Path     string
	Modified time.Time
}

// Latest returns the most recently modified regular file of dir whose name
// contains tag. Office lock files (~$name) are ignored.
func Latest(dir, tag string) (Found, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Found{}, fmt.Errorf("failed to scan %s: %w", dir, err)
	}

	var best Found
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, tag) || strings.HasPrefix(name, "~$") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		if best.Path == "" || info.ModTime().After(best.Modified) {
			best = Found{Path: filepath.Join(dir, name), Modified: info.ModTime()}
		}
	}
	if best.Path == "" {
		return Found{}, fmt.Errorf("%w: tag %q in %s", ErrNoExtract, tag, dir)
	}
	return best, nil
}
