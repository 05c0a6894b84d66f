package fetcher

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractHitFile copies the single hit file in an archive into destDir and
// returns its path. Directories, __MACOSX metadata and dot-files are ignored.
// When exts is non-empty only entries with one of those extensions count.
// The entry is written under its base name, flattening any directories.
func ExtractHitFile(zipPath, destDir string, exts []string) (string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", eris.Wrap(err, "zip: open archive")
	}
	defer r.Close() //nolint:errcheck

	var hits []*zip.File
	for _, f := range r.File {
		if isHitEntry(f, exts) {
			hits = append(hits, f)
		}
	}
	switch len(hits) {
	case 0:
		return "", eris.New("zip: no hit file in archive")
	case 1:
	default:
		return "", eris.Errorf("zip: expected exactly 1 hit file, got %d", len(hits))
	}

	entry := hits[0]
	dest := filepath.Join(destDir, path.Base(entry.Name))
	if err := copyEntry(entry, dest); err != nil {
		return "", err
	}
	return dest, nil
}

func isHitEntry(f *zip.File, exts []string) bool {
	if f.FileInfo().IsDir() {
		return false
	}
	name := strings.ReplaceAll(f.Name, `\`, "/")
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return false
	}
	base := path.Base(name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return len(exts) == 0 || slices.Contains(exts, strings.ToLower(path.Ext(base)))
}

func copyEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", f.Name)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "zip: create hit file")
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return eris.Wrapf(err, "zip: copy entry %s", f.Name)
	}
	return eris.Wrap(out.Close(), "zip: close hit file")
}
