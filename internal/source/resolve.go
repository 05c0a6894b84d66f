package source

import (
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var remoteSchemes = map[string]bool{
	"http":       true,
	"https":      true,
	"ftp":        true,
	"s3":         true,
	"clickhouse": true,
}

// Scheme returns the lowercased remote scheme of input, or "" for local
// paths (including file:// URLs).
func Scheme(input string) string {
	u, err := url.Parse(input)
	if err != nil {
		return ""
	}
	s := strings.ToLower(u.Scheme)
	if remoteSchemes[s] {
		return s
	}
	return ""
}

// IsRemote reports whether input names a remote location.
func IsRemote(input string) bool {
	return Scheme(input) != ""
}

func localPath(input string) string {
	if strings.HasPrefix(input, "file://") {
		if u, err := url.Parse(input); err == nil {
			return u.Path
		}
	}
	return input
}

// Resolve maps a raw input to something openable. Remote inputs pass
// through. A local path that does not exist is retried as
// <dataDir>/<basename>; if neither exists the error lists both.
func Resolve(raw, dataDir string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &UnavailableError{Input: raw, Err: os.ErrNotExist}
	}
	if IsRemote(raw) {
		return raw, nil
	}

	p := localPath(raw)
	tried := []string{p}
	if isFile(p) {
		return p, nil
	}
	if dataDir != "" {
		candidate := filepath.Join(dataDir, filepath.Base(p))
		if candidate != p {
			tried = append(tried, candidate)
			if isFile(candidate) {
				return candidate, nil
			}
		}
	}
	return "", &UnavailableError{Input: raw, Tried: tried, Err: os.ErrNotExist}
}

func isFile(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && !fi.IsDir()
}

// extOf returns the lowercased extension of a path or URL path.
func extOf(input string) string {
	if IsRemote(input) {
		if u, err := url.Parse(input); err == nil {
			return strings.ToLower(path.Ext(u.Path))
		}
	}
	return strings.ToLower(filepath.Ext(localPath(input)))
}
