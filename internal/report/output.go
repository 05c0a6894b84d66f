package report

import (
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/sells-group/keyword-cli/internal/source"
)

// TimestampLayout prefixes every report file name.
const TimestampLayout = "2006-01-02_15-04-05"

// DefaultSuffix follows the timestamp in report file names.
const DefaultSuffix = "_SearchKeywordPerformance.tab"

// FileName returns <timestamp><suffix> for the run started at now.
func FileName(now time.Time, suffix string) string {
	if suffix == "" {
		suffix = DefaultSuffix
	}
	return now.Format(TimestampLayout) + suffix
}

// Destination picks the directory or s3:// prefix the report is written
// to. An explicit override wins. Otherwise local inputs write next to the
// input, s3 inputs write under the input's key prefix, and other remote
// inputs write to the working directory.
func Destination(input, override string) string {
	if override != "" {
		return override
	}
	switch source.Scheme(input) {
	case "":
		return filepath.Dir(input)
	case "s3":
		trimmed := strings.TrimPrefix(input, "s3://")
		bucket, key, _ := strings.Cut(trimmed, "/")
		dir := path.Dir(key)
		if key == "" || dir == "." {
			return "s3://" + bucket
		}
		return "s3://" + bucket + "/" + dir
	default:
		return "."
	}
}

// IsS3 reports whether dest is an s3:// location.
func IsS3(dest string) bool {
	return strings.HasPrefix(strings.ToLower(dest), "s3://")
}
