package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
)

// DateLayout is the day-first layout used in CSV files.
const DateLayout = "02/01/2006"

var dateLayouts = []string{"2/1/2006", "2006-01-02", time.RFC3339, "2006-01-02T15:04:05"}

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// FirstNonEmpty returns the first value that is not blank once trimmed.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Getwd tries to find the project root, i.e. the closest parent directory holding go.mod.
// go-test changes the working directory to the test package being run, so config lookups cannot rely on os.Getwd.
// Falls back to the working directory when no go.mod is found (e.g. a deployed binary).
func Getwd() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == string(os.PathSeparator) || newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}

// ParseDate accepts D/M/YYYY (zero-padded or not) and ISO dates. Blank or unparseable input yields a null date.
func ParseDate(s string) null.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return null.TimeFrom(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
		}
	}
	return null.Time{}
}

// FormatDate renders a date as DD/MM/YYYY, or "" when null.
func FormatDate(t null.Time) string {
	if !t.Valid {
		return ""
	}
	return t.Time.UTC().Format(DateLayout)
}
