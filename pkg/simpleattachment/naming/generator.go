// Package naming derives collision-resistant storage names for uploaded files.
//
// A stored name keeps the caller's stem and extension and inserts the upload
// time at second resolution: "report.pdf" uploaded at 2024-03-05 14:07:09
// becomes "report__2024-03-05-14-07-09.pdf". Two uploads of the same name in
// the same second collide; the blob store's exclusive write surfaces that as
// a duplicate key and the caller decides whether to retry.
package naming

import (
	"errors"
	"path"
	"strings"
	"time"
)

const (
	// TimestampLayout is the time format embedded in stored names
	TimestampLayout = "2006-01-02-15-04-05"

	// Separator divides the stem from the timestamp
	Separator = "__"
)

// ErrNoTimestamp indicates a name that does not carry a parseable timestamp
var ErrNoTimestamp = errors.New("name has no embedded timestamp")

// Generator defines the interface for stored-name strategies
type Generator interface {
	// Generate returns the storage key for a file uploaded as originalName at now
	Generate(originalName string, now time.Time) string
}

// GenerateStoredName splits the base of originalFilename on its last dot and
// returns "{stem}__{timestamp}.{ext}". Without a dot, or with an empty
// extension, the result is "{stem}__{timestamp}" with no trailing dot.
func GenerateStoredName(originalFilename string, now time.Time) string {
	stem, ext := SplitName(originalFilename)
	name := sanitizeStem(stem) + Separator + now.Format(TimestampLayout)
	if ext != "" {
		name += "." + sanitizeStem(ext)
	}
	return name
}

// SplitName returns the stem and extension of the base of name, split on the
// last dot. A leading-dot name such as ".env" has an empty stem.
func SplitName(name string) (stem, ext string) {
	base := baseName(name)
	i := strings.LastIndex(base, ".")
	if i < 0 {
		return base, ""
	}
	return base[:i], base[i+1:]
}

// Extension returns the lower-cased extension of name without its dot.
func Extension(name string) string {
	_, ext := SplitName(name)
	return strings.ToLower(ext)
}

// ParseTimestamp extracts the embedded upload time from a stored name,
// interpreting it in UTC.
func ParseTimestamp(name string) (time.Time, error) {
	return ParseTimestampIn(name, time.UTC)
}

// ParseTimestampIn is ParseTimestamp with an explicit location. The
// timestamp must end the name, or end the part before the extension dot.
func ParseTimestampIn(name string, loc *time.Location) (time.Time, error) {
	base := baseName(name)
	if dot := strings.LastIndex(base, "."); dot >= 0 {
		if t, ok := parseTrailingTimestamp(base[:dot], loc); ok {
			return t, nil
		}
	}
	if t, ok := parseTrailingTimestamp(base, loc); ok {
		return t, nil
	}
	return time.Time{}, ErrNoTimestamp
}

func parseTrailingTimestamp(s string, loc *time.Location) (time.Time, bool) {
	i := strings.LastIndex(s, Separator)
	if i < 0 {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimestampLayout, s[i+len(Separator):], loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// TimestampGenerator places timestamped names under an optional prefix
// directory, e.g. "attachments/report__2024-03-05-14-07-09.pdf".
type TimestampGenerator struct {
	Prefix string
}

func NewTimestampGenerator(prefix string) *TimestampGenerator {
	return &TimestampGenerator{Prefix: strings.Trim(prefix, "/")}
}

func (g *TimestampGenerator) Generate(originalName string, now time.Time) string {
	name := GenerateStoredName(originalName, now)
	if g.Prefix == "" {
		return name
	}
	return path.Join(g.Prefix, name)
}

// FuncGenerator allows users to provide their own naming function
type FuncGenerator struct {
	GenerateFunc func(originalName string, now time.Time) string
}

func NewFuncGenerator(fn func(originalName string, now time.Time) string) *FuncGenerator {
	return &FuncGenerator{GenerateFunc: fn}
}

func (g *FuncGenerator) Generate(originalName string, now time.Time) string {
	return g.GenerateFunc(originalName, now)
}

// NewDefaultGenerator returns the generator used when none is configured
func NewDefaultGenerator() Generator {
	return NewTimestampGenerator("attachments")
}

func baseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return strings.TrimSpace(name)
}

func sanitizeStem(s string) string {
	replacer := strings.NewReplacer(
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		" ", "_",
	)
	return replacer.Replace(s)
}
