package retention

import (
	"fmt"
	"sort"
	"strings"
)

// WildcardFormat matches artifacts of any format
const WildcardFormat = "*"

// DefaultPolicy is applied when no policy matches an artifact's format
func DefaultPolicy() RetentionPolicy {
	return RetentionPolicy{
		Format:        WildcardFormat,
		RetentionDays: 90,
		Priority:      PriorityMedium,
	}
}

// NormalizeFormat lower-cases a format and drops a leading dot
func NormalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

// compressedFormats are formats whose bytes are already entropy coded
var compressedFormats = map[string]bool{
	"zst": true, "sz": true, "gz": true, "tgz": true, "bz2": true, "xz": true,
	"lz4": true, "br": true, "zip": true, "7z": true, "rar": true,
	"parquet": true, "orc": true, "avro": true,
	"jpg": true, "jpeg": true, "png": true, "gif": true, "webp": true,
	"mp4": true, "webm": true, "mov": true, "mp3": true, "ogg": true,
	"pdf": true,
}

// AlreadyCompressed reports whether artifacts of format gain nothing from
// COMPRESS
func AlreadyCompressed(format string) bool {
	return compressedFormats[NormalizeFormat(format)]
}

// Resolve returns the first policy whose format matches, else fallback
func Resolve(policies []RetentionPolicy, format string, fallback RetentionPolicy) RetentionPolicy {
	format = NormalizeFormat(format)
	for _, p := range policies {
		pf := NormalizeFormat(p.Format)
		if pf == format || pf == WildcardFormat {
			return p
		}
	}
	return fallback
}

// InScope filters policies down to those that apply to a scope
func InScope(policies []RetentionPolicy, scope string) []RetentionPolicy {
	out := make([]RetentionPolicy, 0, len(policies))
	for _, p := range policies {
		if p.Scope == "" || strings.HasPrefix(scope, p.Scope) {
			out = append(out, p)
		}
	}
	return out
}

// CheckLimits reports formats whose remaining artifacts exceed the policy's
// file count or byte budget. Deleted artifacts are not counted as remaining.
func CheckLimits(recs []Recommendation, policies []RetentionPolicy, fallback RetentionPolicy) []string {
	type tally struct {
		files int
		bytes int64
	}
	tallies := make(map[string]*tally)

	for _, r := range recs {
		if r.Action == ActionDelete {
			continue
		}
		format := NormalizeFormat(r.Format)
		t, ok := tallies[format]
		if !ok {
			t = &tally{}
			tallies[format] = t
		}
		t.files++
		t.bytes += r.SizeBytes - remainingSavings(r)
	}

	formats := make([]string, 0, len(tallies))
	for f := range tallies {
		formats = append(formats, f)
	}
	sort.Strings(formats)

	var violations []string
	for _, f := range formats {
		t := tallies[f]
		p := Resolve(policies, f, fallback)
		if p.MaxFiles > 0 && t.files > p.MaxFiles {
			violations = append(violations,
				fmt.Sprintf("format %q keeps %d files, policy allows %d", f, t.files, p.MaxFiles))
		}
		if p.MaxSizeBytes > 0 && t.bytes > p.MaxSizeBytes {
			violations = append(violations,
				fmt.Sprintf("format %q keeps %d bytes, policy allows %d", f, t.bytes, p.MaxSizeBytes))
		}
	}
	return violations
}

// remainingSavings counts compression toward the byte budget; archived
// artifacts still occupy their full size in the scope.
func remainingSavings(r Recommendation) int64 {
	if r.Action == ActionCompress {
		return r.EstimatedSavingsBytes
	}
	return 0
}
