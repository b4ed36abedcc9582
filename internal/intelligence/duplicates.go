// internal/intelligence/duplicates.go
package intelligence

import (
	"path"
	"regexp"
	"sort"
	"strconv"
)

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// NormalizeName strips date stamps (YYYY-MM-DD) from a file name so that
// periodic exports of the same report compare equal.
func NormalizeName(name string) string {
	return datePattern.ReplaceAllString(name, "")
}

// DuplicateIndex links artifacts that share a directory, a normalized base
// name and a byte size. The relation is symmetric.
type DuplicateIndex struct {
	links     map[string][]string
	canonical map[string]string
}

// IndexDuplicates groups the artifacts of one scope into duplicate sets
func IndexDuplicates(artifacts []Artifact) *DuplicateIndex {
	groups := make(map[string][]Artifact)
	for _, a := range artifacts {
		groups[duplicateKey(a)] = append(groups[duplicateKey(a)], a)
	}

	idx := &DuplicateIndex{
		links:     make(map[string][]string),
		canonical: make(map[string]string),
	}

	for _, members := range groups {
		if len(members) < 2 {
			continue
		}

		keep := members[0]
		for _, m := range members[1:] {
			if m.LastModifiedAt.After(keep.LastModifiedAt) ||
				(m.LastModifiedAt.Equal(keep.LastModifiedAt) && m.Path > keep.Path) {
				keep = m
			}
		}

		for _, a := range members {
			others := make([]string, 0, len(members)-1)
			for _, b := range members {
				if b.Path != a.Path {
					others = append(others, b.Path)
				}
			}
			sort.Strings(others)
			idx.links[a.Path] = others
			idx.canonical[a.Path] = keep.Path
		}
	}

	return idx
}

// DuplicatesOf returns the other members of the artifact's duplicate set
func (x *DuplicateIndex) DuplicatesOf(p string) []string {
	return x.links[p]
}

// Canonical returns the path kept for the artifact's duplicate set, or the
// artifact itself when it has no duplicates.
func (x *DuplicateIndex) Canonical(p string) string {
	if c, ok := x.canonical[p]; ok {
		return c
	}
	return p
}

// Len returns the number of artifacts that have at least one duplicate
func (x *DuplicateIndex) Len() int {
	return len(x.links)
}

func duplicateKey(a Artifact) string {
	dir, base := path.Split(a.Path)
	return dir + "\x00" + NormalizeName(base) + "\x00" + strconv.FormatInt(a.SizeBytes, 10)
}
