package extract

import (
	"regexp"
	"sort"
	"strconv"
)

// FirstPartSuffix is the filename suffix of the first part of a split
// archive (bundle.7z.001, bundle.7z.002, ...).
const FirstPartSuffix = ".001"

// splitPartPattern matches the numeric part index suffix of a split archive.
var splitPartPattern = regexp.MustCompile(`\.(\d{3})$`)

// SplitPartIndex returns the 1-based part index encoded in a split-archive
// filename suffix, or false when the name carries no part suffix.
func SplitPartIndex(name string) (int, bool) {
	m := splitPartPattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	idx, err := strconv.Atoi(m[1])
	if err != nil || idx == 0 {
		return 0, false
	}
	return idx, true
}

// EntryPoint selects the single file to hand to the backend out of a batch:
// the only file if there is one, else the lexicographically-sorted file
// whose name ends in the first split-part suffix, falling back to the first
// sorted file.
func EntryPoint(names []string) string {
	if len(names) == 0 {
		return ""
	}
	if len(names) == 1 {
		return names[0]
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	for _, name := range sorted {
		if idx, ok := SplitPartIndex(name); ok && idx == 1 {
			return name
		}
	}
	return sorted[0]
}
