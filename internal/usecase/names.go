package usecase

import "strings"

// executableSuffixes are stripped by NameStem so that "brave.exe" matches a
// window titled "Brave - New Tab".
var executableSuffixes = []string{".exe", ".app"}

// NormalizeName trims a process name, removes path components and
// lowercases it. Comparisons go through NameStem.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

// NameStem is NormalizeName with a trailing executable suffix removed.
func NameStem(name string) string {
	n := NormalizeName(name)
	for _, suffix := range executableSuffixes {
		if strings.HasSuffix(n, suffix) {
			return strings.TrimSuffix(n, suffix)
		}
	}
	return n
}

// SameProgram reports whether two names refer to the same executable,
// ignoring case, directories and an executable suffix on either side.
func SameProgram(a, b string) bool {
	sa := NameStem(a)
	return sa != "" && sa == NameStem(b)
}

// nameSet is a set of name stems, so "Explorer" and "explorer.exe" are one
// entry.
type nameSet map[string]struct{}

func newNameSet(names []string) nameSet {
	s := make(nameSet, len(names))
	for _, n := range names {
		if st := NameStem(n); st != "" {
			s[st] = struct{}{}
		}
	}
	return s
}

func (s nameSet) has(name string) bool {
	_, ok := s[NameStem(name)]
	return ok
}

// stems returns the non-empty stems of the names, for title matching.
func stems(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		st := NameStem(n)
		if st == "" || seen[st] {
			continue
		}
		seen[st] = true
		out = append(out, st)
	}
	return out
}

// titleMatchesAny reports whether the lowercased title contains any stem.
func titleMatchesAny(title string, stems []string) bool {
	lower := strings.ToLower(title)
	for _, st := range stems {
		if strings.Contains(lower, st) {
			return true
		}
	}
	return false
}
