package pivot

import (
	"regexp"
	"strconv"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SanitizeName turns a value column name into a file name suffix. Characters
// other than letters, digits, '_', '.' and '-' become '_'; an empty result
// falls back to "col<pos>".
func SanitizeName(name string, pos int) string {
	s := unsafeChars.ReplaceAllString(name, "_")
	if s == "" {
		return "col" + strconv.Itoa(pos)
	}
	return s
}

// namer hands out unique sanitized names within one pivot.
type namer struct {
	used map[string]bool
}

func newNamer() *namer {
	return &namer{used: make(map[string]bool)}
}

func (n *namer) name(column string, pos int) string {
	s := SanitizeName(column, pos)
	if n.used[s] {
		s = s + "_" + strconv.Itoa(pos)
	}
	n.used[s] = true
	return s
}
