package proposal

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownSemester is returned when a semester name has no code.
var ErrUnknownSemester = errors.New("unknown semester")

// Semester codes.
const (
	CodeSpring = "01"
	CodeSummer = "02"
	CodeFall   = "03"
)

var semesterCodes = map[string]string{
	"sp":     CodeSpring,
	"spr":    CodeSpring,
	"spring": CodeSpring,
	"su":     CodeSummer,
	"sum":    CodeSummer,
	"summer": CodeSummer,
	"fa":     CodeFall,
	"fall":   CodeFall,
}

// SemesterCode returns the two-digit code for a semester name. Matching is
// case-insensitive; surrounding whitespace is not trimmed.
func SemesterCode(name string) (string, error) {
	code, ok := semesterCodes[strings.ToLower(name)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownSemester, name)
	}
	return code, nil
}

// SemesterAlias pairs a semester synonym with its code.
type SemesterAlias struct {
	Name string
	Code string
}

// Semesters returns every recognized synonym, ordered by code then name.
func Semesters() []SemesterAlias {
	out := make([]SemesterAlias, 0, len(semesterCodes))
	for name, code := range semesterCodes {
		out = append(out, SemesterAlias{Name: name, Code: code})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code != out[j].Code {
			return out[i].Code < out[j].Code
		}
		return out[i].Name < out[j].Name
	})
	return out
}
