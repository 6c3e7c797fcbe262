package proposal

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrStrict is returned when strict checking finds convention problems.
var ErrStrict = errors.New("proposal does not follow record conventions")

var versionPattern = regexp.MustCompile(`^[0-9]{3}$`)

// Finding is a convention problem found by Check. Findings never stop a
// record from being written unless strict checking is requested.
type Finding struct {
	Key     string
	Message string
}

func (f Finding) String() string {
	return f.Key + ": " + f.Message
}

// Check reports missing recognized keys and a Version that is not a
// zero-padded three-digit number.
func Check(r *Record) []Finding {
	var findings []Finding
	for _, key := range RecognizedKeys {
		if _, ok := r.Get(key); !ok {
			findings = append(findings, Finding{Key: key, Message: "missing"})
		}
	}
	if v, ok := r.Get(KeyVersion); ok && !versionPattern.MatchString(v) {
		findings = append(findings, Finding{
			Key:     KeyVersion,
			Message: fmt.Sprintf("%q is not a three-digit number", v),
		})
	}
	return findings
}

// Strict returns ErrStrict listing every finding, or nil when there are none.
func Strict(r *Record) error {
	findings := Check(r)
	if len(findings) == 0 {
		return nil
	}
	parts := make([]string, len(findings))
	for i, f := range findings {
		parts[i] = f.String()
	}
	return fmt.Errorf("%w: %s", ErrStrict, strings.Join(parts, "; "))
}
