package proposal

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrInvalidLocation is returned when Year or Version cannot name a single
// directory below the root.
var ErrInvalidLocation = errors.New("invalid proposal location")

// DefaultRoot is the directory that holds every recorded proposal.
const DefaultRoot = "Proposals"

// InputFile is the name of the serialized record inside a proposal directory.
const InputFile = "input.json"

// Location is where a record lives in the Proposals tree.
type Location struct {
	Root    string
	Year    string
	Code    string
	Version string
}

// Locate resolves the location of r under root. It performs the semester
// lookup and the path checks of Validate and never touches the filesystem.
func Locate(root string, r *Record) (Location, error) {
	code, err := SemesterCode(r.Semester())
	if err != nil {
		return Location{}, err
	}
	if root == "" {
		root = DefaultRoot
	}
	loc := Location{
		Root:    root,
		Year:    r.Year(),
		Code:    code,
		Version: r.Version(),
	}
	if err := loc.Validate(); err != nil {
		return Location{}, err
	}
	return loc, nil
}

// Validate checks that the term and version are each one plain path segment,
// so Dir stays inside Root.
func (l Location) Validate() error {
	if err := segment(KeyYear, l.Year); err != nil {
		return err
	}
	if err := segment("term", l.Term()); err != nil {
		return err
	}
	return segment(KeyVersion, l.Version)
}

func segment(name, value string) error {
	switch {
	case value == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidLocation, name)
	case value == "." || value == "..":
		return fmt.Errorf("%w: %s %q", ErrInvalidLocation, name, value)
	case strings.ContainsAny(value, `/\`) || !filepath.IsLocal(value):
		return fmt.Errorf("%w: %s %q must be a single directory name", ErrInvalidLocation, name, value)
	}
	return nil
}

// Term is the year and semester code joined, e.g. "202401".
func (l Location) Term() string {
	return l.Year + l.Code
}

// Dir returns root/<term>/<version>.
func (l Location) Dir() string {
	return filepath.Join(l.Root, l.Term(), l.Version)
}

// InputPath returns the path of input.json within Dir.
func (l Location) InputPath() string {
	return filepath.Join(l.Dir(), InputFile)
}

// Key identifies the location independent of root, e.g. "202401.000".
func (l Location) Key() string {
	return l.Term() + "." + l.Version
}
