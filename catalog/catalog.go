// Package catalog lists proposals already recorded under a Proposals root.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/c360studio/proposals/proposal"
)

// Entry is one recorded proposal.
type Entry struct {
	Term    string
	Version string
	Dir     string
	Record  *proposal.Record
}

// EntryError reports a proposal directory whose input.json could not be read.
type EntryError struct {
	Path string
	Err  error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *EntryError) Unwrap() error {
	return e.Err
}

// Scan returns every <root>/<term>/<version>/input.json, sorted by term then
// version. Unreadable entries are returned as EntryErrors alongside the
// readable ones. A missing root is an empty catalog.
func Scan(root string) ([]Entry, []error, error) {
	if root == "" {
		root = proposal.DefaultRoot
	}
	if _, err := os.Stat(root); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("scan %s: %w", root, err)
	}

	pattern := "*/*/" + proposal.InputFile
	matches, err := doublestar.Glob(os.DirFS(root), pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, nil, fmt.Errorf("glob %s: %w", pattern, err)
	}

	var entries []Entry
	var problems []error
	for _, match := range matches {
		path := filepath.Join(root, filepath.FromSlash(match))
		rec, err := proposal.Load(path)
		if err != nil {
			problems = append(problems, &EntryError{Path: path, Err: err})
			continue
		}
		dir := filepath.Dir(path)
		entries = append(entries, Entry{
			Term:    filepath.Base(filepath.Dir(dir)),
			Version: filepath.Base(dir),
			Dir:     dir,
			Record:  rec,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Term != entries[j].Term {
			return entries[i].Term < entries[j].Term
		}
		return entries[i].Version < entries[j].Version
	})
	return entries, problems, nil
}

// Find loads the proposal recorded for year, semester and version. The
// semester accepts every alias proposal.SemesterCode does.
func Find(root, year, semester, version string) (*Entry, error) {
	code, err := proposal.SemesterCode(semester)
	if err != nil {
		return nil, err
	}
	if root == "" {
		root = proposal.DefaultRoot
	}
	loc := proposal.Location{Root: root, Year: year, Code: code, Version: version}
	if err := loc.Validate(); err != nil {
		return nil, err
	}

	rec, err := proposal.Load(loc.InputPath())
	if err != nil {
		return nil, fmt.Errorf("load proposal %s: %w", loc.Key(), err)
	}
	return &Entry{
		Term:    loc.Term(),
		Version: version,
		Dir:     loc.Dir(),
		Record:  rec,
	}, nil
}
