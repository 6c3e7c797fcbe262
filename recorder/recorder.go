// Package recorder writes proposal records into the Proposals tree.
//
// A record is placed at <root>/<year><semester code>/<version>/input.json.
// The semester is resolved before anything touches the filesystem, so an
// unknown semester leaves no directories behind. Writing the same location
// twice replaces the earlier files.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/proposals/proposal"
	"github.com/google/uuid"
)

// File names written next to input.json.
const (
	ProvenanceFile = "provenance.json"
	ReadmeFile     = "README.md"
)

// Failure reasons reported to the Observer.
const (
	ReasonSemester   = "semester"
	ReasonLocation   = "location"
	ReasonValidation = "validation"
	ReasonFilesystem = "filesystem"
)

// Provenance names where a record came from. SourcePath, when set, is copied
// into the proposal directory.
type Provenance struct {
	SourcePath string
	Template   string
	Tag        string
}

// ProvenanceRecord is the content of provenance.json.
type ProvenanceRecord struct {
	RunID      string    `json:"run_id"`
	Key        string    `json:"key"`
	RecordedAt time.Time `json:"recorded_at"`
	Source     string    `json:"source,omitempty"`
	Template   string    `json:"template,omitempty"`
	Tag        string    `json:"tag,omitempty"`
}

// Result describes a completed record operation.
type Result struct {
	Location   proposal.Location
	Dir        string
	InputPath  string
	SourceCopy string
	ReadmePath string
	RunID      string
	RecordedAt time.Time
	// Overwrote is true when input.json already existed and was replaced.
	Overwrote bool
}

// Renderer produces the README.md view of a record.
type Renderer interface {
	Render(rec *proposal.Record, loc proposal.Location) ([]byte, error)
}

// Observer receives outcome counts.
type Observer interface {
	Recorded(res *Result)
	Failed(reason string)
}

// Sink is a best-effort side channel notified after a successful record.
// Sink errors are logged and never fail the record.
type Sink interface {
	Name() string
	Recorded(ctx context.Context, rec *proposal.Record, res *Result) error
}

// Options configures a Recorder.
type Options struct {
	// Root is the Proposals directory (default: proposal.DefaultRoot).
	Root string
	// Atomic writes input.json through a temp file and rename.
	Atomic bool
	// Strict refuses records that break the Version and key conventions.
	Strict bool
	// Renderer, when set, writes README.md.
	Renderer Renderer
	Observer Observer
	Sinks    []Sink
	Logger   *slog.Logger
}

// Recorder writes proposal records.
type Recorder struct {
	root     string
	atomic   bool
	strict   bool
	renderer Renderer
	observer Observer
	sinks    []Sink
	logger   *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Recorder.
func New(opts Options) *Recorder {
	root := opts.Root
	if root == "" {
		root = proposal.DefaultRoot
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		root:     root,
		atomic:   opts.Atomic,
		strict:   opts.Strict,
		renderer: opts.Renderer,
		observer: opts.Observer,
		sinks:    opts.Sinks,
		logger:   logger,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
	}
}

// Root returns the Proposals directory.
func (r *Recorder) Root() string {
	return r.root
}

// Record writes rec to its location and copies the provenance source next to it.
func (r *Recorder) Record(ctx context.Context, rec *proposal.Record, prov Provenance) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	loc, err := proposal.Locate(r.root, rec)
	if err != nil {
		if errors.Is(err, proposal.ErrUnknownSemester) {
			r.failed(ReasonSemester)
		} else {
			r.failed(ReasonLocation)
		}
		return nil, fmt.Errorf("locate proposal: %w", err)
	}

	if r.strict {
		if err := proposal.Strict(rec); err != nil {
			r.failed(ReasonValidation)
			return nil, err
		}
	} else {
		for _, f := range proposal.Check(rec) {
			r.logger.Debug("Record convention", "key", loc.Key(), "finding", f.String())
		}
	}

	data, err := proposal.EncodeBytes(rec)
	if err != nil {
		r.failed(ReasonFilesystem)
		return nil, err
	}

	res, err := r.write(ctx, rec, loc, data, prov)
	if err != nil {
		r.failed(ReasonFilesystem)
		return nil, err
	}

	if res.Overwrote {
		r.logger.Debug("Replaced existing proposal", "dir", res.Dir)
	}
	if r.observer != nil {
		r.observer.Recorded(res)
	}
	for _, s := range r.sinks {
		if err := s.Recorded(ctx, rec, res); err != nil {
			r.logger.Warn("Side channel failed", "sink", s.Name(), "key", loc.Key(), "error", err)
		}
	}

	return res, nil
}

func (r *Recorder) write(ctx context.Context, rec *proposal.Record, loc proposal.Location, data []byte, prov Provenance) (*Result, error) {
	dir := loc.Dir()
	res := &Result{
		Location:   loc,
		Dir:        dir,
		InputPath:  loc.InputPath(),
		RunID:      r.newID(),
		RecordedAt: r.now().UTC(),
	}

	// A missing source is reported before anything is written.
	if prov.SourcePath != "" {
		if _, err := os.Stat(prov.SourcePath); err != nil {
			return nil, fmt.Errorf("failed to copy source: %w", err)
		}
	}

	if _, err := os.Stat(res.InputPath); err == nil {
		res.Overwrote = true
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	if err := writeFile(ctx, res.InputPath, data, r.atomic); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", proposal.InputFile, err)
	}

	if prov.SourcePath != "" {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dest := filepath.Join(dir, sourceCopyName(prov.SourcePath))
		copied, err := copyFile(prov.SourcePath, dest)
		if err != nil {
			return nil, fmt.Errorf("failed to copy source: %w", err)
		}
		if copied {
			res.SourceCopy = dest
		}
	}

	provenance := ProvenanceRecord{
		RunID:      res.RunID,
		Key:        loc.Key(),
		RecordedAt: res.RecordedAt,
		Template:   prov.Template,
		Tag:        prov.Tag,
	}
	if prov.SourcePath != "" {
		provenance.Source = filepath.Base(prov.SourcePath)
	}
	provData, err := json.MarshalIndent(provenance, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provenance: %w", err)
	}
	if err := writeFile(ctx, filepath.Join(dir, ProvenanceFile), append(provData, '\n'), r.atomic); err != nil {
		return nil, fmt.Errorf("failed to write provenance: %w", err)
	}

	if r.renderer != nil {
		md, err := r.renderer.Render(rec, loc)
		if err != nil {
			return nil, fmt.Errorf("failed to render readme: %w", err)
		}
		res.ReadmePath = filepath.Join(dir, ReadmeFile)
		if err := writeFile(ctx, res.ReadmePath, md, r.atomic); err != nil {
			return nil, fmt.Errorf("failed to write readme: %w", err)
		}
	}

	return res, nil
}

func (r *Recorder) failed(reason string) {
	if r.observer != nil {
		r.observer.Failed(reason)
	}
}

// sourceCopyName keeps the source's base name unless it would collide with a
// file the recorder writes itself.
func sourceCopyName(src string) string {
	base := filepath.Base(src)
	switch base {
	case proposal.InputFile, ProvenanceFile, ReadmeFile:
		return "source-" + base
	}
	return base
}

// LoadProvenance reads provenance.json from a proposal directory.
func LoadProvenance(dir string) (*ProvenanceRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, ProvenanceFile))
	if err != nil {
		return nil, err
	}
	var p ProvenanceRecord
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse provenance: %w", err)
	}
	return &p, nil
}
