package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/c360studio/proposals/proposal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(version, semester, objective string) *proposal.Record {
	r := &proposal.Record{}
	r.Set(proposal.KeyVersion, version)
	r.Set(proposal.KeyYear, "2024")
	r.Set(proposal.KeySemester, semester)
	r.Set(proposal.KeyProjectName, "Trends in Immigration in the United States")
	r.Set(proposal.KeyObjective, objective)
	r.Set(proposal.KeyProposedBy, "Athena Rodrigues")
	return r
}

func newTestRecorder(t *testing.T, opts Options) *Recorder {
	t.Helper()
	if opts.Root == "" {
		opts.Root = filepath.Join(t.TempDir(), "Proposals")
	}
	rec := New(opts)
	rec.now = func() time.Time { return time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC) }
	rec.newID = func() string { return "run-1" }
	return rec
}

type fakeObserver struct {
	recorded []*Result
	failures []string
}

func (o *fakeObserver) Recorded(res *Result) { o.recorded = append(o.recorded, res) }
func (o *fakeObserver) Failed(reason string) { o.failures = append(o.failures, reason) }

type fakeSink struct {
	err   error
	calls int
}

func (s *fakeSink) Name() string { return "fake" }
func (s *fakeSink) Recorded(ctx context.Context, rec *proposal.Record, res *Result) error {
	s.calls++
	return s.err
}

type staticRenderer struct{}

func (staticRenderer) Render(rec *proposal.Record, loc proposal.Location) ([]byte, error) {
	return []byte("# " + rec.ProjectName() + "\n"), nil
}

func TestRecordWritesInputJSON(t *testing.T) {
	rec := newTestRecorder(t, Options{Atomic: true})
	record := testRecord("000", "Spring", "Track immigration rates")

	res, err := rec.Record(context.Background(), record, Provenance{})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(rec.Root(), "202401", "000"), res.Dir)
	assert.Equal(t, filepath.Join(res.Dir, "input.json"), res.InputPath)
	assert.False(t, res.Overwrote)
	assert.Empty(t, res.SourceCopy)

	loaded, err := proposal.Load(res.InputPath)
	require.NoError(t, err)
	assert.Equal(t, "000", loaded.Version())
	assert.Equal(t, record.Keys(), loaded.Keys())
	assert.True(t, record.Equal(loaded))

	prov, err := LoadProvenance(res.Dir)
	require.NoError(t, err)
	assert.Equal(t, "run-1", prov.RunID)
	assert.Equal(t, "202401.000", prov.Key)
	assert.Empty(t, prov.Source)

	// No temp files left behind by atomic writes.
	entries, err := os.ReadDir(res.Dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"input.json", "provenance.json"}, names)
}

func TestRecordSemesterSynonyms(t *testing.T) {
	tests := []struct {
		semester string
		term     string
	}{
		{"sp", "202401"},
		{"SUMMER", "202402"},
		{"Fa", "202403"},
	}

	for _, tt := range tests {
		t.Run(tt.semester, func(t *testing.T) {
			rec := newTestRecorder(t, Options{})
			res, err := rec.Record(context.Background(), testRecord("001", tt.semester, "x"), Provenance{})
			require.NoError(t, err)
			assert.Equal(t, tt.term, res.Location.Term())
			assert.FileExists(t, res.InputPath)
		})
	}
}

func TestRecordUnknownSemesterLeavesNoArtifacts(t *testing.T) {
	obs := &fakeObserver{}
	rec := newTestRecorder(t, Options{Observer: obs})

	_, err := rec.Record(context.Background(), testRecord("000", "Winter", "x"), Provenance{})
	require.Error(t, err)
	assert.ErrorIs(t, err, proposal.ErrUnknownSemester)

	_, statErr := os.Stat(rec.Root())
	assert.True(t, os.IsNotExist(statErr), "root must not be created for a failed lookup")
	assert.Equal(t, []string{ReasonSemester}, obs.failures)
}

func TestRecordInvalidLocationLeavesNoArtifacts(t *testing.T) {
	tests := []struct {
		name    string
		year    string
		version string
	}{
		{"empty version", "2024", ""},
		{"dot version", "2024", "."},
		{"parent version", "2024", ".."},
		{"escaping version", "2024", "../../../escaped"},
		{"nested version", "2024", "000/extra"},
		{"backslash version", "2024", `000\extra`},
		{"empty year", "", "000"},
		{"escaping year", "../2024", "000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &fakeObserver{}
			base := t.TempDir()
			rec := newTestRecorder(t, Options{Root: filepath.Join(base, "Proposals"), Observer: obs})

			r := testRecord(tt.version, "Spring", "x")
			r.Set(proposal.KeyYear, tt.year)

			_, err := rec.Record(context.Background(), r, Provenance{})
			require.Error(t, err)
			assert.ErrorIs(t, err, proposal.ErrInvalidLocation)
			assert.Equal(t, []string{ReasonLocation}, obs.failures)

			entries, err := os.ReadDir(base)
			require.NoError(t, err)
			assert.Empty(t, entries, "nothing may be written for an invalid location")
		})
	}
}

func TestRecordLastWriteWins(t *testing.T) {
	obs := &fakeObserver{}
	rec := newTestRecorder(t, Options{Atomic: true, Observer: obs})

	first, err := rec.Record(context.Background(), testRecord("002", "fall", "first objective"), Provenance{})
	require.NoError(t, err)

	second := testRecord("002", "fall", "second objective")
	second.Set("extra", "only in second")
	res, err := rec.Record(context.Background(), second, Provenance{})
	require.NoError(t, err)

	assert.Equal(t, first.Dir, res.Dir)
	assert.True(t, res.Overwrote)

	loaded, err := proposal.Load(res.InputPath)
	require.NoError(t, err)
	assert.Equal(t, "second objective", loaded.Value(proposal.KeyObjective))
	assert.True(t, second.Equal(loaded), "second record replaces the first entirely")
	assert.Len(t, obs.recorded, 2)
}

func TestRecordExistingDirectory(t *testing.T) {
	rec := newTestRecorder(t, Options{})
	dir := filepath.Join(rec.Root(), "202401", "000")
	require.NoError(t, os.MkdirAll(dir, 0755))

	res, err := rec.Record(context.Background(), testRecord("000", "spring", "x"), Provenance{})
	require.NoError(t, err)
	assert.False(t, res.Overwrote)
	assert.FileExists(t, filepath.Join(dir, "input.json"))
}

func TestRecordCopiesSource(t *testing.T) {
	rec := newTestRecorder(t, Options{})
	src := filepath.Join(t.TempDir(), "json_gen_116.yaml")
	require.NoError(t, os.WriteFile(src, []byte("Version: \"116\"\n"), 0644))

	res, err := rec.Record(context.Background(), testRecord("116", "Spring", "x"),
		Provenance{SourcePath: src, Template: "capstone-v1", Tag: "draft"})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(res.Dir, "json_gen_116.yaml"), res.SourceCopy)
	data, err := os.ReadFile(res.SourceCopy)
	require.NoError(t, err)
	assert.Equal(t, "Version: \"116\"\n", string(data))

	prov, err := LoadProvenance(res.Dir)
	require.NoError(t, err)
	assert.Equal(t, "json_gen_116.yaml", prov.Source)
	assert.Equal(t, "capstone-v1", prov.Template)
	assert.Equal(t, "draft", prov.Tag)

	// Copying again overwrites the earlier copy.
	require.NoError(t, os.WriteFile(src, []byte("Version: \"116\"\nYear: \"2024\"\n"), 0644))
	_, err = rec.Record(context.Background(), testRecord("116", "Spring", "x"), Provenance{SourcePath: src})
	require.NoError(t, err)
	data, err = os.ReadFile(res.SourceCopy)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Year")
}

func TestRecordSourceNamedInputJSON(t *testing.T) {
	rec := newTestRecorder(t, Options{})
	src := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"Version":"000"}`), 0644))

	res, err := rec.Record(context.Background(), testRecord("000", "Spring", "x"), Provenance{SourcePath: src})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(res.Dir, "source-input.json"), res.SourceCopy)
	loaded, err := proposal.Load(res.InputPath)
	require.NoError(t, err)
	assert.Equal(t, "x", loaded.Value(proposal.KeyObjective), "input.json holds the record, not the source")
}

func TestRecordSourceIsTargetFile(t *testing.T) {
	rec := newTestRecorder(t, Options{})
	first, err := rec.Record(context.Background(), testRecord("000", "Spring", "x"), Provenance{})
	require.NoError(t, err)

	// Re-recording from a file that already lives in the proposal directory
	// must not truncate it.
	src := filepath.Join(first.Dir, "draft.yaml")
	require.NoError(t, os.WriteFile(src, []byte("keep me"), 0644))

	res, err := rec.Record(context.Background(), testRecord("000", "Spring", "x"), Provenance{SourcePath: src})
	require.NoError(t, err)
	assert.Empty(t, res.SourceCopy)

	data, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(data))
}

func TestRecordMissingSource(t *testing.T) {
	obs := &fakeObserver{}
	rec := newTestRecorder(t, Options{Observer: obs})

	_, err := rec.Record(context.Background(), testRecord("000", "Spring", "x"),
		Provenance{SourcePath: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.Equal(t, []string{ReasonFilesystem}, obs.failures)

	_, statErr := os.Stat(rec.Root())
	assert.True(t, os.IsNotExist(statErr), "nothing is written when the source is missing")
}

func TestRecordStrict(t *testing.T) {
	obs := &fakeObserver{}
	rec := newTestRecorder(t, Options{Strict: true, Observer: obs})

	_, err := rec.Record(context.Background(), testRecord("7", "Spring", "x"), Provenance{})
	require.Error(t, err)
	assert.ErrorIs(t, err, proposal.ErrStrict)

	_, statErr := os.Stat(rec.Root())
	assert.True(t, os.IsNotExist(statErr))
	assert.Equal(t, []string{ReasonValidation}, obs.failures)
}

func TestRecordNonStrictAcceptsConventionBreaks(t *testing.T) {
	rec := newTestRecorder(t, Options{})
	res, err := rec.Record(context.Background(), testRecord("7", "Spring", "x"), Provenance{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(rec.Root(), "202401", "7"), res.Dir)
}

func TestRecordRendersReadme(t *testing.T) {
	rec := newTestRecorder(t, Options{Renderer: staticRenderer{}})
	res, err := rec.Record(context.Background(), testRecord("000", "Spring", "x"), Provenance{})
	require.NoError(t, err)

	data, err := os.ReadFile(res.ReadmePath)
	require.NoError(t, err)
	assert.Equal(t, "# Trends in Immigration in the United States\n", string(data))
}

func TestRecordSinkFailureIsNotFatal(t *testing.T) {
	failing := &fakeSink{err: errors.New("nats unavailable")}
	ok := &fakeSink{}
	rec := newTestRecorder(t, Options{Sinks: []Sink{failing, ok}})

	res, err := rec.Record(context.Background(), testRecord("000", "Spring", "x"), Provenance{})
	require.NoError(t, err)
	assert.FileExists(t, res.InputPath)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

func TestRecordCanceledContext(t *testing.T) {
	rec := newTestRecorder(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rec.Record(ctx, testRecord("000", "Spring", "x"), Provenance{})
	assert.ErrorIs(t, err, context.Canceled)

	_, statErr := os.Stat(rec.Root())
	assert.True(t, os.IsNotExist(statErr))
}

func TestDefaultRoot(t *testing.T) {
	rec := New(Options{})
	assert.Equal(t, proposal.DefaultRoot, rec.Root())
}
