package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/c360studio/proposals/config"
	"github.com/c360studio/proposals/proposal"
	"github.com/c360studio/proposals/recorder"
	"github.com/c360studio/proposals/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryBucket struct {
	data map[string][]byte
}

func (b *memoryBucket) Put(ctx context.Context, key string, value []byte) error {
	b.data[key] = value
	return nil
}

func (b *memoryBucket) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := b.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (b *memoryBucket) Keys(ctx context.Context) ([]string, error) {
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

// indexed records input under root and mirrors it into idx.
func indexed(t *testing.T, idx *storage.Index, root, input string) {
	t.Helper()
	r, err := proposal.DecodeYAML([]byte(input))
	require.NoError(t, err)
	res, err := recorder.New(recorder.Options{Root: root}).Record(context.Background(), r, recorder.Provenance{})
	require.NoError(t, err)
	require.NoError(t, idx.Recorded(context.Background(), r, res))
}

func TestIndexRows(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	idx := storage.NewIndex(&memoryBucket{data: make(map[string][]byte)})
	indexed(t, idx, root, fallInput)
	indexed(t, idx, root, springInput)

	rows, err := indexRows(ctx, idx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, listRow{Term: "202401", Version: "000", Project: "Women in Politics", ProposedBy: "Athena Rodrigues"}, rows[0])
	assert.Equal(t, "202403", rows[1].Term)

	var out bytes.Buffer
	require.NoError(t, writeRows(&out, rows))
	assert.Contains(t, out.String(), "TERM")
	assert.Contains(t, out.String(), "Housing Prices")
}

func TestIndexRecord(t *testing.T) {
	ctx := context.Background()
	idx := storage.NewIndex(&memoryBucket{data: make(map[string][]byte)})
	indexed(t, idx, t.TempDir(), springInput)

	r, err := indexRecord(ctx, idx, "2024", "sp", "000")
	require.NoError(t, err)
	assert.Equal(t, "Women in Politics", r.ProjectName())

	_, err = indexRecord(ctx, idx, "2024", "fall", "000")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = indexRecord(ctx, idx, "2024", "winter", "000")
	assert.ErrorIs(t, err, proposal.ErrUnknownSemester)

	_, err = indexRecord(ctx, idx, "2024", "spring", "../000")
	assert.ErrorIs(t, err, proposal.ErrInvalidLocation)
}

func TestOpenIndexWithoutNATS(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Output.Root = t.TempDir()

	_, _, err := openIndex(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "index unavailable")

	_, _, err = execute(t, "list", "--index", "--root", cfg.Output.Root)
	assert.ErrorContains(t, err, "index unavailable")
	_, _, err = execute(t, "show", "--index", "--root", cfg.Output.Root, "2024", "fall", "000")
	assert.ErrorContains(t, err, "index unavailable")
}

func TestConfigInitCommand(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, config.UserConfigDir, config.UserConfigFile)

	stdout, _, err := execute(t, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, "Created "+path+"\n", stdout)
	require.FileExists(t, path)

	cfg, err := config.LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().Output.Root, cfg.Output.Root)

	stdout, _, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Equal(t, path+" already exists\n", stdout)
}

func TestExportCommandOutput(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, "women.yaml", springInput)
	outDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(outDir, 0755))

	stdout, _, err := execute(t, "export", "--format", "markdown", "--output", outDir, input)
	require.NoError(t, err)
	want := filepath.Join(outDir, "women.md")
	assert.Equal(t, "Exported "+want+"\n", stdout)
	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Women in Politics")

	file := filepath.Join(dir, "women.json")
	_, _, err = execute(t, "export", "-f", "json", "-o", file, input)
	require.NoError(t, err)
	r, err := proposal.Load(file)
	require.NoError(t, err)
	assert.Equal(t, "000", r.Version())
}
