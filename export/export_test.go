package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/c360studio/proposals/proposal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord() *proposal.Record {
	r := &proposal.Record{}
	r.Set(proposal.KeyVersion, "116")
	r.Set(proposal.KeyYear, "2024")
	r.Set(proposal.KeySemester, "Spring")
	r.Set(proposal.KeyProjectName, "Trends in Immigration in the United States")
	r.Set(proposal.KeyObjective, " \n            The aim of this project is to track immigration rates\n            ")
	r.Set(proposal.KeyDataset, "\n             \n            ")
	r.Set(proposal.KeyApproach, "\n            Steps:\n\n            1. Automate data capturing.\n            2. Model.\n            ")
	r.Set(proposal.KeyStudents, "For this project maximum 4 students can work on it.")
	r.Set(proposal.KeyProposedBy, "Athena Rodrigues")
	r.Set(proposal.KeyProposedByEmail, "arodrigues@gwu.edu")
	r.Set(proposal.KeyInstructor, "Edwin Lo")
	r.Set(proposal.KeyInstructorEmail, "edwinlo@gwu.edu")
	r.Set(proposal.KeyGitHubRepo, "https://github.com/rodriguesathena/24Spr_ARodrigues_Capstone")
	return r
}

func TestTransformer_Transform(t *testing.T) {
	out := NewTransformer().Transform(sampleRecord())

	expected := []string{
		"# Trends in Immigration in the United States\n",
		"**Term:** Spring 2024 (202401) | **Version:** 116",
		"## Objective\n\nThe aim of this project is to track immigration rates\n",
		"## Approach\n\nSteps:\n\n1. Automate data capturing.\n2. Model.\n",
		"## Expected Number Students",
		"## Contacts",
		"- **Proposed by:** Athena Rodrigues <arodrigues@gwu.edu>",
		"- **Instructor:** Edwin Lo <edwinlo@gwu.edu>",
		"- **Repository:** https://github.com/rodriguesathena/24Spr_ARodrigues_Capstone",
	}
	for _, exp := range expected {
		assert.Contains(t, out, exp)
	}

	assert.NotContains(t, out, "## Dataset", "blank sections are skipped")
	assert.NotContains(t, out, "## Version")
	assert.True(t, strings.HasSuffix(out, "Capstone\n"))

	// Sections follow record order.
	assert.Less(t, strings.Index(out, "## Objective"), strings.Index(out, "## Approach"))
}

func TestTransformer_UnknownSemesterStillRenders(t *testing.T) {
	r := sampleRecord()
	r.Set(proposal.KeySemester, "Winter")

	out := NewTransformer().Transform(r)
	assert.Contains(t, out, "**Term:** Winter 2024 | **Version:** 116")
}

func TestTransformer_Untitled(t *testing.T) {
	r := &proposal.Record{}
	r.Set(proposal.KeyObjective, "Something")

	out := NewTransformer().Transform(r)
	assert.True(t, strings.HasPrefix(out, "# Untitled proposal\n\n## Objective"))
	assert.NotContains(t, out, "## Contacts")
}

func TestTransformer_HTMLFields(t *testing.T) {
	r := sampleRecord()
	r.Set(proposal.KeyRationale, "<p>Immigration data is <strong>public</strong>.</p>")
	r.Set(proposal.KeyIssues, "Compare a < b and b > c")

	out := NewTransformer().Transform(r)
	assert.Contains(t, out, "Immigration data is **public**.")
	assert.NotContains(t, out, "<strong>")
	assert.Contains(t, out, "Compare a < b and b > c", "plain text with angle brackets is kept")
}

func TestRenderUsesLocationTerm(t *testing.T) {
	r := sampleRecord()
	loc, err := proposal.Locate("", r)
	require.NoError(t, err)

	data, err := NewTransformer().Render(r, loc)
	require.NoError(t, err)
	assert.Contains(t, string(data), "(202401)")
}

func TestToTitleCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"project_name", "Project Name"},
		{"Expected Number Students", "Expected Number Students"},
		{"Possible Issues", "Possible Issues"},
		{"instructor_email", "Instructor Email"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, toTitleCase(tt.input))
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{"YAML", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"md", FormatMarkdown, false},
		{" markdown ", FormatMarkdown, false},
		{"turtle", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatRegistry(t *testing.T) {
	assert.Equal(t, []string{"json", "markdown", "yaml"}, FormatNames())

	info, ok := GetFormatInfo(FormatMarkdown)
	require.True(t, ok)
	assert.Equal(t, ".md", info.Extension)

	_, ok = GetFormatInfo("turtle")
	assert.False(t, ok)
}

func TestExporter_JSONMatchesInputFile(t *testing.T) {
	r := sampleRecord()

	var buf bytes.Buffer
	require.NoError(t, NewExporter().Export(&buf, FormatJSON, r))

	want, err := proposal.EncodeBytes(r)
	require.NoError(t, err)
	assert.Equal(t, string(want), buf.String())
}

func TestExporter_YAMLRoundTrip(t *testing.T) {
	r := sampleRecord()

	var buf bytes.Buffer
	require.NoError(t, NewExporter().Export(&buf, FormatYAML, r))
	assert.Contains(t, buf.String(), "Version: \"116\"")

	decoded, err := proposal.DecodeYAML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, r.Keys(), decoded.Keys())
	assert.Equal(t, r.Value(proposal.KeyProjectName), decoded.Value(proposal.KeyProjectName))
}

func TestExporter_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, NewExporter().Export(&buf, Format("turtle"), sampleRecord()))
}
