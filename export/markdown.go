package export

import (
	"fmt"
	"strings"

	"github.com/c360studio/proposals/proposal"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"golang.org/x/net/html"
)

// Keys shown in the header and contacts block rather than as sections.
var headerKeys = map[string]bool{
	proposal.KeyVersion:         true,
	proposal.KeyYear:            true,
	proposal.KeySemester:        true,
	proposal.KeyProjectName:     true,
	proposal.KeyProposedBy:      true,
	proposal.KeyProposedByEmail: true,
	proposal.KeyInstructor:      true,
	proposal.KeyInstructorEmail: true,
	proposal.KeyGitHubRepo:      true,
}

// Transformer converts proposal records to markdown.
type Transformer struct {
	converter *md.Converter
}

// NewTransformer creates a new markdown transformer.
func NewTransformer() *Transformer {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Transformer{converter: converter}
}

// Render implements the recorder's README renderer.
func (t *Transformer) Render(rec *proposal.Record, loc proposal.Location) ([]byte, error) {
	return []byte(t.transform(rec, loc.Term())), nil
}

// Transform converts a record to a markdown document.
func (t *Transformer) Transform(rec *proposal.Record) string {
	term := ""
	if loc, err := proposal.Locate("", rec); err == nil {
		term = loc.Term()
	}
	return t.transform(rec, term)
}

func (t *Transformer) transform(rec *proposal.Record, term string) string {
	var sb strings.Builder

	title := strings.TrimSpace(rec.ProjectName())
	if title == "" {
		title = "Untitled proposal"
	}
	sb.WriteString("# ")
	sb.WriteString(title)
	sb.WriteString("\n\n")

	t.writeHeader(&sb, rec, term)

	for _, f := range rec.Fields() {
		if headerKeys[f.Key] {
			continue
		}
		body := t.sectionBody(f.Value)
		if body == "" {
			continue
		}
		sb.WriteString("## ")
		sb.WriteString(toTitleCase(f.Key))
		sb.WriteString("\n\n")
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}

	t.writeContacts(&sb, rec)

	return strings.TrimRight(sb.String(), "\n") + "\n"
}

func (t *Transformer) writeHeader(sb *strings.Builder, rec *proposal.Record, term string) {
	var parts []string
	if s := strings.TrimSpace(rec.Semester() + " " + rec.Year()); s != "" {
		if term != "" {
			s = fmt.Sprintf("%s (%s)", s, term)
		}
		parts = append(parts, "**Term:** "+s)
	}
	if v := strings.TrimSpace(rec.Version()); v != "" {
		parts = append(parts, "**Version:** "+v)
	}
	if len(parts) == 0 {
		return
	}
	sb.WriteString(strings.Join(parts, " | "))
	sb.WriteString("\n\n")
}

func (t *Transformer) writeContacts(sb *strings.Builder, rec *proposal.Record) {
	lines := []string{
		contactLine("Proposed by", rec.Value(proposal.KeyProposedBy), rec.Value(proposal.KeyProposedByEmail)),
		contactLine("Instructor", rec.Value(proposal.KeyInstructor), rec.Value(proposal.KeyInstructorEmail)),
	}
	if repo := strings.TrimSpace(rec.Value(proposal.KeyGitHubRepo)); repo != "" {
		lines = append(lines, "- **Repository:** "+repo)
	}

	var out []string
	for _, l := range lines {
		if l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		return
	}
	sb.WriteString("## Contacts\n\n")
	sb.WriteString(strings.Join(out, "\n"))
	sb.WriteString("\n")
}

func contactLine(label, name, email string) string {
	name, email = strings.TrimSpace(name), strings.TrimSpace(email)
	switch {
	case name != "" && email != "":
		return fmt.Sprintf("- **%s:** %s <%s>", label, name, email)
	case name != "":
		return fmt.Sprintf("- **%s:** %s", label, name)
	case email != "":
		return fmt.Sprintf("- **%s:** <%s>", label, email)
	}
	return ""
}

// sectionBody dedents a field value and converts it to markdown when it
// carries HTML markup.
func (t *Transformer) sectionBody(value string) string {
	text := proposal.Dedent(value)
	if text == "" || !containsHTML(text) {
		return text
	}
	converted, err := t.converter.ConvertString(text)
	if err != nil {
		return text
	}
	return strings.TrimSpace(converted)
}

// containsHTML reports whether s has at least one known HTML element tag.
func containsHTML(s string) bool {
	if !strings.Contains(s, "<") {
		return false
	}
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			if z.Token().DataAtom != 0 {
				return true
			}
		}
	}
}

// toTitleCase converts snake_case to Title Case.
func toTitleCase(s string) string {
	s = strings.ReplaceAll(s, "_", " ")

	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(string(word[0])) + strings.ToLower(word[1:])
		}
	}

	return strings.Join(words, " ")
}
