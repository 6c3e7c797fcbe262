// Package export renders proposal records as JSON, YAML or markdown.
package export

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/c360studio/proposals/proposal"
	"gopkg.in/yaml.v3"
)

// Format specifies the output serialization format.
type Format string

const (
	// FormatJSON produces the same document as input.json.
	FormatJSON Format = "json"

	// FormatYAML produces an ordered YAML mapping usable as an input file.
	FormatYAML Format = "yaml"

	// FormatMarkdown produces the README view.
	FormatMarkdown Format = "markdown"
)

// FormatInfo provides metadata about an export format.
type FormatInfo struct {
	// Name is the format identifier.
	Name Format

	// MIMEType is the standard MIME type.
	MIMEType string

	// Extension is the file extension (with dot).
	Extension string

	// Description describes the format.
	Description string
}

// FormatRegistry contains metadata for all supported formats.
var FormatRegistry = map[Format]FormatInfo{
	FormatJSON: {
		Name:        FormatJSON,
		MIMEType:    "application/json",
		Extension:   ".json",
		Description: "JSON with keys in record order",
	},
	FormatYAML: {
		Name:        FormatYAML,
		MIMEType:    "application/yaml",
		Extension:   ".yaml",
		Description: "YAML mapping, reusable as a record input file",
	},
	FormatMarkdown: {
		Name:        FormatMarkdown,
		MIMEType:    "text/markdown",
		Extension:   ".md",
		Description: "Markdown summary for browsing",
	},
}

var formatAliases = map[string]Format{
	"yml": FormatYAML,
	"md":  FormatMarkdown,
}

// GetFormatInfo returns metadata for a format.
func GetFormatInfo(format Format) (FormatInfo, bool) {
	info, ok := FormatRegistry[format]
	return info, ok
}

// ParseFormat resolves a format name or alias, case-insensitively.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if f, ok := formatAliases[name]; ok {
		return f, nil
	}
	if _, ok := GetFormatInfo(Format(name)); ok {
		return Format(name), nil
	}
	return "", fmt.Errorf("unknown export format %q (supported: %s)", name, strings.Join(FormatNames(), ", "))
}

// FormatNames lists registered format names in sorted order.
func FormatNames() []string {
	names := make([]string, 0, len(FormatRegistry))
	for f := range FormatRegistry {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Exporter writes records in any registered format.
type Exporter struct {
	markdown *Transformer
}

// NewExporter creates an Exporter.
func NewExporter() *Exporter {
	return &Exporter{markdown: NewTransformer()}
}

// Export writes rec to w in the given format.
func (e *Exporter) Export(w io.Writer, format Format, rec *proposal.Record) error {
	switch format {
	case FormatJSON:
		return proposal.Encode(w, rec)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatMarkdown:
		_, err := io.WriteString(w, e.markdown.Transform(rec))
		return err
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}
