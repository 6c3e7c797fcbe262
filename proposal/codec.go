package proposal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidRecord is returned when a document cannot be read as a record.
var ErrInvalidRecord = errors.New("invalid proposal record")

// MarshalJSON encodes the record as a JSON object in insertion order.
func (r *Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSONString(&buf, f.Key); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		if err := writeJSONString(&buf, f.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSONString(buf *bytes.Buffer, s string) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

// UnmarshalJSON decodes a JSON object whose values are all strings, keeping
// key order.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrInvalidRecord)
	}

	decoded := &Record{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: expected object key", ErrInvalidRecord)
		}

		tok, err = dec.Token()
		if err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrInvalidRecord, key, err)
		}
		value, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: field %q: value must be a string", ErrInvalidRecord, key)
		}
		decoded.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("%w: trailing data after object", ErrInvalidRecord)
	}

	*r = *decoded
	return nil
}

// Encode writes r as JSON with two-space indentation. Keys keep insertion
// order and HTML characters are written as is.
func Encode(w io.Writer, r *Record) error {
	compact, err := r.MarshalJSON()
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return fmt.Errorf("indent record: %w", err)
	}
	out.WriteByte('\n')
	_, err = w.Write(out.Bytes())
	return err
}

// EncodeBytes is Encode into a byte slice.
func EncodeBytes(r *Record) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeJSON reads a record from JSON.
func DecodeJSON(data []byte) (*Record, error) {
	r := &Record{}
	if err := r.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return r, nil
}

// DecodeYAML reads a record from a YAML mapping. Scalar text is taken as
// written, so "Version: 000" stays "000".
func DecodeYAML(data []byte) (*Record, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, fmt.Errorf("%w: expected a single YAML document", ErrInvalidRecord)
	}

	m := doc.Content[0]
	if m.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: expected a YAML mapping", ErrInvalidRecord)
	}

	r := &Record{}
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if v.Kind == yaml.AliasNode && v.Alias != nil {
			v = v.Alias
		}
		if k.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d: key must be a scalar", ErrInvalidRecord, k.Line)
		}
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: field %q: value must be a string", ErrInvalidRecord, k.Value)
		}
		if v.ShortTag() == "!!null" {
			r.Set(k.Value, "")
			continue
		}
		r.Set(k.Value, v.Value)
	}
	return r, nil
}

// MarshalYAML renders the record as an ordered mapping. Multi-line values use
// literal block style.
func (r *Record) MarshalYAML() (interface{}, error) {
	m := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, f := range r.Fields() {
		value := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Value}
		if strings.Contains(f.Value, "\n") {
			value.Style = yaml.LiteralStyle
		}
		m.Content = append(m.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key},
			value,
		)
	}
	return m, nil
}

// Load reads a record file, choosing the decoder by extension.
func Load(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read record: %w", err)
	}

	var r *Record
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		r, err = DecodeJSON(data)
	case ".yaml", ".yml":
		r, err = DecodeYAML(data)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q", ErrInvalidRecord, filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// IsRecordFile reports whether Load understands path's extension.
func IsRecordFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
