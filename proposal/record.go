// Package proposal defines the capstone proposal record and the rules that map
// a record onto its place in the Proposals tree.
package proposal

// Recognized record keys. Spelling and case follow the proposal forms, so some
// keys contain spaces.
const (
	KeyVersion         = "Version"
	KeyYear            = "Year"
	KeySemester        = "Semester"
	KeyProjectName     = "project_name"
	KeyObjective       = "Objective"
	KeyDataset         = "Dataset"
	KeyRationale       = "Rationale"
	KeyApproach        = "Approach"
	KeyTimeline        = "Timeline"
	KeyStudents        = "Expected Number Students"
	KeyIssues          = "Possible Issues"
	KeyProposedBy      = "Proposed by"
	KeyProposedByEmail = "Proposed by email"
	KeyInstructor      = "instructor"
	KeyInstructorEmail = "instructor_email"
	KeyGitHubRepo      = "github_repo"
)

// RecognizedKeys lists the recognized keys in form order.
var RecognizedKeys = []string{
	KeyVersion,
	KeyYear,
	KeySemester,
	KeyProjectName,
	KeyObjective,
	KeyDataset,
	KeyRationale,
	KeyApproach,
	KeyTimeline,
	KeyStudents,
	KeyIssues,
	KeyProposedBy,
	KeyProposedByEmail,
	KeyInstructor,
	KeyInstructorEmail,
	KeyGitHubRepo,
}

// Field is a single named value of a Record.
type Field struct {
	Key   string
	Value string
}

// Record is an ordered mapping of field name to string value.
// The zero value is an empty record ready to use.
type Record struct {
	fields []Field
	index  map[string]int
}

// NewRecord builds a record from fields in the given order. A repeated key
// keeps its first position and takes the last value.
func NewRecord(fields ...Field) *Record {
	r := &Record{}
	for _, f := range fields {
		r.Set(f.Key, f.Value)
	}
	return r
}

// Set assigns value to key. Existing keys keep their position.
func (r *Record) Set(key, value string) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[key]; ok {
		r.fields[i].Value = value
		return
	}
	r.index[key] = len(r.fields)
	r.fields = append(r.fields, Field{Key: key, Value: value})
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (string, bool) {
	if r == nil || r.index == nil {
		return "", false
	}
	i, ok := r.index[key]
	if !ok {
		return "", false
	}
	return r.fields[i].Value, true
}

// Value returns the value stored under key, or "" when absent.
func (r *Record) Value(key string) string {
	v, _ := r.Get(key)
	return v
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.fields)
}

// Fields returns a copy of the fields in insertion order.
func (r *Record) Fields() []Field {
	if r == nil {
		return nil
	}
	out := make([]Field, len(r.fields))
	copy(out, r.fields)
	return out
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, len(r.fields))
	for i, f := range r.fields {
		keys[i] = f.Key
	}
	return keys
}

// Equal reports whether both records hold the same fields in the same order.
func (r *Record) Equal(other *Record) bool {
	if r == nil || other == nil {
		return r.Len() == other.Len()
	}
	if r.Len() != other.Len() {
		return false
	}
	for i := range r.fields {
		if r.fields[i] != other.fields[i] {
			return false
		}
	}
	return true
}

// Version returns the Version field.
func (r *Record) Version() string { return r.Value(KeyVersion) }

// Year returns the Year field.
func (r *Record) Year() string { return r.Value(KeyYear) }

// Semester returns the Semester field as written.
func (r *Record) Semester() string { return r.Value(KeySemester) }

// ProjectName returns the project_name field.
func (r *Record) ProjectName() string { return r.Value(KeyProjectName) }
