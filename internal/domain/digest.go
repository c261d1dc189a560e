package domain

// RawReport is the structured output of the external analysis tool. Only the
// keys summary, languages, dependencies, fileStructure, documentation and
// codePatterns are consumed; anything else is ignored.
type RawReport map[string]any

// Importance tags a key file's priority in a digest.
type Importance string

// Importance levels.
const (
	ImportanceHigh Importance = "high"
)

// KeyFile is a file whose content is carried verbatim in a digest.
type KeyFile struct {
	Path       string     `json:"path" yaml:"path"`
	Content    string     `json:"content" yaml:"content"`
	Importance Importance `json:"importance" yaml:"importance"`
}

// FileTree is a bounded nested directory mapping. A value is either a nested
// FileTree (as map[string]any), a leaf scalar, or nil where depth was cut.
type FileTree map[string]any

// Digest is the bounded, prompt-sized representation of an analysis report.
// It is immutable once produced and replaced wholesale on every successful run.
type Digest struct {
	Summary         string             `json:"summary,omitempty" yaml:"summary,omitempty"`
	Languages       map[string]float64 `json:"languages,omitempty" yaml:"languages,omitempty"`
	DependencyNames []string           `json:"dependency_names,omitempty" yaml:"dependency_names,omitempty"`
	FileTree        FileTree           `json:"file_tree,omitempty" yaml:"file_tree,omitempty"`
	KeyFiles        []KeyFile          `json:"key_files,omitempty" yaml:"key_files,omitempty"`
	CodePatterns    []string           `json:"code_patterns,omitempty" yaml:"code_patterns,omitempty"`
}

// Empty reports whether the digest carries no information at all.
func (d *Digest) Empty() bool {
	if d == nil {
		return true
	}
	return d.Summary == "" && len(d.Languages) == 0 && len(d.DependencyNames) == 0 &&
		len(d.FileTree) == 0 && len(d.KeyFiles) == 0 && len(d.CodePatterns) == 0
}
