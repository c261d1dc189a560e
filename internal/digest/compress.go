// Package digest compresses raw analysis reports into bounded digests that fit
// in a model prompt.
package digest

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"

	"github.com/arturoeanton/gitsum/internal/domain"
)

// DefaultTreeDepth is the file-tree depth at which subtrees collapse to nil.
const DefaultTreeDepth = 3

// manifests lists the dependency-manifest entries recognised inside a report's
// dependencies mapping, in priority order. The first one present becomes a key file.
var manifests = []struct {
	key  string
	path string
}{
	{"packageJson", "package.json"},
	{"goMod", "go.mod"},
	{"cargoToml", "Cargo.toml"},
	{"pyprojectToml", "pyproject.toml"},
	{"requirementsTxt", "requirements.txt"},
	{"pomXml", "pom.xml"},
	{"gemfile", "Gemfile"},
	{"composerJson", "composer.json"},
}

// Compressor turns raw reports into digests. The zero value uses DefaultTreeDepth.
type Compressor struct {
	TreeDepth int
}

// NewCompressor returns a compressor truncating file trees at depth.
// A non-positive depth selects DefaultTreeDepth.
func NewCompressor(depth int) *Compressor {
	if depth <= 0 {
		depth = DefaultTreeDepth
	}
	return &Compressor{TreeDepth: depth}
}

// Compress derives a digest from report. It never fails: fields that are
// missing or have an unexpected shape come out empty.
func (c *Compressor) Compress(report domain.RawReport) *domain.Digest {
	depth := c.TreeDepth
	if depth <= 0 {
		depth = DefaultTreeDepth
	}

	d := &domain.Digest{
		Summary:         asString(report["summary"]),
		Languages:       languages(report["languages"]),
		DependencyNames: dependencyNames(report["dependencies"]),
		CodePatterns:    stringList(report["codePatterns"]),
		KeyFiles:        keyFiles(report),
	}
	if tree, ok := asMap(report["fileStructure"]); ok {
		d.FileTree = domain.FileTree(truncateTree(tree, depth, 0))
	}
	return d
}

// Compress runs the default compressor.
func Compress(report domain.RawReport) *domain.Digest {
	return NewCompressor(DefaultTreeDepth).Compress(report)
}

// truncateTree copies tree, replacing every nested mapping or list found at
// depth >= max with nil. A list element counts as one level, like a mapping key.
func truncateTree(tree map[string]any, max, depth int) map[string]any {
	out := make(map[string]any, len(tree))
	for k, v := range tree {
		out[k] = truncateValue(v, max, depth)
	}
	return out
}

func truncateValue(v any, max, depth int) any {
	if sub, ok := asMap(v); ok {
		if depth+1 >= max {
			return nil
		}
		return truncateTree(sub, max, depth+1)
	}
	if items, ok := v.([]any); ok {
		if depth+1 >= max {
			return nil
		}
		out := make([]any, len(items))
		for i, it := range items {
			out[i] = truncateValue(it, max, depth+1)
		}
		return out
	}
	return v
}

func keyFiles(report domain.RawReport) []domain.KeyFile {
	var files []domain.KeyFile

	if deps, ok := asMap(report["dependencies"]); ok {
		for _, m := range manifests {
			v, present := deps[m.key]
			if !present || v == nil {
				continue
			}
			if content := contentOf(v); content != "" {
				files = append(files, domain.KeyFile{Path: m.path, Content: content, Importance: domain.ImportanceHigh})
				break
			}
		}
	}

	if docs, ok := asMap(report["documentation"]); ok {
		if readme := asString(docs["readme"]); readme != "" {
			files = append(files, domain.KeyFile{Path: "README.md", Content: readme, Importance: domain.ImportanceHigh})
		}
	}

	return files
}

// contentOf renders a manifest value as text; structured manifests are re-encoded as indented JSON.
func contentOf(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(normalize(v), "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func languages(v any) map[string]float64 {
	m, ok := asMap(v)
	if !ok || len(m) == 0 {
		return nil
	}
	out := make(map[string]float64, len(m))
	for name, raw := range m {
		if pct, ok := asFloat(raw); ok {
			out[name] = pct
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func dependencyNames(v any) []string {
	var names []string
	switch deps := v.(type) {
	case map[string]any:
		for k := range deps {
			names = append(names, k)
		}
	case map[any]any:
		for k := range deps {
			if s, ok := k.(string); ok {
				names = append(names, s)
			}
		}
	case []any:
		names = stringList(deps)
	default:
		return nil
	}
	return sortedUnique(names)
}

func sortedUnique(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	sort.Strings(in)
	out := in[:0]
	for i, s := range in {
		if s == "" || (i > 0 && s == in[i-1]) {
			continue
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func stringList(v any) []string {
	items, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			items = make([]any, len(ss))
			for i, s := range ss {
				items[i] = s
			}
		} else {
			return nil
		}
	}
	var out []string
	for _, it := range items {
		if s, ok := it.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// asMap accepts both JSON-decoded and YAML-decoded mappings.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.FileTree:
		return m, true
	case domain.RawReport:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			s, ok := k.(string)
			if !ok {
				continue
			}
			out[s] = val
		}
		return out, true
	}
	return nil, false
}

func asFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// normalize converts YAML-style map[any]any values so they can be JSON encoded.
func normalize(v any) any {
	switch t := v.(type) {
	case map[any]any:
		m, _ := asMap(t)
		return normalize(m)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}
