// Package prompt assembles the bounded context sent to the model on each chat turn.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/arturoeanton/gitsum/internal/domain"
)

// DefaultHistoryLimit is the number of prior messages carried into a prompt.
const DefaultHistoryLimit = 10

// DefaultSystemTemplate opens every prompt.
const DefaultSystemTemplate = `You are GitSum, an AI assistant specialized in helping developers understand source-code repositories.`

const closingInstruction = `Provide a helpful, accurate, and concise response based only on the repository information and conversation above. If you don't know something or the information is not in the provided context, say so explicitly.`

// charsPerToken is the rough ratio used by the optional token budget.
const charsPerToken = 4

// ErrEmptyMessage is returned when the current message is blank.
var ErrEmptyMessage = errors.New("current message is empty")

// Builder renders digests and chat history into prompts.
type Builder struct {
	// HistoryLimit caps how many prior messages are included. Zero means DefaultHistoryLimit.
	HistoryLimit int

	// TokenBudget, when positive, further drops the oldest included messages
	// until the estimated history size fits.
	TokenBudget int

	// SystemTemplate replaces DefaultSystemTemplate when non-empty.
	SystemTemplate string
}

// NewBuilder creates a builder with the given history limit and template.
func NewBuilder(historyLimit, tokenBudget int, systemTemplate string) *Builder {
	return &Builder{
		HistoryLimit:   historyLimit,
		TokenBudget:    tokenBudget,
		SystemTemplate: systemTemplate,
	}
}

// BuildPrompt renders a prompt with the default limits.
func BuildPrompt(d *domain.Digest, history []domain.ChatMessage, current, systemTemplate string) (string, error) {
	return (&Builder{SystemTemplate: systemTemplate}).Build(d, history, current)
}

// Build renders the digest blocks, the trailing window of history, the
// current message and the closing instruction. Empty digest fields are omitted.
func (b *Builder) Build(d *domain.Digest, history []domain.ChatMessage, current string) (string, error) {
	current = strings.TrimSpace(current)
	if current == "" {
		return "", ErrEmptyMessage
	}

	tmpl := strings.TrimSpace(b.SystemTemplate)
	if tmpl == "" {
		tmpl = DefaultSystemTemplate
	}

	var sb strings.Builder
	sb.WriteString(tmpl)
	sb.WriteString("\n\n")

	if blocks := renderDigest(d); blocks != "" {
		sb.WriteString("Repository Information:\n")
		sb.WriteString(blocks)
	}

	if window := b.window(history); len(window) > 0 {
		sb.WriteString("Previous Conversation:\n")
		sb.WriteString(renderHistory(window))
		sb.WriteString("\n\n")
	}

	sb.WriteString(domain.RoleUser.Label())
	sb.WriteString(": ")
	sb.WriteString(current)
	sb.WriteString("\n\n")
	sb.WriteString(closingInstruction)

	return sb.String(), nil
}

// window returns the messages that fit the history limit and token budget, oldest first.
func (b *Builder) window(history []domain.ChatMessage) []domain.ChatMessage {
	limit := b.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	if b.TokenBudget <= 0 {
		return history
	}
	for len(history) > 0 && estimateTokens(renderHistory(history)) > b.TokenBudget {
		history = history[1:]
	}
	return history
}

func estimateTokens(s string) int {
	return (len(s) + charsPerToken - 1) / charsPerToken
}

func renderHistory(msgs []domain.ChatMessage) string {
	lines := make([]string, len(msgs))
	for i, m := range msgs {
		lines[i] = fmt.Sprintf("%s: %s", m.Role.Label(), m.Content)
	}
	return strings.Join(lines, "\n\n")
}

// renderDigest writes each non-empty digest field as a titled block followed by a blank line.
func renderDigest(d *domain.Digest) string {
	if d == nil {
		return ""
	}

	var sb strings.Builder
	block := func(title, body string) {
		if body == "" {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		sb.WriteString(body)
		sb.WriteString("\n\n")
	}

	block("Repository Summary", strings.TrimSpace(d.Summary))
	block("Languages", renderLanguages(d.Languages))
	block("Dependencies", strings.Join(d.DependencyNames, ", "))
	block("File Structure", renderTree(d.FileTree))
	block("Key Files", renderKeyFiles(d.KeyFiles))
	block("Code Patterns", strings.Join(d.CodePatterns, ", "))

	return sb.String()
}

// renderLanguages lists languages by descending share, ties broken by name.
func renderLanguages(langs map[string]float64) string {
	if len(langs) == 0 {
		return ""
	}
	names := make([]string, 0, len(langs))
	for name := range langs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if langs[names[i]] != langs[names[j]] {
			return langs[names[i]] > langs[names[j]]
		}
		return names[i] < names[j]
	})

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %s%%", name, strconv.FormatFloat(langs[name], 'f', -1, 64))
	}
	return strings.Join(parts, ", ")
}

func renderTree(tree domain.FileTree) string {
	if len(tree) == 0 {
		return ""
	}
	b, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return ""
	}
	return string(b)
}

func renderKeyFiles(files []domain.KeyFile) string {
	if len(files) == 0 {
		return ""
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, fmt.Sprintf("Path: %s\nContent:\n%s", f.Path, f.Content))
	}
	return strings.Join(parts, "\n\n")
}
