// Package analyzer runs the external repository-analysis command and decodes its report.
package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"gopkg.in/yaml.v3"

	"github.com/arturoeanton/gitsum/internal/domain"
	"github.com/arturoeanton/gitsum/internal/port"
)

// Report output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatAuto = "auto"
)

const (
	maxDiagnostic = 2000
	waitDelay     = 2 * time.Second
)

// CommandAnalyzer implements port.Analyzer by executing a command line with the
// checkout directory appended as its final argument.
type CommandAnalyzer struct {
	argv   []string
	format string
}

// NewCommandAnalyzer parses a shell-style command line such as "npx repomix analyze".
func NewCommandAnalyzer(commandLine, format string) (*CommandAnalyzer, error) {
	argv, err := shellquote.Split(commandLine)
	if err != nil {
		return nil, fmt.Errorf("parse analyzer command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("analyzer command is empty")
	}

	switch format {
	case "":
		format = FormatJSON
	case FormatJSON, FormatYAML, FormatAuto:
	default:
		return nil, fmt.Errorf("unsupported analyzer output format %q", format)
	}

	return &CommandAnalyzer{argv: argv, format: format}, nil
}

// Analyze runs the command against dir and decodes stdout into a report.
func (a *CommandAnalyzer) Analyze(ctx context.Context, dir string) (domain.RawReport, error) {
	args := append(append([]string{}, a.argv[1:]...), dir)
	cmd := exec.CommandContext(ctx, a.argv[0], args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("analyzer %s: %w", a.argv[0], port.ErrTimeout)
		}
		return nil, fmt.Errorf("analyzer %s: %w: %s", a.argv[0], port.ErrExternalTool, diagnostic(stderr.String(), err))
	}

	slog.Debug("analyzer finished", "command", a.argv[0], "bytes", stdout.Len(), "duration", time.Since(start))

	report, err := Decode(stdout.Bytes(), a.format)
	if err != nil {
		return nil, fmt.Errorf("analyzer %s: %w: %v", a.argv[0], port.ErrExternalTool, err)
	}
	return report, nil
}

// Decode parses a report in the given format. The top level must be a mapping.
func Decode(data []byte, format string) (domain.RawReport, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("malformed report: empty output")
	}

	if format == FormatAuto {
		format = FormatYAML
		if trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	var raw any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("malformed report: %w", err)
		}
	default:
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("malformed report: %w", err)
		}
	}

	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("malformed report: top level is %T, not a mapping", raw)
	}
	return domain.RawReport(m), nil
}

func diagnostic(stderr string, err error) string {
	msg := strings.TrimSpace(stderr)
	if msg == "" {
		return err.Error()
	}
	if len(msg) > maxDiagnostic {
		return msg[:maxDiagnostic-3] + "..."
	}
	return msg
}
