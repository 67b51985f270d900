package app

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// writeStepSummary appends a markdown report of one command to the file named
// by GITHUB_STEP_SUMMARY, when set.
func (r *Runner) writeStepSummary(command string, res Result, opErr error) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "## gitwagon %s\n\n", command)
	buf.WriteString("| Remote | Branch | State | Published |\n| --- | --- | --- | --- |\n")
	fmt.Fprintf(&buf, "| %s | %s | %s | %t |\n",
		sanitizeMarkdownCell(res.Identity.RemoteURL),
		sanitizeMarkdownCell(res.Identity.Branch),
		sanitizeMarkdownCell(res.State.String()),
		res.Published)
	if opErr != nil {
		fmt.Fprintf(&buf, "\nFailed: %s\n", sanitizeMarkdownCell(opErr.Error()))
	}

	return r.appendFile("GITHUB_STEP_SUMMARY", buf.Bytes())
}

// writeGitHubOutputs exposes the result as step outputs through GITHUB_OUTPUT.
func (r *Runner) writeGitHubOutputs(res Result) error {
	var buf bytes.Buffer
	for _, kv := range [][2]string{
		{"published", strconv.FormatBool(res.Published)},
		{"workspace", res.Workspace},
	} {
		fmt.Fprintf(&buf, "%s<<EOF\n%s\nEOF\n", kv[0], kv[1])
	}

	return r.appendFile("GITHUB_OUTPUT", buf.Bytes())
}

// appendFile appends data to the file named by the environment variable env.
// An unset variable means the command is not running under Actions.
func (r *Runner) appendFile(env string, data []byte) error {
	path := strings.TrimSpace(os.Getenv(env))
	if path == "" {
		return nil
	}

	// Actions creates the directory; a failure here surfaces on open.
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.log.Warn("could not create directory", "env", env, "error", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", env, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", env, err)
	}
	return f.Close()
}

func sanitizeMarkdownCell(value string) string {
	value = strings.NewReplacer("|", `\|`, "\n", "<br>").Replace(value)
	if value = strings.TrimSpace(value); value == "" {
		return "-"
	}
	return value
}
