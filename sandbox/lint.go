package sandbox

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// LintError is one syntax problem found in a payload.
type LintError struct {
	Path    string `json:"path"`
	Lang    string `json:"lang"`
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Linter validates Python and JS/TS payloads before they reach disk.
// Python goes through the interpreter's own parser; JS/TS gets a
// string-aware balance check that catches broken structure without a
// full parser.
type Linter struct {
	// pythonBin is resolved once; empty means Python lint is skipped.
	pythonBin string
}

// NewLinter creates a linter, locating a Python interpreter if one is
// on PATH.
func NewLinter() *Linter {
	l := &Linter{}
	for _, bin := range []string{"python3", "python"} {
		if path, err := exec.LookPath(bin); err == nil {
			l.pythonBin = path
			break
		}
	}
	return l
}

// Lint checks content by the language inferred from the path extension.
// Unknown languages pass.
func (l *Linter) Lint(path, content string) []LintError {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "py":
		return l.lintPython(path, content)
	case "js", "jsx", "ts", "tsx":
		return lintJavaScript(path, content)
	}
	return nil
}

// pyLineRe pulls the line number out of a SyntaxError traceback.
var pyLineRe = regexp.MustCompile(`line (\d+)`)

// lintPython parses the payload with the interpreter's own grammar by
// feeding it to ast.parse over stdin. Without an interpreter the check
// is skipped rather than failing writes.
func (l *Linter) lintPython(path, content string) []LintError {
	if l.pythonBin == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, l.pythonBin, "-c", "import ast,sys; ast.parse(sys.stdin.read())")
	cmd.Stdin = strings.NewReader(content)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}

	msg := "invalid syntax"
	line := 0
	for _, ln := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		ln = strings.TrimSpace(ln)
		if strings.HasPrefix(ln, "SyntaxError:") || strings.HasPrefix(ln, "IndentationError:") || strings.HasPrefix(ln, "TabError:") {
			msg = strings.TrimSpace(strings.SplitN(ln, ":", 2)[1])
		}
		if m := pyLineRe.FindStringSubmatch(ln); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				line = n
			}
		}
	}

	return []LintError{{Path: path, Lang: "python", Line: line, Message: msg}}
}

// lintJavaScript counts parens, brackets, and braces outside string
// literals (single, double, and template quotes, with escape handling).
// Imbalance means broken structure.
func lintJavaScript(path, content string) []LintError {
	var parens, brackets, braces int
	var inString rune
	escape := false

	for _, c := range content {
		if escape {
			escape = false
			continue
		}
		if inString != 0 {
			if c == '\\' {
				escape = true
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"', '`':
			inString = c
		case '(':
			parens++
		case ')':
			parens--
		case '[':
			brackets++
		case ']':
			brackets--
		case '{':
			braces++
		case '}':
			braces--
		}
		if parens < 0 || brackets < 0 || braces < 0 {
			break
		}
	}

	if parens != 0 || brackets != 0 || braces != 0 {
		return []LintError{{
			Path:    path,
			Lang:    "javascript",
			Line:    0,
			Message: "Parênteses, colchetes ou chaves desbalanceados",
		}}
	}
	return nil
}
