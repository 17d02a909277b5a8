package compiler

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/result"
)

const maxRawOutput = 4096

var (
	gccLine = regexp.MustCompile(`^(.+?):(\d+):(?:(\d+):)? (fatal error|error|warning|note): (.*)$`)
	goLine  = regexp.MustCompile(`^(.+?\.go):(\d+)(?::(\d+))?: (.*)$`)
)

// ParseDiagnostics converts toolchain output into diagnostics. Paths under
// workDir are reported relative to it.
func ParseDiagnostics(format profile.DiagnosticFormat, output, workDir string) []result.Diagnostic {
	output = scrubWorkDir(output, workDir)
	switch format {
	case profile.DiagnosticFormatGo:
		return parseGo(output)
	default:
		return parseGCC(output)
	}
}

func parseGCC(output string) []result.Diagnostic {
	diags := make([]result.Diagnostic, 0)
	for _, line := range strings.Split(output, "\n") {
		m := gccLine.FindStringSubmatch(strings.TrimRight(line, "\r"))
		if m == nil {
			continue
		}
		diags = append(diags, result.Diagnostic{
			Severity: gccSeverity(m[4]),
			Message:  m[5],
			File:     cleanFile(m[1]),
			Line:     atoi(m[2]),
			Column:   atoi(m[3]),
		})
	}
	return diags
}

func gccSeverity(s string) result.Severity {
	switch s {
	case "warning":
		return result.SeverityWarning
	case "note":
		return result.SeverityInfo
	default:
		return result.SeverityError
	}
}

// parseGo handles go build and go vet output. Indented lines continue the
// previous diagnostic.
func parseGo(output string) []result.Diagnostic {
	diags := make([]result.Diagnostic, 0)
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "\t") && len(diags) > 0 {
			last := &diags[len(diags)-1]
			last.Message += "\n" + strings.TrimSpace(line)
			continue
		}
		m := goLine.FindStringSubmatch(strings.TrimPrefix(line, "vet: "))
		if m == nil {
			continue
		}
		diags = append(diags, result.Diagnostic{
			Severity: result.SeverityError,
			Message:  m[4],
			File:     cleanFile(m[1]),
			Line:     atoi(m[2]),
			Column:   atoi(m[3]),
		})
	}
	return diags
}

// rawDiagnostic wraps unparseable failure output.
func rawDiagnostic(output string, exitCode int) result.Diagnostic {
	msg := strings.TrimSpace(output)
	if msg == "" {
		msg = "compiler exited with code " + strconv.Itoa(exitCode)
	}
	if len(msg) > maxRawOutput {
		msg = msg[:maxRawOutput] + "..."
	}
	return result.Diagnostic{Severity: result.SeverityError, Message: msg}
}

func asWarnings(diags []result.Diagnostic) []result.Diagnostic {
	for i := range diags {
		diags[i].Severity = result.SeverityWarning
	}
	return diags
}

func scrubWorkDir(output, workDir string) string {
	if workDir == "" {
		return output
	}
	return strings.ReplaceAll(output, workDir+string(filepath.Separator), "")
}

func cleanFile(path string) string {
	return strings.TrimPrefix(path, "./")
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	n, _ := strconv.Atoi(s)
	return n
}
