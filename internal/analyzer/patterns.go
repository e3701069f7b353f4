package analyzer

import (
	"math"
	"path"
	"regexp"
	"strings"

	"github.com/codescout-dev/codescout/pkg/engine"
)

const (
	// todoThreshold is the marker count below which a file is not worth
	// flagging.
	todoThreshold = 3

	// oversizedLines flags files long enough to resist review.
	oversizedLines = 500
)

var (
	todoRe = regexp.MustCompile(`(?i)\b(?:TODO|FIXME|HACK|XXX)\b`)

	credentialRe = regexp.MustCompile(
		`(?i)\b(?:password|passwd|secret|api[_-]?key|auth[_-]?token|access[_-]?key)\b\s*[:=]{1,2}\s*['"][^'"]{4,}['"]`)

	testFileRe = regexp.MustCompile(
		`(?:^test_.*\.py$)|(?:_test\.go$)|(?:\.test\.[jt]sx?$)|(?:\.spec\.[jt]sx?$)|(?:_spec\.rb$)`)
)

var entrypointNames = map[string]struct{}{
	"main.go":  {},
	"index.js": {},
	"index.ts": {},
	"main.py":  {},
	"app.py":   {},
	"main.c":   {},
	"main.rs":  {},
}

var configExts = map[string]struct{}{
	".json":       {},
	".yaml":       {},
	".yml":        {},
	".toml":       {},
	".ini":        {},
	".conf":       {},
	".properties": {},
}

// detectPatterns runs the pattern detectors over one file. Confidence
// reflects how direct the evidence is: content beats naming.
func detectPatterns(file string, lines []string, lineCount int) []engine.Pattern {
	base := path.Base(file)

	var pats []engine.Pattern

	add := func(kind string, conf float64, props map[string]any) {
		pats = append(pats, engine.Pattern{
			Type:       kind,
			Name:       base,
			File:       file,
			Confidence: conf,
			Properties: props,
		})
	}

	switch {
	case hasMainSignature(lines):
		add("entrypoint", 0.9, nil)
	case isEntrypointName(base):
		add("entrypoint", 0.6, nil)
	}

	if testFileRe.MatchString(base) {
		add("test-file", 0.95, nil)
	}

	if _, ok := configExts[strings.ToLower(path.Ext(base))]; ok {
		add("config-file", 0.8, nil)
	}

	if todos := countMatches(lines, todoRe); todos >= todoThreshold {
		conf := math.Min(0.4+0.1*float64(todos), 0.95)
		add("todo-density", conf, map[string]any{"count": todos})
	}

	if lineCount > oversizedLines {
		add("oversized-file", 0.8, map[string]any{"lines": lineCount})
	}

	if n, first := firstCredential(lines); n > 0 {
		add("hardcoded-credential", 0.6, map[string]any{"matches": n, "line": first})
	}

	return pats
}

func isEntrypointName(base string) bool {
	_, ok := entrypointNames[base]

	return ok
}

func hasMainSignature(lines []string) bool {
	for _, line := range lines {
		if strings.HasPrefix(line, "func main(") {
			return true
		}

		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "int main(") {
			return true
		}

		if strings.Contains(trimmed, "__name__") && strings.Contains(trimmed, "__main__") {
			return true
		}
	}

	return false
}

func countMatches(lines []string, re *regexp.Regexp) int {
	n := 0
	for _, line := range lines {
		n += len(re.FindAllString(line, -1))
	}

	return n
}

// firstCredential returns the match count and the 1-based line of the
// first hit.
func firstCredential(lines []string) (int, int) {
	n, first := 0, 0

	for i, line := range lines {
		if credentialRe.MatchString(line) {
			if n == 0 {
				first = i + 1
			}

			n++
		}
	}

	return n, first
}
