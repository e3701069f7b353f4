package analyzer

import (
	"path"
	"regexp"
	"strings"
)

// importRules capture the module specifier of common import forms.
var importRules = []*regexp.Regexp{
	// ES modules, with or without a binding list.
	regexp.MustCompile(`^\s*import\s+(?:[\w$*{},\s]+?\s+from\s+)?['"]([^'"]+)['"]`),
	// CommonJS.
	regexp.MustCompile(`require\(\s*['"]([^'"]+)['"]\s*\)`),
	// Python relative imports. Absolute ones never map to a file here.
	regexp.MustCompile(`^\s*from\s+(\.[\w.]*)\s+import\b`),
	// Local C/C++ includes.
	regexp.MustCompile(`^\s*#include\s+"([^"]+)"`),
}

// resolveExts are tried in order when a specifier has no extension.
var resolveExts = []string{
	".ts", ".tsx", ".js", ".jsx", ".mjs",
	".py", ".go", ".rb", ".rs",
	".c", ".h", ".cpp", ".hpp",
}

// indexExts are tried for directory imports.
var indexExts = []string{".ts", ".tsx", ".js", ".jsx"}

// extractImports scans lines for import specifiers. One specifier is
// taken per line, first matching rule wins.
func extractImports(lines []string) []string {
	var specs []string

	for _, line := range lines {
		for _, rule := range importRules {
			m := rule.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			specs = append(specs, m[1])

			break
		}
	}

	return specs
}

// resolveRelative maps a relative import specifier to a repository file
// path. Only specifiers rooted in the importing file's directory
// resolve; bare module names are ignored. exists answers whether a
// slash-separated repository-relative path is a known file.
func resolveRelative(file, spec string, exists func(string) bool) (string, bool) {
	if !strings.HasPrefix(spec, ".") {
		return "", false
	}

	// Python spells same-directory imports as ".name".
	if len(spec) > 1 && spec[1] != '.' && spec[1] != '/' {
		spec = "./" + strings.ReplaceAll(spec[1:], ".", "/")
	}

	base := path.Join(path.Dir(file), spec)
	if base == ".." || strings.HasPrefix(base, "../") {
		return "", false
	}

	if path.Ext(base) != "" && exists(base) {
		return base, true
	}

	for _, ext := range resolveExts {
		if cand := base + ext; exists(cand) {
			return cand, true
		}
	}

	for _, ext := range indexExts {
		if cand := base + "/index" + ext; exists(cand) {
			return cand, true
		}
	}

	return "", false
}
