package analyzer

import "regexp"

// symbol is one declaration found by the line scanners.
type symbol struct {
	kind string
	name string
	line int
}

type symbolRule struct {
	kind string
	re   *regexp.Regexp
}

// symbolRules cover the declaration shapes of the languages the scanner
// most often meets. Anchored line regexes, no lexing.
var symbolRules = []symbolRule{
	{kind: "function", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
	{kind: "function", re: regexp.MustCompile(`^func\s+(?:\([^)]+\)\s+)?([A-Za-z_][A-Za-z0-9_]*)`)},
	{kind: "function", re: regexp.MustCompile(`^\s*(?:async\s+)?def\s+([A-Za-z_][A-Za-z0-9_]*)`)},
	{kind: "class", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:abstract\s+)?class\s+([A-Za-z_$][A-Za-z0-9_$]*)`)},
	{kind: "type", re: regexp.MustCompile(`^type\s+([A-Za-z_][A-Za-z0-9_]*)\s+(?:struct|interface)\b`)},
	{kind: "type", re: regexp.MustCompile(`^\s*(?:export\s+)?(?:type|interface)\s+([A-Za-z_$][A-Za-z0-9_$]*)\s*[={]`)},
}

// extractSymbols scans lines for declarations. At most one symbol is
// taken per line, first matching rule wins.
func extractSymbols(lines []string) []symbol {
	var syms []symbol

	for i, line := range lines {
		for _, rule := range symbolRules {
			m := rule.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}

			syms = append(syms, symbol{kind: rule.kind, name: m[1], line: i + 1})

			break
		}
	}

	return syms
}
