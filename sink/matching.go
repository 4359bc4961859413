package sink

import (
	"regexp"
	"strings"
)

// MatchingStrategy is the algorithm a Pattern uses
type MatchingStrategy int

const (
	// StrategySimple handles a literal or a pattern with a single '*'
	StrategySimple MatchingStrategy = iota
	// StrategyRegex translates the glob into a compiled regular expression
	StrategyRegex
	// StrategyAutomaton walks the glob with backtracking, like KEYS does
	StrategyAutomaton
)

func (s MatchingStrategy) String() string {
	switch s {
	case StrategySimple:
		return "simple"
	case StrategyRegex:
		return "regex"
	case StrategyAutomaton:
		return "automaton"
	default:
		return "unknown"
	}
}

// Pattern is a compiled Redis glob: '*', '?', '[a-z]', '[^x]' and '\'
// escapes.
type Pattern struct {
	raw      string
	strategy MatchingStrategy
	re       *regexp.Regexp
}

// CompilePattern picks the cheapest strategy able to evaluate pattern.
func CompilePattern(pattern string) (*Pattern, error) {
	if isSimplePattern(pattern) {
		return &Pattern{raw: pattern, strategy: StrategySimple}, nil
	}
	return &Pattern{raw: pattern, strategy: StrategyAutomaton}, nil
}

// CompilePatternWithStrategy forces a strategy. StrategySimple falls back
// to the automaton when the pattern needs more than one wildcard.
func CompilePatternWithStrategy(pattern string, strategy MatchingStrategy) (*Pattern, error) {
	switch strategy {
	case StrategyRegex:
		re, err := regexp.Compile("^" + globToRegex(pattern) + "$")
		if err != nil {
			return nil, err
		}
		return &Pattern{raw: pattern, strategy: StrategyRegex, re: re}, nil
	case StrategySimple:
		return CompilePattern(pattern)
	default:
		return &Pattern{raw: pattern, strategy: StrategyAutomaton}, nil
	}
}

// String returns the source glob
func (p *Pattern) String() string { return p.raw }

// Strategy returns the strategy in use
func (p *Pattern) Strategy() MatchingStrategy { return p.strategy }

// Match reports whether key matches the pattern
func (p *Pattern) Match(key []byte) bool {
	switch p.strategy {
	case StrategySimple:
		return matchPatternSimple(string(key), p.raw)
	case StrategyRegex:
		return p.re.Match(key)
	default:
		return matchAutomaton(key, []byte(p.raw))
	}
}

func isSimplePattern(pattern string) bool {
	if strings.ContainsAny(pattern, "?[\\") {
		return false
	}
	return strings.Count(pattern, "*") <= 1
}

// matchPatternSimple handles literals, prefix*, *suffix and pre*post
func matchPatternSimple(key, pattern string) bool {
	starIndex := strings.IndexByte(pattern, '*')
	if starIndex == -1 {
		return key == pattern
	}
	prefix, suffix := pattern[:starIndex], pattern[starIndex+1:]
	return len(key) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(key, prefix) && strings.HasSuffix(key, suffix)
}

// globToRegex converts a glob pattern to a regular expression
func globToRegex(pattern string) string {
	var result strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			result.WriteString("(?s:.*)")
		case '?':
			result.WriteString("(?s:.)")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end == -1 {
				result.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "^") {
				class = "^" + regexp.QuoteMeta(class[1:])
			} else {
				class = regexp.QuoteMeta(class)
			}
			// QuoteMeta escapes '-', ranges must survive
			result.WriteString("[" + strings.ReplaceAll(class, `\-`, "-") + "]")
			i += end + 1
		case '\\':
			if i+1 < len(pattern) {
				i++
				result.WriteString(regexp.QuoteMeta(string(pattern[i])))
			} else {
				result.WriteString(`\\`)
			}
		default:
			result.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return result.String()
}

// matchAutomaton follows the semantics of Redis stringmatchlen: '*' runs
// are collapsed and retried at every position, '[...]' supports ranges and
// negation, '\' escapes the next byte.
func matchAutomaton(str, pattern []byte) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 1 && pattern[1] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 1 {
				return true
			}
			for i := 0; i <= len(str); i++ {
				if matchAutomaton(str[i:], pattern[1:]) {
					return true
				}
			}
			return false
		case '?':
			if len(str) == 0 {
				return false
			}
			str = str[1:]
		case '[':
			if len(str) == 0 {
				return false
			}
			rest, ok := matchClass(str[0], pattern[1:])
			if !ok {
				return false
			}
			pattern = rest
			str = str[1:]
			continue
		case '\\':
			if len(pattern) >= 2 {
				pattern = pattern[1:]
			}
			fallthrough
		default:
			if len(str) == 0 || str[0] != pattern[0] {
				return false
			}
			str = str[1:]
		}
		pattern = pattern[1:]
	}
	return len(str) == 0
}

// matchClass matches c against the class body following '[' and returns
// the pattern after the closing ']'.
func matchClass(c byte, pattern []byte) ([]byte, bool) {
	not := len(pattern) > 0 && pattern[0] == '^'
	if not {
		pattern = pattern[1:]
	}
	match := false
	for len(pattern) > 0 && pattern[0] != ']' {
		switch {
		case pattern[0] == '\\' && len(pattern) >= 2:
			if pattern[1] == c {
				match = true
			}
			pattern = pattern[2:]
		case len(pattern) >= 3 && pattern[1] == '-' && pattern[2] != ']':
			lo, hi := pattern[0], pattern[2]
			if lo > hi {
				lo, hi = hi, lo
			}
			if c >= lo && c <= hi {
				match = true
			}
			pattern = pattern[3:]
		default:
			if pattern[0] == c {
				match = true
			}
			pattern = pattern[1:]
		}
	}
	if len(pattern) > 0 {
		// skip ']'
		pattern = pattern[1:]
	}
	if not {
		match = !match
	}
	return pattern, match
}
