package window

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternError reports an invalid window-pattern alternative. It disables
// only the offending bot at discovery time.
type PatternError struct {
	Pattern string
	Alt     string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("window pattern %q: alternative %q: %v", e.Pattern, e.Alt, e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }

// Pattern is a compiled window pattern: a '|'-separated alternation whose
// alternatives are compiled independently and OR-ed at match time.
//
// The split happens before compilation, so an unescaped '|' inside an
// alternative is always treated as top-level alternation. Bots that need a
// literal '|' in a title cannot express it; the documented contract is
// ambiguous here and this implementation picks the split-first reading.
type Pattern struct {
	raw  string
	alts []*regexp.Regexp
}

func CompilePattern(raw string) (*Pattern, error) {
	p := &Pattern{raw: raw}
	for _, alt := range strings.Split(raw, "|") {
		if alt == "" {
			continue
		}
		re, err := regexp.Compile(alt)
		if err != nil {
			return nil, &PatternError{Pattern: raw, Alt: alt, Err: err}
		}
		p.alts = append(p.alts, re)
	}
	if len(p.alts) == 0 {
		return nil, &PatternError{Pattern: raw, Alt: raw, Err: fmt.Errorf("no usable alternatives")}
	}
	return p, nil
}

func (p *Pattern) String() string { return p.raw }

// Match reports whether any alternative matches the title.
func (p *Pattern) Match(title string) bool {
	for _, re := range p.alts {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}
