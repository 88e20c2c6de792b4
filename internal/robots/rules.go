// Package robots loads robots.txt resources and answers crawl-permission
// queries. The default evaluator applies rules in file order and lets the
// last matching rule win; a longest-match evaluator is available for sites
// that need the conventional semantics.
package robots

import (
	"net/url"
	"strings"
)

// Directive is the verb of a robots rule.
type Directive int

// Supported directives.
const (
	Disallow Directive = iota
	Allow
)

func (d Directive) String() string {
	if d == Allow {
		return "Allow"
	}
	return "Disallow"
}

// Rule is a single directive with its path prefix.
type Rule struct {
	Directive Directive
	Path      string
}

// Evaluator answers whether a URL path may be fetched.
type Evaluator interface {
	Allowed(path string) bool
}

// RuleSet is the ordered rule list of the agent group selected at parse time.
// The zero value allows everything.
type RuleSet struct {
	rules []Rule
}

// NewRuleSet builds a RuleSet from rules in evaluation order. Rules with an
// empty path are dropped; the rest are stored in CanonicalPath form.
func NewRuleSet(rules ...Rule) RuleSet {
	out := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Path == "" {
			continue
		}
		r.Path = CanonicalPath(r.Path)
		out = append(out, r)
	}
	return RuleSet{rules: out}
}

// CanonicalPath percent-escapes a path, with an optional query, the way
// url.URL.EscapedPath does. Rule paths and queried paths both go through it,
// so "/新闻/" and "/%E6%96%B0%E9%97%BB/" compare equal. Valid escapes such as
// %2F are kept as written.
func CanonicalPath(p string) string {
	rawPath, rawQuery, hasQuery := strings.Cut(p, "?")
	u := url.URL{Path: rawPath, RawPath: rawPath}
	if unescaped, err := url.PathUnescape(rawPath); err == nil {
		u.Path = unescaped
	}
	out := u.EscapedPath()
	if hasQuery {
		out += "?" + escapeNonASCII(rawQuery)
	}
	return out
}

// escapeNonASCII percent-encodes bytes outside printable ASCII and leaves
// everything else, including existing escapes, untouched.
func escapeNonASCII(s string) string {
	const hex = "0123456789ABCDEF"
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c >= 0x7f {
			sb.WriteByte('%')
			sb.WriteByte(hex[c>>4])
			sb.WriteByte(hex[c&0x0f])
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}

// Rules returns a copy of the rules in evaluation order.
func (rs RuleSet) Rules() []Rule {
	return append([]Rule(nil), rs.rules...)
}

// Len reports the number of rules.
func (rs RuleSet) Len() int {
	return len(rs.rules)
}

// Allowed walks every rule in order; each rule whose path prefixes the query
// overrides the verdict, so the last match wins regardless of specificity.
func (rs RuleSet) Allowed(path string) bool {
	path = CanonicalPath(path)
	allowed := true
	for _, r := range rs.rules {
		if strings.HasPrefix(path, r.Path) {
			allowed = r.Directive == Allow
		}
	}
	return allowed
}

// Parse reads robots text and returns the rules for userAgent. An exact
// (case-insensitive) agent group wins over the "*" group; with neither the
// result is empty. Every User-agent line resets the active group to that
// single agent, and an agent declared twice keeps only its last group.
func Parse(text, userAgent string) RuleSet {
	groups := make(map[string][]Rule)
	var active []string

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			agent := strings.ToLower(value)
			active = []string{agent}
			groups[agent] = []Rule{}
		case "allow", "disallow":
			if value == "" {
				continue
			}
			directive := Disallow
			if key == "allow" {
				directive = Allow
			}
			rule := Rule{Directive: directive, Path: CanonicalPath(value)}
			for _, agent := range active {
				groups[agent] = append(groups[agent], rule)
			}
		}
	}

	if rules, ok := groups[strings.ToLower(strings.TrimSpace(userAgent))]; ok {
		return RuleSet{rules: rules}
	}
	return RuleSet{rules: groups["*"]}
}
