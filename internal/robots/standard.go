package robots

import (
	"fmt"

	"github.com/temoto/robotstxt"
)

// Mode selects the rule evaluation semantics.
type Mode string

// Supported evaluation modes.
const (
	// ModeLastMatch applies rules in file order; the last matching rule wins.
	ModeLastMatch Mode = "last-match"
	// ModeStandard applies longest-match precedence via temoto/robotstxt.
	ModeStandard Mode = "standard"
)

// Valid reports whether m names a supported mode.
func (m Mode) Valid() bool {
	return m == ModeLastMatch || m == ModeStandard
}

type standardRules struct {
	group *robotstxt.Group
}

func (s standardRules) Allowed(path string) bool {
	if s.group == nil {
		return true
	}
	return s.group.Test(path)
}

func parseStandard(body []byte, userAgent string) (Evaluator, error) {
	data, err := robotstxt.FromBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return standardRules{group: data.FindGroup(userAgent)}, nil
}
