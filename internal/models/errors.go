package models

import (
	"fmt"
	"strings"
)

// ConfigParseError reports an invalid scene configuration. It is fatal at load.
type ConfigParseError struct {
	Element   string // element name, e.g. "ball"
	Attribute string // empty when the problem is not tied to one attribute
	Reason    string
}

func (e *ConfigParseError) Error() string {
	if e.Attribute != "" {
		return fmt.Sprintf("config: <%s> %s: %s", e.Element, e.Attribute, e.Reason)
	}
	if e.Element != "" {
		return fmt.Sprintf("config: <%s>: %s", e.Element, e.Reason)
	}
	return "config: " + e.Reason
}

// DataFormatError reports a bad data line. Ingestion stops at the first one.
type DataFormatError struct {
	Line    int    `json:"line"`
	Column  int    `json:"column,omitempty"`
	Content string `json:"content,omitempty"`
	Reason  string `json:"reason"`
}

func (e *DataFormatError) Error() string {
	if e.Column > 0 {
		return fmt.Sprintf("data line %d, column %d: %s", e.Line, e.Column, e.Reason)
	}
	return fmt.Sprintf("data line %d: %s", e.Line, e.Reason)
}

// ResourceLimitError reports that a collection exceeds its configured ceiling.
type ResourceLimitError struct {
	Resource string
	Limit    int
}

func (e *ResourceLimitError) Error() string {
	return fmt.Sprintf("too many %s (limit %d)", e.Resource, e.Limit)
}

// CycleError reports a parent chain that revisits a body.
type CycleError struct {
	Relation string // "xy_parent" or "theta_parent"
	Chain    []int  // body ids in visiting order, the repeated id last
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Chain))
	for i, id := range e.Chain {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("%s cycle: %s", e.Relation, strings.Join(ids, " -> "))
}
