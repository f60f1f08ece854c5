package rules

import "slices"

// RuleSet is an immutable snapshot of drop and route rules.
// It is safe for concurrent use once built.
type RuleSet struct {
	excludes []ExcludeRule
	routes   []RouteRule
}

// NewRuleSet builds a snapshot. The slices are copied.
func NewRuleSet(excludes []ExcludeRule, routes []RouteRule) *RuleSet {
	return &RuleSet{
		excludes: slices.Clone(excludes),
		routes:   slices.Clone(routes),
	}
}

// Empty returns a rule set that routes nothing.
func Empty() *RuleSet {
	return &RuleSet{}
}

// IsExcluded reports whether any drop rule matches the cell.
func (rs *RuleSet) IsExcluded(table TableName, family, qualifier []byte) bool {
	for _, r := range rs.excludes {
		if r.Match(table, family, qualifier) {
			return true
		}
	}
	return false
}

// TopicsFor returns the topic of every matching route rule in declaration
// order. Two rules naming the same topic yield that topic twice.
func (rs *RuleSet) TopicsFor(table TableName, family, qualifier []byte) []string {
	var topics []string
	for _, r := range rs.routes {
		if r.Match(table, family, qualifier) {
			topics = append(topics, r.Topic)
		}
	}
	return topics
}

func (rs *RuleSet) ExcludeRules() []ExcludeRule {
	return slices.Clone(rs.excludes)
}

func (rs *RuleSet) RouteRules() []RouteRule {
	return slices.Clone(rs.routes)
}

// Len returns the total number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.excludes) + len(rs.routes)
}
