package rules

import (
	"errors"
	"fmt"
)

var ErrEmptyTopic = errors.New("route rule requires a topic")

// Action is the disposition of a rule as written in a rule file.
type Action string

const (
	ActionDrop  Action = "drop"
	ActionRoute Action = "route"
)

// ExcludeRule drops every cell it matches.
type ExcludeRule struct {
	Criterion
}

// NewExcludeRule returns an ExcludeRule for c.
func NewExcludeRule(c Criterion) ExcludeRule {
	return ExcludeRule{Criterion: c}
}

func (r ExcludeRule) String() string {
	return describe(ActionDrop, r.Criterion, "")
}

// RouteRule publishes every cell it matches to Topic.
type RouteRule struct {
	Criterion
	Topic string
}

// NewRouteRule returns a RouteRule for c. The topic must not be empty.
func NewRouteRule(c Criterion, topic string) (RouteRule, error) {
	if topic == "" {
		return RouteRule{}, ErrEmptyTopic
	}
	return RouteRule{Criterion: c, Topic: topic}, nil
}

func (r RouteRule) String() string {
	return describe(ActionRoute, r.Criterion, r.Topic)
}

func describe(action Action, c Criterion, topic string) string {
	s := fmt.Sprintf("action=%s", action)
	if !c.Table.IsZero() {
		s += fmt.Sprintf(" table=%s", c.Table)
	}
	if c.Family != nil {
		s += fmt.Sprintf(" columnFamily=%q", c.Family)
	}
	if c.Qualifier.Mode != QualifierAny {
		s += fmt.Sprintf(" qualifier=%q", c.Qualifier.String())
	}
	if topic != "" {
		s += fmt.Sprintf(" topic=%s", topic)
	}
	return s
}
