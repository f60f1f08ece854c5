package rules

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// Wildcard is the only wildcard character understood in qualifier patterns.
const Wildcard = "*"

// DefaultNamespace is assumed for table names given without a namespace.
const DefaultNamespace = "default"

var (
	ErrInvalidQualifier = errors.New("invalid qualifier pattern")
	ErrInvalidTable     = errors.New("invalid table name")
)

// QualifierMode selects how a qualifier pattern is compared with a candidate.
type QualifierMode int

const (
	QualifierAny QualifierMode = iota
	QualifierExact
	QualifierPrefix
	QualifierSuffix
	QualifierPrefixOrSuffix
)

func (m QualifierMode) String() string {
	switch m {
	case QualifierAny:
		return "any"
	case QualifierExact:
		return "exact"
	case QualifierPrefix:
		return "prefix"
	case QualifierSuffix:
		return "suffix"
	case QualifierPrefixOrSuffix:
		return "prefix-or-suffix"
	default:
		return fmt.Sprintf("QualifierMode(%d)", int(m))
	}
}

// QualifierPattern is a parsed qualifier criterion.
// Literal is empty only when Mode is QualifierAny.
type QualifierPattern struct {
	Mode    QualifierMode
	Literal []byte
}

// ParseQualifier turns a user supplied pattern into a QualifierPattern.
//
// A leading `*` asks for a suffix match, a trailing `*` for a prefix match and
// both together for a prefix-or-suffix match. A pattern that is empty, or that
// is empty once the wildcards are removed, matches every qualifier. A `*` in
// any other position is rejected.
func ParseQualifier(pattern string) (QualifierPattern, error) {
	if pattern == "" {
		return QualifierPattern{Mode: QualifierAny}, nil
	}

	literal := pattern
	suffix := strings.HasPrefix(literal, Wildcard)
	if suffix {
		literal = literal[len(Wildcard):]
	}
	prefix := strings.HasSuffix(literal, Wildcard)
	if prefix {
		literal = literal[:len(literal)-len(Wildcard)]
	}

	if literal == "" {
		return QualifierPattern{Mode: QualifierAny}, nil
	}
	if strings.Contains(literal, Wildcard) {
		return QualifierPattern{}, fmt.Errorf("%w: %q has a wildcard outside its edges", ErrInvalidQualifier, pattern)
	}

	qp := QualifierPattern{Literal: []byte(literal)}
	switch {
	case prefix && suffix:
		qp.Mode = QualifierPrefixOrSuffix
	case prefix:
		qp.Mode = QualifierPrefix
	case suffix:
		qp.Mode = QualifierSuffix
	default:
		qp.Mode = QualifierExact
	}
	return qp, nil
}

// MustParseQualifier is like ParseQualifier but panics on error.
func MustParseQualifier(pattern string) QualifierPattern {
	qp, err := ParseQualifier(pattern)
	if err != nil {
		panic(err)
	}
	return qp
}

// Match reports whether candidate satisfies the pattern.
func (q QualifierPattern) Match(candidate []byte) bool {
	switch q.Mode {
	case QualifierAny:
		return true
	case QualifierExact:
		return bytes.Equal(candidate, q.Literal)
	case QualifierPrefix:
		return hasPrefix(candidate, q.Literal)
	case QualifierSuffix:
		return hasSuffix(candidate, q.Literal)
	case QualifierPrefixOrSuffix:
		// deliberately not a containment test: the literal must touch an edge
		return hasPrefix(candidate, q.Literal) || hasSuffix(candidate, q.Literal)
	default:
		return false
	}
}

// String renders the pattern back in wildcard notation.
func (q QualifierPattern) String() string {
	switch q.Mode {
	case QualifierAny:
		return Wildcard
	case QualifierPrefix:
		return string(q.Literal) + Wildcard
	case QualifierSuffix:
		return Wildcard + string(q.Literal)
	case QualifierPrefixOrSuffix:
		return Wildcard + string(q.Literal) + Wildcard
	default:
		return string(q.Literal)
	}
}

func hasPrefix(data, prefix []byte) bool {
	return len(data) >= len(prefix) && bytes.Equal(data[:len(prefix)], prefix)
}

func hasSuffix(data, suffix []byte) bool {
	return len(data) >= len(suffix) && bytes.Equal(data[len(data)-len(suffix):], suffix)
}

// TableName identifies a table as namespace and qualifier.
// The zero value is "no table" and is used by rules that match every table.
type TableName struct {
	Namespace string
	Name      string
}

// ParseTableName parses "namespace:name" or "name". The latter lives in the
// default namespace, so "MyTable" and "default:MyTable" are the same table.
func ParseTableName(s string) (TableName, error) {
	ns, name, found := strings.Cut(s, ":")
	if !found {
		ns, name = DefaultNamespace, s
	}
	if name == "" || strings.Contains(name, ":") {
		return TableName{}, fmt.Errorf("%w: %q", ErrInvalidTable, s)
	}
	if ns == "" {
		ns = DefaultNamespace
	}
	return TableName{Namespace: ns, Name: name}, nil
}

// MustParseTableName is like ParseTableName but panics on error.
func MustParseTableName(s string) TableName {
	t, err := ParseTableName(s)
	if err != nil {
		panic(err)
	}
	return t
}

// IsZero reports whether t is unset.
func (t TableName) IsZero() bool {
	return t == TableName{}
}

func (t TableName) String() string {
	if t.IsZero() {
		return ""
	}
	return t.Namespace + ":" + t.Name
}

// Criterion is the matching part shared by every rule. Each field is
// optional: a zero Table, a nil Family or a QualifierAny pattern match anything.
type Criterion struct {
	Table     TableName
	Family    []byte
	Qualifier QualifierPattern
}

// Match reports whether the cell coordinates pass the table, family and
// qualifier gates.
func (c Criterion) Match(table TableName, family, qualifier []byte) bool {
	return c.MatchTable(table) && c.MatchFamily(family) && c.Qualifier.Match(qualifier)
}

func (c Criterion) MatchTable(table TableName) bool {
	return c.Table.IsZero() || c.Table == table
}

func (c Criterion) MatchFamily(family []byte) bool {
	return c.Family == nil || bytes.Equal(c.Family, family)
}
