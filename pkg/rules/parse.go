package rules

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var ErrRuleParse = errors.New("rule parse error")

// Supported rule file formats.
const (
	FormatXML  = "xml"
	FormatYAML = "yaml"
	FormatJSON = "json"
	FormatTOML = "toml"
)

// ParseError reports a malformed rule declaration. It matches ErrRuleParse.
type ParseError struct {
	// Index is the position of the declaration in the source, -1 for document errors
	Index int
	Field string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %v", ErrRuleParse, e.Err)
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: rule %d: %v", ErrRuleParse, e.Index, e.Err)
	}
	return fmt.Sprintf("%s: rule %d: %s: %v", ErrRuleParse, e.Index, e.Field, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrRuleParse, e.Err}
}

// Declaration is one rule as written in a rule file. Nil fields are absent
// and match anything.
type Declaration struct {
	Action       string  `mapstructure:"action" json:"action"`
	Table        *string `mapstructure:"table" json:"table,omitempty"`
	ColumnFamily *string `mapstructure:"columnFamily" json:"columnFamily,omitempty"`
	Qualifier    *string `mapstructure:"qualifier" json:"qualifier,omitempty"`
	Topic        *string `mapstructure:"topic" json:"topic,omitempty"`
}

// Build validates the declarations and turns them into a RuleSet, keeping
// their relative order within each kind.
func Build(decls []Declaration) (*RuleSet, error) {
	var (
		excludes []ExcludeRule
		routes   []RouteRule
	)

	for i, d := range decls {
		c, err := d.criterion(i)
		if err != nil {
			return nil, err
		}

		switch Action(strings.ToLower(strings.TrimSpace(d.Action))) {
		case ActionDrop:
			if d.Topic != nil {
				return nil, &ParseError{Index: i, Field: "topic", Err: errors.New("drop rules take no topic")}
			}
			excludes = append(excludes, NewExcludeRule(c))
		case ActionRoute, "routerules":
			var topic string
			if d.Topic != nil {
				topic = strings.TrimSpace(*d.Topic)
			}
			r, err := NewRouteRule(c, topic)
			if err != nil {
				return nil, &ParseError{Index: i, Field: "topic", Err: err}
			}
			routes = append(routes, r)
		default:
			return nil, &ParseError{Index: i, Field: "action", Err: fmt.Errorf("unknown action %q", d.Action)}
		}
	}

	return NewRuleSet(excludes, routes), nil
}

func (d Declaration) criterion(i int) (Criterion, error) {
	var c Criterion
	if d.Table != nil {
		t, err := ParseTableName(strings.TrimSpace(*d.Table))
		if err != nil {
			return c, &ParseError{Index: i, Field: "table", Err: err}
		}
		c.Table = t
	}
	if d.ColumnFamily != nil {
		c.Family = []byte(*d.ColumnFamily)
	}
	if d.Qualifier != nil {
		q, err := ParseQualifier(*d.Qualifier)
		if err != nil {
			return c, &ParseError{Index: i, Field: "qualifier", Err: err}
		}
		c.Qualifier = q
	}
	return c, nil
}

// Parse reads a rule document in the given format.
func Parse(r io.Reader, format string) (*RuleSet, error) {
	var (
		decls []Declaration
		err   error
	)

	switch strings.ToLower(format) {
	case FormatXML:
		decls, err = decodeXML(r)
	case FormatYAML, "yml", FormatJSON, FormatTOML:
		decls, err = decodeViper(r, format)
	default:
		return nil, &ParseError{Index: -1, Err: fmt.Errorf("unsupported format %q", format)}
	}
	if err != nil {
		return nil, &ParseError{Index: -1, Err: err}
	}

	return Build(decls)
}

// FormatFromPath infers the rule format from a file extension, defaulting to XML.
func FormatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	default:
		return FormatXML
	}
}

// FileSource loads rules from a file on every call to Load.
type FileSource struct {
	Path string
	// Format overrides the format inferred from the file extension
	Format string
}

func (f FileSource) Load() (*RuleSet, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("open rule file: %w", err)
	}
	defer file.Close()

	format := f.Format
	if format == "" {
		format = FormatFromPath(f.Path)
	}
	return Parse(file, format)
}

type xmlRuleDoc struct {
	Rules []xmlRule `xml:"rule"`
}

type xmlRule struct {
	Attrs []xml.Attr `xml:",any,attr"`
}

func decodeXML(r io.Reader) ([]Declaration, error) {
	var doc xmlRuleDoc
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	decls := make([]Declaration, 0, len(doc.Rules))
	for _, rule := range doc.Rules {
		var d Declaration
		for _, attr := range rule.Attrs {
			v := attr.Value
			switch attr.Name.Local {
			case "action":
				d.Action = v
			case "table":
				d.Table = &v
			case "columnFamily":
				d.ColumnFamily = &v
			case "qualifier":
				d.Qualifier = &v
			case "topic":
				d.Topic = &v
			}
		}
		decls = append(decls, d)
	}
	return decls, nil
}

func decodeViper(r io.Reader, format string) ([]Declaration, error) {
	v := viper.New()
	v.SetConfigType(format)
	if err := v.ReadConfig(r); err != nil {
		return nil, fmt.Errorf("read %s: %w", format, err)
	}

	var decls []Declaration
	if err := v.UnmarshalKey("rules", &decls); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	return decls, nil
}
