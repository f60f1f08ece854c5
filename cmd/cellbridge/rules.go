package cellbridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edgeflare/cellbridge/pkg/rules"
	"github.com/spf13/cobra"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect a rule file",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Parse a rule file and print the rules it declares",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRules(args)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range rs.ExcludeRules() {
			fmt.Fprintln(out, r)
		}
		for _, r := range rs.RouteRules() {
			fmt.Fprintln(out, r)
		}
		fmt.Fprintf(out, "%d rules ok\n", rs.Len())
		return nil
	},
}

var (
	matchTable     string
	matchFamily    string
	matchQualifier string
)

var rulesMatchCmd = &cobra.Command{
	Use:   "match [file]",
	Short: "Show whether a cell is excluded and which topics it routes to",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rs, err := loadRules(args)
		if err != nil {
			return err
		}
		table, err := rules.ParseTableName(matchTable)
		if err != nil {
			return err
		}
		family, qualifier := []byte(matchFamily), []byte(matchQualifier)

		res := struct {
			Table    string   `json:"table"`
			Excluded bool     `json:"excluded"`
			Topics   []string `json:"topics"`
		}{Table: table.String(), Topics: []string{}}
		if rs.IsExcluded(table, family, qualifier) {
			res.Excluded = true
		} else if topics := rs.TopicsFor(table, family, qualifier); len(topics) > 0 {
			res.Topics = topics
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	f := rulesMatchCmd.Flags()
	f.StringVarP(&matchTable, "table", "t", "", "table name, namespace:qualifier or qualifier in the default namespace")
	f.StringVarP(&matchFamily, "family", "f", "", "column family")
	f.StringVarP(&matchQualifier, "qualifier", "q", "", "column qualifier")
	rulesMatchCmd.MarkFlagRequired("table")

	rulesCmd.AddCommand(rulesCheckCmd, rulesMatchCmd)
}

// loadRules reads the file named in args, falling back to the configured rule path.
func loadRules(args []string) (*rules.RuleSet, error) {
	src := rules.FileSource{}
	if cfg != nil {
		src = rules.FileSource{Path: cfg.Rules.Path, Format: cfg.Rules.Format}
	}
	if len(args) == 1 {
		src = rules.FileSource{Path: args[0]}
	}
	if src.Path == "" {
		return nil, errors.New("no rule file given")
	}
	return src.Load()
}
