package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/metal-master/backend/internal/config"
	"github.com/metal-master/backend/internal/gamification"
	"github.com/metal-master/backend/internal/rules"
)

func newRulesCmd() *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect ruleset documents",
	}
	rulesCmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a ruleset document and list every violation",
		Args:  cobra.ExactArgs(1),
		RunE:  runRulesCheck,
	})
	return rulesCmd
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	rs, err := rules.Load(args[0])
	if err != nil {
		var verr *rules.ValidationError
		if errors.As(err, &verr) {
			for _, v := range verr.Violations {
				fmt.Fprintln(cmd.ErrOrStderr(), v.String())
			}
			return fmt.Errorf("%s: %d violation(s)", args[0], len(verr.Violations))
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "ok: ruleset %s (%d lessons, %d badges, %d levels)\n",
		rs.Version, len(rs.Lessons), len(rs.Badges), len(rs.Levels))
	return nil
}

var evaluateRulesPath string

func newEvaluateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "evaluate <file>",
		Short: "Run the reward engine on an input document and print the result",
		Long: "Reads an engine input JSON document and prints the award as JSON.\n" +
			"Nothing is read from or written to the database.",
		Args: cobra.ExactArgs(1),
		RunE: runEvaluate,
	}
	cmd.Flags().StringVar(&evaluateRulesPath, "rules", "", "ruleset path (default: configured or embedded ruleset)")
	return cmd
}

func runEvaluate(cmd *cobra.Command, args []string) error {
	path := evaluateRulesPath
	if path == "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		path = cfg.Rules.Path
	}
	rs, err := loadRuleset(path)
	if err != nil {
		return fmt.Errorf("load ruleset: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	var in gamification.Input
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if in.Timestamps.Now.IsZero() {
		in.Timestamps.Now = time.Now().UTC()
	}

	res, err := gamification.NewEngine(rs).Evaluate(in)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
