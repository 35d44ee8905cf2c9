package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"obelus/internal/filter"
	"obelus/internal/format"
	"obelus/internal/launch"
	"obelus/internal/workflow"
	"obelus/internal/workflow/examples"
)

var filterFlags struct {
	workflow  string
	inputs    []string
	tokenFile string
	asJSON    bool
	cfg       launch.Config
}

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Run only the filter stage and print its four outputs",
	Long: `Resolves the workflow inputs, invokes the filter decision procedure, and
prints its outputs without running any test job. Useful for previewing what
a run would do with the current PR body and matrix.`,
	RunE: runFilter,
}

func init() {
	f := filterCmd.Flags()
	f.StringVarP(&filterFlags.workflow, "workflow", "w", "", "Workflow definition path or embedded name (required)")
	f.StringArrayVarP(&filterFlags.inputs, "input", "i", nil, "Workflow input as name=value (repeatable)")
	f.StringVar(&filterFlags.tokenFile, "token-file", workflow.DefaultTokenFile, "Token file read when the environment carries no token")
	f.BoolVar(&filterFlags.asJSON, "json", false, "Print the outputs as JSON")
	addFilterFlags(filterCmd, &filterFlags.cfg)

	_ = filterCmd.MarkFlagRequired("workflow")
}

func runFilter(cmd *cobra.Command, _ []string) error {
	def, err := examples.Resolve(filterFlags.workflow)
	if err != nil {
		return err
	}
	if err := def.Validate(); err != nil {
		return err
	}
	provided, err := parseInputs(filterFlags.inputs)
	if err != nil {
		return err
	}
	inputs, err := def.Resolve(provided)
	if err != nil {
		return err
	}

	runCtx := workflow.RunContextFromEnv()
	token := runCtx.Token
	if token == "" {
		token, _ = workflow.ReadToken(filterFlags.tokenFile)
	}

	var filterer filter.Filterer
	if filterFlags.cfg.FilterURL != "" {
		filterer = filter.NewClient(filter.Config{
			BaseURL: filterFlags.cfg.FilterURL,
			Project: filterFlags.cfg.FilterProject,
		})
	} else {
		filterer = &filter.Local{
			DataDir:        filterFlags.cfg.FilterDataDir,
			MinCorrelation: filterFlags.cfg.MinCorrelation,
		}
	}

	out, err := filterer.Filter(cmd.Context(), filter.Request{
		Workflow:   def.Name,
		TestMatrix: inputs.TestMatrix,
		PRBody:     runCtx.PRBody,
		Token:      token,
	})
	if err != nil {
		return fmt.Errorf("filter stage: %w", err)
	}

	w := cmd.OutOrStdout()
	if filterFlags.asJSON {
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	tb := format.NewTable(format.ASCII)
	tb.Header("Output", "Value")
	tb.Row("test-matrix", format.Truncate(out.TestMatrix, 80))
	tb.Row("is-test-matrix-empty", format.BoolMark(out.IsTestMatrixEmpty))
	tb.Row("keep-going", format.BoolMark(out.KeepGoing))
	tb.Row("reenabled-issues", strings.Join(out.ReenabledIssues, ", "))
	fmt.Fprintln(w, tb.String())
	return nil
}
