package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jphp-group-community/wizard-framework/internal/errors"
)

func errorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "errors [code]",
		Short: "List error codes or explain one",
		Long: `Without arguments, list every error code webui reports.
With a code, print its category, description and hint.

Examples:
  webui errors
  webui errors E103`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				listCodes(cmd)
				return nil
			}
			return explainCode(cmd, args[0])
		},
	}
}

func listCodes(cmd *cobra.Command) {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	for _, code := range errors.GetAllCodes() {
		t, _ := errors.GetTemplate(code)
		fmt.Fprintf(tw, "%s\t%s\t%s\n", code, t.Category, t.Message)
	}
	tw.Flush()
}

func explainCode(cmd *cobra.Command, code string) error {
	code = strings.ToUpper(code)
	t, ok := errors.GetTemplate(code)
	if !ok {
		return errors.New(errors.CodeCommand).
			WithDetailf("unknown error code %q", code).
			WithSuggestion("Run webui errors to list the known codes")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %s\n", code, t.Message)
	fmt.Fprintf(out, "Category: %s\n", t.Category)
	if t.Detail != "" {
		fmt.Fprintf(out, "\n%s\n", t.Detail)
	}
	if t.Suggestion != "" {
		fmt.Fprintf(out, "\nHint: %s\n", t.Suggestion)
	}
	return nil
}
