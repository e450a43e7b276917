package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/callspec/packages/core/plan"
)

var listCmd = &cobra.Command{
	Use:   "list <plan>...",
	Short: "List the requests of test plans in execution order",
	Long: `List the test cases and requests of test plans in the order they
will be executed.

Examples:
  callspec list plan.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: listCommand,
}

func listCommand(cmd *cobra.Command, args []string) error {
	for _, file := range args {
		p, err := plan.Load(file)
		if err != nil {
			fmt.Fprintf(cmd.OutOrStderr(), "Error parsing %s: %v\n", file, err)
			continue
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s:\n", file)
		for _, tc := range p.TestCases {
			if tc == nil {
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "  %s %s\n", tc.ID, tc.Name)
			for _, req := range tc.SortedRequests() {
				name := req.Description
				if name == "" {
					name = fmt.Sprintf("%s %s", req.Method, req.OperationPath)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "    - [%s] %s\n", req.ID, name)
				if req.IgnoreCallbacks {
					fmt.Fprintf(cmd.OutOrStdout(), "      callbacks ignored\n")
				}
			}
		}
	}

	return nil
}
