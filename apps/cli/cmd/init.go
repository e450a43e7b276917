package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/abdul-hamid-achik/callspec/packages/core/config"
)

var forceInit bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new callspec project",
	Long: `Initialize a new callspec project in the current directory.

This creates:
  - callspec.config.yaml  - Configuration file
  - example-plan.yaml     - Example test plan

Examples:
  callspec init
  callspec init --force`,
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
}

const examplePlan = `name: example
inputValues:
  fromFspId: payerfsp
  toIdValue: "27713803912"
test_cases:
  - id: "1"
    name: party lookup
    requests:
      - id: "1"
        description: Get party
        apiVersion:
          majorVersion: 1
          minorVersion: 1
          type: fspiop
          asynchronous: true
        operationPath: /parties/{Type}/{ID}
        method: get
        params:
          Type: MSISDN
          ID: "{$inputs.toIdValue}"
        headers:
          Accept: application/vnd.interoperability.parties+json;version=1.1
          FSPIOP-Source: "{$inputs.fromFspId}"
          Date: "{$function.generic.curDate}"
        tests:
          assertions:
            - id: "1"
              description: Response status is 202
              exec:
                - expect(response.status).to.equal(202)
            - id: "2"
              description: Callback carries the party
              exec:
                - expect(callback.body).to.have.property('party')
`

func initCommand(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}

	configFile := filepath.Join(cwd, "callspec.config.yaml")
	exampleFile := filepath.Join(cwd, "example-plan.yaml")

	if !forceInit {
		for _, f := range []string{configFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return errors.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	cfg := config.DefaultConfig()
	cfg.CallbackEndpoint = "http://localhost:3000"
	cfg.Headers = map[string]string{"User-Agent": "callspec/" + version}
	if err := cfg.SaveConfig(configFile); err != nil {
		return errors.Wrap(err, "failed to create config file")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", configFile)

	if err := os.WriteFile(exampleFile, []byte(examplePlan), 0644); err != nil {
		return errors.Wrap(err, "failed to create example plan")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\ncallspec project initialized!\n")
	fmt.Fprintf(cmd.OutOrStdout(), "Run 'callspec run example-plan.yaml' to execute the example plan.\n")

	return nil
}
