package commands

import (
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/exemplar/errors"
	"github.com/teranos/exemplar/logger"
	"github.com/teranos/exemplar/pipeline"
	"github.com/teranos/exemplar/validator"
)

// ValidateCmd runs the constraint validator on existing files
var ValidateCmd = &cobra.Command{
	Use:   "validate <file.go>...",
	Short: "Check Go files against the generation constraints",
	Long: `Run the constraint validator over existing Go files. Regular files are
checked together as one module; _test.go files are checked with the test
rules only.

Examples:
  exemplar validate generated/employees/*.go
  exemplar validate transform.go --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var validateJSON bool

func init() {
	ValidateCmd.Flags().BoolVar(&validateJSON, "json", false, "Print violations as JSON")
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	v := validator.New(pipeline.ValidatorConfig(cfg), logger.ComponentLogger("validator"))

	module := make(map[string][]byte)
	tests := make(map[string][]byte)
	for _, path := range args {
		src, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "failed to read %s", path)
		}
		name := filepath.Clean(path)
		if strings.HasSuffix(name, "_test.go") {
			tests[name] = src
		} else {
			module[name] = src
		}
	}

	res := &validator.Result{Passed: true}
	if len(module) > 0 {
		res = v.Validate(module)
	}
	if len(tests) > 0 {
		t := v.ValidateTests(tests)
		res.Violations = append(res.Violations, t.Violations...)
		res.Passed = res.Passed && t.Passed
	}

	if validateJSON {
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to encode result")
		}
		pterm.Println(string(data))
	} else if len(res.Violations) > 0 {
		printViolations(res.Violations)
	}

	if !res.Passed {
		return errors.Mark(errors.Newf("%d errors in %d files", len(res.Errors()), len(args)), errors.ErrValidationFailure)
	}
	if !validateJSON {
		pterm.Success.Printfln("%d files pass (%d warnings)", len(args), len(res.Warnings()))
	}
	return nil
}
