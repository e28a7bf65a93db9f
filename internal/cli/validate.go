package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"
)

// ValidationIssue is one validation failure, pinned to a source position
// when the CUE evaluator provides one.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Resources []string          `json:"resources,omitempty"` // names that compiled cleanly
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <definitions-dir>",
		Short: "Validate resource definitions",
		Long: `Validate CUE resource definitions without touching a storage engine.

Compiles every resource in the directory and reports schema problems:
unknown attribute types, primary keys over nullable or non-keyable
attributes, missing attribute blocks. All errors are collected, not just
the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadDefinitions(defsDir, LoadModeCollectAll)

	// A nil result means loading itself failed (directory missing, CUE
	// build broken) before any resource could compile.
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, defsDir)

	names := make([]string, 0, len(loadResult.Resources))
	for _, res := range loadResult.Resources {
		formatter.VerboseLog("Validated resource: %s (table %s)", res.Name, res.TableName())
		names = append(names, res.Name)
	}

	var issues []ValidationIssue
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			issues = append(issues, ValidationIssue{
				Code:    loadErr.Code,
				Message: loadErr.Message,
				File:    fileFromPos(loadErr.Pos),
				Line:    lineFromPos(loadErr.Pos),
			})
			continue
		}
		issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()})
	}

	if len(issues) > 0 {
		return outputValidationIssues(formatter, issues)
	}

	return outputValidateSuccess(formatter, names)
}

// fileFromPos extracts the filename from a CUE position.
func fileFromPos(pos token.Pos) string {
	if pos.IsValid() {
		return pos.Filename()
	}
	return ""
}

// lineFromPos extracts the line number from a CUE position.
func lineFromPos(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, names []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Resources: names})
	}

	fmt.Fprintf(formatter.Writer, "✓ All definitions valid (%d resource(s))\n", len(names))
	return nil
}

// outputValidateError outputs a single load-level error. These are
// command errors: the definitions could not even be read.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationIssues outputs the collected validation failures.
func outputValidationIssues(formatter *OutputFormatter, issues []ValidationIssue) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error: &CLIError{
				Code:    issues[0].Code,
				Message: issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, issue := range issues {
		if issue.File != "" && issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "%s:%d\n", issue.File, issue.Line)
		} else if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}

	// Validation failures = exit code 1
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))
}

// ValidateDefinitionsDir validates all definitions in a directory,
// returning the issues rather than rendering them. External callers (the
// harness, editors) use this entry point.
func ValidateDefinitionsDir(defsDir string) ([]ValidationIssue, error) {
	loadResult, loadErrors := LoadDefinitions(defsDir, LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	var issues []ValidationIssue
	for _, err := range loadErrors {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			issues = append(issues, ValidationIssue{
				Code:    loadErr.Code,
				Message: loadErr.Message,
				File:    fileFromPos(loadErr.Pos),
				Line:    lineFromPos(loadErr.Pos),
			})
			continue
		}
		issues = append(issues, ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()})
	}
	return issues, nil
}
