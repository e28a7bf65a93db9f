package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/resource"
)

// AttributeInfo describes one attribute of a compiled resource.
type AttributeInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	AllowNil bool   `json:"allow_nil,omitempty"`
}

// ResourceInfo describes one compiled resource: the resolved physical
// table, the primary key, and the attributes in declaration order.
type ResourceInfo struct {
	Name       string          `json:"name"`
	Table      string          `json:"table"`
	PrimaryKey []string        `json:"primary_key"`
	Attributes []AttributeInfo `json:"attributes"`
}

// DescribeResult holds the describe command's output.
type DescribeResult struct {
	Resources []ResourceInfo `json:"resources"`
}

// NewDescribeCommand creates the describe command.
func NewDescribeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe <definitions-dir>",
		Short: "Show compiled resource schemas",
		Long: `Compile resource definitions and print the resulting schemas.

Shows what the data layer will actually operate on: the resolved table
name (explicit override or the snake_case derivation), the primary key,
and every attribute with its declared type and nullability.

Examples:
  stratum describe ./resources
  stratum describe ./resources --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runDescribe(opts *RootOptions, defsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadDefinitions(defsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		_ = formatter.Error(ErrCodeGeneric, loadErrors[0].Error(), nil)
		return NewExitError(ExitCommandError, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, defsDir)

	result := DescribeResult{Resources: make([]ResourceInfo, 0, len(loadResult.Resources))}
	for _, res := range loadResult.Resources {
		result.Resources = append(result.Resources, describeResource(res))
	}

	if opts.Format == "json" {
		response := CLIResponse{Status: "ok", Data: result}
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(response)
	}

	outputDescribeText(cmd.OutOrStdout(), result)
	return nil
}

// describeResource flattens a compiled schema into its description.
func describeResource(res *resource.Resource) ResourceInfo {
	info := ResourceInfo{
		Name:       res.Name,
		Table:      res.TableName(),
		PrimaryKey: res.PrimaryKey,
		Attributes: make([]AttributeInfo, 0, len(res.Attributes)),
	}
	for _, attr := range res.Attributes {
		info.Attributes = append(info.Attributes, AttributeInfo{
			Name:     attr.Name,
			Type:     attr.Type.String(),
			AllowNil: attr.AllowNil,
		})
	}
	return info
}

// outputDescribeText renders the schemas as aligned text.
func outputDescribeText(w io.Writer, result DescribeResult) {
	for i, res := range result.Resources {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s (table: %s)\n", res.Name, res.Table)
		fmt.Fprintf(w, "  primary key: %s\n", strings.Join(res.PrimaryKey, ", "))
		fmt.Fprintln(w, "  attributes:")

		nameWidth, typeWidth := 0, 0
		for _, attr := range res.Attributes {
			if len(attr.Name) > nameWidth {
				nameWidth = len(attr.Name)
			}
			if len(attr.Type) > typeWidth {
				typeWidth = len(attr.Type)
			}
		}

		isKey := make(map[string]bool, len(res.PrimaryKey))
		for _, name := range res.PrimaryKey {
			isKey[name] = true
		}

		for _, attr := range res.Attributes {
			flag := ""
			switch {
			case isKey[attr.Name]:
				flag = "key"
			case attr.AllowNil:
				flag = "nullable"
			}
			line := fmt.Sprintf("    %-*s  %-*s  %s", nameWidth, attr.Name, typeWidth, attr.Type, flag)
			fmt.Fprintln(w, strings.TrimRight(line, " "))
		}
	}
}
