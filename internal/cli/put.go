package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/codec"
	"github.com/stratumdb/stratum/internal/resource"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Data string
}

// PutOutput is the put command's result payload.
type PutOutput struct {
	Resource string         `json:"resource"`
	Key      string         `json:"key"`
	Record   map[string]any `json:"record"`
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <resource>",
		Short: "Create a record on the configured engine",
		Long: `Create a record from a JSON object on the configured storage engine.

The JSON attributes are cast against the resource schema (timestamps as
RFC 3339 strings, uuids as strings, missing nullable attributes filled
with null) and written at the primary-key tuple. An existing record at
the same key is silently replaced.

Examples:
  stratum put Track --data '{"id":"t1","title":"First","plays":3}'
  stratum put Track --data '{"id":"t1","plays":4}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Data, "data", "", "record attributes as JSON (required)")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runPut(opts *PutOptions, resourceName string, cmd *cobra.Command) error {
	var raw map[string]any
	if err := json.Unmarshal([]byte(opts.Data), &raw); err != nil {
		return WrapExitError(ExitCommandError, "invalid --data JSON", err)
	}

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	setupLogging(cfg, opts.Verbose)

	dl, closeEngine, err := openDataLayer(cfg)
	if err != nil {
		return err
	}
	defer closeEngine()

	res, ok := dl.Resource(resourceName)
	if !ok {
		return NewExitError(ExitCommandError,
			fmt.Sprintf("unknown resource %q (known: %s)", resourceName, strings.Join(dl.Resources(), ", ")))
	}

	obj, err := codec.CastPartial(res, raw)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid record attributes", err)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stored, err := dl.Create(ctx, res, resource.Record{Attrs: obj})
	if err != nil {
		return WrapExitError(ExitFailure, "create failed", err)
	}

	key, err := codec.KeyFor(res, stored.Attrs)
	if err != nil {
		return WrapExitError(ExitFailure, "derive record key", err)
	}
	native, err := codec.Dump(res, stored.Attrs)
	if err != nil {
		return WrapExitError(ExitFailure, "encode record", err)
	}

	output := PutOutput{Resource: res.Name, Key: key.String(), Record: native}
	if opts.Format == "json" {
		return outputJSON(cmd, output)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "✓ created %s %s\n", output.Resource, output.Key)
	line, err := resource.MarshalCanonical(native)
	if err != nil {
		return WrapExitError(ExitFailure, "encode record", err)
	}
	fmt.Fprintf(w, "%s\n", line)
	return nil
}
