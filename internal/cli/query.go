package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stratumdb/stratum/internal/codec"
	"github.com/stratumdb/stratum/internal/config"
	"github.com/stratumdb/stratum/internal/datalayer"
	"github.com/stratumdb/stratum/internal/filter"
	"github.com/stratumdb/stratum/internal/query"
	"github.com/stratumdb/stratum/internal/resource"
	"github.com/stratumdb/stratum/internal/store"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Filter string
	Sort   string
	Limit  int
	Offset int
}

// QueryOutput is the query command's result payload.
type QueryOutput struct {
	Resource string           `json:"resource"`
	Count    int              `json:"count"`
	Records  []map[string]any `json:"records"`
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <resource>",
		Short: "Run a query against the configured engine",
		Long: `Run a query against the configured storage engine.

The engine, database path, and definitions directory come from the
config file and STRATUM_ environment variables. Records print as
canonical JSON, one per line, after filtering, sorting, and windowing.

Examples:
  stratum query Track
  stratum query Track --filter "plays >= 10 and title != null"
  stratum query Track --sort -plays,id --limit 20 --offset 40
  stratum query Track --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter expression, e.g. \"plays >= 10 and title != null\"")
	cmd.Flags().StringVar(&opts.Sort, "sort", "", "comma-separated sort attributes, - prefix for descending")
	cmd.Flags().IntVar(&opts.Limit, "limit", -1, "maximum records to return (-1 for no limit)")
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "records to skip before the limit applies")

	return cmd
}

func runQuery(opts *QueryOptions, resourceName string, cmd *cobra.Command) error {
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

	q := query.New(res)
	if opts.Filter != "" {
		pred, err := filter.Parse(res, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --filter expression", err)
		}
		q = q.WithFilter(pred)
	}
	if opts.Sort != "" {
		fields, err := query.ParseSort(strings.Split(opts.Sort, ","))
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --sort", err)
		}
		q = q.WithSort(fields...)
	}
	if opts.Limit >= 0 {
		q = q.WithLimit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.WithOffset(opts.Offset)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	recs, err := dl.RunQuery(ctx, q)
	if err != nil {
		return WrapExitError(ExitFailure, "query failed", err)
	}

	rows := make([]map[string]any, 0, len(recs))
	for _, rec := range recs {
		native, err := codec.Dump(res, rec.Attrs)
		if err != nil {
			return WrapExitError(ExitFailure, "encode record", err)
		}
		rows = append(rows, native)
	}

	output := QueryOutput{Resource: res.Name, Count: len(rows), Records: rows}
	if opts.Format == "json" {
		return outputJSON(cmd, output)
	}
	return outputQueryText(cmd, output)
}

// outputJSON renders a success payload as indented JSON.
func outputJSON(cmd *cobra.Command, data any) error {
	response := CLIResponse{Status: "ok", Data: data}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// outputQueryText prints one canonical JSON line per record, then the
// count. Canonical serialization keeps attribute order stable across
// runs, so the output is diffable.
func outputQueryText(cmd *cobra.Command, output QueryOutput) error {
	w := cmd.OutOrStdout()
	for _, row := range output.Records {
		line, err := resource.MarshalCanonical(row)
		if err != nil {
			return WrapExitError(ExitFailure, "encode record", err)
		}
		fmt.Fprintf(w, "%s\n", line)
	}
	if len(output.Records) > 0 {
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d record(s)\n", output.Count)
	return nil
}

// openDataLayer opens the configured storage engine and registers the
// configured definitions on a fresh data layer. The returned close
// function releases the engine.
func openDataLayer(cfg *config.Config) (*datalayer.DataLayer, func(), error) {
	eng, err := store.Open(cfg.Engine, cfg.Path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open storage engine", err)
	}

	loadResult, loadErrors := LoadDefinitions(cfg.Definitions, LoadModeFailFast)
	if len(loadErrors) > 0 {
		_ = eng.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to load definitions", loadErrors[0])
	}

	dl := datalayer.New(eng, datalayer.WithLogger(slog.Default()))
	if err := dl.Register(loadResult.Resources...); err != nil {
		_ = eng.Close()
		return nil, nil, WrapExitError(ExitCommandError, "failed to register resources", err)
	}

	closeEngine := func() {
		if err := eng.Close(); err != nil {
			slog.Error("error closing storage engine", "error", err)
		}
	}
	return dl, closeEngine, nil
}
