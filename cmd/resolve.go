package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	resolveJSON      string
	resolveRetry     bool
	resolveReplace   bool
	resolveIgnoreSub bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [raw address]",
	Short: "Normalize a single address and print the canonical record",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Policy flags override config for this invocation.
		if cmd.Flags().Changed("retry-with-formatted") {
			cfg.Resolver.RetryWithFormatted = resolveRetry
		}
		if cmd.Flags().Changed("replace-only") {
			cfg.Resolver.ReplaceOnly = resolveReplace
		}
		if cmd.Flags().Changed("ignore-missing-subpremise") {
			cfg.Resolver.IgnoreMissingSubpremise = resolveIgnoreSub
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var value any
		switch {
		case resolveJSON != "":
			var m map[string]any
			if err := json.Unmarshal([]byte(resolveJSON), &m); err != nil {
				return eris.Wrap(err, "parse --json components")
			}
			value = m
		case len(args) == 1:
			value = args[0]
		default:
			return eris.New("provide a raw address argument or --json components")
		}

		addr, err := env.Canon.Normalize(ctx, value)
		if err != nil {
			return eris.Wrap(err, "normalize address")
		}
		if addr == nil {
			zap.L().Info("nothing to resolve")
			return nil
		}

		zap.L().Info("address resolved",
			zap.Int64("id", addr.ID),
			zap.String("display", addr.String()),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(addr.Flatten())
	},
}

func init() {
	resolveCmd.Flags().StringVar(&resolveJSON, "json", "", "structured components as a JSON object")
	resolveCmd.Flags().BoolVar(&resolveRetry, "retry-with-formatted", false, "re-query with the adjusted formatted address on a partial match")
	resolveCmd.Flags().BoolVar(&resolveReplace, "replace-only", false, "overwrite the provider subpremise with the raw one without re-querying")
	resolveCmd.Flags().BoolVar(&resolveIgnoreSub, "ignore-missing-subpremise", false, "accept best-effort results when the subpremise cannot be reconciled")
	rootCmd.AddCommand(resolveCmd)
}
