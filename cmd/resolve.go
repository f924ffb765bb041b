package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/server"
)

type resolveOutput struct {
	References map[string]indieweb.Properties `json:"references"`
	Failures   map[string]string              `json:"failures,omitempty"`
	Mismatches []string                       `json:"mismatches,omitempty"`
}

func newResolveCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "resolve <url>...",
		Short: "Fetches, normalizes and stores references",
		Long: `Resolves each URL through the configured cache and store and prints
the normalized documents as JSON. Use --kind card for author pages.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			refKind := indieweb.ReferenceKind(kind)
			if refKind != indieweb.KindCitation && refKind != indieweb.KindPerson {
				return fmt.Errorf("--kind must be %q or %q", indieweb.KindCitation, indieweb.KindPerson)
			}
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			app, err := server.NewApp(cmd.Context(), rt.cfg, rt.logger)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}
			defer func() { _ = app.Close(context.WithoutCancel(cmd.Context())) }()

			result := app.Resolver().Resolve(cmd.Context(), args, refKind)
			out := resolveOutput{References: result.References}
			if len(result.Failures) > 0 {
				out.Failures = make(map[string]string, len(result.Failures))
				for url, cause := range result.Failures {
					out.Failures[url] = cause.Error()
				}
			}
			for _, mismatch := range result.Mismatches {
				out.Mismatches = append(out.Mismatches, mismatch.Error())
			}
			sort.Strings(out.Mismatches)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return result.Err()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(indieweb.KindCitation), "reference kind: cite or card")
	return cmd
}
