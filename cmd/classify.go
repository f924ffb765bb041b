package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcarls/ghast/internal/indieweb"
	"github.com/rcarls/ghast/internal/jf2"
	"github.com/rcarls/ghast/internal/posttype"
)

type classifyOutput struct {
	PostTypes      []indieweb.PostType     `json:"postTypes"`
	ResponseTypes  []indieweb.ResponseType `json:"responseTypes,omitempty"`
	MentionTargets []string                `json:"mentionTargets"`
}

func newClassifyCmd() *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "classify",
		Short: "Classifies a JF2 document read from stdin",
		Long: `Reads one JF2 (or Micropub JSON properties) document from stdin,
normalizes it and prints its post types and mention targets. With --target
the response types toward that URL are printed as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			var raw indieweb.Properties
			if err := json.NewDecoder(cmd.InOrStdin()).Decode(&raw); err != nil {
				return fmt.Errorf("decode document: %w", err)
			}
			props := jf2.Normalize(raw, jf2.Options{
				PreferredContentType: rt.cfg.JF2.PreferredContentType,
				ImplicitContentType:  rt.cfg.JF2.ImplicitContentType,
				Compact:              true,
			})

			out := classifyOutput{
				PostTypes:      posttype.Classify(props),
				MentionTargets: posttype.MentionTargets(props),
			}
			if target != "" {
				out.ResponseTypes = posttype.ResponseTypes(props, target)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "URL to compute response types against")
	return cmd
}
