package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/pdfrag/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var asJSON, short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the pdfrag build",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			info := version.Get()
			if short {
				_, err := fmt.Fprintln(out, info.Version)
				return err
			}
			if asJSON {
				data, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			_, err := fmt.Fprintln(out, info)
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the build as JSON")
	cmd.Flags().BoolVar(&short, "short", false, "Print the version number only")
	cmd.MarkFlagsMutuallyExclusive("json", "short")
	return cmd
}
