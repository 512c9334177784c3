package main

import (
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func toolsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the capabilities every configured provider offers",
		RunE: func(cmd *cobra.Command, args []string) error {
			hub, err := buildHub(a.cfg)
			if err != nil {
				return err
			}
			defer func() { _ = hub.Close() }()

			entries, err := hub.ListCapabilities(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			printf(tw, "NAME\tLOCATOR\tDESCRIPTION\n")
			for _, e := range entries {
				printf(tw, "%s\t%s\t%s\n", e.Name, e.Locator, firstLine(e.Description))
			}
			return tw.Flush()
		},
	}
}
