package main

import (
	"github.com/spf13/cobra"
)

func pingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the board service is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Ping(cmd.Context())
			if err != nil {
				return err
			}
			return a.printJSON(resp)
		},
	}
}
