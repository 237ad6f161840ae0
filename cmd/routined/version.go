package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "routined %s\n", Version)
			fmt.Fprintf(out, "commit  %s\n", GitCommit)
			fmt.Fprintf(out, "built   %s\n", BuildTime)
			fmt.Fprintf(out, "go      %s\n", runtime.Version())
		},
	}
}
