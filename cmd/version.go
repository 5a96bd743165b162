package cmd

import (
	goruntime "runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "0.2.1"
	goVersion = goruntime.Version()
	platform  = goruntime.GOOS + "/" + goruntime.GOARCH
)

func versionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("Credkeeper version:", version)
			cmd.Println("Go version:", goVersion)
			cmd.Println("Platform:", platform)
		},
	}
	return cmd
}
