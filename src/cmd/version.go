package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/leeeeey/TaskCenter/src/config"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("taskcenter %s\n", config.Version)
		fmt.Printf("  commit:  %s\n", config.CommitID)
		fmt.Printf("  built:   %s\n", config.BuildDate)
		fmt.Printf("  go:      %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	},
}
