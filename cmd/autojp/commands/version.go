package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	v "github.com/autojp/autojp/pkg/version"
)

// NewVersionCommand builds the 'version' command.
func NewVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:     "version",
		Short:   "Print version information",
		GroupID: "core",
		Run: func(_ *cobra.Command, _ []string) {
			info := v.GetVersion()
			fmt.Printf("%s version: %s\n", cliExecutable, info.Version)
			if short {
				return
			}
			if info.Commit != "" {
				fmt.Printf("Commit: %s\n", info.Commit)
			}
			if info.BuildDate != "" {
				fmt.Printf("Build Date: %s\n", info.BuildDate)
			}
			fmt.Printf("Go Version: %s\n", info.GoVersion)
			fmt.Printf("Platform: %s\n", info.Platform)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "Print only the version number")

	return cmd
}
