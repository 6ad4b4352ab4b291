package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/version"
)

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print version information",
	Long:        `Display detailed version information about ApkStore CLI.`,
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version.Info())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
