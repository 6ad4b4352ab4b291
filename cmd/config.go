package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/config"
	"github.com/huanfeng/apkstore-cli/internal/i18n"
)

var (
	configInitForce bool
	configInitPath  string
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:         "init",
	Short:       "Write a configuration template",
	Annotations: map[string]string{skipConfig: "true"},
	Args:        cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		if path == "" {
			path = cfgFile
		}
		if path == "" {
			path = config.DefaultPath()
		}
		if err := config.SaveTemplate(path, configInitForce); err != nil {
			return err
		}
		fmt.Println(i18n.T("config.created", map[string]interface{}{"Path": path}))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "Overwrite an existing file")
	configInitCmd.Flags().StringVarP(&configInitPath, "path", "p", "", "Where to write the template")
}
