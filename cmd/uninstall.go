package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/internal/i18n"
)

var uninstallCmd = &cobra.Command{
	Use:     "uninstall <package>",
	Aliases: []string{"remove", "rm"},
	Short:   "Uninstall an app from the device",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStoreApp(cmd.Context(), cfg, needDevice)
		if err != nil {
			return err
		}
		defer a.Close()
		if !a.canInstall() {
			return apperrors.NewPlatformError("NO_INSTALLER", "no device installer available")
		}

		// Catalog names make the confirmation readable; the device works without them.
		if _, err := a.loadApps(cmd.Context(), false); err != nil {
			a.logger.Debug("Catalog unavailable: %v", err)
		}

		pkg := args[0]
		stop := watchStates(a.manager, os.Stdout)
		ok, err := a.manager.Uninstall(cmd.Context(), pkg, a.sessionOptions())
		stop()
		if err != nil {
			return err
		}
		if !ok {
			return apperrors.NewPlatformError("UNINSTALL_FAILED", "uninstall was not completed").
				WithContext("package", pkg)
		}
		fmt.Println(i18n.T("uninstall.success", map[string]interface{}{"Package": pkg}))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}
