package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/i18n"
)

var updateAll bool

var updateCmd = &cobra.Command{
	Use:   "update [package...]",
	Short: "Check for and install app updates",
	Long: `Refresh the catalog and list installed apps with a newer version.
With --all, or with package names, the updates are downloaded and installed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := newStoreApp(ctx, cfg, needDevice)
		if err != nil {
			return err
		}
		defer a.Close()

		updates, err := a.store.CheckUpdates(ctx)
		if err != nil {
			if len(updates) == 0 {
				return err
			}
			fmt.Fprintln(os.Stderr, i18n.T("list.offline", map[string]interface{}{"Error": err.Error()}))
		}
		if len(updates) == 0 {
			fmt.Println(i18n.T("update.none"))
			return nil
		}
		printApps(updates)

		wanted := make(map[string]bool, len(args))
		for _, pkg := range args {
			wanted[pkg] = true
		}
		if !updateAll && len(wanted) == 0 {
			fmt.Println(i18n.T("update.hint"))
			return nil
		}

		failed := 0
		for _, app := range updates {
			if !updateAll && !wanted[app.Store.PackageName] {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			path, err := download(ctx, a, app, false)
			if err == nil {
				err = installFile(ctx, a, path)
			}
			if err != nil {
				failed++
				fmt.Fprintln(os.Stderr, i18n.T("update.failed", map[string]interface{}{
					"Name":  displayName(app.Store),
					"Error": err.Error(),
				}))
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d update(s) failed", failed)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)

	updateCmd.Flags().BoolVarP(&updateAll, "all", "a", false, "Install every available update")
}
