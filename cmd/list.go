package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/store"
)

var (
	listRefresh bool
	listUpdates bool
	listFormat  string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List store apps",
	Long: `List the apps of the store catalog together with the version installed
on the connected device, if any.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStoreApp(cmd.Context(), cfg, needCatalog)
		if err != nil {
			return err
		}
		defer a.Close()

		apps, err := a.loadApps(cmd.Context(), listRefresh)
		if err != nil {
			if len(apps) == 0 {
				return err
			}
			fmt.Fprintln(os.Stderr, i18n.T("list.offline", map[string]interface{}{"Error": err.Error()}))
		}

		if listUpdates {
			var updates []store.AppData
			for _, app := range apps {
				if app.CanBeUpdated() {
					updates = append(updates, app)
				}
			}
			apps = updates
		}

		if listFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(apps)
		}

		if len(apps) == 0 {
			fmt.Println(i18n.T("list.empty"))
			return nil
		}
		printApps(apps)
		return nil
	},
}

func printApps(apps []store.AppData) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPACKAGE\tAVAILABLE\tINSTALLED\tSTATUS")
	for _, app := range apps {
		installed := "-"
		if app.IsInstalled() {
			installed = fmt.Sprint(app.Installed.VersionCode)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			displayName(app.Store), app.Store.PackageName, app.Store.Version, installed, appStatus(app))
	}
	w.Flush()
}

func appStatus(app store.AppData) string {
	switch {
	case app.CanBeUpdated():
		return i18n.T("status.update")
	case app.IsInstalled():
		return i18n.T("status.installed")
	default:
		return i18n.T("status.available")
	}
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVarP(&listRefresh, "refresh", "r", false, "Fetch the catalog even if the cached list is recent")
	listCmd.Flags().BoolVarP(&listUpdates, "updates", "u", false, "Only show apps with an update")
	listCmd.Flags().StringVarP(&listFormat, "format", "f", "table", "Output format: table, json")
}
