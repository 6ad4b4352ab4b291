package cmd

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/store"
)

var downloadForce bool

var downloadCmd = &cobra.Command{
	Use:   "download <package>",
	Short: "Download an app package",
	Long: `Download the package of a store app into the download directory.
A cached package that is still current is reused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStoreApp(cmd.Context(), cfg, needCatalog)
		if err != nil {
			return err
		}
		defer a.Close()

		app, err := findApp(cmd.Context(), a, args[0])
		if err != nil {
			return err
		}
		path, err := download(cmd.Context(), a, app, downloadForce)
		if err != nil {
			return err
		}
		fmt.Println(i18n.T("download.saved", map[string]interface{}{"Path": path}))
		return nil
	},
}

func findApp(ctx context.Context, a *storeApp, packageName string) (store.AppData, error) {
	if _, err := a.loadApps(ctx, false); err != nil {
		a.logger.Warn("Using cached catalog: %v", err)
	}
	return a.store.Find(ctx, packageName)
}

// download fetches app unless a reusable copy exists and returns its path.
func download(ctx context.Context, a *storeApp, app store.AppData, force bool) (string, error) {
	if force {
		if err := os.Remove(a.manager.Destination(app.Store)); err != nil && !os.IsNotExist(err) {
			return "", apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "REMOVE_FAILED", "failed to remove cached package")
		}
	}

	stop := watchStates(a.manager, os.Stdout)
	final := a.manager.StartDownload(ctx, app.Store, app.Installed)
	stop()

	switch st := final.(type) {
	case store.DownloadCompleted:
		return st.File, nil
	case store.DownloadError:
		return "", downloadError(st)
	default:
		return "", apperrors.NewError(apperrors.ErrorTypeUnknown, "DOWNLOAD_INCOMPLETE", "download ended without a result")
	}
}

func downloadError(st store.DownloadError) error {
	switch st.Kind {
	case store.DownloadErrorServer:
		return apperrors.NewNetworkError("DOWNLOAD_SERVER_ERROR", "download server returned an error").
			WithContext("package", st.App.PackageName).
			WithContext("status", strconv.Itoa(st.StatusCode))
	case store.DownloadErrorMalformedFile:
		return apperrors.NewParsingError("DOWNLOAD_MALFORMED", "downloaded file is not a valid package").
			WithContext("package", st.App.PackageName).
			WithSuggestion("Try again later; the store may be publishing a new version")
	default:
		return apperrors.NewNetworkError("DOWNLOAD_FAILED", st.Message).
			WithContext("package", st.App.PackageName)
	}
}

func init() {
	rootCmd.AddCommand(downloadCmd)

	downloadCmd.Flags().BoolVarP(&downloadForce, "force", "f", false, "Download again even if a current copy exists")
}
