package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/apkstore-cli/internal/errors"
	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/apk"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

var installForce bool

var installCmd = &cobra.Command{
	Use:   "install <package|file>",
	Short: "Install an app on the device",
	Long: `Install a store app, or a local .apk/.xapk/.apkm file, on the connected
device. Store apps are downloaded first unless a current copy is cached.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newStoreApp(cmd.Context(), cfg, needDevice)
		if err != nil {
			return err
		}
		defer a.Close()

		target := args[0]
		path := target
		if _, err := os.Stat(target); err != nil {
			if isPackageFile(target) {
				return apperrors.NewNotFoundError("FILE_NOT_FOUND", "package file not found").WithContext("path", target)
			}
			app, err := findApp(cmd.Context(), a, target)
			if err != nil {
				return err
			}
			if path, err = download(cmd.Context(), a, app, installForce); err != nil {
				return err
			}
		}
		return installFile(cmd.Context(), a, path)
	},
}

func isPackageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".apk", ".xapk", ".apkm":
		return true
	}
	return false
}

func installFile(ctx context.Context, a *storeApp, path string) error {
	if !a.canInstall() {
		return apperrors.NewPlatformError("NO_INSTALLER", "no device installer available")
	}

	var sources []installer.ApkSource
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xapk", ".apkm":
		bundle, err := apk.OpenBundle(path)
		if err != nil {
			return err
		}
		defer bundle.Close()
		sources = bundle.Sources(a.tempDir())
		a.logger.Debug("Installing bundle %s with %d part(s)", path, len(sources))
	default:
		sources = []installer.ApkSource{installer.NewFileSource(path)}
	}

	stop := watchStates(a.manager, os.Stdout)
	result := a.manager.Install(ctx, a.sessionOptions(), sources...)
	stop()

	if !result.Success {
		return installError(result)
	}
	fmt.Println(i18n.T("install.success", map[string]interface{}{"Path": filepath.Base(path)}))
	return nil
}

func installError(result installer.InstallResult) error {
	err := apperrors.NewPlatformError("INSTALL_FAILED", "installation failed")
	if result.Cause == nil {
		return err
	}
	err.Code = result.Cause.Kind.String()
	if result.Cause.Message != "" {
		err.Message = result.Cause.Message
	}
	if result.Cause.OtherPackageName != "" {
		err.WithContext("other_package", result.Cause.OtherPackageName)
	}
	if result.Cause.StoragePath != "" {
		err.WithContext("storage_path", result.Cause.StoragePath)
	}
	switch result.Cause.Kind {
	case installer.FailureConflict:
		err.WithSuggestion("Uninstall the existing app first")
	case installer.FailureStorage:
		err.WithSuggestion("Free up storage space on the device")
	case installer.FailureIncompatible:
		err.WithSuggestion("Check that the app supports this device")
	}
	return err
}

func init() {
	rootCmd.AddCommand(installCmd)

	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "Download again even if a current copy exists")
}
