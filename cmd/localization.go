package cmd

import (
	"github.com/spf13/cobra"

	"github.com/huanfeng/apkstore-cli/internal/i18n"
)

// applyCommandLocalization updates command and flag descriptions after i18n is initialized.
func applyCommandLocalization() {
	localizeCommand(rootCmd, "root")
	localizeFlags(rootCmd, map[string]string{
		"config":   "flags.config",
		"verbose":  "flags.verbose",
		"log-file": "flags.logFile",
		"lang":     "flags.lang",
		"device":   "flags.device",
		"yes":      "flags.yes",
	})

	localizeCommand(listCmd, "list")
	localizeCommand(downloadCmd, "download")
	localizeCommand(installCmd, "install")
	localizeCommand(uninstallCmd, "uninstall")
	localizeCommand(updateCmd, "update")
	localizeCommand(devicesCmd, "devices")
	localizeCommand(configCmd, "config")
	localizeCommand(configInitCmd, "configInit")
	localizeCommand(configShowCmd, "configShow")
	localizeCommand(versionCmd, "version")

	for _, c := range []*cobra.Command{downloadCmd, installCmd} {
		localizeFlags(c, map[string]string{"force": "flags.force"})
	}
	for _, c := range []*cobra.Command{listCmd, devicesCmd} {
		localizeFlags(c, map[string]string{"format": "flags.format"})
	}
}

// localizeCommand replaces descriptions that have a translation.
func localizeCommand(c *cobra.Command, name string) {
	if s := i18n.T("cmd." + name + ".short"); s != "cmd."+name+".short" {
		c.Short = s
	}
	if s := i18n.T("cmd." + name + ".long"); s != "cmd."+name+".long" {
		c.Long = s
	}
}

func localizeFlags(c *cobra.Command, keys map[string]string) {
	for name, key := range keys {
		flag := c.PersistentFlags().Lookup(name)
		if flag == nil {
			flag = c.Flags().Lookup(name)
		}
		if flag == nil {
			continue
		}
		if s := i18n.T(key); s != key {
			flag.Usage = s
		}
	}
}
