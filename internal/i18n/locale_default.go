//go:build !windows

package i18n

// getPlatformLocales has nothing beyond the environment on this platform.
func getPlatformLocales() []string {
	return nil
}
