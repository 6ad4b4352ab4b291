//go:build windows

package i18n

import "golang.org/x/sys/windows"

// getPlatformLocales returns the user's preferred UI languages, falling back
// to the default locale name.
func getPlatformLocales() []string {
	var locales []string
	if langs, err := windows.GetUserPreferredUILanguages(windows.MUI_LANGUAGE_NAME); err == nil {
		for _, l := range langs {
			if l != "" {
				locales = append(locales, l)
			}
		}
	}
	if len(locales) > 0 {
		return locales
	}
	if name, err := windows.GetUserDefaultLocaleName(); err == nil && name != "" {
		return []string{name}
	}
	return nil
}
