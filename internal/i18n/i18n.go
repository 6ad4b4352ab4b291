package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

// LangEnv overrides the system locale.
const LangEnv = "APKSTORE_LANG"

var (
	mu        sync.RWMutex
	localizer *goi18n.Localizer
	current   = language.English

	supported = []language.Tag{
		language.English,
		language.Chinese,
	}
	matcher = language.NewMatcher(supported)
)

//go:embed locales/*.toml
var localeFS embed.FS

// Init loads the embedded messages and picks the language from, in order,
// langOverride, APKSTORE_LANG, LC_ALL, LC_MESSAGES, LANG and the platform locale.
func Init(langOverride string) error {
	bundle := goi18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/active.*.toml")
	if err != nil {
		return err
	}
	for _, file := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, file); err != nil {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}

	chosen := selectLanguage(localeCandidates(langOverride))

	mu.Lock()
	localizer = goi18n.NewLocalizer(bundle, chosen.String(), language.English.String())
	current = chosen
	mu.Unlock()
	return nil
}

// T translates a message by ID. Unknown IDs come back unchanged.
func T(id string, data ...map[string]interface{}) string {
	mu.RLock()
	l := localizer
	mu.RUnlock()
	if l == nil {
		if err := Init(""); err != nil {
			fmt.Fprintf(os.Stderr, "i18n init failed: %v\n", err)
			return id
		}
		mu.RLock()
		l = localizer
		mu.RUnlock()
	}

	var templateData map[string]interface{}
	if len(data) > 0 {
		templateData = data[0]
	}
	msg, err := l.Localize(&goi18n.LocalizeConfig{
		MessageID:      id,
		TemplateData:   templateData,
		PluralCount:    templateData["Count"],
		DefaultMessage: &goi18n.Message{ID: id, Other: id},
	})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

// CurrentLanguage returns the chosen language tag.
func CurrentLanguage() language.Tag {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func localeCandidates(langOverride string) []string {
	var candidates []string
	if langOverride != "" {
		candidates = append(candidates, langOverride)
	}
	for _, key := range []string{LangEnv, "LC_ALL", "LC_MESSAGES", "LANG"} {
		if val := strings.TrimSpace(os.Getenv(key)); val != "" {
			candidates = append(candidates, val)
		}
	}
	if len(candidates) == 0 {
		candidates = getPlatformLocales()
	}
	return candidates
}

// selectLanguage matches the first parseable candidate. Locale strings such
// as zh_CN.UTF-8 are normalized first; "C" and "POSIX" are skipped.
func selectLanguage(candidates []string) language.Tag {
	for _, cand := range candidates {
		clean := strings.TrimSpace(cand)
		if idx := strings.IndexAny(clean, ".@"); idx >= 0 {
			clean = clean[:idx]
		}
		clean = strings.ReplaceAll(clean, "_", "-")
		if clean == "" || clean == "C" || clean == "POSIX" {
			continue
		}
		tag, err := language.Parse(clean)
		if err != nil {
			continue
		}
		_, idx, conf := matcher.Match(tag)
		if conf == language.No {
			continue
		}
		return supported[idx]
	}
	return language.English
}
