package apk

import (
	"sync"

	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// Inspector resolves labels and icons of package files for confirmation
// notifications. Results are cached per path.
type Inspector struct {
	parser Parser
	icons  *IconExtractor
	logger utils.Logger

	mu    sync.Mutex
	infos map[string]*Info
}

// NewInspector creates an inspector. A nil parser uses DefaultChain.
func NewInspector(parser Parser, icons *IconExtractor, logger utils.Logger) *Inspector {
	if logger == nil {
		logger = utils.WithComponent("apk")
	}
	if parser == nil {
		parser = DefaultChain(logger)
	}
	if icons == nil {
		icons = NewIconExtractor(NotificationIconSize)
	}
	return &Inspector{parser: parser, icons: icons, logger: logger, infos: make(map[string]*Info)}
}

// Info parses path once and caches the result.
func (i *Inspector) Info(path string) (*Info, error) {
	i.mu.Lock()
	if info, ok := i.infos[path]; ok {
		i.mu.Unlock()
		return info, nil
	}
	i.mu.Unlock()

	info, err := i.parser.ParseFile(path)
	if err != nil {
		return nil, err
	}

	i.mu.Lock()
	i.infos[path] = info
	i.mu.Unlock()
	return info, nil
}

// Label returns the application label declared in the archive.
func (i *Inspector) Label(path string) (string, bool) {
	info, err := i.Info(path)
	if err != nil {
		i.logger.Debug("No label for %s: %v", path, err)
		return "", false
	}
	return info.Label, info.Label != ""
}

// Icon returns the launcher icon as PNG.
func (i *Inspector) Icon(path string) ([]byte, bool) {
	icon, err := i.icons.ExtractIcon(path)
	if err != nil {
		i.logger.Debug("No icon for %s: %v", path, err)
		return nil, false
	}
	return icon, true
}
