package installer

import (
	"context"

	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// legacyTier installs one package file through LegacyBackend. The outcome is
// boolean, so failures never carry a cause.
type legacyTier struct {
	backend   LegacyBackend
	prompt    ConfirmationPrompt
	dispatch  *Dispatcher
	inspector ArchiveInspector
	emit      func(ProgressData)
	logger    utils.Logger
}

func (t *legacyTier) name() string { return "legacy" }

func (t *legacyTier) install(ctx context.Context, sources []ApkSource, opts SessionOptions) (InstallResult, error) {
	if len(sources) > 1 {
		return InstallResult{}, splitUnsupportedError(len(sources))
	}
	src := sources[0]

	path, err := src.InstallablePath(ctx, func(progress, max int) {
		t.emit(ProgressData{Progress: progress, Max: max})
	})
	if err != nil {
		return InstallResult{}, err
	}
	t.emit(IndeterminateProgress())

	meta := archiveMeta(t.inspector, path)
	label, _ := meta.labelOrEmpty()
	req := ConfirmationRequest{Kind: ConfirmInstall, SessionID: -1, Label: label, Parts: 1}

	ok, err := t.dispatch.Launch(ctx, opts, ConfirmInstall, meta, func(ctx context.Context) (bool, error) {
		approved, err := t.prompt.Request(ctx, req)
		if err != nil || !approved {
			return false, err
		}
		t.logger.Info("Installing %s", path)
		return t.backend.InstallPackage(ctx, path)
	})
	if err != nil {
		return InstallResult{}, err
	}
	if ok {
		return Succeeded(), nil
	}
	return Failed(nil), nil
}

func archiveMeta(inspector ArchiveInspector, path string) appMeta {
	if inspector == nil || path == "" {
		return appMeta{}
	}
	return appMeta{
		label: func() (string, bool) { return inspector.Label(path) },
		icon:  func() ([]byte, bool) { return inspector.Icon(path) },
	}
}

func (m appMeta) labelOrEmpty() (string, bool) {
	if m.label == nil {
		return "", false
	}
	return m.label()
}
