package cmd

import (
	"fmt"
	"io"

	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/store"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// watchStates draws manager states to out until the returned stop is called.
// A state replayed from an earlier operation is skipped.
func watchStates(m *store.AppInstallManager, out io.Writer) (stop func()) {
	replayed := replayFilter(m.Latest())
	states, cancel := m.Observe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		var bar *utils.ProgressBar
		finish := func() {
			if bar != nil {
				bar.Finish()
				bar = nil
			}
		}
		defer finish()

		for s := range states {
			if replayed(s) {
				continue
			}
			switch st := s.(type) {
			case store.DownloadStarted:
				finish()
				bar = utils.NewProgressBar(out, i18n.T("progress.download", map[string]interface{}{"Name": displayName(st.App)}))
			case store.DownloadProgress:
				if bar == nil {
					continue
				}
				if st.TotalBytes > 0 {
					bar.Update(st.BytesCopied, st.TotalBytes)
				} else {
					bar.UpdatePercent(-1)
				}
			case store.DownloadCompleted:
				if bar != nil {
					bar.Update(1, 1)
				}
				finish()
			case store.DownloadError:
				finish()
			case store.InstallStarted:
				finish()
				bar = utils.NewProgressBar(out, i18n.T("progress.install"))
			case store.InstallProgress:
				if bar == nil {
					continue
				}
				if st.Progress.Indeterminate {
					bar.UpdatePercent(-1)
				} else {
					bar.UpdatePercent(st.Progress.Percent())
				}
			case store.InstallCompleted:
				finish()
			case store.UninstallStarted:
				finish()
				fmt.Fprintln(out, i18n.T("progress.uninstall", map[string]interface{}{"Package": st.PackageName}))
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// replayFilter reports whether a received state is the replay of latest.
// Only the first state can be the replay, and only when it equals latest.
func replayFilter(latest store.InstallationState, ok bool) func(store.InstallationState) bool {
	first := true
	return func(s store.InstallationState) bool {
		if !first {
			return false
		}
		first = false
		return ok && s == latest
	}
}

func displayName(app store.StoreApp) string {
	if app.Name != "" {
		return app.Name
	}
	return app.PackageName
}
