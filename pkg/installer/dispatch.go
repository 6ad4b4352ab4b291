package installer

import (
	"context"
	"sync"

	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/utils"
)

// appMeta supplies what the default notification shows about the target app.
type appMeta struct {
	label func() (string, bool)
	icon  func() ([]byte, bool)
}

// Dispatcher surfaces the confirmation UI according to SessionOptions.
type Dispatcher struct {
	main     *MainThread
	notifier Notifier
	logger   utils.Logger
}

// NewDispatcher creates a dispatcher. notifier may be nil if only the
// Immediate strategy is used.
func NewDispatcher(main *MainThread, notifier Notifier, logger utils.Logger) *Dispatcher {
	if logger == nil {
		logger = utils.WithComponent("dispatch")
	}
	return &Dispatcher{main: main, notifier: notifier, logger: logger}
}

// Launch opens the confirmation UI on the main thread, immediately or after
// the notification is tapped, then runs activity and returns its outcome.
// activity runs at most once. A posted notification is cancelled on return.
func (d *Dispatcher) Launch(ctx context.Context, opts SessionOptions, kind ConfirmationKind, meta appMeta,
	activity func(ctx context.Context) (bool, error)) (bool, error) {

	launched := make(chan struct{})
	var once sync.Once
	open := func() { once.Do(func() { close(launched) }) }

	switch opts.Confirmation() {
	case Immediate:
		d.logger.Debug("Launching %s confirmation immediately", kind)
		if err := d.main.Run(ctx, open); err != nil {
			return false, err
		}
	default:
		if d.notifier == nil {
			d.logger.Warn("No notifier configured, falling back to immediate %s confirmation", kind)
			if err := d.main.Run(ctx, open); err != nil {
				return false, err
			}
			break
		}
		n := d.notification(opts, kind, meta)
		n.OnTap = func() {
			if err := d.main.Post(open); err != nil {
				d.logger.Warn("Dropping notification tap: %v", err)
			}
		}
		id, err := d.notifier.Post(n)
		if err != nil {
			return false, err
		}
		d.logger.Debug("Posted %s confirmation notification %d", kind, id)
		defer d.notifier.Cancel(id)
	}

	select {
	case <-launched:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return activity(ctx)
}

func (d *Dispatcher) notification(opts SessionOptions, kind ConfirmationKind, meta appMeta) Notification {
	data := opts.Notification()
	n := Notification{Icon: data.Icon, Title: data.Title, Text: data.Text}

	if n.Title == "" {
		n.Title = i18n.T("installer.notification." + kind.String() + "_title")
	}
	if n.Text == "" {
		n.Text = DefaultConfirmationText(kind, meta.label)
	}
	if len(n.Icon) == 0 && meta.icon != nil {
		if icon, ok := meta.icon(); ok {
			n.Icon = icon
		}
	}
	return n
}

// DefaultConfirmationText returns "<label> wants to be installed" style text,
// or a label-less message when label cannot be resolved.
func DefaultConfirmationText(kind ConfirmationKind, label func() (string, bool)) string {
	if label != nil {
		if name, ok := label(); ok && name != "" {
			return i18n.T("installer.notification."+kind.String()+"_text", map[string]interface{}{
				"Label": name,
			})
		}
	}
	return i18n.T("installer.notification." + kind.String() + "_text_unknown")
}
