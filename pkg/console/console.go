// Package console implements the confirmation prompt and notifier of the
// installer on a terminal.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/huanfeng/apkstore-cli/internal/i18n"
	"github.com/huanfeng/apkstore-cli/pkg/installer"
)

// lineReader hands out input lines to one reader at a time. A read that is
// abandoned because its context ended leaves its line for the next caller.
type lineReader struct {
	once  sync.Once
	in    *bufio.Reader
	lines chan lineResult
	// pending serializes requests so the reading goroutine is never shared.
	pending sync.Mutex
}

type lineResult struct {
	text string
	err  error
}

func newLineReader(in io.Reader) *lineReader {
	return &lineReader{in: bufio.NewReader(in), lines: make(chan lineResult, 1)}
}

func (r *lineReader) start() {
	go func() {
		for {
			text, err := r.in.ReadString('\n')
			r.lines <- lineResult{text: strings.TrimSpace(text), err: err}
			if err != nil {
				close(r.lines)
				return
			}
		}
	}()
}

func (r *lineReader) readLine(ctx context.Context) (string, error) {
	r.once.Do(r.start)
	r.pending.Lock()
	defer r.pending.Unlock()
	select {
	case res, ok := <-r.lines:
		if !ok {
			return "", io.EOF
		}
		if res.err != nil && res.text == "" {
			return "", res.err
		}
		return res.text, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Console is a terminal that can ask questions and show notifications.
type Console struct {
	out    io.Writer
	outMu  sync.Mutex
	reader *lineReader
}

// New returns a console reading answers from in and writing to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{out: out, reader: newLineReader(in)}
}

func (c *Console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.out, format, args...)
}

// Prompt asks y/N questions. It implements installer.ConfirmationPrompt.
type Prompt struct {
	console *Console
	// AssumeYes approves every request without reading input.
	AssumeYes bool
}

// Prompt returns the console's confirmation prompt.
func (c *Console) Prompt(assumeYes bool) *Prompt {
	return &Prompt{console: c, AssumeYes: assumeYes}
}

// Request prints the question and waits for an answer. Anything but y or
// yes declines; end of input declines.
func (p *Prompt) Request(ctx context.Context, req installer.ConfirmationRequest) (bool, error) {
	question := Question(req)
	if p.AssumeYes {
		p.console.printf("%s [y/N]: y\n", question)
		return true, nil
	}
	p.console.printf("%s [y/N]: ", question)
	answer, err := p.console.reader.readLine(ctx)
	if err == io.EOF {
		p.console.printf("\n")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Question renders the confirmation text for req.
func Question(req installer.ConfirmationRequest) string {
	name := req.Label
	if name == "" {
		name = req.PackageName
	}
	key := "console.confirm." + req.Kind.String()
	if name == "" {
		return i18n.T(key + "_unknown")
	}
	return i18n.T(key, map[string]interface{}{"Label": name, "Parts": req.Parts})
}

// Notifier shows deferred confirmations as console messages. Pressing Enter
// taps the most recent one. It implements installer.Notifier.
type Notifier struct {
	console *Console

	mu     sync.Mutex
	nextID int
	active map[int]context.CancelFunc
}

// Notifier returns the console's notifier.
func (c *Console) Notifier() *Notifier {
	return &Notifier{console: c, active: make(map[int]context.CancelFunc)}
}

// Post prints the notification and waits in the background for Enter.
func (n *Notifier) Post(note installer.Notification) (int, error) {
	ctx, cancel := context.WithCancel(context.Background())

	n.mu.Lock()
	n.nextID++
	id := n.nextID
	n.active[id] = cancel
	n.mu.Unlock()

	n.console.printf("[%s] %s\n%s\n", note.Title, note.Text, i18n.T("console.notification.tap"))
	go func() {
		if _, err := n.console.reader.readLine(ctx); err != nil {
			return
		}
		n.mu.Lock()
		_, live := n.active[id]
		n.mu.Unlock()
		if live && note.OnTap != nil {
			note.OnTap()
		}
	}()
	return id, nil
}

// Cancel dismisses a notification. Unknown ids are ignored.
func (n *Notifier) Cancel(id int) {
	n.mu.Lock()
	cancel, ok := n.active[id]
	delete(n.active, id)
	n.mu.Unlock()
	if ok {
		cancel()
	}
}
