// Package review forwards failed validations to a human review chat.
package review

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"lookbook-ai/internal/pipeline"
)

const defaultQueueSize = 64

// Sender delivers one text message to a chat.
type Sender interface {
	SendText(chatID int64, text string) error
}

type Options struct {
	QueueSize int
	// SendPassed also forwards passing validations that carry warnings.
	SendPassed bool
	Logger     *slog.Logger
}

// Notifier is a pipeline sink. RecordValidation only enqueues; a single worker
// started by Start performs the sends.
type Notifier struct {
	sender     Sender
	chatID     int64
	sendPassed bool
	logger     *slog.Logger

	queue     chan pipeline.ValidationReport
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
	startOnce sync.Once
}

func NewNotifier(sender Sender, chatID int64, opts Options) *Notifier {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Notifier{
		sender:     sender,
		chatID:     chatID,
		sendPassed: opts.SendPassed,
		logger:     opts.Logger,
		queue:      make(chan pipeline.ValidationReport, opts.QueueSize),
	}
}

// Start launches the send worker. It drains the queue until Close is called
// or ctx is done.
func (n *Notifier) Start(ctx context.Context) {
	n.startOnce.Do(func() {
		n.wg.Add(1)
		go n.run(ctx)
	})
}

func (n *Notifier) run(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-n.queue:
			if !ok {
				return
			}
			if err := n.sender.SendText(n.chatID, Format(r)); err != nil {
				n.logger.Warn("review message failed", "request_id", r.RequestID, "err", err)
				continue
			}
			n.logger.Debug("review message sent", "request_id", r.RequestID)
		}
	}
}

// Close stops accepting reports and waits for queued ones to be sent.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	n.wg.Wait()
}

func (n *Notifier) RecordValidation(_ context.Context, r pipeline.ValidationReport) {
	if r.Result.Passed && (!n.sendPassed || len(r.Result.Warnings) == 0) {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- r:
	default:
		n.logger.Warn("review queue full, dropping report", "request_id", r.RequestID)
	}
}

// Format renders a report as a plain text review message.
func Format(r pipeline.ValidationReport) string {
	var b strings.Builder
	status := "FAILED"
	if r.Result.Passed {
		status = "passed with warnings"
	}
	preset := r.PresetID
	if preset == "" {
		preset = "neutral"
	}
	fmt.Fprintf(&b, "Validation %s\nrequest: %s\npreset: %s\nscore: %.3f\n", status, r.RequestID, preset, r.Result.Score)
	if r.Model != "" {
		fmt.Fprintf(&b, "model: %s\n", r.Model)
	}
	if !r.At.IsZero() {
		fmt.Fprintf(&b, "at: %s\n", r.At.Format("2006-01-02 15:04:05 MST"))
	}

	names := make([]string, 0, len(r.Result.Checks))
	for name := range r.Result.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ch := r.Result.Checks[name]
		mark := "ok"
		if !ch.Passed {
			mark = "FAIL"
		}
		fmt.Fprintf(&b, "\n[%s] %s %.2f: %s", mark, name, ch.Score, ch.Message)
	}
	for _, e := range r.Result.Errors {
		fmt.Fprintf(&b, "\nerror: %s", e)
	}
	for _, w := range r.Result.Warnings {
		fmt.Fprintf(&b, "\nwarning: %s", w)
	}
	return b.String()
}

var _ pipeline.Sink = (*Notifier)(nil)
