package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	"github.com/welldanyogia/webrana-confchat/internal/client"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

const chatHelp = `Type a message and press Enter to send it.
  /attach <path>  add a file to the next message
  /drop <n>       remove pending file n
  /pending        list pending files
  /quit           close the conversation`

// closeRefreshWait bounds how long closing waits for the unread refresh
const closeRefreshWait = client.CloseRefreshDelay + 5*time.Second

func init() {
	chatCmd.Flags().Duration("interval", client.DefaultPollInterval, "unread poll interval")
	chatCmd.Flags().Bool("no-push", false, "poll only, without the push hint channel")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <paperId>",
	Short: "Open a paper's conversation and chat interactively",
	Long: `chat opens one conversation next to the unread counter. Opening marks
the conversation read; closing it refreshes the unread counts shortly after.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		noPush, _ := cmd.Flags().GetBool("no-push")

		c, err := newClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := &lockedWriter{w: cmd.OutOrStdout()}
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

		s := &chatSession{
			out:       out,
			view:      client.NewConversationView(c, logger),
			refreshed: make(chan struct{}, 1),
		}

		// The first unread fetch waits for the conversation load, which is
		// what marks it read
		opened := make(chan struct{})
		s.poller = client.NewUnreadPoller(client.PollerConfig{
			Source:        c,
			Interval:      interval,
			BaseTitle:     "ConfChat",
			OnTitle:       func(title string) { fmt.Fprintf(out, "-- %s\n", title) },
			OnChange:      s.unreadChanged,
			WaitFor:       opened,
			Authenticated: c.Authenticated,
			Logger:        logger,
		})
		s.poller.Start(ctx)
		defer s.poller.Stop()

		if !noPush {
			go client.NewPushListener(c, s.poller, logger).Run(ctx)
		}

		err = s.view.Open(ctx, args[0])
		close(opened)
		if err != nil {
			return errors.New(client.ServerMessage(err, client.LoadFailedMessage))
		}

		return s.run(ctx, cmd.InOrStdin())
	},
}

// chatSession is one open conversation paired with the unread poller.
// Everything except unreadChanged runs on the command goroutine.
type chatSession struct {
	out    io.Writer
	view   *client.ConversationView
	poller *client.UnreadPoller

	printed   int
	closing   atomic.Bool
	refreshed chan struct{}
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	renderThread(s.out, s.view, time.Now())
	s.printed = len(s.view.Messages())

	s.view.OnMessagesChanged(s.messagesChanged)
	s.view.OnClose(func(string) { s.poller.RefreshAfter(client.CloseRefreshDelay) })
	fmt.Fprintf(s.out, "\n%s\n", chatHelp)

	lines := readLines(ctx, in)
	for open := true; open; {
		select {
		case <-ctx.Done():
			open = false
		case line, ok := <-lines:
			open = ok && s.handle(ctx, line)
		}
	}
	return s.close(ctx)
}

// handle runs one input line and reports whether the session stays open
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch {
	case line == "/quit":
		return false
	case line == "/pending":
		s.listPending()
	case cmd == "/attach" && arg != "":
		s.attach(arg)
	case cmd == "/drop" && arg != "":
		n, err := strconv.Atoi(arg)
		if err != nil || !s.view.RemovePending(n-1) {
			fmt.Fprintf(s.out, "! no pending file %q\n", arg)
			return true
		}
		s.listPending()
	case strings.HasPrefix(line, "/"):
		fmt.Fprintf(s.out, "! unknown command %q\n", cmd)
	default:
		s.view.SetDraft(line)
		if _, err := s.view.Send(ctx); err != nil && s.view.Error() == "" {
			fmt.Fprintf(s.out, "! %v\n", err)
		}
	}

	s.showError()
	return true
}

func (s *chatSession) attach(path string) {
	f, err := attachment.FromPath(path)
	if err != nil {
		fmt.Fprintf(s.out, "! %v\n", err)
		return
	}
	s.view.SelectFiles(append(s.view.Pending(), f))
	s.listPending()
}

func (s *chatSession) listPending() {
	pending := s.view.Pending()
	if len(pending) == 0 {
		fmt.Fprintln(s.out, "  no files attached")
		return
	}
	for i, f := range pending {
		fmt.Fprintf(s.out, "  %d. %s (%s)\n", i+1, f.Name, attachment.FormatSize(f.Size))
	}
}

// showError prints the error banner once
func (s *chatSession) showError() {
	if msg := s.view.Error(); msg != "" {
		fmt.Fprintf(s.out, "! %s\n", msg)
		s.view.DismissError()
	}
}

// messagesChanged prints the messages that arrived since the last render
func (s *chatSession) messagesChanged(messages []models.ChatMessage) {
	if len(messages) < s.printed {
		s.printed = 0
	}
	now := time.Now()
	for _, msg := range messages[s.printed:] {
		renderMessage(s.out, s.view, msg, now)
	}
	s.printed = len(messages)
}

// unreadChanged runs on the poller goroutine
func (s *chatSession) unreadChanged(client.UnreadSnapshot) {
	if !s.closing.Load() {
		return
	}
	select {
	case s.refreshed <- struct{}{}:
	default:
	}
}

// close closes the view and waits for the unread refresh it schedules
func (s *chatSession) close(ctx context.Context) error {
	s.closing.Store(true)
	s.view.Close()

	select {
	case <-s.refreshed:
	case <-time.After(closeRefreshWait):
	case <-ctx.Done():
	}

	total := s.poller.Snapshot().Total
	fmt.Fprintf(s.out, "Closed. %s unread %s\n", humanize.Comma(total), plural(total, "message", "messages"))
	return nil
}

// readLines feeds input lines until EOF or ctx ends
func readLines(ctx context.Context, in io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// lockedWriter serializes output from the command and poller goroutines
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
