package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/welldanyogia/webrana-confchat/internal/client"
)

func init() {
	watchCmd.Flags().Duration("interval", client.DefaultPollInterval, "poll interval")
	watchCmd.Flags().Bool("quiet", false, "only update the title line, no notifications")
	watchCmd.Flags().Bool("no-push", false, "poll only, without the push hint channel")
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch unread message counts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		quiet, _ := cmd.Flags().GetBool("quiet")
		noPush, _ := cmd.Flags().GetBool("no-push")

		c, err := newClient()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		out := cmd.OutOrStdout()
		logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))

		poller := client.NewUnreadPoller(client.PollerConfig{
			Source:        c,
			Interval:      interval,
			Notifier:      &terminalNotifier{out: out, quiet: quiet},
			BaseTitle:     "ConfChat",
			OnTitle:       func(title string) { fmt.Fprintln(out, title) },
			OnChange:      func(s client.UnreadSnapshot) { printCounts(out, s) },
			Authenticated: c.Authenticated,
			Logger:        logger,
		})
		poller.Start(ctx)
		defer poller.Stop()

		if !noPush {
			listener := client.NewPushListener(c, poller, logger)
			go listener.Run(ctx)
		}

		<-ctx.Done()
		return nil
	},
}

// terminalNotifier rings the terminal bell with the unread total
type terminalNotifier struct {
	out   io.Writer
	quiet bool
}

func (n *terminalNotifier) RequestPermission(context.Context) bool {
	return !n.quiet && isTerminal(os.Stdout)
}

func (n *terminalNotifier) Notify(total int64) {
	if total == 0 {
		return
	}
	fmt.Fprintf(n.out, "\a%s unread %s\n", humanize.Comma(total), plural(total, "message", "messages"))
}

func printCounts(out io.Writer, s client.UnreadSnapshot) {
	for _, paperID := range slices.Sorted(maps.Keys(s.Counts)) {
		fmt.Fprintf(out, "  %s  %s\n", paperID, humanize.Comma(s.Counts[paperID]))
	}
	fmt.Fprintf(out, "  checked %s\n", s.FetchedAt.Format(time.Kitchen))
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
