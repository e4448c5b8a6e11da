package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	"github.com/welldanyogia/webrana-confchat/internal/client"
	"github.com/welldanyogia/webrana-confchat/internal/models"
)

const emptyThreadMessage = "No messages yet. Start the conversation below."

func init() {
	rootCmd.AddCommand(threadCmd)
}

var threadCmd = &cobra.Command{
	Use:   "thread <paperId>",
	Short: "Show a paper's conversation and mark it read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}

		view := client.NewConversationView(c, nil)
		if err := view.Open(cmd.Context(), args[0]); err != nil {
			return errors.New(client.ServerMessage(err, client.LoadFailedMessage))
		}
		defer view.Close()

		renderThread(cmd.OutOrStdout(), view, time.Now())
		return nil
	},
}

// renderThread prints the conversation header followed by every message in
// server order
func renderThread(out io.Writer, view *client.ConversationView, now time.Time) {
	if paper := view.Paper(); paper != nil {
		fmt.Fprintf(out, "%s\n%s\n", paper.Title, strings.Repeat("=", len(paper.Title)))
	} else {
		fmt.Fprintf(out, "Paper %s\n", view.PaperID())
	}

	if view.EmptyState() {
		fmt.Fprintln(out, emptyThreadMessage)
		return
	}

	for _, msg := range view.Messages() {
		renderMessage(out, view, msg, now)
	}
}

func renderMessage(out io.Writer, view *client.ConversationView, msg models.ChatMessage, now time.Time) {
	fmt.Fprintf(out, "\n%s %s, %s\n", roleBadge(msg.SenderRole), msg.Sender.Name, humanize.RelTime(msg.CreatedAt, now, "ago", "from now"))
	if msg.Body != "" {
		for _, line := range strings.Split(msg.Body, "\n") {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}
	for _, a := range msg.Attachments {
		fmt.Fprintf(out, "  [%s] %s (%s)\n      %s\n", a.FileType, a.FileName, attachment.FormatSize(a.FileSize),
			view.AttachmentURL(msg.ID, a.Position, false))
	}
}

func roleBadge(role models.Role) string {
	if role == models.RoleAdmin {
		return "[admin]"
	}
	return "[author]"
}
