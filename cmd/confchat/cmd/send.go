package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/welldanyogia/webrana-confchat/internal/attachment"
	"github.com/welldanyogia/webrana-confchat/internal/client"
)

func init() {
	sendCmd.Flags().StringSliceP("attach", "a", nil, "file to attach (repeatable, images and PDFs only)")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <paperId> [message]",
	Short: "Send a message with optional attachments",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, _ := cmd.Flags().GetStringSlice("attach")

		files := make([]attachment.File, 0, len(paths))
		for _, p := range paths {
			f, err := attachment.FromPath(p)
			if err != nil {
				return err
			}
			files = append(files, f)
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		view := client.NewConversationView(c, nil)
		if err := view.Open(cmd.Context(), args[0]); err != nil {
			return errors.New(client.ServerMessage(err, client.LoadFailedMessage))
		}
		defer view.Close()

		if len(files) > 0 {
			if sel := view.SelectFiles(files); !sel.OK() {
				return errors.New(sel.Message)
			}
		}
		if len(args) == 2 {
			view.SetDraft(args[1])
		}

		msg, err := view.Send(cmd.Context())
		if err != nil {
			if view.Error() != "" {
				return errors.New(view.Error())
			}
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Sent message %d", msg.ID)
		if n := len(msg.Attachments); n > 0 {
			names := make([]string, 0, n)
			for _, a := range msg.Attachments {
				names = append(names, fmt.Sprintf("%s (%s)", a.FileName, attachment.FormatSize(a.FileSize)))
			}
			fmt.Fprintf(out, " with %s", strings.Join(names, ", "))
		}
		fmt.Fprintln(out)
		return nil
	},
}
