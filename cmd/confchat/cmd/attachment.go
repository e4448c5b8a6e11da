package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/welldanyogia/webrana-confchat/internal/client"
)

func init() {
	attachmentCmd.Flags().StringP("output", "o", "", "write to this path (default: the attachment's file name)")
	attachmentCmd.Flags().Bool("view", false, "fetch inline instead of as a download")
	attachmentCmd.Flags().Bool("print-url", false, "only print the attachment URL")
	rootCmd.AddCommand(attachmentCmd)
}

var attachmentCmd = &cobra.Command{
	Use:   "attachment <paperId> <messageId> <index>",
	Short: "Download a message attachment",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		inline, _ := cmd.Flags().GetBool("view")
		onlyURL, _ := cmd.Flags().GetBool("print-url")

		messageID, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid message id %q", args[1])
		}
		index, err := strconv.Atoi(args[2])
		if err != nil || index < 0 {
			return fmt.Errorf("invalid attachment index %q", args[2])
		}

		c, err := newClient()
		if err != nil {
			return err
		}

		if onlyURL {
			fmt.Fprintln(cmd.OutOrStdout(), c.AttachmentURL(args[0], uint(messageID), index, !inline))
			return nil
		}

		body, fileName, err := c.Attachment(cmd.Context(), args[0], uint(messageID), index, !inline)
		if err != nil {
			return errors.New(client.ServerMessage(err, "Failed to fetch attachment"))
		}
		defer body.Close()

		if output == "" {
			output = filepath.Base(fileName)
		}
		if output == "" || output == "." || output == string(filepath.Separator) {
			output = fmt.Sprintf("attachment-%d-%d", messageID, index)
		}

		n, err := writeFile(output, body)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", output, humanize.IBytes(uint64(n)))
		return nil
	},
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", path, err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return n, nil
}
