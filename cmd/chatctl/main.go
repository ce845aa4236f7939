package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"time"

	"github.com/raftchat/raftchat/pkg/client"
	"github.com/raftchat/raftchat/pkg/types"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "chatctl talks to a raftchat cluster",
}

func init() {
	rootCmd.PersistentFlags().StringSlice("servers", []string{"127.0.0.1:8080"}, "Cluster server addresses, any of which may be leader")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(inboxCmd)
	rootCmd.AddCommand(markReadCmd)
	rootCmd.AddCommand(deleteMessagesCmd)
	rootCmd.AddCommand(deleteAccountCmd)
	rootCmd.AddCommand(listAccountsCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(applyCmd)

	registerCmd.Flags().String("password", "", "Account password (required)")
	_ = registerCmd.MarkFlagRequired("password")

	loginCmd.Flags().String("password", "", "Account password (required)")
	_ = loginCmd.MarkFlagRequired("password")

	sendCmd.Flags().String("content", "", "Message content (required)")
	_ = sendCmd.MarkFlagRequired("content")

	inboxCmd.Flags().Int("limit", 20, "Maximum number of messages to show")

	markReadCmd.Flags().UintSlice("ids", nil, "Message ids to mark as read (required)")
	_ = markReadCmd.MarkFlagRequired("ids")

	deleteMessagesCmd.Flags().UintSlice("ids", nil, "Message ids to delete (required)")
	_ = deleteMessagesCmd.MarkFlagRequired("ids")

	listAccountsCmd.Flags().String("pattern", "%", "SQL-LIKE pattern to match usernames against")
	listAccountsCmd.Flags().Int("page", 1, "Page number")
	listAccountsCmd.Flags().Int("per-page", 20, "Results per page")

	streamCmd.Flags().Uint64("resume-after", 0, "Skip messages with id at or below this value")

	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")
}

// hashPassword derives a deterministic password hash: the state machine
// compares these bytes directly rather than re-deriving anything, so the
// same password must always hash to the same bytes, which rules out a
// salted scheme like bcrypt here.
func hashPassword(password string) []byte {
	sum := sha256.Sum256([]byte(password))
	return sum[:]
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	servers, _ := cmd.Flags().GetStringSlice("servers")
	return client.New(servers)
}

func toUint64s(ids []uint) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}

var registerCmd = &cobra.Command{
	Use:   "register USERNAME",
	Short: "Create a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Register(args[0], hashPassword(password)); err != nil {
			return err
		}
		fmt.Printf("account created: %s\n", args[0])
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login USERNAME",
	Short: "Authenticate and report unread message count",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		unread, err := c.Login(args[0], hashPassword(password))
		if err != nil {
			return err
		}
		fmt.Printf("logged in as %s (%d unread message(s))\n", args[0], unread)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send SENDER RECIPIENT",
	Short: "Send a direct message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, _ := cmd.Flags().GetString("content")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		id, err := c.SendMessage(args[0], args[1], content)
		if err != nil {
			return err
		}
		fmt.Printf("message %d sent to %s\n", id, args[1])
		return nil
	},
}

var inboxCmd = &cobra.Command{
	Use:   "inbox USERNAME",
	Short: "List a user's messages, most recent first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		msgs, err := c.GetMessages(args[0], limit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("no messages")
			return nil
		}
		for _, m := range msgs {
			read := " "
			if m.Read {
				read = "x"
			}
			fmt.Printf("[%s] #%d %s -> %s: %s (%s)\n", read, m.ID, m.Sender, m.Recipient, m.Content, m.Timestamp.Format(time.RFC3339))
		}
		return nil
	},
}

var markReadCmd = &cobra.Command{
	Use:   "mark-read USERNAME",
	Short: "Mark the given message ids as read",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, _ := cmd.Flags().GetUintSlice("ids")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		count, err := c.MarkAsRead(args[0], toUint64s(ids))
		if err != nil {
			return err
		}
		fmt.Printf("%d message(s) marked read\n", count)
		return nil
	},
}

var deleteMessagesCmd = &cobra.Command{
	Use:   "delete-messages USERNAME",
	Short: "Delete messages where the user is sender or recipient",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids, _ := cmd.Flags().GetUintSlice("ids")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		count, err := c.DeleteMessages(args[0], toUint64s(ids))
		if err != nil {
			return err
		}
		fmt.Printf("%d message(s) deleted\n", count)
		return nil
	},
}

var deleteAccountCmd = &cobra.Command{
	Use:   "delete-account USERNAME",
	Short: "Delete an account and every message it sent or received",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.DeleteAccount(args[0]); err != nil {
			return err
		}
		fmt.Printf("account deleted: %s\n", args[0])
		return nil
	},
}

var listAccountsCmd = &cobra.Command{
	Use:   "list-accounts",
	Short: "List registered usernames matching a pattern",
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern, _ := cmd.Flags().GetString("pattern")
		page, _ := cmd.Flags().GetInt("page")
		perPage, _ := cmd.Flags().GetInt("per-page")

		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		usernames, total, err := c.ListAccounts(pattern, page, perPage)
		if err != nil {
			return err
		}
		for _, u := range usernames {
			fmt.Println(u)
		}
		fmt.Printf("(%d of %d total)\n", len(usernames), total)
		return nil
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream USERNAME",
	Short: "Stream new messages for a user until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resumeAfter, _ := cmd.Flags().GetUint64("resume-after")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		return c.Stream(cmd.Context(), args[0], resumeAfter, func(m *types.Message) {
			fmt.Printf("#%d %s -> %s: %s\n", m.ID, m.Sender, m.Recipient, m.Content)
		})
	},
}
