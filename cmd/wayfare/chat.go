package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wayfarelabs/wayfare/internal/models"
	"github.com/wayfarelabs/wayfare/internal/syncer"
	"github.com/wayfarelabs/wayfare/internal/view"
)

func init() {
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(chatsCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(watchCmd)
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List other travellers and their presence",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		resp, err := client.ListUsers()
		if err != nil {
			return err
		}

		for _, user := range resp.Users {
			dot := " "
			if user.Online {
				dot = "*"
			}
			fmt.Printf("%s %s  %s\n", dot, user.ID, user.Name)
		}
		return nil
	},
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your conversations, newest activity first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		convs, err := client.ListConversations()
		if err != nil {
			return err
		}

		items := projectConversations(client.UserID, convs, nil, nil)
		if len(items) == 0 {
			fmt.Println("No conversations yet. Start one with 'wayfare send <user-id> <text>'.")
			return nil
		}
		printConversations(items)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <user-id> <text>",
	Short: "Send a message, starting the conversation if needed",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		conv, err := client.OpenConversation(args[0])
		if err != nil {
			return err
		}

		msg, err := client.SendMessage(conv.ID, args[1])
		if err != nil {
			return err
		}

		fmt.Printf("Sent %s to %s\n", msg.ID, args[0])
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live view of conversations and presence",
	Long:  "Connects to the server and redraws the conversation list on every change. Marks you online while running; Ctrl-C goes offline.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		users, err := client.ListUsers()
		if err != nil {
			return err
		}
		directory := make(map[string]models.User, len(users.Users))
		peerIDs := make([]string, 0, len(users.Users))
		for _, u := range users.Users {
			directory[u.ID] = models.User{ID: u.ID, Name: u.Name, Email: u.Email}
			peerIDs = append(peerIDs, u.ID)
		}

		watcher, err := client.Watch(ctx, func(state syncer.State) {
			items := view.ConversationList(state, client.UserID, directory)
			fmt.Print("\033[H\033[2J")
			fmt.Printf("wayfare watch — %s\n\n", time.Now().Format("15:04:05"))
			printConversations(items)
		})
		if err != nil {
			return err
		}
		defer watcher.Close()

		if err := watcher.WatchPresence(peerIDs); err != nil {
			return err
		}

		<-ctx.Done()
		return nil
	},
}

func projectConversations(selfID string, convs []models.Conversation, msgs map[string][]models.Message, statuses map[string]models.UserStatus) []view.ConversationItem {
	state := syncer.State{Conversations: convs, Messages: msgs, Statuses: statuses}
	return view.ConversationList(state, selfID, nil)
}

func printConversations(items []view.ConversationItem) {
	for _, item := range items {
		dot := " "
		if item.Online {
			dot = "*"
		}
		badge := ""
		if item.Badge != "" {
			badge = " [" + item.Badge + "]"
		}
		preview := item.LastMessageText
		if len(preview) > 48 {
			preview = preview[:48] + "..."
		}
		fmt.Printf("%s %-24s%s  %s\n", dot, item.CounterpartName, badge, preview)
	}
}
