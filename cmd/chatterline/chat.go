package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	chatterline "github.com/chatterline/chatterline-go"
	"github.com/spf13/cobra"
)

var (
	chatRoomID   string
	chatPeerName string
)

func init() {
	chatCmd.Flags().StringVar(&chatRoomID, "room", "", "Known room id (from the chats list)")
	chatCmd.Flags().StringVar(&chatPeerName, "peer-name", "", "Peer display name for the prompt")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat <peer-id>",
	Short: "Open a live conversation",
	Long:  "Bind the conversation with the given peer, print its history and live messages, and send lines typed on stdin. Type /quit to leave.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		peerID := args[0]
		cfg := requireAuth()
		log := newLogger(cfg.Server.LogMode)

		sock := chatterline.NewSocket(cfg.Server.BaseURL, &chatterline.SocketConfig{
			Token:         cfg.Auth.Token,
			AutoReconnect: true,
			Logger:        log,
		})

		dialCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sock.Connect(dialCtx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer sock.Close()

		store := chatterline.NewRoomStore(log)
		session := chatterline.NewSessionController(sock, store, log)

		peerName := chatPeerName
		if peerName == "" {
			peerName = peerID
		}

		session.OnActive(func(roomID string) {
			room, ok := store.Room(roomID)
			if !ok {
				return
			}
			// History is newest-first; print oldest-first for reading.
			for i := len(room.Messages) - 1; i >= 0; i-- {
				printMessage(room.Messages[i], cfg.Auth.UserID, peerName)
			}
		})
		session.OnLiveMessage(func(msg chatterline.Message) {
			printMessage(msg, cfg.Auth.UserID, peerName)
		})

		ctx := context.Background()
		if err := session.Open(ctx, cfg.Auth.UserID, peerID, chatRoomID); err != nil {
			return fmt.Errorf("open conversation: %w", err)
		}
		defer session.Close(context.Background())

		fmt.Printf("Chatting with %s. Type /quit to leave.\n", peerName)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "/quit" {
				break
			}
			if _, err := session.Send(ctx, line); err != nil {
				log.Warn("send failed", "err", err)
			}
		}
		return scanner.Err()
	},
}

func printMessage(msg chatterline.Message, selfID, peerName string) {
	who := peerName
	if msg.User.ID == selfID {
		who = "you"
	}
	fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format("15:04"), who, msg.Text)
}
