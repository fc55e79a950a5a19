package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	chatterline "github.com/chatterline/chatterline-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "List your conversations",
	Long:  "Fetch the room list from the server and print each conversation with its unread counter and latest message.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := requireAuth()
		log := newLogger(cfg.Server.LogMode)

		sock := chatterline.NewSocket(cfg.Server.BaseURL, &chatterline.SocketConfig{
			Token:  cfg.Auth.Token,
			Logger: log,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sock.Connect(ctx); err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}
		defer sock.Close()

		store := chatterline.NewRoomStore(log)
		done := make(chan struct{})
		sock.On(chatterline.EventYourRooms, func(payload json.RawMessage) {
			var p chatterline.YourRoomsPayload
			if json.Unmarshal(payload, &p) != nil {
				return
			}
			store.UpsertRoomList(p.Rooms)
			close(done)
		})

		if err := sock.RequestRooms(ctx, cfg.Auth.UserID); err != nil {
			return fmt.Errorf("room list request failed: %w", err)
		}

		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("timed out waiting for room list")
		}

		rooms := store.Rooms()
		if len(rooms) == 0 {
			fmt.Println("Your ongoing chats will be visible here.")
			return nil
		}
		for _, room := range rooms {
			peer, _ := room.Peer(cfg.Auth.UserID)
			line := fmt.Sprintf("%-20s", peer.Name)
			if len(room.Messages) > 0 {
				latest := room.Messages[0]
				line += fmt.Sprintf("  %s  (%s)", latest.Text, latest.CreatedAt.Local().Format("Jan 2 15:04"))
			}
			if room.Unread > 0 {
				line += fmt.Sprintf("  [%d new]", room.Unread)
			}
			fmt.Println(line)
		}
		return nil
	},
}
