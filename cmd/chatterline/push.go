package main

import (
	"context"
	"fmt"
	"time"

	chatterline "github.com/chatterline/chatterline-go"
	"github.com/spf13/cobra"
)

func init() {
	pushCmd.AddCommand(pushRegisterCmd)
	pushCmd.AddCommand(pushStatusCmd)
	rootCmd.AddCommand(pushCmd)
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Manage push notification registration",
}

var pushRegisterCmd = &cobra.Command{
	Use:   "register <device-token>",
	Short: "Register a device push token with the server",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deviceToken := args[0]
		cfg := requireAuth()

		path, err := tokenStorePath()
		if err != nil {
			return err
		}
		store := chatterline.NewFileTokenStore(path)

		client := getClient(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		err = chatterline.EnsurePushToken(ctx, client, store, cfg.Auth.Token,
			func(context.Context) (string, error) { return deviceToken, nil })
		if err != nil {
			return fmt.Errorf("push registration failed: %w", err)
		}

		fmt.Println("Push token registered.")
		return nil
	},
}

var pushStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored push token grant state",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := tokenStorePath()
		if err != nil {
			return err
		}
		store := chatterline.NewFileTokenStore(path)
		state, err := store.Get(chatterline.PushGrantKey)
		if err != nil {
			return err
		}
		if state == "" {
			state = "unregistered"
		}
		fmt.Printf("Push token state: %s\n", state)
		return nil
	},
}
