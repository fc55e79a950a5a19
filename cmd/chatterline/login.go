package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var (
	loginBaseURL string
	verifyName   string
)

func init() {
	loginCmd.Flags().StringVar(&loginBaseURL, "server", "", "Server base URL (stored in config)")
	verifyCmd.Flags().StringVar(&verifyName, "name", "", "Display name to register with")
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(verifyCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <phone>",
	Short: "Request a sign-in OTP",
	Long:  "Request a one-time code for the given phone number.\nComplete the sign-in with 'chatterline verify <phone> <code>'.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phone := args[0]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if loginBaseURL != "" {
			cfg.Server.BaseURL = loginBaseURL
			if err := saveConfig(cfg); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
		}
		if cfg.Server.BaseURL == "" {
			return fmt.Errorf("no server configured; pass --server on first login")
		}

		client := getClient(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := client.SignIn(ctx, phone); err != nil {
			return fmt.Errorf("sign-in failed: %w", err)
		}

		fmt.Printf("OTP sent to %s. Run 'chatterline verify %s <code>' to finish.\n", phone, phone)
		return nil
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify <phone> <code>",
	Short: "Verify the OTP and store the session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		phone, code := args[0], args[1]

		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cfg.Server.BaseURL == "" {
			return fmt.Errorf("no server configured; run 'chatterline login <phone> --server <url>' first")
		}

		name := verifyName
		if name == "" {
			name = cfg.Auth.Name
		}

		client := getClient(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		auth, err := client.VerifyOTP(ctx, name, code, phone)
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}

		cfg.Auth.Token = auth.Token
		cfg.Auth.UserID = auth.User.ID
		cfg.Auth.Name = auth.User.Name
		cfg.Auth.PhoneNumber = auth.User.PhoneNumber
		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		fmt.Println("Signed in!")
		fmt.Printf("  User ID: %s\n", auth.User.ID)
		fmt.Printf("  Name:    %s\n", auth.User.Name)
		return nil
	},
}
