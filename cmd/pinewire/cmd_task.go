package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/pinewire/internal/api"
	"github.com/user/pinewire/internal/types"
)

func init() {
	rootCmd.AddCommand(taskCmd, payCmd)
	taskCmd.AddCommand(taskStartCmd)
	payCmd.Flags().String("plan", "pro", "plan to generate a payment link for")
}

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage background tasks",
}

var taskStartCmd = &cobra.Command{
	Use:   "start <session-id> <prompt>",
	Short: "Start a background task in a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := api.New(cfg.BaseURL, cfg.APIKey)

		receipt, err := client.StartTask(context.Background(), types.SessionID(args[0]), args[1])
		if err != nil {
			return fmt.Errorf("start task: %w", err)
		}
		fmt.Printf("Task %s started in session %s (%s)\n", receipt.TaskID, receipt.SessionID, receipt.State)
		return nil
	},
}

var payCmd = &cobra.Command{
	Use:   "pay",
	Short: "Generate a payment link for a plan upgrade",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		client := api.New(cfg.BaseURL, cfg.APIKey)

		plan, _ := cmd.Flags().GetString("plan")
		link, err := client.CreatePaymentLink(context.Background(), plan)
		if err != nil {
			return fmt.Errorf("create payment link: %w", err)
		}
		fmt.Println(link.URL)
		if !link.ExpiresAt.IsZero() {
			fmt.Printf("Expires %s\n", link.ExpiresAt.Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
