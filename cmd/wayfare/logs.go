package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func init() {
	logsAddCmd.Flags().StringVar(&logImage, "image", "", "photo URL")
	logsAddCmd.Flags().StringVar(&logWhen, "when", "", "entry time (RFC3339, default now)")

	logsCmd.AddCommand(logsListCmd)
	logsCmd.AddCommand(logsAddCmd)
	logsCmd.AddCommand(logsSearchCmd)
	rootCmd.AddCommand(logsCmd)
}

var (
	logImage string
	logWhen  string
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Manage travel diary entries",
}

var logsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your diary entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		logs, err := client.ListTravelLogs()
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("No entries yet. Add one with 'wayfare logs add'.")
			return nil
		}

		for _, log := range logs {
			when := time.UnixMilli(log.DateTime).Format("2006-01-02 15:04")
			fmt.Printf("%s  %s  %s\n", log.ID, when, log.Location)
			if log.Details != "" {
				fmt.Printf("    %s\n", log.Details)
			}
		}
		return nil
	},
}

var logsAddCmd = &cobra.Command{
	Use:   "add <location> [details]",
	Short: "Add a diary entry",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		details := ""
		if len(args) == 2 {
			details = args[1]
		}

		var when int64
		if logWhen != "" {
			t, err := time.Parse(time.RFC3339, logWhen)
			if err != nil {
				return fmt.Errorf("invalid --when value: %w", err)
			}
			when = t.UnixMilli()
		}

		log, err := client.AddTravelLog(logImage, args[0], when, details)
		if err != nil {
			return err
		}

		fmt.Printf("Added %s: %s\n", log.ID, log.Location)
		return nil
	},
}

var logsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search your diary entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := requireSession()
		if err != nil {
			return err
		}

		logs, err := client.SearchTravelLogs(args[0], 0)
		if err != nil {
			return err
		}
		if len(logs) == 0 {
			fmt.Println("No matches.")
			return nil
		}

		for _, log := range logs {
			when := time.UnixMilli(log.DateTime).Format("2006-01-02")
			fmt.Printf("%s  %s  %s\n", log.ID, when, log.Location)
		}
		return nil
	},
}
