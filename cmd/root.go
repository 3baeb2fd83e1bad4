package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/rollcall/internal/config"
	"github.com/kozaktomas/rollcall/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "rollcall",
	Short: "Take attendance from group pictures",
	Long: `rollcall matches a group picture against a course roster by comparing
faces with each student's reference picture, and merges the students it
recognizes into the attendance record for a session label.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	logger, err := logging.New(config.Load().Log, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using default logger\n", err)
		return
	}
	slog.SetDefault(logger)
}
