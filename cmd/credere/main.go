package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:     "credere",
		Short:   "Credere - credit application lifecycle engine for procurement awards",
		Version: Version,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(fetchAwardsCmd())
	rootCmd.AddCommand(sendRemindersCmd())
	rootCmd.AddCommand(setLapsedCmd())
	rootCmd.AddCommand(slaOverdueCmd())
	rootCmd.AddCommand(removeDatedDataCmd())
	rootCmd.AddCommand(updateStatisticsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
