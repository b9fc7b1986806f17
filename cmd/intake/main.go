// Package main provides the entry point for the job-application intake service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "intake",
	Short:        "Job application intake service",
	Long:         "Intake accepts job applications with an attached document, refuses duplicates and floods, tracks each application through review and purges records past their retention window.",
	SilenceUsage: true,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
