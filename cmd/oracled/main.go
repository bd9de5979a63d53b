package main

import (
	"fmt"
	"os"
)

func main() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(accountCmd)
	rootCmd.AddCommand(requestCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(challengeCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(scoreCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
