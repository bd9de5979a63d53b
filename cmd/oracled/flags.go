package main

import "github.com/spf13/cobra"

const (
	FlagHome      = "home"
	FlagChainID   = "chain-id"
	FlagOverwrite = "overwrite"
	FlagAccount   = "account"
)

func urlFlag(cmd *cobra.Command, url *string) {
	cmd.Flags().StringVarP(url, "url", "u", "http://127.0.0.1:8645", "oracle api url")
}

func senderFlag(cmd *cobra.Command, sender *string) {
	cmd.Flags().StringVarP(sender, "from", "f", "", "address the transaction is sent from")
}

func checkFlag(cmd *cobra.Command, check *bool) {
	cmd.Flags().BoolVarP(check, "check", "", false, "only check the transaction, do not execute it")
}
