package main

import (
	"fmt"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type queryArguments struct {
	Url    string
	Status string
}

var accountArgs queryArguments

var accountCmd = &cobra.Command{
	Use:   "account <address>",
	Short: "Show the balance and locked funds of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}
		return getJSON(accountArgs.Url, "/accounts/"+common.HexToAddress(args[0]).Hex())
	},
}

var showArgs queryArguments

var showCmd = &cobra.Command{
	Use:   "show [request]",
	Short: "Show one request, or list requests filtered by --status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			id, err := parseRequestID(args[0])
			if err != nil {
				return err
			}
			return getJSON(showArgs.Url, "/requests/"+id.Hex())
		}
		path := "/requests"
		if showArgs.Status != "" {
			path += "?status=" + url.QueryEscape(showArgs.Status)
		}
		return getJSON(showArgs.Url, path)
	},
}

var statusArgs queryArguments

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the committed state of the node",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON(statusArgs.Url, "/status")
	},
}

func init() {
	urlFlag(accountCmd, &accountArgs.Url)
	urlFlag(showCmd, &showArgs.Url)
	showCmd.Flags().StringVarP(&showArgs.Status, "status", "s", "", "request status filter")
	urlFlag(statusCmd, &statusArgs.Url)
	requestCmd.AddCommand(showCmd)
	rootCmd.AddCommand(statusCmd)
}
