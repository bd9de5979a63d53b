package main

import (
	"fmt"

	"github.com/calehh/oracle-node/tx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

type txArguments struct {
	Url   string
	From  string
	Check bool
}

func txFlags(cmd *cobra.Command, args *txArguments) {
	urlFlag(cmd, &args.Url)
	senderFlag(cmd, &args.From)
	checkFlag(cmd, &args.Check)
}

func parseRequestID(s string) (id common.Address, err error) {
	if !common.IsHexAddress(s) {
		err = fmt.Errorf("invalid request id %q", s)
		return
	}
	return common.HexToAddress(s), nil
}

type requestArguments struct {
	txArguments
	Question        string
	Context         string
	TruthMeaning    string
	AnswerType      string
	ChallengeWindow uint64
	Reward          uint64
}

var requestArgs requestArguments

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Create a request and escrow its reward",
	Args:  cobra.NoArgs,
	RunE:  requestRun,
}

func init() {
	txFlags(requestCmd, &requestArgs.txArguments)
	requestCmd.Flags().StringVarP(&requestArgs.Question, "question", "q", "", "question to answer")
	requestCmd.Flags().StringVarP(&requestArgs.Context, "context", "c", "", "context of the question")
	requestCmd.Flags().StringVarP(&requestArgs.TruthMeaning, "truth-meaning", "", "", "what a true answer means")
	requestCmd.Flags().StringVarP(&requestArgs.AnswerType, "answer-type", "t", "boolean", "boolean or numeric")
	requestCmd.Flags().Uint64VarP(&requestArgs.ChallengeWindow, "window", "w", 3600, "challenge window in seconds")
	requestCmd.Flags().Uint64VarP(&requestArgs.Reward, "reward", "r", 0, "reward escrowed for the answer")
}

func requestRun(cmd *cobra.Command, args []string) error {
	return sendTx(requestArgs.Url, requestArgs.From, requestArgs.Check, tx.OracleTxTypeCreateRequest, &tx.CreateRequestTx{
		Question:        requestArgs.Question,
		Context:         requestArgs.Context,
		TruthMeaning:    requestArgs.TruthMeaning,
		AnswerType:      requestArgs.AnswerType,
		ChallengeWindow: requestArgs.ChallengeWindow,
		Reward:          requestArgs.Reward,
	})
}

var proposeArgs txArguments

var proposeCmd = &cobra.Command{
	Use:   "propose <request> <answer>",
	Short: "Propose an answer under bond",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		return sendTx(proposeArgs.Url, proposeArgs.From, proposeArgs.Check, tx.OracleTxTypePropose, &tx.ProposeTx{
			Request: id,
			Answer:  args[1],
		})
	},
}

type challengeArguments struct {
	txArguments
	Reason string
}

var challengeArgs challengeArguments

var challengeCmd = &cobra.Command{
	Use:   "challenge <request> <answer>",
	Short: "Dispute the proposed answer with a counter answer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		return sendTx(challengeArgs.Url, challengeArgs.From, challengeArgs.Check, tx.OracleTxTypeChallenge, &tx.ChallengeTx{
			Request: id,
			Answer:  args[1],
			Reason:  challengeArgs.Reason,
		})
	},
}

type reviewArguments struct {
	txArguments
	Reason  string
	Support bool
}

var reviewArgs reviewArguments

var reviewCmd = &cobra.Command{
	Use:   "review <request>",
	Short: "Vote on a disputed answer",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		return sendTx(reviewArgs.Url, reviewArgs.From, reviewArgs.Check, tx.OracleTxTypeReview, &tx.ReviewTx{
			Request:           id,
			Reason:            reviewArgs.Reason,
			SupportsChallenge: reviewArgs.Support,
		})
	},
}

var finalizeArgs txArguments

var finalizeCmd = &cobra.Command{
	Use:   "finalize <request>",
	Short: "Resolve a request whose window has passed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		return sendTx(finalizeArgs.Url, finalizeArgs.From, finalizeArgs.Check, tx.OracleTxTypeFinalize, &tx.FinalizeTx{Request: id})
	},
}

var cancelArgs txArguments

var cancelCmd = &cobra.Command{
	Use:   "cancel <request>",
	Short: "Cancel an unanswered request and refund its reward",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		return sendTx(cancelArgs.Url, cancelArgs.From, cancelArgs.Check, tx.OracleTxTypeCancel, &tx.CancelTx{Request: id})
	},
}

var scoreArgs txArguments

var scoreCmd = &cobra.Command{
	Use:   "score <request>",
	Short: "Attach an advisory risk score to a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseRequestID(args[0])
		if err != nil {
			return err
		}
		return sendTx(scoreArgs.Url, scoreArgs.From, scoreArgs.Check, tx.OracleTxTypeScore, &tx.ScoreTx{Request: id})
	},
}

func init() {
	txFlags(proposeCmd, &proposeArgs)
	txFlags(challengeCmd, &challengeArgs.txArguments)
	challengeCmd.Flags().StringVarP(&challengeArgs.Reason, "reason", "r", "", "why the proposal is wrong")
	txFlags(reviewCmd, &reviewArgs.txArguments)
	reviewCmd.Flags().StringVarP(&reviewArgs.Reason, "reason", "r", "", "review rationale")
	reviewCmd.Flags().BoolVarP(&reviewArgs.Support, "support", "s", false, "vote for the challenger")
	txFlags(finalizeCmd, &finalizeArgs)
	txFlags(cancelCmd, &cancelArgs)
	txFlags(scoreCmd, &scoreArgs)
}
