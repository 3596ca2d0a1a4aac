package main

import (
	"github.com/spf13/cobra"

	"tranchefi/services/ledgerd/server"
)

func init() {
	rootCmd.AddCommand(creditCmd, effectsCmd)
	creditCmd.AddCommand(creditInitCmd, creditRequestCmd, creditShowRequestCmd, creditAcceptCmd, creditLoanCmd, creditPayCmd, creditPayoffCmd)

	creditInitCmd.Flags().String("router", "", "swap router contract")
	creditInitCmd.Flags().String("pool", "", "yield pool receiving interest")
	creditInitCmd.Flags().String("principal-token", "", "token loans are disbursed in")

	creditRequestCmd.Flags().String("borrower", "", "borrower account (defaults to the signer)")
	creditRequestCmd.Flags().String("amount", "", "requested amount")
	creditRequestCmd.Flags().String("rate", "", "interest rate in whole percent")
	creditRequestCmd.Flags().String("fee", "", "origination fee in whole percent")

	creditAcceptCmd.Flags().Uint32("term", 12, "loan term in months")
	creditPayCmd.Flags().String("amount", "", "installment amount")

	effectsCmd.Flags().Int("limit", 50, "maximum number of records")
	effectsCmd.Flags().Bool("failed", false, "only show failed collaborator calls")
}

var creditCmd = &cobra.Command{
	Use:   "credit",
	Short: "Loan ledger operations",
}

var creditInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure the loan ledger's collaborators",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var req server.CreditInitRequest
		var err error
		if req.Router, err = addressFlag(cmd, "router", false); err != nil {
			return err
		}
		if req.Pool, err = addressFlag(cmd, "pool", false); err != nil {
			return err
		}
		if req.PrincipalToken, err = addressFlag(cmd, "principal-token", false); err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.InitCredit(cmd.Context(), req, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var creditRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Submit or replace a loan request",
	RunE: func(cmd *cobra.Command, _ []string) error {
		borrower, err := addressFlag(cmd, "borrower", true)
		if err != nil {
			return err
		}
		req := server.CreditRequest{Borrower: borrower}
		if req.Amount, err = requiredString(cmd, "amount"); err != nil {
			return err
		}
		if req.InterestRate, err = requiredString(cmd, "rate"); err != nil {
			return err
		}
		if req.OriginationFee, err = requiredString(cmd, "fee"); err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.RequestCredit(cmd.Context(), req, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var creditShowRequestCmd = &cobra.Command{
	Use:   "show-request BORROWER",
	Short: "Show a borrower's loan request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		borrower, err := addressArg(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.LoanRequest(cmd.Context(), borrower)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var creditAcceptCmd = &cobra.Command{
	Use:   "accept BORROWER",
	Short: "Approve a request and disburse the discounted amount",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		borrower, err := addressArg(args[0])
		if err != nil {
			return err
		}
		term, _ := cmd.Flags().GetUint32("term")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.AcceptCredit(cmd.Context(), borrower, term, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var creditLoanCmd = &cobra.Command{
	Use:   "loan BORROWER",
	Short: "Show a borrower's active loan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		borrower, err := addressArg(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.Loan(cmd.Context(), borrower)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var creditPayCmd = &cobra.Command{
	Use:   "pay BORROWER",
	Short: "Record an installment against the loan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		borrower, err := addressArg(args[0])
		if err != nil {
			return err
		}
		amount, err := requiredString(cmd, "amount")
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.PayInstallment(cmd.Context(), borrower, amount, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var creditPayoffCmd = &cobra.Command{
	Use:   "payoff BORROWER",
	Short: "Settle the loan in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		borrower, err := addressArg(args[0])
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.PayOffLoan(cmd.Context(), borrower, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var effectsCmd = &cobra.Command{
	Use:   "effects",
	Short: "List journaled collaborator calls",
	RunE: func(cmd *cobra.Command, _ []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		failed, _ := cmd.Flags().GetBool("failed")
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.Effects(cmd.Context(), limit, failed)
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}
