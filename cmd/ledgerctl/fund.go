package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tranchefi/services/ledgerd/server"
)

func init() {
	rootCmd.AddCommand(fundCmd)
	fundCmd.AddCommand(fundInitCmd, fundInvestCmd, fundDonateCmd, fundUnstakeCmd, fundRedeemCmd, fundStateCmd)

	fundInitCmd.Flags().String("router", "", "swap router contract")
	fundInitCmd.Flags().String("pool", "", "yield pool contract")
	fundInitCmd.Flags().String("principal-token", "", "token investors deposit")
	fundInitCmd.Flags().String("alt-token", "", "token the senior tranche is swapped into")

	fundInvestCmd.Flags().String("investor", "", "investor account (defaults to the signer)")
	fundInvestCmd.Flags().String("amount", "", "principal to deposit")

	fundDonateCmd.Flags().String("donor", "", "donor account (defaults to the signer)")
	fundDonateCmd.Flags().String("amount", "", "amount to donate")

	fundUnstakeCmd.Flags().String("amount", "", "alt tokens to withdraw from the pool")
	fundUnstakeCmd.Flags().String("recipient", "", "account recorded as the recipient")

	fundRedeemCmd.Flags().String("investor", "", "investor to pay out")
	fundRedeemCmd.Flags().String("yield", "0", "yield added to the investor's principal")
}

var fundCmd = &cobra.Command{
	Use:   "fund",
	Short: "Tranche fund operations",
}

var fundInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Configure the fund's collaborators and reset its ledger",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var req server.FundInitRequest
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
		if req.AltToken, err = addressFlag(cmd, "alt-token", false); err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.InitFund(cmd.Context(), req, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var fundInvestCmd = &cobra.Command{
	Use:   "invest",
	Short: "Deposit principal and split it 82/15/3",
	RunE: func(cmd *cobra.Command, _ []string) error {
		investor, err := addressFlag(cmd, "investor", true)
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
		out, err := c.Invest(cmd.Context(), server.InvestRequest{Investor: investor, Amount: amount}, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var fundDonateCmd = &cobra.Command{
	Use:   "donate",
	Short: "Donate principal tokens to the fund custody",
	RunE: func(cmd *cobra.Command, _ []string) error {
		donor, err := addressFlag(cmd, "donor", true)
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
		out, err := c.Donate(cmd.Context(), server.DonateRequest{Donor: donor, Amount: amount}, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var fundUnstakeCmd = &cobra.Command{
	Use:   "unstake",
	Short: "Withdraw alt tokens from the yield pool",
	RunE: func(cmd *cobra.Command, _ []string) error {
		amount, err := requiredString(cmd, "amount")
		if err != nil {
			return err
		}
		recipient, err := addressFlag(cmd, "recipient", true)
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.UnstakeSubordinated(cmd.Context(), server.UnstakeRequest{Amount: amount, Recipient: recipient}, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var fundRedeemCmd = &cobra.Command{
	Use:   "redeem",
	Short: "Pay an investor's principal plus yield out of the senior tranche",
	RunE: func(cmd *cobra.Command, _ []string) error {
		investor, err := addressFlag(cmd, "investor", false)
		if err != nil {
			return err
		}
		yield, err := requiredString(cmd, "yield")
		if err != nil {
			return err
		}
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.Redeem(cmd.Context(), server.RedeemRequest{Investor: investor, Yield: yield}, callOptions(cmd))
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

var fundStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show tranche totals and investor shares",
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}
		out, err := c.FundState(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, out)
	},
}

func requiredString(cmd *cobra.Command, name string) (string, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return "", fmt.Errorf("--%s is required", name)
	}
	return v, nil
}
