package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/dmitrymomot/creatorpay/pkg/revenue"
)

func newSplitCmd() *cobra.Command {
	var fee float64

	cmd := &cobra.Command{
		Use:   "split <gross-minor-units>",
		Short: "Print the platform fee and creator earnings of a charge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gross, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("gross amount: %w", err)
			}
			s, err := revenue.ComputeSplit(gross, fee)
			if err != nil {
				return err
			}

			p := message.NewPrinter(language.English)
			p.Fprintf(cmd.OutOrStdout(), "gross=%d fee=%d (%.2f%%) creator=%d\n",
				s.GrossAmount, s.PlatformFeeAmount, s.PlatformFeePercent*100, s.CreatorEarnings)
			return nil
		},
	}

	cmd.Flags().Float64Var(&fee, "fee", revenue.DefaultPlatformFee, "platform fee as a fraction in [0, 1]")
	return cmd
}
