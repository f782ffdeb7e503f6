package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jaineelmodi11/KingsHacks/internal/personalization"
	"github.com/jaineelmodi11/KingsHacks/internal/risk"
)

type scoredPurchase struct {
	Purchase risk.Purchase `json:"purchase"`
	Result   *risk.Result  `json:"result"`
}

func scoreCmd() *cobra.Command {
	var (
		factsPath    string
		purchasePath string
		trust        int
		asJSON       bool
	)

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score purchases against a fact file",
		Long: `Extract a cardholder profile from the fact records in --facts and score
every purchase in --purchase against it. Pass --facts sweden to use the
built-in Sweden demo facts.`,
		Example: "  riskctl score --facts sweden --purchase giftcard.yaml --json",
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := loadFacts(factsPath)
			if err != nil {
				return err
			}
			purchases, err := loadPurchases(purchasePath)
			if err != nil {
				return err
			}

			prof := personalization.Extract(records)
			scorer := risk.NewScorer().WithTrustScore(trust)
			out := make([]scoredPurchase, 0, len(purchases))
			for _, p := range purchases {
				out = append(out, scoredPurchase{Purchase: p, Result: scorer.Score(p, prof)})
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			writeScores(cmd.OutOrStdout(), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&factsPath, "facts", "", "YAML fact file, or 'sweden' for the demo seed")
	cmd.Flags().StringVar(&purchasePath, "purchase", "", "YAML purchase file (one purchase or a purchases: list)")
	cmd.Flags().IntVar(&trust, "trust", risk.DefaultTrustScore, "cardholder trust score 0-100")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("facts")
	_ = cmd.MarkFlagRequired("purchase")

	return cmd
}

func writeScores(w io.Writer, scored []scoredPurchase) {
	for i, s := range scored {
		if i > 0 {
			fmt.Fprintln(w)
		}
		p, r := s.Purchase, s.Result
		fmt.Fprintf(w, "%s %.2f %s (%s, %s)\n", p.Merchant, p.Amount, p.Currency, p.Country, p.Channel)
		fmt.Fprintf(w, "  %-10s %s / %s\n", "decision:", r.Decision, r.ChallengeMethod)
		fmt.Fprintf(w, "  %-10s %d (%s)\n", "score:", r.RiskScore, r.RiskLevel)
		fmt.Fprintf(w, "  %-10s %s\n", "tier:", r.MerchantTrustTier)
		for _, f := range r.Factors {
			if f.Points == 0 {
				continue
			}
			fmt.Fprintf(w, "  %+6.1f  %s\n", f.Points, f.Rule)
		}
		if len(r.Reasons) > 0 {
			fmt.Fprintf(w, "  %-10s %s\n", "reasons:", strings.Join(r.Reasons, "; "))
		}
	}
}
