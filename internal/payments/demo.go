package payments

import (
	"context"
	"fmt"
)

// swedenSeed is a cardholder travelling in Sweden: travel mode, baseline
// spend, trust tiers and merchant facts with their public sources.
var swedenSeed = []string{
	`TP_PROFILE {"current_country":"SE","trip_countries":["SE"],"sms_available":false,"preferred_verification":"PASSKEY","daily_budget":900}`,
	`TP_BASELINE {"typical_amount_min":50,"typical_amount_max":600}`,

	"TP_TRUSTED_MERCHANT_HIGH ICA",
	"TP_TRUSTED_MERCHANT_HIGH IKEA",
	"TP_TRUSTED_MERCHANT_MED SJ",
	"TP_TRUSTED_MERCHANT_MED H&M",
	"TP_TRUSTED_MERCHANT_HIGH Systembolaget",

	`TP_MERCHANT_FACTS {"merchant":"ICA","category":"GROCERY","home_country":"SE","restricted":false,"source_url":"https://www.icagruppen.se/en/about-ica-gruppen/our-business/our-companies/ica-sweden/"}`,
	`TP_MERCHANT_FACTS {"merchant":"Systembolaget","category":"ALCOHOL","home_country":"SE","restricted":true,"source_url":"https://www.omsystembolaget.se/english/systembolaget-explained/"}`,
	`TP_MERCHANT_FACTS {"merchant":"SJ","category":"TRANSIT","home_country":"SE","restricted":false,"source_url":"https://www.sj.se/en/about-sj"}`,
	`TP_MERCHANT_FACTS {"merchant":"H&M","category":"APPAREL","home_country":"SE","restricted":false,"source_url":"https://hmgroup.com/about-us/history/"}`,
	`TP_MERCHANT_FACTS {"merchant":"IKEA","category":"FURNITURE","home_country":"SE","restricted":false,"source_url":"https://www.ikea.com/global/en/our-business/how-we-work/story-of-ikea/"}`,
}

// SwedenSeed returns a copy of the demo fact records.
func SwedenSeed() []string {
	return append([]string(nil), swedenSeed...)
}

func demoCard() CardRequest {
	month, year := 12, 2030
	return CardRequest{
		Nickname:       "Demo Visa",
		Network:        "VISA",
		Last4:          "4242",
		ExpMonth:       &month,
		ExpYear:        &year,
		BillingCountry: "CA",
	}
}

// SeedDemo writes the Sweden demo facts to the session's memory space and
// gives the session a demo card if it has none.
func (s *Service) SeedDemo(ctx context.Context, sessionID string) error {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}

	for _, text := range swedenSeed {
		if err := s.facts.Add(ctx, sess.Handle(), text, map[string]any{"tp": "seed_sweden"}); err != nil {
			return fmt.Errorf("%w: seed facts: %w", ErrUpstream, err)
		}
	}

	cards, err := s.store.ListCards(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(cards) == 0 {
		if _, err := s.AddCard(ctx, sessionID, demoCard()); err != nil {
			return err
		}
	}

	s.log(ctx).Info("demo facts seeded", "session_id", sessionID, "facts", len(swedenSeed))
	return nil
}
