package rating

import (
	"sort"

	"github.com/shopspring/decimal"

	"shipping-bot/internal/refdata"
)

// ComputeSurcharges returns the cumulative surcharge for one shipment.
// Applicable rules are evaluated by ascending value so that discounts run
// before fees; a TOTAL-basis percentage uses freight plus everything
// accumulated so far. Unknown kinds or bases contribute zero.
func ComputeSurcharges(rules []refdata.SurchargeRule, weightKg, freight decimal.Decimal, conditions refdata.Conditions) decimal.Decimal {
	applicable := make([]refdata.SurchargeRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Conditions.SatisfiedBy(conditions) {
			applicable = append(applicable, rule)
		}
	}
	sort.SliceStable(applicable, func(i, j int) bool {
		return applicable[i].Value.LessThan(applicable[j].Value)
	})

	running := decimal.Zero
	for _, rule := range applicable {
		running = running.Add(surchargeAmount(rule, weightKg, freight, running))
	}
	return running
}

func surchargeAmount(rule refdata.SurchargeRule, weightKg, freight, running decimal.Decimal) decimal.Decimal {
	switch rule.Kind {
	case refdata.KindPercent:
		rate := rule.Value.Shift(-2)
		switch rule.Basis {
		case refdata.BasisFreight:
			return rate.Mul(freight)
		case refdata.BasisTotal:
			return rate.Mul(freight.Add(running))
		}
	case refdata.KindFlat:
		return rule.Value
	case refdata.KindPerKg:
		return rule.Value.Mul(weightKg)
	}
	return decimal.Zero
}
