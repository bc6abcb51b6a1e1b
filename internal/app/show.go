package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"shipping-bot/internal/rating"
	"shipping-bot/internal/refdata"
	"shipping-bot/internal/service"
)

// QuoteOptions configure the quote command.
type QuoteOptions struct {
	Destination string
	WeightKg    decimal.Decimal
	Conditions  refdata.Conditions
	Carriers    []string
	Limit       int
	Realtime    bool
	Notify      bool
	Explain     bool
}

// ErrUnknownCountry is returned by Resolve when no country matches.
var ErrUnknownCountry = errors.New("unknown country")

// Quote prices a shipment and prints the offers as a table.
func (a *App) Quote(ctx context.Context, opts QuoteOptions) error {
	rt, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	req := service.Request{
		Destination: opts.Destination,
		WeightKg:    opts.WeightKg,
		Conditions:  opts.Conditions,
		Carriers:    opts.Carriers,
		Limit:       opts.Limit,
		Realtime:    opts.Realtime,
		Notify:      opts.Notify,
	}

	if opts.Explain {
		exp, err := rt.service.Explain(req)
		if err != nil {
			return err
		}
		a.printExplanation(exp)
		return nil
	}

	res, err := rt.service.Quote(ctx, req)
	if err != nil {
		return err
	}
	a.printQuote(res)
	return nil
}

func (a *App) printQuote(res service.Result) {
	if !res.Resolved {
		fmt.Fprintf(a.Out, "unknown destination %q\n", res.Destination)
		return
	}
	fmt.Fprintf(a.Out, "%skg -> %s (%s)\n", res.WeightKg, res.CountryName, res.CountryCode)
	if len(res.Offers) == 0 {
		fmt.Fprintln(a.Out, "no carrier available for this destination and weight")
	} else {
		writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "#\tCarrier\tService\tFreight\tSurcharges\tTotal\tScope\tBand\tNote")
		for i, o := range res.Offers {
			fmt.Fprintf(
				writer,
				"%d\t%s\t%s\t%s\t%s\t%s %s\t%s\t%s\t%s\n",
				i+1,
				o.CarrierName,
				o.ServiceLabel,
				formatDecimal(o.Freight, 2),
				formatDecimal(o.Surcharges, 2),
				formatDecimal(o.Total, 2),
				o.Currency,
				o.ScopeCode,
				o.BandDetails,
				offerNote(o),
			)
		}
		writer.Flush()
	}
	if res.Total > len(res.Offers) {
		fmt.Fprintf(a.Out, "showing %d of %d offers\n", len(res.Offers), res.Total)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(a.Out, "warning: %s\n", sanitizeInline(w))
	}
}

func offerNote(o rating.Offer) string {
	var parts []string
	if o.Suspended {
		parts = append(parts, "SUSPENDED")
	}
	if o.Warning != "" {
		parts = append(parts, sanitizeInline(o.Warning))
	}
	if o.Source == rating.SourceRealtime {
		parts = append(parts, "live")
	}
	if o.DeliveryDays != "" {
		parts = append(parts, o.DeliveryDays+" days")
	}
	return strings.Join(parts, "; ")
}

func (a *App) printExplanation(exp rating.Explanation) {
	if !exp.Resolved {
		fmt.Fprintf(a.Out, "unknown destination %q\n", exp.Destination)
		return
	}
	fmt.Fprintf(a.Out, "%s -> %s\n", exp.Destination, exp.Country)
	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Carrier\tService\tResult\tDetail")
	for _, o := range exp.Outcomes {
		if o.Offer != nil {
			fmt.Fprintf(writer, "%s\t%s\toffer\t%s %s (%s, %s)\n",
				o.CarrierCode, o.ServiceCode, formatDecimal(o.Offer.Total, 2), o.Offer.Currency, o.Offer.ScopeCode, o.Offer.BandDetails)
			continue
		}
		fmt.Fprintf(writer, "%s\t%s\tskipped\t%s\n", o.CarrierCode, o.ServiceCode, o.Reason)
	}
	writer.Flush()
}

// Resolve prints the country a free-text destination maps to. Only the alias
// tables are loaded.
func (a *App) Resolve(ctx context.Context, text string) error {
	_, store, closeSrc, err := a.openSource(ctx)
	if err != nil {
		return err
	}
	defer closeSrc()

	resolver := a.loadResolver(ctx, store)
	code, ok := resolver.Resolve(text)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, text)
	}
	name, _ := resolver.Name(code)
	fmt.Fprintf(a.Out, "%s\t%s\n", code, name)
	return nil
}

// Carriers prints the loaded carriers with their service counts.
func (a *App) Carriers(ctx context.Context) error {
	rt, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	carriers, err := rt.service.Carriers()
	if err != nil {
		return err
	}
	if len(carriers) == 0 {
		fmt.Fprintln(a.Out, "no carriers loaded")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Code\tName\tCurrency\tServices")
	for _, c := range carriers {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%d\n", c.Code, c.Name, c.Currency, c.Services)
	}
	writer.Flush()

	if rt.report.Degraded {
		fmt.Fprintln(a.Out, "warning: reference data loaded in degraded mode")
	}
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func formatDecimal(d decimal.Decimal, places int32) string {
	return d.StringFixed(places)
}
