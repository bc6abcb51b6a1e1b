package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"shipping-bot/internal/rating"
	"shipping-bot/internal/refdata"
	"shipping-bot/internal/service"
)

// ExportOptions hold parameters for exporting a price curve.
type ExportOptions struct {
	Destination string
	From        decimal.Decimal
	To          decimal.Decimal
	Step        decimal.Decimal
	Conditions  refdata.Conditions
	Carriers    []string
	PNGPath     string
	CSVPath     string
	MaxPoints   int
}

// CurvePoint is one priced service at one weight.
type CurvePoint struct {
	WeightKg decimal.Decimal
	Offer    rating.Offer
}

// Export prices a destination across a weight range and renders the result
// as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)
	weights, err := weightRange(opts.From, opts.To, opts.Step)
	if err != nil {
		return err
	}
	weights = downsampleWeights(weights, opts.MaxPoints)

	rt, err := a.bootstrap(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.service.Validate(opts.Destination, opts.To); err != nil {
		return err
	}
	code, name, ok := rt.service.Resolve(opts.Destination)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCountry, opts.Destination)
	}

	points := pricePoints(rt.engine, code, weights, opts.Conditions, opts.Carriers)
	if len(points) == 0 {
		a.Logger.Info().Str("country", code).Msg("no offers in export range")
		return nil
	}
	a.Logger.Info().Str("country", code).Int("weights", len(weights)).Int("points", len(points)).Msg("exporting price curve")

	if opts.CSVPath != "" {
		if err := writeCurveCSV(opts.CSVPath, code, points); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeCurvePNG(opts.PNGPath, fmt.Sprintf("%s (%s)", name, code), points); err != nil {
			return err
		}
	}

	return nil
}

func pricePoints(engine *rating.Engine, code string, weights []decimal.Decimal, cond refdata.Conditions, carriers []string) []CurvePoint {
	var points []CurvePoint
	for _, w := range weights {
		for _, offer := range service.FilterCarriers(engine.QuoteCountry(code, w, cond), carriers) {
			points = append(points, CurvePoint{WeightKg: w, Offer: offer})
		}
	}
	return points
}

func weightRange(from, to, step decimal.Decimal) ([]decimal.Decimal, error) {
	if !from.IsPositive() {
		return nil, errors.New("--from must be greater than zero")
	}
	if to.LessThan(from) {
		return nil, errors.New("--to must not be below --from")
	}
	if !step.IsPositive() {
		return nil, errors.New("--step must be greater than zero")
	}

	var weights []decimal.Decimal
	for w := from; w.LessThanOrEqual(to); w = w.Add(step) {
		weights = append(weights, w)
	}
	return weights, nil
}

func downsampleWeights(weights []decimal.Decimal, max int) []decimal.Decimal {
	if max <= 1 || len(weights) <= max {
		return weights
	}

	result := make([]decimal.Decimal, 0, max)
	step := float64(len(weights)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(weights) {
			idx = len(weights) - 1
		}
		result = append(result, weights[idx])
	}
	return result
}

func writeCurveCSV(path, country string, points []CurvePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"country_iso2", "weight_kg", "carrier_code", "service_code", "scope_code", "band", "freight", "surcharges", "total", "currency", "suspended", "warning"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, p := range points {
		o := p.Offer
		record := []string{
			country,
			p.WeightKg.String(),
			o.CarrierCode,
			o.ServiceCode,
			o.ScopeCode,
			o.BandDetails,
			o.Freight.StringFixed(2),
			o.Surcharges.StringFixed(2),
			o.Total.StringFixed(2),
			o.Currency,
			fmt.Sprintf("%t", o.Suspended),
			o.Warning,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// curveSeries groups points by carrier/service, keeping weight order.
func curveSeries(points []CurvePoint) []chart.Series {
	type line struct {
		x, y []float64
	}
	lines := make(map[string]*line)
	var names []string
	for _, p := range points {
		name := p.Offer.CarrierCode + " " + p.Offer.ServiceCode
		l, ok := lines[name]
		if !ok {
			l = &line{}
			lines[name] = l
			names = append(names, name)
		}
		l.x = append(l.x, p.WeightKg.InexactFloat64())
		l.y = append(l.y, p.Offer.Total.InexactFloat64())
	}
	sort.Strings(names)

	series := make([]chart.Series, 0, len(names))
	for _, name := range names {
		series = append(series, chart.ContinuousSeries{
			Name:    name,
			XValues: lines[name].x,
			YValues: lines[name].y,
		})
	}
	return series
}

func writeCurvePNG(path, title string, points []CurvePoint) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  title,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			Name:           "Weight (kg)",
			ValueFormatter: priceFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Total",
			ValueFormatter: priceFormatter,
		},
		Series: curveSeries(points),
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
