// Package cli implements the offline analysis commands that run the analytics core
// over CSV files.
package cli

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"VolLens/internal/domain/models"
	domrepo "VolLens/internal/domain/repository"
	"VolLens/internal/services/analytics"
	"VolLens/internal/services/features"
)

// options holds the flags shared by every subcommand.
type options struct {
	barsPath       string
	symbol         string
	tf             string
	format         string
	periodsPerYear float64
	tail           int
	chartPath      string
	tz             string
	loc            *time.Location
}

// NewRootCmd builds the analyze command tree.
func NewRootCmd() *cobra.Command {
	o := &options{}
	root := &cobra.Command{
		Use:   "analyze",
		Short: "Volatility, regime and sentiment analysis over CSV files",
		Long: `analyze runs the volatility estimators, the regime classifier and the
sentiment correlation engine over bars stored as CSV.

Bars need a header with a time column and any of open, high, low, close,
volume, oi. Estimators whose columns are missing report themselves unavailable.

Examples:
  analyze vol --bars nifty.csv --kind all --tail 10
  analyze cone --bars nifty.csv --periods 20,60,120 --chart cone.html
  analyze regime --bars nifty.csv --k 3
  analyze corr --bars nifty.csv --sentiment news.csv --lag 1 --tz Asia/Kolkata`,
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&o.barsPath, "bars", "", "Bars CSV file")
	pf.StringVar(&o.symbol, "symbol", "", "Symbol label for output")
	pf.StringVar(&o.tf, "tf", "1d", "Bar timeframe (1m|5m|1h|1d)")
	pf.StringVar(&o.format, "format", "table", "Output format (table|json)")
	pf.Float64Var(&o.periodsPerYear, "periods-per-year", 0, "Annualization periods; 0 derives it from --tf")
	pf.IntVar(&o.tail, "tail", 20, "Rows to print from the end of a series; 0 prints all")
	pf.StringVar(&o.chartPath, "chart", "", "Write an HTML chart to this path")
	pf.StringVar(&o.tz, "tz", "UTC", "Market time zone; times without an offset are read in it and daily buckets start at its midnight")

	root.AddCommand(newVolCmd(o), newConeCmd(o), newRegimeCmd(o), newCorrCmd(o))
	return root
}

func (o *options) validate() error {
	if o.barsPath == "" {
		return fmt.Errorf("--bars is required")
	}
	if _, err := domrepo.ParseTimeframe(o.tf); err != nil {
		return err
	}
	loc, err := time.LoadLocation(o.tz)
	if err != nil {
		return fmt.Errorf("bad --tz %q: %w", o.tz, err)
	}
	o.loc = loc
	switch strings.ToLower(o.format) {
	case "table", "json":
	default:
		return fmt.Errorf("unknown format %q", o.format)
	}
	return nil
}

func (o *options) json() bool { return strings.EqualFold(o.format, "json") }

func (o *options) loadBars() (models.BarSeries, error) {
	if err := o.validate(); err != nil {
		return models.BarSeries{}, err
	}
	symbol := o.symbol
	if symbol == "" {
		symbol = strings.TrimSuffix(filepath.Base(o.barsPath), filepath.Ext(o.barsPath))
	}
	return readBarsFile(o.barsPath, symbol, o.tf, o.loc)
}

func (o *options) estimator(window int, cone []int) *analytics.VolatilityEstimator {
	ppy := o.periodsPerYear
	if ppy <= 0 {
		ppy = features.PeriodsPerYearForTF(o.tf)
	}
	return analytics.NewVolatilityEstimator(analytics.VolatilityConfig{
		Window:         window,
		Annualize:      true,
		PeriodsPerYear: ppy,
		ConePeriods:    cone,
	})
}
