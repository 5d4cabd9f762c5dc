package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"VolLens/internal/domain/models"
	"VolLens/internal/services/analytics"
	"VolLens/internal/services/features"
	"VolLens/pkg/util"
)

func newVolCmd(o *options) *cobra.Command {
	var (
		kind   string
		window int
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "vol",
		Short: "Rolling volatility estimates",
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := o.loadBars()
			if err != nil {
				return err
			}
			est := o.estimator(window, nil)

			var kinds []models.VolKind
			if kind == "all" {
				kinds = models.VolKinds
			} else {
				k, ok := models.ParseVolKind(kind)
				if !ok {
					return fmt.Errorf("unknown estimator %q", kind)
				}
				kinds = []models.VolKind{k}
			}

			var names []string
			var series []models.Series
			skipped := map[string]string{}
			for _, k := range kinds {
				s, err := est.Estimate(k, bars, window, !raw)
				if err != nil {
					if len(kinds) > 1 && errors.Is(err, analytics.ErrPrecondition) {
						skipped[string(k)] = err.Error()
						continue
					}
					return err
				}
				names = append(names, string(k))
				series = append(series, s)
			}

			out := cmd.OutOrStdout()
			if o.json() {
				m := make(map[string]models.Series, len(series))
				for i, s := range series {
					m[names[i]] = s
				}
				return writeJSON(out, map[string]interface{}{
					"symbol":      bars.Symbol,
					"window":      window,
					"annualized":  !raw,
					"series":      m,
					"unavailable": skipped,
				})
			}
			seriesTable(out, fmt.Sprintf("%s volatility (window %d)", bars.Symbol, window), names, series, o.tail)
			for _, k := range kinds {
				if reason, ok := skipped[string(k)]; ok {
					fmt.Fprintf(out, "%s unavailable: %s\n", k, reason)
				}
			}
			if o.chartPath != "" {
				return writeChart(o.chartPath, bars.Symbol+" volatility", names, series)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "all", "Estimator (historical|parkinson|garman_klass|all)")
	cmd.Flags().IntVar(&window, "window", analytics.DefaultWindow, "Rolling window in bars")
	cmd.Flags().BoolVar(&raw, "raw", false, "Report per-period volatility instead of annualized")
	return cmd
}

func newConeCmd(o *options) *cobra.Command {
	var periods string
	cmd := &cobra.Command{
		Use:   "cone",
		Short: "Volatility cone across look-back periods",
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := o.loadBars()
			if err != nil {
				return err
			}
			ps := util.SplitInts(periods)
			if periods != "" && len(ps) == 0 {
				return fmt.Errorf("bad --periods %q", periods)
			}
			cone, err := o.estimator(0, nil).Cone(bars, ps)
			if err != nil {
				return err
			}
			summary := analytics.ConeSummary(cone)

			out := cmd.OutOrStdout()
			if o.json() {
				return writeJSON(out, map[string]interface{}{"cone": cone, "summary": summary})
			}
			t := newTable(out, bars.Symbol+" volatility cone",
				table.Row{"period", "samples", "min", "q25", "median", "q75", "max", "latest"})
			for _, s := range summary {
				t.AppendRow(table.Row{
					s.Period, s.Samples,
					fmt.Sprintf("%.4f", s.Min), fmt.Sprintf("%.4f", s.Q25), fmt.Sprintf("%.4f", s.Median),
					fmt.Sprintf("%.4f", s.Q75), fmt.Sprintf("%.4f", s.Max), fmtValue(s.Latest),
				})
			}
			t.Render()

			if o.chartPath != "" {
				names := make([]string, len(cone.Periods))
				series := make([]models.Series, len(cone.Periods))
				for i, p := range cone.Periods {
					names[i] = "hv" + strconv.Itoa(p)
					series[i] = cone.Series[p]
				}
				return writeChart(o.chartPath, bars.Symbol+" volatility cone", names, series)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&periods, "periods", "", "Comma separated look-back periods (default 20,60,120,252)")
	return cmd
}

func newRegimeCmd(o *options) *cobra.Command {
	var (
		k      int
		window int
		seed   uint64
	)
	cmd := &cobra.Command{
		Use:   "regime",
		Short: "Volatility regime clustering",
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := o.loadBars()
			if err != nil {
				return err
			}
			clf := analytics.NewRegimeClassifier(
				analytics.RegimeConfig{K: k, Window: window, Seed: seed},
				o.estimator(window, nil),
			)
			res, err := clf.Classify(bars)
			if err != nil {
				return err
			}
			ranks := analytics.RankRegimes(res)

			out := cmd.OutOrStdout()
			if o.json() {
				return writeJSON(out, map[string]interface{}{"result": res, "ranks": ranks})
			}
			writeRegime(out, res, ranks, o.tail)
			return nil
		},
	}
	cmd.Flags().IntVar(&k, "k", analytics.DefaultRegimeK, "Number of regimes")
	cmd.Flags().IntVar(&window, "window", analytics.DefaultWindow, "Volatility window for features")
	cmd.Flags().Uint64Var(&seed, "seed", analytics.DefaultRegimeSeed, "Clustering seed")
	return cmd
}

func writeRegime(w io.Writer, res models.RegimeResult, ranks []int, tail int) {
	order := make([]int, len(res.Centroids))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return ranks[order[a]] < ranks[order[b]] })

	counts := make([]int, res.K)
	for _, l := range res.Labels {
		if l.Valid {
			counts[l.Value]++
		}
	}
	t := newTable(w, fmt.Sprintf("%s regimes (k=%d, inertia %.6f)", res.Symbol, res.K, res.Inertia),
		table.Row{"regime", "label", "bars", "historical", "parkinson", "garman_klass"})
	for _, id := range order {
		row := table.Row{analytics.RegimeName(ranks[id], res.K), id, counts[id]}
		for _, v := range res.Centroids[id] {
			row = append(row, fmt.Sprintf("%.4f", v))
		}
		t.AppendRow(row)
	}
	t.Render()

	lt := newTable(w, "", table.Row{"time", "regime"})
	start := 0
	if tail > 0 && tail < len(res.Labels) {
		start = len(res.Labels) - tail
	}
	for _, l := range res.Labels[start:] {
		name := "-"
		if l.Valid {
			name = analytics.RegimeName(ranks[l.Value], res.K)
		}
		lt.AppendRow(table.Row{fmtTime(l.Time), name})
	}
	lt.Render()
}

func newCorrCmd(o *options) *cobra.Command {
	var (
		sentimentPath string
		target        string
		lag           int
		window        int
		resolution    time.Duration
		volWindow     int
	)
	cmd := &cobra.Command{
		Use:   "corr",
		Short: "Lagged correlation between a price target and sentiment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if sentimentPath == "" {
				return fmt.Errorf("--sentiment is required")
			}
			bars, err := o.loadBars()
			if err != nil {
				return err
			}
			pts, err := readSentimentFile(sentimentPath, o.loc)
			if err != nil {
				return err
			}
			pts = forSymbol(pts, o.symbol)

			if !bars.Fields.Has(models.FieldClose) {
				return &analytics.PreconditionError{Metric: "correlation", Missing: []models.Field{models.FieldClose}}
			}
			var primary models.Series
			switch strings.ToLower(target) {
			case "returns":
				primary = features.LogReturns(bars)
			case "close":
				primary = features.Closes(bars)
			case "volatility":
				if primary, err = o.estimator(volWindow, nil).Historical(bars, volWindow, true); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown target %q", target)
			}
			secondary := features.Sentiment("sentiment", pts)

			res := resolution
			if res == 0 {
				res = features.ResolutionForTF(o.tf)
			}
			eng, err := analytics.NewCorrelationEngine(analytics.CorrelationConfig{Lag: lag, Window: window, Resolution: res})
			if err != nil {
				return err
			}
			result, err := eng.Correlate(primary, secondary)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if o.json() {
				return writeJSON(out, result)
			}
			if result.Value != nil {
				t := newTable(out, fmt.Sprintf("%s %s vs sentiment", bars.Symbol, target),
					table.Row{"lag", "samples", "pearson"})
				t.AppendRow(table.Row{result.Lag, result.Samples, fmtValue(*result.Value)})
				t.Render()
				return nil
			}
			title := fmt.Sprintf("%s %s vs sentiment (lag %d, window %d)", bars.Symbol, target, result.Lag, result.Window)
			seriesTable(out, title, []string{"pearson"}, []models.Series{*result.Rolling}, o.tail)
			if o.chartPath != "" {
				return writeChart(o.chartPath, title, []string{"pearson"}, []models.Series{*result.Rolling})
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&sentimentPath, "sentiment", "", "Sentiment CSV file (time,score[,source,symbol,magnitude])")
	f.StringVar(&target, "target", "returns", "Price target (returns|close|volatility)")
	f.IntVar(&lag, "lag", 0, "Periods the sentiment leads the target")
	f.IntVar(&window, "window", 0, "Rolling window; 0 correlates the whole overlap")
	f.DurationVar(&resolution, "resolution", 0, "Resampling grid; 0 uses the bar timeframe")
	f.IntVar(&volWindow, "vol-window", analytics.DefaultWindow, "Volatility window for --target volatility")
	return cmd
}

// forSymbol keeps points for symbol plus market-wide points carrying no symbol.
func forSymbol(pts []models.SentimentPoint, symbol string) []models.SentimentPoint {
	if symbol == "" {
		return pts
	}
	out := pts[:0:0]
	for _, p := range pts {
		if p.Symbol == "" || strings.EqualFold(p.Symbol, symbol) {
			out = append(out, p)
		}
	}
	return out
}
