package cli

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"time"

	"VolLens/internal/domain/models"
	"VolLens/pkg/util"
)

var barColumns = map[string]models.Field{
	"open":          models.FieldOpen,
	"high":          models.FieldHigh,
	"low":           models.FieldLow,
	"close":         models.FieldClose,
	"volume":        models.FieldVolume,
	"oi":            models.FieldOpenInterest,
	"open_interest": models.FieldOpenInterest,
}

// header maps lower-cased column names to their index.
func header(row []string) map[string]int {
	out := make(map[string]int, len(row))
	for i, h := range row {
		out[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return out
}

func timeColumn(cols map[string]int) (int, bool) {
	for _, name := range []string{"time", "timestamp", "date", "datetime", "ts"} {
		if i, ok := cols[name]; ok {
			return i, true
		}
	}
	return 0, false
}

// ReadBars parses a CSV with a header row. A time column and any subset of
// open/high/low/close/volume/oi columns are accepted; the columns present become
// the series schema and empty cells become NaN. Rows are returned as written so
// ordering problems surface from the estimators. Times are read as UTC.
func ReadBars(r io.Reader, symbol, tf string) (models.BarSeries, error) {
	return ReadBarsIn(r, symbol, tf, time.UTC)
}

// ReadBarsIn is ReadBars with zone-less times read in loc and every time expressed
// in loc, so daily buckets follow the market's own midnight.
func ReadBarsIn(r io.Reader, symbol, tf string, loc *time.Location) (models.BarSeries, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if err != nil {
		return models.BarSeries{}, fmt.Errorf("read header: %w", err)
	}
	cols := header(head)
	ti, ok := timeColumn(cols)
	if !ok {
		return models.BarSeries{}, errors.New("bars csv: no time column")
	}

	s := models.BarSeries{Symbol: symbol, Timeframe: tf}
	idx := map[models.Field]int{}
	for name, f := range barColumns {
		if i, ok := cols[name]; ok {
			idx[f] = i
			s.Fields = s.Fields.With(f)
		}
	}
	if s.Fields == 0 {
		return models.BarSeries{}, errors.New("bars csv: no price columns")
	}

	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return models.BarSeries{}, fmt.Errorf("line %d: %w", line, err)
		}
		t, ok := util.ParseTimeIn(cell(rec, ti), loc)
		if !ok {
			return models.BarSeries{}, fmt.Errorf("line %d: bad time %q", line, cell(rec, ti))
		}
		bar := models.PriceBar{
			Time: t, Open: math.NaN(), High: math.NaN(), Low: math.NaN(),
			Close: math.NaN(), Volume: math.NaN(), OpenInterest: math.NaN(),
		}
		for f, i := range idx {
			v, err := util.ParseFloatOrNaN(cell(rec, i))
			if err != nil {
				return models.BarSeries{}, fmt.Errorf("line %d: %s: %w", line, f, err)
			}
			bar.Set(f, v)
		}
		s.Bars = append(s.Bars, bar)
	}
	return s, nil
}

// ReadSentiment parses time,score[,source,magnitude,symbol] rows and returns them
// sorted by time. Times are read as UTC.
func ReadSentiment(r io.Reader) ([]models.SentimentPoint, error) {
	return ReadSentimentIn(r, time.UTC)
}

// ReadSentimentIn is ReadSentiment with zone-less times read in loc.
func ReadSentimentIn(r io.Reader, loc *time.Location) ([]models.SentimentPoint, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := header(head)
	ti, ok := timeColumn(cols)
	if !ok {
		return nil, errors.New("sentiment csv: no time column")
	}
	si, ok := cols["score"]
	if !ok {
		return nil, errors.New("sentiment csv: no score column")
	}

	var out []models.SentimentPoint
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		t, ok := util.ParseTimeIn(cell(rec, ti), loc)
		if !ok {
			return nil, fmt.Errorf("line %d: bad time %q", line, cell(rec, ti))
		}
		score, err := util.ParseFloatOrNaN(cell(rec, si))
		if err != nil {
			return nil, fmt.Errorf("line %d: score: %w", line, err)
		}
		p := models.SentimentPoint{Time: t, Score: score}
		if i, ok := cols["source"]; ok {
			p.Source = cell(rec, i)
		}
		if i, ok := cols["symbol"]; ok {
			p.Symbol = cell(rec, i)
		}
		if i, ok := cols["magnitude"]; ok {
			if m, err := util.ParseFloatOrNaN(cell(rec, i)); err == nil && !math.IsNaN(m) {
				p.Magnitude = m
			}
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func cell(rec []string, i int) string {
	if i < len(rec) {
		return strings.TrimSpace(rec[i])
	}
	return ""
}

func readBarsFile(path, symbol, tf string, loc *time.Location) (models.BarSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.BarSeries{}, err
	}
	defer f.Close()
	return ReadBarsIn(f, symbol, tf, loc)
}

func readSentimentFile(path string, loc *time.Location) ([]models.SentimentPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSentimentIn(f, loc)
}
