package simlog

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

type aggRow struct {
	Trend     string
	Trades    int
	Wins      int
	Losses    int
	SumProfit float64
}

func reportCSVPath(t time.Time) string {
	d := t.UTC().Format("2006-01-02")
	return filepath.Join(logDir(), "reports", d+".csv")
}

// SummarizeDay aggregates the day's closed-simulation log into a per-trend
// CSV report. Returns the written path, or "" when there was nothing to
// summarize.
func SummarizeDay(t time.Time) (string, error) {
	inPath := dailyFilepath(t)
	f, err := os.Open(inPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	defer f.Close()

	aggs := map[string]*aggRow{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		row := aggs[e.Trend]
		if row == nil {
			row = &aggRow{Trend: e.Trend}
			aggs[e.Trend] = row
		}
		row.Trades++
		if e.Success {
			row.Wins++
		} else {
			row.Losses++
		}
		row.SumProfit += e.ProfitPct
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(aggs) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := reportCSVPath(t)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return "", err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer out.Close()

	w := csv.NewWriter(out)
	defer w.Flush()
	if err := w.Write([]string{"trend", "trades", "wins", "losses", "winrate_pct", "avg_profit_pct", "total_profit_pct"}); err != nil {
		return "", err
	}
	var totalTrades, totalWins, totalLosses int
	var totalProfit float64
	for _, k := range keys {
		r := aggs[k]
		winrate := 0.0
		if r.Trades > 0 {
			winrate = float64(r.Wins) / float64(r.Trades) * 100
		}
		rec := []string{
			r.Trend,
			strconv.Itoa(r.Trades),
			strconv.Itoa(r.Wins),
			strconv.Itoa(r.Losses),
			fmt.Sprintf("%.1f", winrate),
			fmt.Sprintf("%.4f", r.SumProfit/float64(r.Trades)),
			fmt.Sprintf("%.4f", r.SumProfit),
		}
		if err := w.Write(rec); err != nil {
			return "", err
		}
		totalTrades += r.Trades
		totalWins += r.Wins
		totalLosses += r.Losses
		totalProfit += r.SumProfit
	}
	_ = w.Write([]string{"TOTAL", strconv.Itoa(totalTrades), strconv.Itoa(totalWins), strconv.Itoa(totalLosses), "", "", fmt.Sprintf("%.4f", totalProfit)})
	return outPath, nil
}

// SummarizeToday summarizes the current UTC day.
func SummarizeToday() (string, error) { return SummarizeDay(time.Now().UTC()) }
