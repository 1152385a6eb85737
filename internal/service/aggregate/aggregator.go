// Package aggregate implements the Aggregator (C6): cross-protocol,
// cross-chain price aggregation, outlier detection, and a rolling
// reliability ranking, computed with gonum.org/v1/gonum/stat the way the
// teacher's dependency graph already pulls it in transitively.
package aggregate

import (
	"context"
	"math"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/InjectiveLabs/metrics"
	log "github.com/InjectiveLabs/suplog"

	"github.com/InjectiveLabs/oracle-aggregator/persistence"
)

// DefaultWindow is the Aggregator's input window, per spec §4.6 "default
// last 60 s".
const DefaultWindow = 60 * time.Second

// RollingDepth is k, the number of ticks used for the rolling standard
// deviation behind most_reliable_chain, per spec §4.6 "default k = 30".
const RollingDepth = 30

// ChainPrice is one chain's contribution to a symbol's aggregate.
type ChainPrice struct {
	Chain             string
	Price             float64
	DeviationPercent  float64
	IsOutlier         bool
}

// Recommendation names the chain judged most reliable for a symbol.
type Recommendation struct {
	MostReliableChain string
	Reason            string
}

// Result is a symbol's aggregate output, per spec §4.6.
type Result struct {
	Symbol             string
	AvgPrice           float64
	MedianPrice        float64
	MinChain           string
	MaxChain           string
	PriceRangePercent  float64
	PricesByChain      []ChainPrice
	Recommendation     Recommendation
}

// CorrelationMatrix is a symmetric n x n Pearson correlation matrix across
// chains for one symbol, per spec §4.6.
type CorrelationMatrix struct {
	Symbol string
	Chains []string
	Matrix [][]float64
}

// Aggregator is the Aggregator (C6).
type Aggregator struct {
	gw      persistence.Gateway
	symbols []string
	window  time.Duration

	mu       sync.Mutex
	history  map[string]map[string][]float64 // symbol -> chain -> rolling deviation-percent history
	devHist  map[string]map[string][]float64 // symbol -> chain -> rolling price history (for correlation)

	logger  log.Logger
	svcTags metrics.Tags

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(gw persistence.Gateway, symbols []string) *Aggregator {
	return &Aggregator{
		gw:      gw,
		symbols: symbols,
		window:  DefaultWindow,
		history: make(map[string]map[string][]float64),
		devHist: make(map[string]map[string][]float64),
		logger:  log.WithFields(log.Fields{"svc": "aggregator"}),
		svcTags: metrics.Tags{"svc": "aggregator"},
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start runs Tick on a fixed interval until ctx is cancelled or Stop is
// called, per spec §4 scheduling model: "Aggregator ... runs as one task".
func (a *Aggregator) Start(ctx context.Context, interval time.Duration) {
	go a.loop(ctx, interval)
}

func (a *Aggregator) loop(ctx context.Context, interval time.Duration) {
	defer close(a.doneCh)
	defer a.panicRecover()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.stopCh:
			return
		case <-ticker.C:
			if _, err := a.Tick(ctx); err != nil {
				a.logger.WithError(err).Warningln("aggregator tick failed")
			}
		}
	}
}

func (a *Aggregator) Stop() {
	close(a.stopCh)
	<-a.doneCh
}

// Tick computes one Result per configured symbol from the most recent feed
// per (protocol, chain, symbol) within the window, per spec §4.6.
func (a *Aggregator) Tick(ctx context.Context) ([]Result, error) {
	metrics.ReportFuncCall(a.svcTags)
	doneFn := metrics.ReportFuncTiming(a.svcTags)
	defer doneFn()

	var results []Result
	for _, symbol := range a.symbols {
		feeds, err := a.gw.QueryRecentFeeds(ctx, persistence.RecentFeedsWindow{Symbol: symbol, Window: a.window})
		if err != nil {
			metrics.ReportFuncError(a.svcTags)
			a.logger.WithError(err).WithField("symbol", symbol).Warningln("failed to query recent feeds")
			continue
		}
		if len(feeds) == 0 {
			continue
		}
		results = append(results, a.aggregateSymbol(symbol, feeds))
	}
	return results, nil
}

// latestPerChain collapses possibly-multiple recent feeds per chain (from
// different instances on the same chain) to the single latest sample.
func latestPerChain(feeds []persistence.StoredFeed) map[string]persistence.StoredFeed {
	latest := make(map[string]persistence.StoredFeed)
	for _, f := range feeds {
		cur, ok := latest[f.Chain]
		if !ok || f.Timestamp.After(cur.Timestamp) {
			latest[f.Chain] = f
		}
	}
	return latest
}

func (a *Aggregator) aggregateSymbol(symbol string, feeds []persistence.StoredFeed) Result {
	byChain := latestPerChain(feeds)

	chains := make([]string, 0, len(byChain))
	prices := make([]float64, 0, len(byChain))
	priceByChain := make(map[string]float64, len(byChain))
	for chain, f := range byChain {
		chains = append(chains, chain)
		p, _ := f.Price.Float64()
		prices = append(prices, p)
		priceByChain[chain] = p
	}
	sort.Strings(chains)

	avg := stat.Mean(prices, nil)
	median := medianOf(prices)

	minPrice, maxPrice := math.Inf(1), math.Inf(-1)
	var minChain, maxChain string
	pricesByChain := make([]ChainPrice, 0, len(chains))

	for _, chain := range chains {
		f := byChain[chain]
		p, _ := f.Price.Float64()
		deviationPercent := 0.0
		if avg != 0 {
			deviationPercent = (p - avg) / avg * 100
		}
		isOutlier := isAbsoluteOutlier(priceByChain, chain, avg)

		pricesByChain = append(pricesByChain, ChainPrice{
			Chain: chain, Price: p, DeviationPercent: deviationPercent, IsOutlier: isOutlier,
		})
		a.recordHistory(symbol, chain, deviationPercent, p)

		if p < minPrice {
			minPrice, minChain = p, chain
		}
		if p > maxPrice {
			maxPrice, maxChain = p, chain
		}
	}

	priceRangePercent := 0.0
	if avg != 0 && len(prices) > 0 {
		priceRangePercent = (maxPrice - minPrice) / avg * 100
	}

	return Result{
		Symbol:            symbol,
		AvgPrice:          avg,
		MedianPrice:       median,
		MinChain:          minChain,
		MaxChain:          maxChain,
		PriceRangePercent: priceRangePercent,
		PricesByChain:     pricesByChain,
		Recommendation:    a.mostReliableChain(symbol, chains),
	}
}

// isAbsoluteOutlier flags chain's price as an outlier when it deviates from
// the full-sample average by more than 2 standard deviations of the OTHER
// chains' prices. Sigma is computed leave-one-out so that a single extreme
// chain cannot inflate its own sigma and mask itself, per spec §4.6
// "outlier = |price - avg| > 2 * sigma(price)".
func isAbsoluteOutlier(priceByChain map[string]float64, current string, avg float64) bool {
	if len(priceByChain) < 3 {
		return false
	}
	others := make([]float64, 0, len(priceByChain)-1)
	for chain, p := range priceByChain {
		if chain != current {
			others = append(others, p)
		}
	}
	sigma := stat.StdDev(others, nil)
	if sigma == 0 {
		return false
	}
	return math.Abs(priceByChain[current]-avg) > 2*sigma
}

// medianOf returns the lower median for even-length input, per spec §4.6:
// sorted[(n-1)/2].
func medianOf(prices []float64) float64 {
	if len(prices) == 0 {
		return 0
	}
	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)
	return sorted[(len(sorted)-1)/2]
}

func (a *Aggregator) recordHistory(symbol, chain string, deviationPercent, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.history[symbol] == nil {
		a.history[symbol] = make(map[string][]float64)
	}
	if a.devHist[symbol] == nil {
		a.devHist[symbol] = make(map[string][]float64)
	}

	a.history[symbol][chain] = appendCapped(a.history[symbol][chain], deviationPercent, RollingDepth)
	a.devHist[symbol][chain] = appendCapped(a.devHist[symbol][chain], price, RollingDepth)
}

func appendCapped(series []float64, v float64, depth int) []float64 {
	series = append(series, v)
	if len(series) > depth {
		series = series[len(series)-depth:]
	}
	return series
}

// mostReliableChain picks the chain with the smallest rolling standard
// deviation of its deviation-from-average over the last k ticks. On a tie
// the first of the tied chains in the order of chains is kept; no
// confidence-interval tie-break is applied.
func (a *Aggregator) mostReliableChain(symbol string, chains []string) Recommendation {
	a.mu.Lock()
	defer a.mu.Unlock()

	chainHist := a.history[symbol]
	if chainHist == nil || len(chains) == 0 {
		return Recommendation{}
	}

	best := ""
	bestSigma := math.Inf(1)
	for _, chain := range chains {
		series := chainHist[chain]
		if len(series) < 2 {
			continue
		}
		sigma := stat.StdDev(series, nil)
		if sigma < bestSigma {
			bestSigma, best = sigma, chain
		}
	}
	if best == "" {
		return Recommendation{}
	}
	return Recommendation{
		MostReliableChain: best,
		Reason:            "lowest rolling deviation standard deviation over recent ticks",
	}
}

// CorrelationMatrixFor computes the Pearson correlation matrix across
// chains for symbol from the recorded price history, per spec §4.6
// "Correlation matrix". Series are aligned on their most recent samples; a
// shorter series is padded at its start with its earliest recorded value.
func (a *Aggregator) CorrelationMatrixFor(symbol string) CorrelationMatrix {
	a.mu.Lock()
	defer a.mu.Unlock()

	series := a.devHist[symbol]
	if series == nil {
		return CorrelationMatrix{Symbol: symbol}
	}

	chains := make([]string, 0, len(series))
	for chain := range series {
		chains = append(chains, chain)
	}
	sort.Strings(chains)

	n := len(chains)
	matrix := make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}

	maxLen := 0
	for _, chain := range chains {
		if l := len(series[chain]); l > maxLen {
			maxLen = l
		}
	}

	aligned := make(map[string][]float64, n)
	for _, chain := range chains {
		aligned[chain] = alignSeries(series[chain], maxLen)
	}

	for i, ci := range chains {
		for j, cj := range chains {
			if i == j {
				matrix[i][j] = 1.0
				continue
			}
			if i > j {
				matrix[i][j] = matrix[j][i]
				continue
			}
			matrix[i][j] = stat.Correlation(aligned[ci], aligned[cj], nil)
		}
	}

	return CorrelationMatrix{Symbol: symbol, Chains: chains, Matrix: matrix}
}

// alignSeries returns the last n samples of series; a shorter series is
// padded at its start to length n by repeating its earliest value.
func alignSeries(series []float64, n int) []float64 {
	if len(series) >= n {
		return series[len(series)-n:]
	}
	if len(series) == 0 {
		return make([]float64, n)
	}
	out := make([]float64, n)
	last := series[0]
	offset := n - len(series)
	for i := 0; i < offset; i++ {
		out[i] = last
	}
	copy(out[offset:], series)
	return out
}

func (a *Aggregator) panicRecover() {
	if r := recover(); r != nil {
		a.logger.Errorln("aggregator panicked:", r)
		a.logger.Debugln(string(debug.Stack()))
	}
}
