package metrics_test

import (
	"math/big"
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/echobench/internal/metrics"
)

func TestAnalyzeKnownSamples(t *testing.T) {
	ts, err := metrics.Analyze(64, []uint64{10, 20, 30, 40, 100})
	require.NoError(t, err)

	// deviations from 40: -30 -20 -10 0 60, squares sum to 5000, 5000/5 = 1000, floor(sqrt(1000)) = 31
	assert.Equal(t, metrics.TimeStats{
		Size: 64, Mean: 40, Stdev: 31, Min: 10, Max: 100,
		P50: 40, P90: 100, P99: 100, P9999: 100,
	}, ts)
}

func TestAnalyzeInputOrderDoesNotMatter(t *testing.T) {
	a, err := metrics.Analyze(8, []uint64{100, 10, 40, 30, 20})
	require.NoError(t, err)
	b, err := metrics.Analyze(8, []uint64{10, 20, 30, 40, 100})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestAnalyzeDoesNotModifyInput(t *testing.T) {
	samples := []uint64{5, 3, 9, 1, 7}
	orig := slices.Clone(samples)
	_, err := metrics.Analyze(1, samples)
	require.NoError(t, err)
	assert.Equal(t, orig, samples)
}

func TestAnalyzePercentileRule(t *testing.T) {
	samples := make([]uint64, 10)
	for i := range samples {
		samples[i] = uint64(i+1) * 10 // 10..100
	}
	ts, err := metrics.Analyze(0, samples)
	require.NoError(t, err)

	// N=10: p50 x=5 exact -> avg(s[5], s[6]) = (60+70)/2
	assert.Equal(t, uint64(65), ts.P50)
	// p90 x=9 exact -> avg(s[8], s[9]) = (90+100)/2
	assert.Equal(t, uint64(95), ts.P90)
	// p99 x=9.9 -> s[9]
	assert.Equal(t, uint64(100), ts.P99)
	assert.Equal(t, uint64(100), ts.P9999)
	assert.Equal(t, uint64(55), ts.Mean)
}

func TestAnalyzeMedianAveragingTruncates(t *testing.T) {
	// N=4: p50 x=2 exact -> avg(s[2], s[3]) = (3+6)/2 truncated
	ts, err := metrics.Analyze(0, []uint64{1, 2, 3, 6})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), ts.P50)
	assert.Equal(t, uint64(3), ts.Mean)
}

func TestAnalyzeLargeValuesDoNotOverflow(t *testing.T) {
	huge := uint64(1) << 63
	ts, err := metrics.Analyze(0, []uint64{huge, huge, huge, huge})
	require.NoError(t, err)
	assert.Equal(t, huge, ts.Mean)
	assert.Equal(t, huge, ts.P50)
	assert.Zero(t, ts.Stdev)
}

func TestAnalyzeRejectsOutOfRangeIndex(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		samples := make([]uint64, n)
		_, err := metrics.Analyze(0, samples)
		assert.ErrorIs(t, err, metrics.ErrAnalysisRange, "n=%d", n)
	}
	_, err := metrics.Analyze(0, []uint64{1, 2, 3})
	assert.NoError(t, err)
}

func TestAnalyzeEqualSamplesHaveZeroStdev(t *testing.T) {
	ts, err := metrics.Analyze(0, []uint64{7, 7, 7, 7, 7})
	require.NoError(t, err)
	assert.Zero(t, ts.Stdev)
	assert.Equal(t, uint64(7), ts.Min)
	assert.Equal(t, uint64(7), ts.Max)
	assert.Equal(t, uint64(7), ts.P9999)
}

func TestAnalyzeSpreadSamplesHavePositiveStdev(t *testing.T) {
	ts, err := metrics.Analyze(0, []uint64{100, 200, 300})
	require.NoError(t, err)
	assert.Positive(t, ts.Stdev)
}

// reference recomputes the truncated moments with rationals.
func reference(samples []uint64) (mean, stdev uint64) {
	n := big.NewInt(int64(len(samples)))
	sum := new(big.Int)
	for _, x := range samples {
		sum.Add(sum, new(big.Int).SetUint64(x))
	}
	m := new(big.Int).Div(sum, n)

	sq := new(big.Rat)
	for _, x := range samples {
		d := new(big.Int).Sub(new(big.Int).SetUint64(x), m)
		sq.Add(sq, new(big.Rat).SetInt(d.Mul(d, d)))
	}
	sq.Quo(sq, new(big.Rat).SetInt(n))
	floor := new(big.Int).Div(sq.Num(), sq.Denom())
	return m.Uint64(), floor.Sqrt(floor).Uint64()
}

func checkOrdering(t *testing.T, samples []uint64) {
	if len(samples) < 3 {
		return
	}
	ts, err := metrics.Analyze(0, samples)
	require.NoError(t, err)

	assert.LessOrEqual(t, ts.Min, ts.Mean)
	assert.LessOrEqual(t, ts.Mean, ts.Max)
	assert.LessOrEqual(t, ts.Min, ts.P50)
	assert.LessOrEqual(t, ts.P50, ts.P90)
	assert.LessOrEqual(t, ts.P90, ts.P99)
	assert.LessOrEqual(t, ts.P99, ts.P9999)
	assert.LessOrEqual(t, ts.P9999, ts.Max)

	mean, stdev := reference(samples)
	assert.Equal(t, mean, ts.Mean)
	assert.Equal(t, stdev, ts.Stdev)
}

func TestAnalyzeOrderingRandom(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		n := 3 + r.IntN(2000)
		samples := make([]uint64, n)
		for j := range samples {
			samples[j] = uint64(r.IntN(5_000_000))
		}
		checkOrdering(t, samples)
	}
}

func FuzzAnalyze(f *testing.F) {
	f.Add([]byte{10, 20, 30, 40, 100})
	f.Add([]byte{1, 1, 1})
	f.Fuzz(func(t *testing.T, raw []byte) {
		samples := make([]uint64, len(raw))
		for i, b := range raw {
			samples[i] = uint64(b) * 1000
		}
		checkOrdering(t, samples)
	})
}
