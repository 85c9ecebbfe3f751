package indicators

import (
	"math"

	"qtcache/pkg/market"
)

// Default periods used when Params leaves a field at zero.
const (
	DefaultEMAPeriod  = 20
	DefaultRSIPeriod  = 14
	DefaultATRPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
)

// Params selects the lookback periods for Compute.
type Params struct {
	EMAPeriod int
	RSIPeriod int
	ATRPeriod int
}

// Series holds per-bar covariates aligned with the input candles. Warm-up
// positions are NaN.
type Series struct {
	EMA      []float64
	RSI      []float64
	MACDHist []float64
	ATR      []float64
}

// Compute derives every covariate for an ascending candle series.
func Compute(candles []market.Candle, p Params) Series {
	if p.EMAPeriod <= 0 {
		p.EMAPeriod = DefaultEMAPeriod
	}
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = DefaultRSIPeriod
	}
	if p.ATRPeriod <= 0 {
		p.ATRPeriod = DefaultATRPeriod
	}
	closes := Closes(candles)
	_, _, hist := MACD(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
	return Series{
		EMA:      EMA(closes, p.EMAPeriod),
		RSI:      RSI(closes, p.RSIPeriod),
		MACDHist: hist,
		ATR:      ATR(candles, p.ATRPeriod),
	}
}

// Closes extracts the close prices of a candle series.
func Closes(candles []market.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// EMA produces the exponential moving average for the supplied prices,
// seeded with the first complete simple average. NaN inputs carry the
// previous value forward.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	result := nanSlice(len(prices))
	if len(prices) < period {
		return result
	}
	multiplier := 2.0 / float64(period+1)

	start := -1
	var seed float64
	for i := period - 1; i < len(prices) && start < 0; i++ {
		sum := 0.0
		valid := true
		for _, v := range prices[i-period+1 : i+1] {
			if math.IsNaN(v) {
				valid = false
				break
			}
			sum += v
		}
		if valid {
			start = i
			seed = sum / float64(period)
		}
	}
	if start < 0 {
		return result
	}
	result[start] = seed
	for i := start + 1; i < len(prices); i++ {
		prev := result[i-1]
		if math.IsNaN(prices[i]) {
			result[i] = prev
			continue
		}
		result[i] = (prices[i]-prev)*multiplier + prev
	}
	return result
}

// MACD returns the MACD line, its signal line and the histogram.
func MACD(prices []float64, fast, slow, signalPeriod int) ([]float64, []float64, []float64) {
	if len(prices) == 0 || fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return []float64{}, []float64{}, []float64{}
	}
	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	line := nanSlice(len(prices))
	for i := range prices {
		if !math.IsNaN(emaFast[i]) && !math.IsNaN(emaSlow[i]) {
			line[i] = emaFast[i] - emaSlow[i]
		}
	}
	signal := EMA(line, signalPeriod)
	hist := nanSlice(len(prices))
	for i := range hist {
		if !math.IsNaN(line[i]) && !math.IsNaN(signal[i]) {
			hist[i] = line[i] - signal[i]
		}
	}
	return line, signal, hist
}

// RSI computes Wilder's Relative Strength Index.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return []float64{}
	}
	rsi := nanSlice(len(prices))
	if len(prices) <= period {
		return rsi
	}

	var gainSum, lossSum float64
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gainSum += change
		} else {
			lossSum -= change
		}
	}
	avgGain := gainSum / float64(period)
	avgLoss := lossSum / float64(period)
	rsi[period] = relativeStrength(avgGain, avgLoss)

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		avgGain = (avgGain*float64(period-1) + math.Max(change, 0)) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + math.Max(-change, 0)) / float64(period)
		rsi[i] = relativeStrength(avgGain, avgLoss)
	}
	return rsi
}

// ATR computes the Average True Range of a candle series.
func ATR(candles []market.Candle, period int) []float64 {
	if period <= 0 || len(candles) == 0 {
		return []float64{}
	}
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}
	return EMA(tr, period)
}

func relativeStrength(avgGain, avgLoss float64) float64 {
	switch {
	case avgLoss == 0 && avgGain == 0:
		return 50.0
	case avgLoss == 0:
		return 100.0
	case avgGain == 0:
		return 0.0
	default:
		return 100.0 - (100.0 / (1.0 + avgGain/avgLoss))
	}
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
