package profiling

import (
	"math"
	"slices"

	"github.com/montanaflynn/stats"
	gonumstat "gonum.org/v1/gonum/stat"

	"sheetlens/domain/table"
	"sheetlens/domain/upload"
)

// NumericValues collects the numeric payload of a column. Number cells count
// directly and numeric text is parsed; everything else is skipped.
func NumericValues(values []table.Value) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := v.Float(); ok {
			out = append(out, f)
			continue
		}
		if v.Kind() == table.KindString {
			if f, ok := parseNumericText(v.Text()); ok {
				out = append(out, f)
			}
		}
	}
	return out
}

// SummarizeNumeric computes the descriptive summary of a number column
func SummarizeNumeric(data []float64) (upload.NumericSummary, error) {
	summary := upload.NumericSummary{Count: len(data)}

	mean, err := stats.Mean(data)
	if err != nil {
		return summary, err
	}

	min, err := stats.Min(data)
	if err != nil {
		return summary, err
	}

	max, err := stats.Max(data)
	if err != nil {
		return summary, err
	}

	median, err := stats.Median(data)
	if err != nil {
		return summary, err
	}

	// Empirical quantiles stay defined for very small columns
	sorted := slices.Clone(data)
	slices.Sort(sorted)
	q25 := gonumstat.Quantile(0.25, gonumstat.Empirical, sorted, nil)
	q75 := gonumstat.Quantile(0.75, gonumstat.Empirical, sorted, nil)

	stdDev := 0.0
	if len(data) > 1 {
		stdDev, err = stats.StandardDeviationSample(data)
		if err != nil {
			return summary, err
		}
	}

	summary.Mean = mean
	summary.Min = min
	summary.Max = max
	summary.Median = median
	summary.Q25 = q25
	summary.Q75 = q75
	summary.StdDev = stdDev
	summary.Skewness = calculateSkewness(data, stdDev)
	summary.Outliers = detectOutliers(data, q25, q75)

	return summary, nil
}

// calculateSkewness returns the sample skewness, 0 when undefined
func calculateSkewness(data []float64, stdDev float64) float64 {
	if len(data) < 3 || stdDev == 0 {
		return 0
	}
	skew := gonumstat.Skew(data, nil)
	if math.IsNaN(skew) || math.IsInf(skew, 0) {
		return 0
	}
	return skew
}

// detectOutliers counts values outside the 1.5 IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}

	return outlierCount
}
