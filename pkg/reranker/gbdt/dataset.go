package gbdt

import (
	"fmt"
	"sort"
)

// dataset holds features quantized into at most MaxBin+1 bins per column.
type dataset struct {
	rows       int
	bins       [][]uint8
	thresholds [][]float64
}

func newDataset(x [][]float64, maxBin int) (*dataset, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("no training rows")
	}
	numFeature := len(x[0])
	for i, row := range x {
		if len(row) != numFeature {
			return nil, fmt.Errorf("row %d has %d features, want %d", i, len(row), numFeature)
		}
	}

	d := &dataset{
		rows:       len(x),
		bins:       make([][]uint8, numFeature),
		thresholds: make([][]float64, numFeature),
	}
	column := make([]float64, len(x))
	for f := 0; f < numFeature; f++ {
		for i, row := range x {
			column[i] = row[f]
		}
		d.thresholds[f] = binThresholds(column, maxBin)

		d.bins[f] = make([]uint8, len(x))
		for i, v := range column {
			d.bins[f][i] = uint8(binOf(d.thresholds[f], v))
		}
	}
	return d, nil
}

func (d *dataset) numBins(f int) int {
	return len(d.thresholds[f]) + 1
}

// binThresholds returns ascending bin bounds placed halfway between neighbouring values. A value
// falls in the first bin whose bound is >= it, or in the last bin when it exceeds every bound.
func binThresholds(values []float64, maxBin int) []float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	distinct := sorted[:0:0]
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			distinct = append(distinct, v)
		}
	}
	if len(distinct) <= 1 {
		return nil
	}
	if len(distinct) <= maxBin {
		out := make([]float64, len(distinct)-1)
		for i := range out {
			out[i] = (distinct[i] + distinct[i+1]) / 2
		}
		return out
	}

	var out []float64
	for j := 1; j < maxBin; j++ {
		v := sorted[j*len(sorted)/maxBin-1]
		next := sort.SearchFloat64s(distinct, v) + 1
		if next >= len(distinct) {
			break
		}
		bound := (v + distinct[next]) / 2
		if len(out) == 0 || bound > out[len(out)-1] {
			out = append(out, bound)
		}
	}
	return out
}

func binOf(thresholds []float64, v float64) int {
	return sort.SearchFloat64s(thresholds, v)
}
