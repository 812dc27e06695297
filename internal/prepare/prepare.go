// Package prepare bins per-unit spike trains into a multiscale spike density
// dataset and stores it, with its figure descriptor, in a content store.
package prepare

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/figurl-view/figview/internal/figure"
	"github.com/rs/zerolog"
)

const (
	// DefaultBinSizeMsec is the finest bin width.
	DefaultBinSizeMsec = 20

	// DatasetName labels the stored archive.
	DatasetName = "multiscale_spike_density.tar"

	downsampleFactor = 3
	maxBins          = 10000
)

// ErrNoSpikes is returned when there is nothing to bin.
var ErrNoSpikes = errors.New("no spikes")

// Units is a ragged units table. Unit i owns
// SpikeTimes[SpikeTimesIndex[i-1]:SpikeTimesIndex[i]]. Null times are
// treated as missing.
type Units struct {
	SpikeTimes      []*float64 `json:"spike_times"`
	SpikeTimesIndex []int      `json:"spike_times_index"`
}

// ReadUnits decodes a units table from JSON.
func ReadUnits(r io.Reader) (Units, error) {
	var u Units
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return Units{}, fmt.Errorf("decode units table: %w", err)
	}
	return u, nil
}

// Trains splits the table into one spike train per unit, dropping missing
// and NaN times.
func (u Units) Trains() ([][]float64, error) {
	trains := make([][]float64, 0, len(u.SpikeTimesIndex))
	offset := 0
	for i, end := range u.SpikeTimesIndex {
		if end < offset || end > len(u.SpikeTimes) {
			return nil, fmt.Errorf("unit %d: spike_times_index %d out of range", i, end)
		}
		train := make([]float64, 0, end-offset)
		for _, t := range u.SpikeTimes[offset:end] {
			if t != nil && !math.IsNaN(*t) {
				train = append(train, *t)
			}
		}
		trains = append(trains, train)
		offset = end
	}
	return trains, nil
}

// Level is one resolution of the spike counts, row-major [NumBins][NumUnits].
type Level struct {
	Name         string
	BinSizeSec   float64
	StartTimeSec float64
	NumBins      int
	NumUnits     int
	Counts       []int32
}

// At returns the count for unit in bin.
func (l Level) At(bin, unit int) int32 { return l.Counts[bin*l.NumUnits+unit] }

// Pyramid holds the finest level first, then each coarser level.
type Pyramid struct {
	EndTimeSec float64
	Levels     []Level
}

// Bin histograms each train over [0, last spike] in bins of binSizeSec and
// adds coarser levels, each downsampleFactor times wider, until a level
// fits in maxBins. A spike exactly at the end lands in the last bin.
func Bin(trains [][]float64, binSizeSec float64) (Pyramid, error) {
	if !(binSizeSec > 0) {
		return Pyramid{}, fmt.Errorf("bin size must be positive, got %g", binSizeSec)
	}

	const start = 0.0
	end, total := math.Inf(-1), 0
	for _, train := range trains {
		for _, t := range train {
			if math.IsNaN(t) {
				continue
			}
			end = math.Max(end, t)
			total++
		}
	}
	if total == 0 {
		return Pyramid{}, ErrNoSpikes
	}

	numBins := int((end - start) / binSizeSec)
	if numBins <= 0 {
		return Pyramid{}, fmt.Errorf("last spike at %gs ends before the first %gs bin", end, binSizeSec)
	}

	numUnits := len(trains)
	base := Level{
		Name:         "spike_counts",
		BinSizeSec:   binSizeSec,
		StartTimeSec: start,
		NumBins:      numBins,
		NumUnits:     numUnits,
		Counts:       make([]int32, numBins*numUnits),
	}
	scale := float64(numBins) / (end - start)
	for u, train := range trains {
		for _, t := range train {
			if math.IsNaN(t) || t < start || t > end {
				continue
			}
			b := int((t - start) * scale)
			if b >= numBins {
				b = numBins - 1
			}
			base.Counts[b*numUnits+u]++
		}
	}

	p := Pyramid{EndTimeSec: end, Levels: []Level{base}}
	factor := 1
	for numBins/factor > maxBins {
		factor *= downsampleFactor
		prev := p.Levels[len(p.Levels)-1]
		p.Levels = append(p.Levels, downsample(prev, factor, binSizeSec))
	}
	return p, nil
}

// downsample sums each run of downsampleFactor bins of prev. Trailing bins
// that do not fill a run are dropped.
func downsample(prev Level, factor int, binSizeSec float64) Level {
	n := prev.NumBins / downsampleFactor
	nu := prev.NumUnits
	counts := make([]int32, n*nu)
	for b := 0; b < n; b++ {
		for k := 0; k < downsampleFactor; k++ {
			row := (b*downsampleFactor + k) * nu
			for u := 0; u < nu; u++ {
				counts[b*nu+u] += prev.Counts[row+u]
			}
		}
	}
	return Level{
		Name:         fmt.Sprintf("spike_counts_ds_%d", factor),
		BinSizeSec:   binSizeSec * float64(factor),
		StartTimeSec: prev.StartTimeSec,
		NumBins:      n,
		NumUnits:     nu,
		Counts:       counts,
	}
}

// UnitStats summarizes one unit's train.
type UnitStats struct {
	Unit   int
	Spikes int
	RateHz float64
}

// Stats reports spike counts and mean firing rates over [0, endTimeSec].
func Stats(trains [][]float64, endTimeSec float64) []UnitStats {
	stats := make([]UnitStats, len(trains))
	for i, train := range trains {
		stats[i] = UnitStats{Unit: i, Spikes: len(train)}
		if endTimeSec > 0 {
			stats[i].RateHz = float64(len(train)) / endTimeSec
		}
	}
	return stats
}

// Store is where prepared blobs go.
type Store interface {
	IngestReader(r io.Reader, name string) (string, error)
}

// Result is what Run stored.
type Result struct {
	DataURI       string
	DescriptorURI string
	Descriptor    figure.MultiscaleSpikeDensity
	Pyramid       Pyramid
}

// Run bins units at binSizeMsec, stores the archive and then the descriptor
// that references it.
func Run(units Units, binSizeMsec float64, store Store, log zerolog.Logger) (Result, error) {
	trains, err := units.Trains()
	if err != nil {
		return Result{}, err
	}
	p, err := Bin(trains, binSizeMsec/1000)
	if err != nil {
		return Result{}, err
	}

	stats := Stats(trains, p.EndTimeSec)
	total := 0
	for _, s := range stats {
		total += s.Spikes
		log.Debug().Int("unit", s.Unit).Int("spikes", s.Spikes).Float64("rate_hz", s.RateHz).Msg("unit")
	}
	log.Info().
		Int("units", len(trains)).
		Int("spikes", total).
		Float64("end_time_sec", p.EndTimeSec).
		Int("bins", p.Levels[0].NumBins).
		Int("levels", len(p.Levels)).
		Msg("binned spike trains")

	var buf bytes.Buffer
	if err := p.WriteTar(&buf); err != nil {
		return Result{}, err
	}
	size := buf.Len()
	dataURI, err := store.IngestReader(&buf, DatasetName)
	if err != nil {
		return Result{}, fmt.Errorf("store dataset: %w", err)
	}

	d := figure.NewMultiscaleSpikeDensity(dataURI)
	descURI, err := store.IngestReader(bytes.NewReader(d.Raw()), "")
	if err != nil {
		return Result{}, fmt.Errorf("store descriptor: %w", err)
	}

	log.Info().Str("data", dataURI).Int("bytes", size).Str("descriptor", descURI).Msg("stored multiscale spike density")
	return Result{DataURI: dataURI, DescriptorURI: descURI, Descriptor: d, Pyramid: p}, nil
}
