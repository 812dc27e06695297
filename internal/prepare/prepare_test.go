package prepare

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"strings"
	"testing"

	"github.com/figurl-view/figview/internal/contentstore"
	"github.com/figurl-view/figview/internal/figure"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadUnitsAndTrains(t *testing.T) {
	u, err := ReadUnits(strings.NewReader(`{
		"spike_times": [0.5, null, 1.5, 2.0, 3.0],
		"spike_times_index": [3, 3, 5]
	}`))
	require.NoError(t, err)

	trains, err := u.Trains()
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 1.5}, {}, {2.0, 3.0}}, trains)

	u.SpikeTimesIndex = []int{3, 9}
	_, err = u.Trains()
	assert.Error(t, err)

	_, err = ReadUnits(strings.NewReader(`{"spike_times": "nope"}`))
	assert.Error(t, err)
}

func TestBin(t *testing.T) {
	trains := [][]float64{
		{0.1, 0.3, math.NaN(), 0.6, -0.5},
		{1.0},
	}
	p, err := Bin(trains, 0.25)
	require.NoError(t, err)

	assert.Equal(t, 1.0, p.EndTimeSec)
	require.Len(t, p.Levels, 1)
	l := p.Levels[0]
	assert.Equal(t, "spike_counts", l.Name)
	assert.Equal(t, 4, l.NumBins)
	assert.Equal(t, 2, l.NumUnits)
	assert.Equal(t, 0.25, l.BinSizeSec)
	assert.Equal(t, 0.0, l.StartTimeSec)

	// The spike at the end time belongs to the last bin. NaN and negative
	// times are not counted.
	assert.Equal(t, []int32{
		1, 0,
		1, 0,
		1, 0,
		0, 1,
	}, l.Counts)
	assert.Equal(t, int32(1), l.At(3, 1))
}

func TestBinErrors(t *testing.T) {
	tests := []struct {
		name    string
		trains  [][]float64
		binSize float64
		noSpike bool
	}{
		{"no units", nil, 0.02, true},
		{"empty trains", [][]float64{{}, {math.NaN()}}, 0.02, true},
		{"zero bin size", [][]float64{{1}}, 0, false},
		{"nan bin size", [][]float64{{1}}, math.NaN(), false},
		{"shorter than one bin", [][]float64{{0.01}}, 0.02, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Bin(tt.trains, tt.binSize)
			require.Error(t, err)
			if tt.noSpike {
				assert.ErrorIs(t, err, ErrNoSpikes)
			}
		})
	}
}

func TestBinPyramidLevels(t *testing.T) {
	tests := []struct {
		name      string
		end       float64
		wantNames []string
		wantBins  []int
		wantSizes []float64
	}{
		{"fits", 10000, []string{"spike_counts"}, []int{10000}, []float64{1}},
		{"one level", 30001, []string{"spike_counts", "spike_counts_ds_3"}, []int{30001, 10000}, []float64{1, 3}},
		{"two levels", 90001,
			[]string{"spike_counts", "spike_counts_ds_3", "spike_counts_ds_9"},
			[]int{90001, 30000, 10000}, []float64{1, 3, 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Bin([][]float64{{0.5, 2.5, tt.end}}, 1)
			require.NoError(t, err)

			var names []string
			var bins []int
			var sizes []float64
			for _, l := range p.Levels {
				names = append(names, l.Name)
				bins = append(bins, l.NumBins)
				sizes = append(sizes, l.BinSizeSec)
			}
			assert.Equal(t, tt.wantNames, names)
			assert.Equal(t, tt.wantBins, bins)
			assert.Equal(t, tt.wantSizes, sizes)
		})
	}
}

func TestDownsampleSumsAndTruncates(t *testing.T) {
	prev := Level{
		Name:     "spike_counts",
		NumBins:  7,
		NumUnits: 2,
		Counts: []int32{
			1, 0,
			2, 1,
			3, 0,
			0, 4,
			0, 5,
			1, 6,
			9, 9,
		},
	}
	l := downsample(prev, 3, 0.02)
	assert.Equal(t, "spike_counts_ds_3", l.Name)
	assert.Equal(t, 2, l.NumBins)
	assert.InDelta(t, 0.06, l.BinSizeSec, 1e-12)
	assert.Equal(t, []int32{6, 1, 1, 15}, l.Counts)
}

func TestStats(t *testing.T) {
	stats := Stats([][]float64{{1, 2, 3, 4}, {}}, 2)
	assert.Equal(t, []UnitStats{{Unit: 0, Spikes: 4, RateHz: 2}, {Unit: 1}}, stats)
}

func TestWriteTar(t *testing.T) {
	p, err := Bin([][]float64{{0.5, 2.5, 30001}, {1}}, 1)
	require.NoError(t, err)

	var first, second bytes.Buffer
	require.NoError(t, p.WriteTar(&first))
	require.NoError(t, p.WriteTar(&second))
	assert.Equal(t, first.Bytes(), second.Bytes())

	tr := tar.NewReader(&first)
	var names []string
	for _, l := range p.Levels {
		hdr, err := tr.Next()
		require.NoError(t, err)
		require.Equal(t, l.Name+"/attrs.json", hdr.Name)
		var a attrs
		require.NoError(t, json.NewDecoder(tr).Decode(&a))
		assert.Equal(t, l.BinSizeSec, a.BinSizeSec)
		assert.Equal(t, [2]int{l.NumBins, 2}, a.Shape)
		assert.Equal(t, "<i4", a.Dtype)

		hdr, err = tr.Next()
		require.NoError(t, err)
		require.Equal(t, l.Name+"/data", hdr.Name)
		counts := make([]int32, l.NumBins*l.NumUnits)
		require.NoError(t, binary.Read(tr, binary.LittleEndian, counts))
		assert.Equal(t, l.Counts, counts)
		names = append(names, l.Name)
	}
	_, err = tr.Next()
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, []string{"spike_counts", "spike_counts_ds_3"}, names)
}

func TestRunStoresDatasetAndDescriptor(t *testing.T) {
	store, err := contentstore.OpenDir(t.TempDir(), "http://h")
	require.NoError(t, err)

	one, two := 1.0, 2.0
	units := Units{SpikeTimes: []*float64{&one, &two, nil}, SpikeTimesIndex: []int{2, 3}}
	res, err := Run(units, 250, store, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(res.DataURI, "/"+DatasetName), res.DataURI)
	assert.Equal(t, res.DataURI, res.Descriptor.URI)
	assert.Equal(t, 8, res.Pyramid.Levels[0].NumBins)
	assert.Equal(t, 2, store.Len())

	u, err := contentstore.ParseURI(res.DescriptorURI)
	require.NoError(t, err)
	f, err := store.Open(u.Hash)
	require.NoError(t, err)
	defer f.Close()
	raw, err := io.ReadAll(f)
	require.NoError(t, err)

	d, err := figure.Decode(raw)
	require.NoError(t, err)
	msd, ok := d.(figure.MultiscaleSpikeDensity)
	require.True(t, ok, "decoded %T", d)
	assert.Equal(t, res.DataURI, msd.URI)

	url, err := store.Resolve(res.DataURI)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "http://h/files/"))

	_, err = Run(Units{}, DefaultBinSizeMsec, store, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNoSpikes)
}
