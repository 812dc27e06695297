package prepare

import (
	"archive/tar"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// attrs is the metadata stored next to each level's counts.
type attrs struct {
	BinSizeSec   float64 `json:"bin_size_sec"`
	StartTimeSec float64 `json:"start_time_sec"`
	Shape        [2]int  `json:"shape"`
	Dtype        string  `json:"dtype"`
}

// WriteTar writes every level as <name>/attrs.json and <name>/data, the
// counts as little-endian int32. Identical pyramids produce identical bytes.
func (p Pyramid) WriteTar(w io.Writer) error {
	tw := tar.NewWriter(w)
	for _, l := range p.Levels {
		meta, err := json.Marshal(attrs{
			BinSizeSec:   l.BinSizeSec,
			StartTimeSec: l.StartTimeSec,
			Shape:        [2]int{l.NumBins, l.NumUnits},
			Dtype:        "<i4",
		})
		if err != nil {
			return err
		}
		if err := writeEntry(tw, l.Name+"/attrs.json", meta); err != nil {
			return err
		}

		var data bytes.Buffer
		data.Grow(4 * len(l.Counts))
		if err := binary.Write(&data, binary.LittleEndian, l.Counts); err != nil {
			return err
		}
		if err := writeEntry(tw, l.Name+"/data", data.Bytes()); err != nil {
			return err
		}
	}
	return tw.Close()
}

func writeEntry(tw *tar.Writer, name string, body []byte) error {
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(body)),
		ModTime:  time.Unix(0, 0),
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if _, err := tw.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}
