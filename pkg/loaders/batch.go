package loaders

import (
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/pkg/errors"

	"github.com/df07/go-nerfw-renderer/pkg/core"
)

// BatchRecord is a ray batch read from disk. Width and Height are set when the
// rays form a full image in row-major order.
type BatchRecord struct {
	Batch  *core.RayBatch
	Width  int
	Height int
}

// batchFile is the JSON layout. outfit_code and appearance_code hold either one id
// or one vector per ray. appearance_code replaces the lookup by ts.
type batchFile struct {
	Rays           [][]float64    `json:"rays"`
	RGBs           [][]float64    `json:"rgbs,omitempty"`
	TS             []int          `json:"ts,omitempty"`
	OutfitCode     jsontext.Value `json:"outfit_code,omitzero"`
	AppearanceCode jsontext.Value `json:"appearance_code,omitzero"`
	ImgWH          []int          `json:"img_wh,omitempty"`
}

// LoadBatch reads a batch record file
func LoadBatch(path string) (*BatchRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open batch file")
	}
	defer f.Close()

	record, err := DecodeBatch(f)
	if err != nil {
		return nil, errors.Wrapf(err, "batch %s", path)
	}
	return record, nil
}

// DecodeBatch parses a batch record and checks that every field lines up with the rays
func DecodeBatch(r io.Reader) (*BatchRecord, error) {
	var file batchFile
	if err := json.UnmarshalRead(r, &file, json.RejectUnknownMembers(true)); err != nil {
		return nil, errors.Wrap(err, "failed to decode batch")
	}

	rays, err := core.ParseRays(file.Rays)
	if err != nil {
		return nil, err
	}
	batch := &core.RayBatch{Rays: rays, TS: file.TS}
	for i, row := range file.RGBs {
		if len(row) != 3 {
			return nil, errors.Wrapf(core.ErrChannelMismatch, "rgb %d has %d values", i, len(row))
		}
		batch.RGBs = append(batch.RGBs, mgl64.Vec3{row[0], row[1], row[2]})
	}

	outfits, err := decodeCodes(file.OutfitCode)
	if err != nil {
		return nil, errors.Wrap(err, "outfit_code")
	}
	batch.Outfits = outfits
	if batch.Appearance, err = decodeCodes(file.AppearanceCode); err != nil {
		return nil, errors.Wrap(err, "appearance_code")
	}
	if err := batch.Validate(); err != nil {
		return nil, err
	}

	record := &BatchRecord{Batch: batch}
	if file.ImgWH != nil {
		if len(file.ImgWH) != 2 || file.ImgWH[0]*file.ImgWH[1] != batch.Len() {
			return nil, errors.Wrapf(core.ErrCodeCount, "img_wh %v does not match %d rays", file.ImgWH, batch.Len())
		}
		record.Width, record.Height = file.ImgWH[0], file.ImgWH[1]
	}
	return record, nil
}

// decodeCodes accepts a list of ids or a list of vectors
func decodeCodes(raw jsontext.Value) (core.Codes, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return core.Codes{}, nil
	}
	var ids []int
	if err := json.Unmarshal(raw, &ids); err == nil {
		return core.CodesFromIDs(ids), nil
	}
	var vectors [][]float64
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return core.Codes{}, errors.Wrap(err, "want a list of ids or a list of vectors")
	}
	return core.CodesFromVectors(vectors), nil
}

// encodeCodes is the inverse of decodeCodes. Empty codes encode to nothing.
func encodeCodes(codes core.Codes) (jsontext.Value, error) {
	switch {
	case codes.Len() == 0:
		return nil, nil
	case codes.Embedded():
		return json.Marshal(codes.Vectors)
	}
	return json.Marshal(codes.IDs)
}

// EncodeBatch writes a batch in the layout DecodeBatch reads. Pass zero width
// and height for batches that are not an image.
func EncodeBatch(w io.Writer, batch *core.RayBatch, width, height int) error {
	if err := batch.Validate(); err != nil {
		return err
	}
	file := batchFile{TS: batch.TS}
	for _, r := range batch.Rays {
		file.Rays = append(file.Rays, r.Row())
	}
	for _, c := range batch.RGBs {
		file.RGBs = append(file.RGBs, []float64{c[0], c[1], c[2]})
	}
	var err error
	if file.OutfitCode, err = encodeCodes(batch.Outfits); err != nil {
		return errors.Wrap(err, "failed to encode outfit codes")
	}
	if file.AppearanceCode, err = encodeCodes(batch.Appearance); err != nil {
		return errors.Wrap(err, "failed to encode appearance codes")
	}
	if width > 0 || height > 0 {
		file.ImgWH = []int{width, height}
	}
	return errors.Wrap(json.MarshalWrite(w, &file), "failed to write batch")
}
