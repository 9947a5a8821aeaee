package vector

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/imgdex/internal/domain/search/filter"
	domvec "github.com/kailas-cloud/imgdex/internal/domain/vector"
)

// toFields flattens a point into hash fields. Tag lists are joined with tagSeparator.
func toFields(p *domvec.Point) map[string]string {
	f := map[string]string{
		fieldVector:         vectorToBytes(p.Vector),
		fieldShortID:        p.Payload.ShortID,
		fieldDocID:          p.Payload.DocID,
		filter.FieldObjects: joinTags(p.Payload.Objects),
		filter.FieldPlace:   joinTags(p.Payload.Place),
		filter.FieldWidth:   strconv.Itoa(p.Payload.Width),
		filter.FieldHeight:  strconv.Itoa(p.Payload.Height),
		fieldVersion:        strconv.Itoa(p.Payload.Version),
	}
	if !p.Payload.CapturedAt.IsZero() {
		f[filter.FieldCapturedAt] = strconv.FormatInt(p.Payload.CapturedAt.Unix(), 10)
	}
	return f
}

func payloadFromFields(f map[string]string) domvec.Payload {
	p := domvec.Payload{
		ShortID: f[fieldShortID],
		DocID:   f[fieldDocID],
		Objects: splitTags(f[filter.FieldObjects]),
		Place:   splitTags(f[filter.FieldPlace]),
	}
	p.Width, _ = strconv.Atoi(f[filter.FieldWidth])
	p.Height, _ = strconv.Atoi(f[filter.FieldHeight])
	p.Version, _ = strconv.Atoi(f[fieldVersion])
	if ts, err := strconv.ParseInt(f[filter.FieldCapturedAt], 10, 64); err == nil {
		p.CapturedAt = time.Unix(ts, 0).UTC()
	}
	return p
}

// tag values must not contain the separator
func joinTags(vals []string) string {
	clean := make([]string, 0, len(vals))
	for _, v := range vals {
		v = strings.TrimSpace(strings.ReplaceAll(v, tagSeparator, " "))
		if v != "" {
			clean = append(clean, v)
		}
	}
	return strings.Join(clean, tagSeparator)
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, tagSeparator)
}

// vectorToBytes serializes a vector as little-endian float32, the FT VECTOR wire format.
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
