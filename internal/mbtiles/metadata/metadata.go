// Package metadata is the typed form of an MBTiles metadata table.
package metadata

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/bounds"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

type LayerType string

const (
	BaseLayer LayerType = "baselayer"
	Overlay   LayerType = "overlay"
)

func ParseLayerType(s string) (LayerType, bool) {
	switch LayerType(s) {
	case BaseLayer, Overlay:
		return LayerType(s), true
	}
	return "", false
}

// Format is the image encoding used for every tile in a store.
type Format string

const (
	FormatNone Format = ""
	JPEG       Format = "jpg"
	PNG        Format = "png"
)

func ParseFormat(s string) (Format, bool) {
	switch Format(s) {
	case JPEG, PNG:
		return Format(s), true
	}
	return FormatNone, false
}

func (f Format) ContentType() string {
	switch f {
	case JPEG:
		return "image/jpeg"
	case PNG:
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Record is validated metadata. Format and Bounds are only meaningful for
// revision 1.1; a nil Bounds means the store covers the whole earth.
type Record struct {
	Schema      schema.Version
	Name        string
	Description string
	Type        LayerType
	Version     int
	Format      Format
	Bounds      *bounds.Bounds
	Extras      []Pair
}

// ReservedKeys returns the keys that map onto Record fields for v and so
// never appear among the extras.
func ReservedKeys(v schema.Version) []string {
	keys := []string{schema.KeyName, schema.KeyDescription, schema.KeyType, schema.KeyVersion}
	if v == schema.V1_1 {
		keys = append(keys, schema.KeyFormat, schema.KeyBounds)
	}
	return keys
}

func IsReserved(v schema.Version, key string) bool {
	return slices.Contains(ReservedKeys(v), key)
}

func (r *Record) Extra(key string) (string, bool) {
	for _, p := range r.Extras {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetExtra adds or overwrites an extra row; an existing key keeps its position.
func (r *Record) SetExtra(key, value string) error {
	if IsReserved(r.Schema, key) {
		return fmt.Errorf("metadata key %q is reserved in version %s", key, r.Schema)
	}
	for i := range r.Extras {
		if r.Extras[i].Key == key {
			r.Extras[i].Value = value
			return nil
		}
	}
	r.Extras = append(r.Extras, Pair{Key: key, Value: value})
	return nil
}

func (r *Record) EffectiveBounds() bounds.Bounds {
	if r.Bounds == nil {
		return bounds.FullEarth
	}
	return *r.Bounds
}

// Rows serializes r into metadata key/value rows, core fields first.
func (r *Record) Rows() []Pair {
	rows := []Pair{
		{schema.KeyName, r.Name},
		{schema.KeyDescription, r.Description},
		{schema.KeyType, string(r.Type)},
		{schema.KeyVersion, strconv.Itoa(r.Version)},
	}
	if r.Schema == schema.V1_1 {
		if r.Format != FormatNone {
			rows = append(rows, Pair{schema.KeyFormat, string(r.Format)})
		}
		if r.Bounds != nil {
			rows = append(rows, Pair{schema.KeyBounds, r.Bounds.String()})
		}
	}
	for _, p := range r.Extras {
		if IsReserved(r.Schema, p.Key) {
			continue
		}
		rows = append(rows, p)
	}
	return rows
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Bounds != nil {
		b := *r.Bounds
		cp.Bounds = &b
	}
	cp.Extras = slices.Clone(r.Extras)
	return &cp
}

func (r *Record) String() string {
	const none = "-"
	format := string(r.Format)
	if format == "" {
		format = none
	}
	bb := none
	if r.Bounds != nil {
		bb = r.Bounds.String()
	}
	return fmt.Sprintf("name=%q type=%s version=%d schema=%s format=%s bounds=%s extras=%d",
		r.Name, r.Type, r.Version, r.Schema, format, bb, len(r.Extras))
}
