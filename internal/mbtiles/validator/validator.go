// Package validator checks that the metadata and tiles tables of a store
// conform to an MBTiles revision before the store is trusted.
package validator

import (
	"errors"
	"slices"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

type Metadata struct {
	version schema.Version
	rules   []rule
}

type Tiles struct {
	version schema.Version
}

// MetadataFor returns the metadata validator for v.
func MetadataFor(v schema.Version) (*Metadata, error) {
	rs, ok := rulesFor(v)
	if !ok {
		return nil, &schema.UnsupportedVersionError{Version: v.String()}
	}
	return &Metadata{version: v, rules: rs}, nil
}

// TilesFor returns the tiles validator for v. Both revisions share the 1.0
// column rule.
func TilesFor(v schema.Version) (*Tiles, error) {
	if !v.Valid() {
		return nil, &schema.UnsupportedVersionError{Version: v.String()}
	}
	return &Tiles{version: v}, nil
}

func (m *Metadata) Version() schema.Version { return m.version }

// Validate turns metadata rows into a record. Duplicate keys resolve to the
// last value. The first failing field aborts validation.
func (m *Metadata) Validate(rows []metadata.Pair) (*metadata.Record, error) {
	values := make(map[string]string, len(rows))
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, seen := values[r.Key]; !seen {
			order = append(order, r.Key)
		}
		values[r.Key] = r.Value
	}

	rec := &metadata.Record{Schema: m.version}
	for _, ru := range m.rules {
		v, ok := values[ru.key]
		if !ok {
			if ru.required {
				return nil, &schema.InvalidMetadataError{Field: ru.key, Reason: "required field is missing"}
			}
			continue
		}
		if err := ru.apply(v, rec); err != nil {
			return nil, fieldError(ru.key, err)
		}
	}

	for _, k := range order {
		if m.reserved(k) {
			continue
		}
		rec.Extras = append(rec.Extras, metadata.Pair{Key: k, Value: values[k]})
	}
	return rec, nil
}

func (m *Metadata) reserved(key string) bool {
	return slices.ContainsFunc(m.rules, func(r rule) bool { return r.key == key })
}

func fieldError(field string, err error) error {
	var rj *reject
	if errors.As(err, &rj) {
		return &schema.InvalidMetadataError{Field: field, Reason: rj.reason, Err: rj.cause}
	}
	return &schema.InvalidMetadataError{Field: field, Reason: "invalid value", Err: err}
}

func (t *Tiles) Version() schema.Version { return t.version }

// Validate checks the column names of the tiles table; order is irrelevant.
func (t *Tiles) Validate(columns []string) error {
	for _, want := range schema.TileColumns {
		if !slices.Contains(columns, want) {
			return &schema.InvalidTilesError{MissingColumn: want}
		}
	}
	return nil
}
