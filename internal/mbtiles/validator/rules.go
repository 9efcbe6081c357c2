package validator

import (
	"errors"
	"strconv"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/bounds"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

// rule describes one metadata key: whether it must be present and how its
// value is parsed into the record.
type rule struct {
	key      string
	required bool
	apply    func(val string, rec *metadata.Record) error
}

// reject carries the human reason for a failed rule plus an optional cause.
type reject struct {
	reason string
	cause  error
}

func (r *reject) Error() string { return r.reason }

func rejectf(reason string, cause error) error {
	return &reject{reason: reason, cause: cause}
}

var rules10 = []rule{
	{key: schema.KeyName, required: true, apply: func(v string, rec *metadata.Record) error {
		rec.Name = v
		return nil
	}},
	{key: schema.KeyDescription, required: true, apply: func(v string, rec *metadata.Record) error {
		rec.Description = v
		return nil
	}},
	{key: schema.KeyType, required: true, apply: applyType},
	{key: schema.KeyVersion, required: true, apply: applyVersion},
}

var rules11 = append(append([]rule(nil), rules10...),
	rule{key: schema.KeyFormat, required: true, apply: applyFormat},
	rule{key: schema.KeyBounds, required: false, apply: applyBounds},
)

func rulesFor(v schema.Version) ([]rule, bool) {
	switch v {
	case schema.V1_0:
		return rules10, true
	case schema.V1_1:
		return rules11, true
	}
	return nil, false
}

func applyType(v string, rec *metadata.Record) error {
	t, ok := metadata.ParseLayerType(v)
	if !ok {
		return rejectf("must be one of [baselayer, overlay]", nil)
	}
	rec.Type = t
	return nil
}

// version is a plain integer in both revisions; "1.0" is rejected.
func applyVersion(v string, rec *metadata.Record) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return rejectf("must be a plain integer", err)
	}
	if n < 0 {
		return rejectf("must not be negative", nil)
	}
	rec.Version = n
	return nil
}

func applyFormat(v string, rec *metadata.Record) error {
	f, ok := metadata.ParseFormat(v)
	if !ok {
		return rejectf("must be one of [png, jpg]", nil)
	}
	rec.Format = f
	return nil
}

func applyBounds(v string, rec *metadata.Record) error {
	b, err := bounds.Parse(v)
	if err != nil {
		var mbe *bounds.MalformedBoundsError
		if errors.As(err, &mbe) {
			return rejectf("must be left,bottom,right,top in degrees, e.g. -180,-85,180,85", err)
		}
		return err
	}
	if !b.InCanonicalRange() {
		return rejectf("out of range: need left in [-180,0], bottom in [-85,0], right in [0,180], top in [0,85]", nil)
	}
	rec.Bounds = &b
	return nil
}
