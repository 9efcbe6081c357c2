// Package schema holds the MBTiles format revisions, table layout and the
// error types reported when a store does not conform.
package schema

import (
	"fmt"
	"strings"
)

type Version int

const (
	V1_0 Version = iota + 1
	V1_1
)

// Supported lists every revision this module can validate, oldest first.
var Supported = []Version{V1_0, V1_1}

func (v Version) String() string {
	switch v {
	case V1_0:
		return "1.0"
	case V1_1:
		return "1.1"
	default:
		return fmt.Sprintf("Version(%d)", int(v))
	}
}

func (v Version) Valid() bool {
	return v == V1_0 || v == V1_1
}

func ParseVersion(s string) (Version, error) {
	switch strings.TrimSpace(s) {
	case "1.0":
		return V1_0, nil
	case "1.1":
		return V1_1, nil
	default:
		return 0, &UnsupportedVersionError{Version: s}
	}
}

// UnmarshalText lets flag and config loaders accept "1.0"/"1.1".
func (v *Version) UnmarshalText(b []byte) error {
	pv, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = pv
	return nil
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

const (
	MetadataTable   = "metadata"
	MetadataColName = "name"
	MetadataColVal  = "value"

	TilesTable    = "tiles"
	ColZoomLevel  = "zoom_level"
	ColTileColumn = "tile_column"
	ColTileRow    = "tile_row"
	ColTileData   = "tile_data"
)

// TileColumns are the columns every revision requires on the tiles table.
var TileColumns = []string{ColZoomLevel, ColTileColumn, ColTileRow, ColTileData}

// metadata keys
const (
	KeyName        = "name"
	KeyDescription = "description"
	KeyType        = "type"
	KeyVersion     = "version"
	KeyFormat      = "format"
	KeyBounds      = "bounds"
)

// DDL returns the statements that create the tables and unique indexes for v.
func DDL(v Version) ([]string, error) {
	switch v {
	case V1_0, V1_1:
		return []string{
			"CREATE TABLE " + MetadataTable + " (" + MetadataColName + " TEXT, " + MetadataColVal + " TEXT)",
			"CREATE UNIQUE INDEX " + MetadataTable + "_index ON " + MetadataTable + " (" + MetadataColName + ")",
			"CREATE TABLE " + TilesTable + " (" +
				ColZoomLevel + " INTEGER, " + ColTileColumn + " INTEGER, " +
				ColTileRow + " INTEGER, " + ColTileData + " BLOB)",
			"CREATE UNIQUE INDEX " + TilesTable + "_index ON " + TilesTable + " (" +
				ColZoomLevel + ", " + ColTileColumn + ", " + ColTileRow + ")",
		}, nil
	default:
		return nil, &UnsupportedVersionError{Version: v.String()}
	}
}
