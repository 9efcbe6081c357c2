package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/natefinch/atomic"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/bounds"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/codec"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/store"
)

var stdout io.Writer = os.Stdout

// errInvalidStore marks a file that opened but does not conform to the
// requested schema revision.
var errInvalidStore = errors.New("not a valid MBTiles file")

// ValidateCmd checks a file against a schema revision.
type ValidateCmd struct {
	Path   string         `arg:"" help:"MBTiles file" type:"existingfile"`
	Schema schema.Version `default:"1.1" help:"Schema revision (1.0 or 1.1)."`
}

func (c *ValidateCmd) Run(g *Globals) error {
	s, err := store.OpenValidated(context.Background(), c.Path, c.Schema, store.WithLogger(g.logger("validate", "warn")))
	if err != nil {
		if schema.IsValidation(err) {
			return fmt.Errorf("%s: %w %s: %w", c.Path, errInvalidStore, c.Schema, err)
		}
		return fmt.Errorf("open %s: %w", c.Path, err)
	}
	defer s.Close()
	fmt.Fprintf(stdout, "%s: valid MBTiles %s (%s)\n", c.Path, c.Schema, s.Metadata())
	return nil
}

// InfoCmd prints metadata rows and tile statistics.
type InfoCmd struct {
	Path   string         `arg:"" help:"MBTiles file" type:"existingfile"`
	Schema schema.Version `default:"1.1" help:"Schema revision (1.0 or 1.1)."`
}

func (c *InfoCmd) Run(g *Globals) error {
	ctx := context.Background()
	s, err := store.OpenValidated(ctx, c.Path, c.Schema, store.WithLogger(g.logger("info", "warn")))
	if err != nil {
		return err
	}
	defer s.Close()

	count, err := s.TileCount(ctx)
	if err != nil {
		return err
	}
	minZ, err := s.MinZoom(ctx)
	if err != nil {
		return err
	}
	maxZ, err := s.MaxZoom(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "schema\t%s\n", s.Version())
	for _, p := range s.Metadata().Rows() {
		fmt.Fprintf(tw, "%s\t%s\n", p.Key, p.Value)
	}
	fmt.Fprintf(tw, "tiles\t%d\n", count)
	fmt.Fprintf(tw, "zoom\t%d..%d\n", minZ, maxZ)
	return tw.Flush()
}

// CreateCmd makes a new file from flags.
type CreateCmd struct {
	Path        string            `arg:"" help:"File to create" type:"path"`
	Name        string            `required:"" help:"Tileset name."`
	Description string            `help:"Tileset description."`
	Type        string            `default:"baselayer" enum:"baselayer,overlay" help:"Layer type."`
	Version     int               `name:"tileset-version" default:"1" help:"Tileset version number."`
	Format      string            `default:"png" enum:"png,jpg,none" help:"Tile format (1.1 only)."`
	Bounds      string            `help:"left,bottom,right,top in degrees (1.1 only)."`
	Schema      schema.Version    `default:"1.1" help:"Schema revision (1.0 or 1.1)."`
	Extra       map[string]string `help:"Extra metadata rows, key=value."`
}

func (c *CreateCmd) record() (*metadata.Record, error) {
	typ, ok := metadata.ParseLayerType(c.Type)
	if !ok {
		return nil, fmt.Errorf("unknown layer type %q", c.Type)
	}
	if c.Version < 0 {
		return nil, fmt.Errorf("tileset version %d is negative", c.Version)
	}
	rec := &metadata.Record{
		Schema:      c.Schema,
		Name:        c.Name,
		Description: c.Description,
		Type:        typ,
		Version:     c.Version,
	}
	if c.Schema == schema.V1_1 {
		if c.Format != "none" {
			f, ok := metadata.ParseFormat(c.Format)
			if !ok {
				return nil, fmt.Errorf("unknown format %q", c.Format)
			}
			rec.Format = f
		}
		if c.Bounds != "" {
			b, err := bounds.Parse(c.Bounds)
			if err != nil {
				return nil, err
			}
			if !b.InCanonicalRange() {
				return nil, fmt.Errorf("bounds %s outside -180..180, -85..85", b)
			}
			rec.Bounds = &b
		}
	}

	keys := make([]string, 0, len(c.Extra))
	for k := range c.Extra {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if err := rec.SetExtra(k, c.Extra[k]); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

func (c *CreateCmd) Run(g *Globals) error {
	rec, err := c.record()
	if err != nil {
		return err
	}
	s, err := store.Create(context.Background(), c.Path, rec, store.WithLogger(g.logger("create", "warn")))
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "created %s (%s)\n", c.Path, rec)
	return s.Close()
}

// TileArgs are the positional arguments addressing one tile.
type TileArgs struct {
	Path string `arg:"" help:"MBTiles file" type:"existingfile"`
	Z    int    `arg:"" help:"Zoom level."`
	X    int    `arg:"" help:"Tile column."`
	Y    int    `arg:"" help:"Tile row."`
}

// GetCmd reads one tile to a file or stdout.
type GetCmd struct {
	TileArgs
	Schema schema.Version `default:"1.1" help:"Schema revision (1.0 or 1.1)."`
	Out    string         `short:"o" type:"path" help:"Write the tile here instead of stdout."`
}

var errTileNotFound = errors.New("tile not found")

func (c *GetCmd) Run(g *Globals) error {
	ctx := context.Background()
	s, err := store.OpenValidated(ctx, c.Path, c.Schema, store.WithLogger(g.logger("get", "warn")))
	if err != nil {
		return err
	}
	defer s.Close()

	data, found, err := s.GetTile(ctx, c.X, c.Y, c.Z)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: z=%d x=%d y=%d", errTileNotFound, c.Z, c.X, c.Y)
	}
	if c.Out == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := atomic.WriteFile(c.Out, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", c.Out, err)
	}
	return nil
}

// PutCmd writes one tile from an image file.
type PutCmd struct {
	TileArgs
	File   string         `arg:"" help:"PNG or JPEG image" type:"existingfile"`
	Schema schema.Version `default:"1.1" help:"Schema revision (1.0 or 1.1)."`
	Raw    bool           `help:"Store the file bytes as they are instead of re-encoding."`
}

func (c *PutCmd) Run(g *Globals) error {
	ctx := context.Background()
	data, err := os.ReadFile(c.File)
	if err != nil {
		return fmt.Errorf("read %s: %w", c.File, err)
	}

	s, err := store.OpenValidated(ctx, c.Path, c.Schema, store.WithLogger(g.logger("put", "warn")))
	if err != nil {
		return err
	}
	defer s.Close()

	if c.Raw {
		if f := codec.Sniff(data); f == metadata.FormatNone {
			return fmt.Errorf("%s: %w", c.File, codec.ErrUnsupportedFormat)
		}
		_, err := s.PutTileData(ctx, data, c.X, c.Y, c.Z)
		return err
	}

	img, _, err := codec.Image{}.Decode(data)
	if err != nil {
		return fmt.Errorf("%s: %w", c.File, err)
	}
	ok, err := s.SetTile(ctx, img, c.X, c.Y, c.Z)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s has no tile format to encode with", c.Path)
	}
	return nil
}

type VersionCmd struct{}

func (VersionCmd) Run() error {
	fmt.Fprintf(stdout, "mbtiles %s\n", Version)
	return nil
}
