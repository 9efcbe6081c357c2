package main

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/codec"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/schema"
)

func captureStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = prev })
	return &buf
}

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for i := range 4 {
		img.Set(i, i, color.RGBA{R: 200, A: 255})
	}
	b, err := codec.Image{}.Encode(img, metadata.PNG, codec.MaxQuality)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	p := filepath.Join(dir, "tile.png")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
	return p
}

func TestParser_JSONCConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.jsonc")
	body := `{
	// quieter by default
	"log_level": "error",
	"log_console": true,
}`
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var cli CLI
	p, err := newParser(&cli)
	if err != nil {
		t.Fatalf("newParser: %v", err)
	}
	ctx, err := p.Parse([]string{"--config", cfgPath, "version"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ctx.Command() != "version" {
		t.Fatalf("command=%q", ctx.Command())
	}
	if cli.LogLevel != "error" || !cli.LogConsole {
		t.Fatalf("config not applied: level=%q console=%v", cli.LogLevel, cli.LogConsole)
	}
}

func TestParser_CreateFlags(t *testing.T) {
	var cli CLI
	p, err := newParser(&cli)
	if err != nil {
		t.Fatalf("newParser: %v", err)
	}
	path := filepath.Join(t.TempDir(), "new.mbtiles")
	_, err = p.Parse([]string{"create", path, "--name", "world", "--schema", "1.0", "--extra", "attribution=osm"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cli.Create.Schema != schema.V1_0 || cli.Create.Extra["attribution"] != "osm" {
		t.Fatalf("flags: %+v", cli.Create)
	}
}

func TestCommands_CreatePutGet(t *testing.T) {
	out := captureStdout(t)
	g := &Globals{LogLevel: "error"}
	dir := t.TempDir()
	path := filepath.Join(dir, "world.mbtiles")

	create := &CreateCmd{
		Path:    path,
		Name:    "world",
		Type:    "baselayer",
		Version: 1,
		Format:  "png",
		Schema:  schema.V1_1,
		Extra:   map[string]string{"b": "2", "a": "1"},
	}
	if err := create.Run(g); err != nil {
		t.Fatalf("create: %v", err)
	}

	validate := &ValidateCmd{Path: path, Schema: schema.V1_1}
	if err := validate.Run(g); err != nil {
		t.Fatalf("validate: %v", err)
	}

	png := writePNG(t, dir)
	put := &PutCmd{TileArgs: TileArgs{Path: path, Z: 1, X: 0, Y: 0}, File: png, Schema: schema.V1_1}
	if err := put.Run(g); err != nil {
		t.Fatalf("put: %v", err)
	}

	dst := filepath.Join(dir, "out.png")
	get := &GetCmd{TileArgs: TileArgs{Path: path, Z: 1, X: 0, Y: 0}, Schema: schema.V1_1, Out: dst}
	if err := get.Run(g); err != nil {
		t.Fatalf("get: %v", err)
	}
	b, err := os.ReadFile(dst)
	if err != nil {
		t.Fatalf("read out: %v", err)
	}
	if codec.Sniff(b) != metadata.PNG {
		t.Fatalf("tile written to %s is not png", dst)
	}

	out.Reset()
	info := &InfoCmd{Path: path, Schema: schema.V1_1}
	if err := info.Run(g); err != nil {
		t.Fatalf("info: %v", err)
	}
	s := out.String()
	for _, want := range []string{"world", "tiles", "1..1"} {
		if !strings.Contains(s, want) {
			t.Fatalf("info output missing %q:\n%s", want, s)
		}
	}
	if strings.Index(s, "\na ") > strings.Index(s, "\nb ") {
		t.Fatalf("extras not in sorted order:\n%s", s)
	}
}

func TestCommands_GetMissing(t *testing.T) {
	captureStdout(t)
	g := &Globals{LogLevel: "error"}
	path := filepath.Join(t.TempDir(), "empty.mbtiles")
	if err := (&CreateCmd{Path: path, Name: "e", Type: "overlay", Version: 1, Format: "png", Schema: schema.V1_1}).Run(g); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := (&GetCmd{TileArgs: TileArgs{Path: path, Z: 0, X: 0, Y: 0}, Schema: schema.V1_1}).Run(g)
	if !errors.Is(err, errTileNotFound) {
		t.Fatalf("expected errTileNotFound, got %v", err)
	}
}

func TestCommands_PutRawRejectsGarbage(t *testing.T) {
	captureStdout(t)
	g := &Globals{LogLevel: "error"}
	dir := t.TempDir()
	path := filepath.Join(dir, "raw.mbtiles")
	if err := (&CreateCmd{Path: path, Name: "r", Type: "overlay", Version: 1, Format: "png", Schema: schema.V1_1}).Run(g); err != nil {
		t.Fatalf("create: %v", err)
	}
	junk := filepath.Join(dir, "junk.bin")
	if err := os.WriteFile(junk, []byte("GIF89a...."), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := (&PutCmd{TileArgs: TileArgs{Path: path, Z: 0, X: 0, Y: 0}, File: junk, Schema: schema.V1_1, Raw: true}).Run(g)
	if !errors.Is(err, codec.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestCommands_ValidateSeparatesInvalidFromUnreadable(t *testing.T) {
	captureStdout(t)
	g := &Globals{LogLevel: "error"}
	dir := t.TempDir()

	notTiles := filepath.Join(dir, "plain.mbtiles")
	if err := os.WriteFile(notTiles, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := (&ValidateCmd{Path: notTiles, Schema: schema.V1_1}).Run(g)
	if !errors.Is(err, errInvalidStore) {
		t.Fatalf("empty file: expected errInvalidStore, got %v", err)
	}
	var ime *schema.InvalidMetadataError
	if !errors.As(err, &ime) || ime.Field != "name" {
		t.Fatalf("empty file: expected missing name, got %v", err)
	}

	err = (&ValidateCmd{Path: filepath.Join(dir, "gone.mbtiles"), Schema: schema.V1_1}).Run(g)
	if err == nil || errors.Is(err, errInvalidStore) {
		t.Fatalf("missing file: expected an open error, got %v", err)
	}
}

func TestCommands_CreateRejectsNegativeVersion(t *testing.T) {
	captureStdout(t)
	g := &Globals{LogLevel: "error"}
	path := filepath.Join(t.TempDir(), "neg.mbtiles")
	err := (&CreateCmd{Path: path, Name: "n", Type: "overlay", Version: -1, Format: "png", Schema: schema.V1_1}).Run(g)
	if err == nil || !strings.Contains(err.Error(), "negative") {
		t.Fatalf("expected negative version error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("file created despite invalid version")
	}
}

func TestServe_SettingsDefaultStoreName(t *testing.T) {
	t.Setenv("MBTILES_PATH", "/data/world.mbtiles")
	t.Setenv("ADDR", ":9000")
	cfg, name, err := (&ServeCmd{Writes: true}).settings()
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if name != "world" || cfg.Addr != ":9000" || !cfg.WritesEnabled {
		t.Fatalf("name=%q addr=%q writes=%v", name, cfg.Addr, cfg.WritesEnabled)
	}

	t.Setenv("MBTILES_PATH", "")
	if _, _, err := (&ServeCmd{}).settings(); err == nil {
		t.Fatalf("expected error without a store path")
	}
}
