package main

import (
	"bytes"
	"fmt"
	"io"

	"github.com/alecthomas/kong"
	"github.com/tailscale/hujson"
)

// JSONCLoader reads flag defaults from a JSON file that may carry comments
// and trailing commas. Keys are flag names; command flags nest under the
// command name, e.g. {"serve": {"addr": ":8080"}}.
func JSONCLoader(r io.Reader) (kong.Resolver, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONC: %w", err)
	}
	res, err := kong.JSON(bytes.NewReader(standardized))
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	return res, nil
}
