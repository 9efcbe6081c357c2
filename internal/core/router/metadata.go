package router

import (
	"encoding/json"
	"net/http"

	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
)

type metadataResponse struct {
	Schema      string          `json:"schema"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Type        string          `json:"type"`
	Version     int             `json:"version"`
	Format      string          `json:"format,omitempty"`
	Bounds      string          `json:"bounds,omitempty"`
	Extras      []metadata.Pair `json:"extras,omitempty"`
	MinZoom     int             `json:"minzoom"`
	MaxZoom     int             `json:"maxzoom"`
}

func (h *handlers) getMetadata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec := h.Store.Metadata()

	minZ, err := h.Store.MinZoom(ctx)
	if err != nil {
		h.Logger.ErrorContext(ctx, "min zoom failed", "err", err)
		http.Error(w, "metadata read failed", http.StatusInternalServerError)
		return
	}
	maxZ, err := h.Store.MaxZoom(ctx)
	if err != nil {
		h.Logger.ErrorContext(ctx, "max zoom failed", "err", err)
		http.Error(w, "metadata read failed", http.StatusInternalServerError)
		return
	}

	out := metadataResponse{
		Schema:      rec.Schema.String(),
		Name:        rec.Name,
		Description: rec.Description,
		Type:        string(rec.Type),
		Version:     rec.Version,
		Format:      string(rec.Format),
		Extras:      rec.Extras,
		MinZoom:     minZ,
		MaxZoom:     maxZ,
	}
	if rec.Bounds != nil {
		out.Bounds = rec.Bounds.String()
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}
