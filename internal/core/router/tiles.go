package router

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/zeebo/blake3"

	"github.com/mohammed-shakir/mbtiles-store/internal/hitevents"
	"github.com/mohammed-shakir/mbtiles-store/internal/invalidation"
	"github.com/mohammed-shakir/mbtiles-store/internal/logger"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/codec"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/metadata"
	"github.com/mohammed-shakir/mbtiles-store/internal/mbtiles/store"
)

type tileAddr struct{ x, y, z int }

func (a tileAddr) String() string { return fmt.Sprintf("%d/%d/%d", a.z, a.x, a.y) }

// parseTileAddr reads z, x and y from the route. y may carry a file
// extension (".png", ".jpg") which is ignored.
func parseTileAddr(r *http.Request) (tileAddr, error) {
	z, err := strconv.Atoi(chi.URLParam(r, "z"))
	if err != nil {
		return tileAddr{}, fmt.Errorf("z: %w", err)
	}
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		return tileAddr{}, fmt.Errorf("x: %w", err)
	}
	ys := chi.URLParam(r, "y")
	if i := strings.IndexByte(ys, '.'); i >= 0 {
		ys = ys[:i]
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return tileAddr{}, fmt.Errorf("y: %w", err)
	}
	if z < 0 || z > store.MaxZoom {
		return tileAddr{}, fmt.Errorf("z must be in [0,%d]", store.MaxZoom)
	}
	n := 1 << z
	if x < 0 || x >= n || y < 0 || y >= n {
		return tileAddr{}, fmt.Errorf("x and y must be in [0,%d) at z=%d", n, z)
	}
	return tileAddr{x: x, y: y, z: z}, nil
}

func etag(b []byte) string {
	sum := blake3.Sum256(b)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func etagMatches(header, tag string) bool {
	if header == "" {
		return false
	}
	for c := range strings.SplitSeq(header, ",") {
		c = strings.TrimSpace(c)
		if c == "*" || strings.TrimPrefix(c, "W/") == tag {
			return true
		}
	}
	return false
}

func (h *handlers) getTile(w http.ResponseWriter, r *http.Request) {
	a, err := parseTileAddr(r)
	if err != nil {
		http.Error(w, "invalid tile address: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx := logger.WithTile(r.Context(), a.String())

	data, found, err := h.Reader.GetTile(ctx, a.x, a.y, a.z)
	if err != nil {
		h.Logger.ErrorContext(ctx, "tile read failed", "err", err)
		http.Error(w, "tile read failed", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "tile not found", http.StatusNotFound)
		return
	}
	if h.Hits != nil {
		h.Hits.Publish(hitevents.Event{Store: h.StoreName, Z: a.z, X: a.x, Y: a.y, Bytes: len(data)})
	}

	tag := etag(data)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "public, max-age=60")
	if etagMatches(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	f := codec.Sniff(data)
	if f == metadata.FormatNone {
		f = h.Store.TileFormat()
	}
	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *handlers) putTile(w http.ResponseWriter, r *http.Request) {
	a, err := parseTileAddr(r)
	if err != nil {
		http.Error(w, "invalid tile address: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx := logger.WithTile(r.Context(), a.String())

	body := http.MaxBytesReader(w, r.Body, h.MaxBodyBytes)
	buf, err := io.ReadAll(body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			http.Error(w, "tile body too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	img, _, err := h.Codec.Decode(buf)
	if err != nil {
		http.Error(w, "body is not a png or jpeg image", http.StatusUnsupportedMediaType)
		return
	}

	ok, err := h.Store.SetTile(ctx, img, a.x, a.y, a.z)
	if err != nil {
		var ite *store.InvalidTileError
		if errors.As(err, &ite) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Logger.ErrorContext(ctx, "tile write failed", "err", err)
		http.Error(w, "tile write failed", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "store has no tile format to encode with", http.StatusUnprocessableEntity)
		return
	}

	h.afterWrite(r, a, invalidation.OpPut)
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) deleteTile(w http.ResponseWriter, r *http.Request) {
	a, err := parseTileAddr(r)
	if err != nil {
		http.Error(w, "invalid tile address: "+err.Error(), http.StatusBadRequest)
		return
	}
	ctx := logger.WithTile(r.Context(), a.String())

	existed, err := h.Store.DeleteTile(ctx, a.x, a.y, a.z)
	if err != nil {
		h.Logger.ErrorContext(ctx, "tile delete failed", "err", err)
		http.Error(w, "tile delete failed", http.StatusInternalServerError)
		return
	}
	if !existed {
		http.Error(w, "tile not found", http.StatusNotFound)
		return
	}
	h.afterWrite(r, a, invalidation.OpDelete)
	w.WriteHeader(http.StatusNoContent)
}

// afterWrite evicts the local copy and tells other replicas. Neither step
// fails the request: the row is already committed.
func (h *handlers) afterWrite(r *http.Request, a tileAddr, op invalidation.Op) {
	ctx := logger.WithTile(r.Context(), a.String())
	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, a.x, a.y, a.z); err != nil {
			h.Logger.WarnContext(ctx, "local cache invalidate failed", "err", err)
		}
	}
	if h.Events != nil {
		ev := invalidation.NewTileEvent(op, h.StoreName, a.x, a.y, a.z)
		if err := h.Events.Publish(ctx, ev); err != nil {
			h.Logger.WarnContext(ctx, "tile event publish failed", "op", string(op), "err", err)
		}
	}
}
