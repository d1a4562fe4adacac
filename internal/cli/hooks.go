package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// logRenderHooks writes render events to the debug log.
type logRenderHooks struct {
	logger *log.Logger
}

func (h *logRenderHooks) OnRenderStart(ctx context.Context, id, format string) {
	h.logger.Debug("render started", "id", id, "format", format)
}

func (h *logRenderHooks) OnRenderComplete(ctx context.Context, id, format string, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("render failed", "id", id, "format", format, "duration", d.Round(time.Millisecond))
		return
	}
	h.logger.Debug("render finished", "id", id, "format", format, "duration", d.Round(time.Millisecond))
}

func (h *logRenderHooks) OnIncludeTruncated(ctx context.Context, origin string, depth int) {
	h.logger.Debug("include truncated", "origin", origin, "depth", depth)
}

// logCacheHooks writes cache events to the debug log.
type logCacheHooks struct {
	logger *log.Logger
}

func (h *logCacheHooks) OnCacheHit(ctx context.Context, format string) {
	h.logger.Debug("cache hit", "format", format)
}

func (h *logCacheHooks) OnCacheMiss(ctx context.Context, format string) {
	h.logger.Debug("cache miss", "format", format)
}

func (h *logCacheHooks) OnCacheSet(ctx context.Context, format string, size int64) {
	h.logger.Debug("artifact stored", "format", format, "size", humanize.Bytes(uint64(size)))
}

// logHTTPHooks writes one line per served request.
type logHTTPHooks struct {
	logger *log.Logger
}

func (h *logHTTPHooks) OnRequest(ctx context.Context, method, path string) {}

func (h *logHTTPHooks) OnResponse(ctx context.Context, method, path string, status int, d time.Duration) {
	h.logger.Info("request", "method", method, "path", path, "status", status, "duration", d.Round(time.Microsecond))
}
