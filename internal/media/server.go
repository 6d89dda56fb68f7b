// Package media serves stored files over HTTP with single byte-range support,
// the negotiation browser video players use to seek.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/reelhouse/backend/internal/api"
	"github.com/reelhouse/backend/internal/logging"
	"github.com/reelhouse/backend/internal/storage"
)

// VideoContentType is sent for every video regardless of its extension.
const VideoContentType = "video/mp4"

const copyBufferSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, copyBufferSize)
		return &buf
	},
}

// Observer receives stream lifecycle events, typically for metrics.
type Observer interface {
	StreamStarted()
	StreamFinished(bytes int64, err error)
}

// Server streams files from a Store.
type Server struct {
	Store storage.Store
	// ContentType is sent for every file; when empty it is derived from the extension.
	ContentType string
	// NotFoundMessage is the plain-text body of 404 responses.
	NotFoundMessage string
	// ChunkTimeout bounds each write to the client; zero leaves the server's
	// write timeout in charge.
	ChunkTimeout time.Duration
	Observer     Observer
}

// ServeFile answers GET and HEAD requests for name, honouring a single Range.
func (s *Server) ServeFile(w http.ResponseWriter, r *http.Request, name string) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := storage.ValidateName(name); err != nil {
		logger.Warn("rejected media name", "name", name)
		api.Fail(ctx, w, api.KindBadRequest, "invalid file name")
		return
	}

	info, err := s.Store.Stat(ctx, name)
	if err != nil {
		s.failLookup(ctx, w, name, err)
		return
	}
	size := info.Size

	header := w.Header()
	header.Set("Accept-Ranges", "bytes")

	rng, partial, err := ParseRange(r.Header.Get("Range"), size)
	if err != nil {
		logger.Warn("unsatisfiable range", "name", name, "range", r.Header.Get("Range"), "size", size)
		header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, http.StatusText(http.StatusRequestedRangeNotSatisfiable), http.StatusRequestedRangeNotSatisfiable)
		return
	}

	status := http.StatusOK
	offset, length := int64(0), size
	if partial {
		status = http.StatusPartialContent
		offset, length = rng.Start, rng.Length()
	}

	if r.Method == http.MethodHead || length == 0 {
		s.writeHeaders(w, name, info, rng, partial, length)
		w.WriteHeader(status)
		return
	}

	body, err := s.Store.Open(ctx, name, offset, length)
	if err != nil {
		s.failLookup(ctx, w, name, err)
		return
	}
	defer body.Close()

	s.writeHeaders(w, name, info, rng, partial, length)
	w.WriteHeader(status)

	ctx, span := logging.StartSpan(ctx, "stream", "name", name, "offset", offset, "length", length)
	if s.Observer != nil {
		s.Observer.StreamStarted()
	}

	written, err := s.copy(ctx, w, body, length)

	span.Annotate("bytes", written)
	span.End(err)
	if s.Observer != nil {
		s.Observer.StreamFinished(written, err)
	}
}

func (s *Server) writeHeaders(w http.ResponseWriter, name string, info storage.Info, rng ByteRange, partial bool, length int64) {
	header := w.Header()
	if partial {
		header.Set("Content-Range", rng.ContentRange(info.Size))
	}
	header.Set("Content-Type", s.contentType(name))
	header.Set("Content-Length", strconv.FormatInt(length, 10))
	if !info.ModTime.IsZero() {
		header.Set("Last-Modified", info.ModTime.UTC().Format(http.TimeFormat))
	}
}

func (s *Server) failLookup(ctx context.Context, w http.ResponseWriter, name string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		message := s.NotFoundMessage
		if message == "" {
			message = "file not found"
		}
		http.Error(w, message, http.StatusNotFound)
		return
	}
	logging.FromContext(ctx).Error("media lookup failed", "name", name, "error", err)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// copy moves exactly length bytes from src to w in fixed-size chunks, so the
// client's read rate bounds how fast storage is read.
func (s *Server) copy(ctx context.Context, w http.ResponseWriter, src io.Reader, length int64) (int64, error) {
	controller := http.NewResponseController(w)

	bufp := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufp)
	buf := *bufp

	var written int64
	for written < length {
		if err := ctx.Err(); err != nil {
			return written, err
		}

		chunk := buf
		if remaining := length - written; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}

		n, readErr := src.Read(chunk)
		if n > 0 {
			if s.ChunkTimeout > 0 {
				_ = controller.SetWriteDeadline(time.Now().Add(s.ChunkTimeout))
			}
			m, writeErr := w.Write(chunk[:n])
			written += int64(m)
			if writeErr != nil {
				return written, writeErr
			}
			if m < n {
				return written, io.ErrShortWrite
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return written, readErr
		}
	}

	if written < length {
		return written, io.ErrUnexpectedEOF
	}
	return written, nil
}

func (s *Server) contentType(name string) string {
	if s.ContentType != "" {
		return s.ContentType
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
