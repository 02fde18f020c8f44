package service

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"GoCDN/internal/repo"
	"GoCDN/internal/storage"
	"GoCDN/model"
	"GoCDN/utils"
)

// Streamer serves stored blobs over HTTP with validator caching and
// single-range partial responses.
type Streamer struct {
	files       repo.FileStore
	blobs       storage.Store
	bufSize     int
	cacheMaxAge time.Duration
}

// NewStreamer builds a Streamer. bufSize is the copy buffer in bytes.
func NewStreamer(files repo.FileStore, blobs storage.Store, bufSize int, cacheMaxAge time.Duration) *Streamer {
	if bufSize <= 0 {
		bufSize = 1 << 20
	}
	return &Streamer{
		files:       files,
		blobs:       blobs,
		bufSize:     bufSize,
		cacheMaxAge: cacheMaxAge,
	}
}

// ServeBlob answers a GET or HEAD for a logical name. The caller routes and
// authenticates; everything about the response body and headers lives here.
func (s *Streamer) ServeBlob(w http.ResponseWriter, r *http.Request, logicalName string) {
	ctx := r.Context()

	record, err := s.files.GetByLogicalName(ctx, logicalName)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		log.Printf("lookup %s failed: %v", logicalName, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	etag := `"` + record.ContentHash + `"`
	if matchesETag(r.Header.Get("If-None-Match"), etag) {
		s.writeCacheHeaders(w, record, etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	winReq, err := windowRequestFrom(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	window, err := ResolveWindow(winReq, record.Size)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			http.Error(w, verr.Msg, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", record.Size))
		http.Error(w, "requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}

	obj, _, err := s.blobs.Open(ctx, record.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("blob %s missing for %s", record.StorageKey, logicalName)
			http.Error(w, "file not found", http.StatusNotFound)
			return
		}
		log.Printf("open blob %s failed: %v", record.StorageKey, err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer obj.Close()

	if window.Start > 0 {
		if _, err := obj.Seek(window.Start, io.SeekStart); err != nil {
			log.Printf("seek blob %s failed: %v", record.StorageKey, err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}

	s.writeCacheHeaders(w, record, etag)
	plan := SanitizeContentType(record.MimeType, record.Extension)
	w.Header().Set("Content-Type", plan.ContentType)
	w.Header().Set("Content-Disposition", utils.ContentDisposition(plan.Disposition, record.LogicalName))
	w.Header().Set("Content-Length", strconv.FormatInt(window.Length, 10))

	status := http.StatusOK
	if window.Partial {
		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", window.Start, window.End(), record.Size))
	}
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	if err := s.files.IncrementDownloadCount(ctx, record.ID); err != nil {
		log.Printf("increment download count for %s failed: %v", logicalName, err)
	}

	buf := make([]byte, s.bufSize)
	_, err = io.CopyBuffer(w, io.LimitReader(obj, window.Length), buf)
	if err != nil {
		// headers are already out; a dropped peer is routine, not a failure
		log.Printf("stream %s aborted: %v", logicalName, err)
	}
}

func (s *Streamer) writeCacheHeaders(w http.ResponseWriter, record *model.FileRecord, etag string) {
	h := w.Header()
	h.Set("ETag", etag)
	h.Set("Accept-Ranges", "bytes")
	h.Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.cacheMaxAge.Seconds())))
	h.Set("Last-Modified", record.UpdatedAt.UTC().Format(http.TimeFormat))
	h.Set("X-Content-Type-Options", "nosniff")
}

func matchesETag(ifNoneMatch, etag string) bool {
	if ifNoneMatch == "" {
		return false
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || candidate == etag || strings.TrimPrefix(candidate, "W/") == etag {
			return true
		}
	}
	return false
}

// windowRequestFrom gathers the Range header and the part/offset query
// parameters. A query value that fails to parse is a request error, not a
// range error.
func windowRequestFrom(r *http.Request) (WindowRequest, error) {
	req := WindowRequest{RangeHeader: r.Header.Get("Range")}
	q := r.URL.Query()

	parse := func(name string) (int64, bool, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, false, nil
		}
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return 0, false, Validationf("invalid %s parameter %q", name, raw)
		}
		return v, true, nil
	}

	var err error
	if req.Part, req.HasPart, err = parse("part"); err != nil {
		return req, err
	}
	if req.PartSize, _, err = parse("part_size"); err != nil {
		return req, err
	}
	if req.HasPart && req.PartSize == 0 {
		return req, Validationf("part requires part_size")
	}
	if req.Offset, req.HasOffset, err = parse("offset"); err != nil {
		return req, err
	}
	if req.Length, req.HasLength, err = parse("length"); err != nil {
		return req, err
	}
	return req, nil
}
