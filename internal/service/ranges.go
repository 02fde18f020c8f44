package service

import (
	"errors"
	"strconv"
	"strings"
)

// ErrUnsatisfiableRange signals a window that cannot be served from the blob.
// The response is 416 with the blob's full size in Content-Range.
var ErrUnsatisfiableRange = errors.New("requested range not satisfiable")

// Window is a resolved byte window [Start, Start+Length) within a blob.
// Partial is false only for the trivial whole-blob window on a non-range
// request.
type Window struct {
	Start   int64
	Length  int64
	Partial bool
}

func (w Window) End() int64 {
	return w.Start + w.Length - 1
}

// WindowRequest carries every way a caller can ask for a sub-range. Sources
// are considered in order: the Range header wins, then part/part size, then
// offset/length, then the whole blob.
type WindowRequest struct {
	RangeHeader string

	HasPart  bool
	Part     int64
	PartSize int64

	HasOffset bool
	Offset    int64
	HasLength bool
	Length    int64
}

// ResolveWindow turns a window request into concrete byte bounds for a blob
// of the given size.
func ResolveWindow(req WindowRequest, size int64) (Window, error) {
	switch {
	case req.RangeHeader != "":
		return parseRangeHeader(req.RangeHeader, size)
	case req.HasPart:
		return partWindow(req.Part, req.PartSize, size)
	case req.HasOffset || req.HasLength:
		return offsetWindow(req, size)
	default:
		return Window{Start: 0, Length: size}, nil
	}
}

// parseRangeHeader handles a single bytes= range spec. Multiple ranges are
// refused rather than answered with a multipart body.
func parseRangeHeader(header string, size int64) (Window, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return Window{}, ErrUnsatisfiableRange
	}
	if strings.Contains(spec, ",") {
		return Window{}, ErrUnsatisfiableRange
	}
	startStr, endStr, ok := strings.Cut(strings.TrimSpace(spec), "-")
	if !ok {
		return Window{}, ErrUnsatisfiableRange
	}
	startStr = strings.TrimSpace(startStr)
	endStr = strings.TrimSpace(endStr)

	if startStr == "" {
		// suffix form: last N bytes
		suffix, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffix <= 0 {
			return Window{}, ErrUnsatisfiableRange
		}
		if size == 0 {
			return Window{}, ErrUnsatisfiableRange
		}
		if suffix > size {
			suffix = size
		}
		return Window{Start: size - suffix, Length: suffix, Partial: true}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return Window{}, ErrUnsatisfiableRange
	}
	if start >= size {
		return Window{}, ErrUnsatisfiableRange
	}

	end := size - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return Window{}, ErrUnsatisfiableRange
		}
		if end > size-1 {
			end = size - 1
		}
	}
	return Window{Start: start, Length: end - start + 1, Partial: true}, nil
}

// partWindow serves fixed-size part number part of a blob split into
// ceil(size/partSize) parts. The last part may be short.
func partWindow(part, partSize, size int64) (Window, error) {
	if partSize <= 0 {
		return Window{}, Validationf("part size must be positive")
	}
	if part < 0 {
		return Window{}, Validationf("part must not be negative")
	}
	// bounds-check before multiplying so a huge part index cannot wrap
	// around int64 and land back inside the blob
	if size == 0 || part > (size-1)/partSize {
		return Window{}, ErrUnsatisfiableRange
	}
	start := part * partSize
	length := size - start
	if length > partSize {
		length = partSize
	}
	return Window{Start: start, Length: length, Partial: true}, nil
}

func offsetWindow(req WindowRequest, size int64) (Window, error) {
	start := int64(0)
	if req.HasOffset {
		if req.Offset < 0 {
			return Window{}, Validationf("offset must not be negative")
		}
		start = req.Offset
	}
	if req.HasLength && req.Length <= 0 {
		return Window{}, Validationf("length must be positive")
	}
	if start > 0 && start >= size {
		return Window{}, ErrUnsatisfiableRange
	}
	if size == 0 {
		// an empty blob has only the whole-blob window; Partial stays false
		// so no Content-Range header is emitted for it
		return Window{}, nil
	}
	length := size - start
	if req.HasLength && req.Length < length {
		length = req.Length
	}
	return Window{Start: start, Length: length, Partial: true}, nil
}
