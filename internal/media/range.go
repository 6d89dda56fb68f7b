package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsatisfiable is returned for a Range header that cannot be served from a
// file of the given size.
var ErrUnsatisfiable = errors.New("range not satisfiable")

// ByteRange is an inclusive span of bytes within a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes covered by the range.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange formats the range for the Content-Range response header.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange interprets a single-range "bytes=" header against a file of size
// bytes. It returns ok=false when the header should be ignored and the whole
// file served: the header is empty, uses another unit or lists several ranges.
//
// Accepted forms are "bytes=start-end", "bytes=start-" and "bytes=-suffix".
// An end past the file is clamped to size-1. Anything else, including a start
// at or beyond size or an end before start, yields ErrUnsatisfiable.
func ParseRange(header string, size int64) (ByteRange, bool, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ByteRange{}, false, nil
	}

	const unit = "bytes="
	if len(header) < len(unit) || !strings.EqualFold(header[:len(unit)], unit) {
		return ByteRange{}, false, nil
	}
	ranges := strings.TrimSpace(header[len(unit):])
	if strings.Contains(ranges, ",") {
		return ByteRange{}, false, nil
	}

	startText, endText, found := strings.Cut(ranges, "-")
	if !found {
		return ByteRange{}, true, fmt.Errorf("%w: %q", ErrUnsatisfiable, header)
	}
	startText = strings.TrimSpace(startText)
	endText = strings.TrimSpace(endText)

	if startText == "" {
		suffix, err := parseOffset(endText)
		if err != nil || suffix == 0 || size == 0 {
			return ByteRange{}, true, fmt.Errorf("%w: %q", ErrUnsatisfiable, header)
		}
		if suffix > size {
			suffix = size
		}
		return ByteRange{Start: size - suffix, End: size - 1}, true, nil
	}

	start, err := parseOffset(startText)
	if err != nil || start >= size {
		return ByteRange{}, true, fmt.Errorf("%w: %q", ErrUnsatisfiable, header)
	}

	end := size - 1
	if endText != "" {
		end, err = parseOffset(endText)
		if err != nil || end < start {
			return ByteRange{}, true, fmt.Errorf("%w: %q", ErrUnsatisfiable, header)
		}
		if end >= size {
			end = size - 1
		}
	}

	return ByteRange{Start: start, End: end}, true, nil
}

func parseOffset(text string) (int64, error) {
	if text == "" || strings.ContainsAny(text, "+-") {
		return 0, fmt.Errorf("invalid offset %q", text)
	}
	return strconv.ParseInt(text, 10, 64)
}
