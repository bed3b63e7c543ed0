/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/julienschmidt/httprouter"
	"github.com/spf13/afero"
)

var (
	ErrUnsatisfiableRange   = errors.New("range not satisfiable")
	errUnsupportedRangeForm = errors.New("unsupported range form")
)

var rangePattern = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// byteRange is an inclusive span of a file.
type byteRange struct {
	start, end int64
}

func (br byteRange) length() int64 {
	return br.end - br.start + 1
}

// parseRange accepts "bytes=a-" and "bytes=a-b" only. Suffix and
// multi-range forms are rejected.
func parseRange(header string, size int64) (byteRange, error) {
	m := rangePattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return byteRange{}, fmt.Errorf("%q: %w", header, errUnsupportedRangeForm)
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return byteRange{}, fmt.Errorf("%q: %w", header, errUnsupportedRangeForm)
	}

	end := size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return byteRange{}, fmt.Errorf("%q: %w", header, errUnsupportedRangeForm)
		}
	}

	if start >= size || end >= size || end < start {
		return byteRange{}, fmt.Errorf("%q of %d bytes: %w", header, size, ErrUnsatisfiableRange)
	}

	return byteRange{start: start, end: end}, nil
}

func videoHeaders(cfg *Config, w http.ResponseWriter, name string) {
	w.Header().Set("Content-Type", videoContentType(name))
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	securityHeaders(cfg, w)
}

// serveVideo streams files from fsys with single-range support.
func serveVideo(cfg *Config, fsys afero.Fs, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		name, err := safeJoin(p.ByName("filepath"))
		if err != nil {
			http.NotFound(w, r)
			return
		}

		info, err := fsys.Stat(name)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		size := info.Size()

		videoHeaders(cfg, w, name)

		header := r.Header.Get("Range")
		if header == "" {
			w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
			w.WriteHeader(http.StatusOK)

			if r.Method == http.MethodHead {
				return
			}

			written, err := copyFile(fsys, name, w, byteRange{start: 0, end: size - 1}, size)
			if err != nil {
				errs <- err
				return
			}

			logf(cfg, "VIDEO: Served %s (%s) to %s in %s",
				name,
				humanize.Bytes(uint64(written)),
				realIP(r),
				time.Since(startTime).Round(time.Microsecond),
			)

			return
		}

		br, err := parseRange(header, size)
		if err != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)

			logf(cfg, "VIDEO: Rejected range for %s from %s: %v", name, realIP(r), err)

			return
		}

		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, size))
		w.Header().Set("Content-Length", strconv.FormatInt(br.length(), 10))
		w.WriteHeader(http.StatusPartialContent)

		if r.Method == http.MethodHead {
			return
		}

		written, err := copyFile(fsys, name, w, br, size)
		if err != nil {
			errs <- err
			return
		}

		logf(cfg, "VIDEO: Served %s bytes %d-%d (%s) to %s in %s",
			name,
			br.start,
			br.end,
			humanize.Bytes(uint64(written)),
			realIP(r),
			time.Since(startTime).Round(time.Microsecond),
		)
	}
}

func copyFile(fsys afero.Fs, name string, w io.Writer, br byteRange, size int64) (int64, error) {
	if size == 0 {
		return 0, nil
	}

	f, err := fsys.Open(name)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	if _, err := f.Seek(br.start, io.SeekStart); err != nil {
		return 0, fmt.Errorf("seek %s: %w", name, err)
	}

	written, err := io.CopyN(w, f, br.length())
	if err != nil {
		return written, fmt.Errorf("stream %s: %w", name, err)
	}

	return written, nil
}

func registerVideo(cfg *Config, mux *httprouter.Router, fsys afero.Fs, errs chan<- error) {
	mux.GET(cfg.prefix+"/video/*filepath", serveVideo(cfg, fsys, errs))
	mux.HEAD(cfg.prefix+"/video/*filepath", serveVideo(cfg, fsys, errs))
}
