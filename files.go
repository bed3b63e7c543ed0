/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var ErrInvalidPath = errors.New("invalid media path")

var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".webm": "video/webm",
	".ogv":  "video/ogg",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".ogg":  "audio/ogg",
	".wav":  "audio/wav",
}

func videoContentType(name string) string {
	if t, ok := videoTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return t
	}
	return "video/mp4"
}

// safeJoin resolves a request path below the media root. Any ".." segment
// is rejected outright rather than cleaned away.
func safeJoin(requested string) (string, error) {
	requested = strings.ReplaceAll(requested, "\\", "/")

	for _, segment := range strings.Split(requested, "/") {
		if segment == ".." {
			return "", fmt.Errorf("%q: %w", requested, ErrInvalidPath)
		}
	}

	cleaned := strings.TrimPrefix(path.Clean("/"+requested), "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("%q: %w", requested, ErrInvalidPath)
	}

	return cleaned, nil
}
