/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const frontmatterSeparator = "---"

var errMissingSeparator = errors.New("invalid frontmatter: missing closing separator")

// splitFrontmatter separates a leading YAML block delimited by "---" lines
// from the rest of the document. Content without a leading separator has no
// metadata.
func splitFrontmatter(content string) (map[string]any, string, error) {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimPrefix(content, "\ufeff")

	if !strings.HasPrefix(content, frontmatterSeparator+"\n") {
		return map[string]any{}, content, nil
	}
	rest := strings.TrimPrefix(content, frontmatterSeparator+"\n")

	var raw, body string
	switch {
	case strings.HasPrefix(rest, frontmatterSeparator+"\n"), rest == frontmatterSeparator:
		body = strings.TrimPrefix(strings.TrimPrefix(rest, frontmatterSeparator), "\n")
	default:
		idx := strings.Index(rest, "\n"+frontmatterSeparator+"\n")
		switch {
		case idx >= 0:
			raw = rest[:idx]
			body = rest[idx+len("\n"+frontmatterSeparator+"\n"):]
		case strings.HasSuffix(rest, "\n"+frontmatterSeparator):
			raw = strings.TrimSuffix(rest, "\n"+frontmatterSeparator)
		default:
			return nil, "", errMissingSeparator
		}
	}

	decoded := map[string]any{}
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, "", fmt.Errorf("unmarshal frontmatter: %w", err)
	}
	if decoded == nil {
		decoded = map[string]any{}
	}

	return decoded, body, nil
}
