// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"html"
	"sync"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Markdown converter and sanitizer are built once; both are safe to share.
var (
	markdownOnce sync.Once
	markdownConv goldmark.Markdown
	htmlPolicy   *bluemonday.Policy
)

func markdown() (goldmark.Markdown, *bluemonday.Policy) {
	markdownOnce.Do(func() {
		markdownConv = goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		)
		htmlPolicy = bluemonday.UGCPolicy()
		htmlPolicy.AddTargetBlankToFullyQualifiedLinks(true)
	})
	return markdownConv, htmlPolicy
}

// RenderHTML converts a reply to sanitized HTML. Model output is untrusted:
// goldmark omits raw HTML in it and the UGC policy filters whatever is
// left.
func RenderHTML(text string) string {
	conv, policy := markdown()
	var buf bytes.Buffer
	if err := conv.Convert([]byte(text), &buf); err != nil {
		return "<p>" + html.EscapeString(text) + "</p>"
	}
	return policy.Sanitize(buf.String())
}
