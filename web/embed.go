package web

import "embed"

// TemplatesFS holds templates/layout.html, templates/partials and
// templates/pages.
//
//go:embed templates
var TemplatesFS embed.FS

// StaticFS embeds static assets (css/js/images).
//
//go:embed static
var StaticFS embed.FS
