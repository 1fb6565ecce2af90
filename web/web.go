// Package web embeds the HTML templates served by the form variant.
package web

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

func Templates() (*template.Template, error) {
	return template.ParseFS(templateFS, "templates/*.html")
}
