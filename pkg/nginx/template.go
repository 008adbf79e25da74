package nginx

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

//go:embed templates/laravel.conf.tmpl
var siteTemplate string

var siteTmpl = template.Must(template.New("laravel.conf").Parse(siteTemplate))

// SiteTemplate is everything the Laravel vhost needs.
type SiteTemplate struct {
	ServerName  string
	Root        string // the project's public directory
	FPMSocket   string
	SnippetsDir string // per-site snippets, included with *.conf
	MaxBodySize string
}

// Render produces the vhost file.
func (t SiteTemplate) Render() (string, error) {
	if t.ServerName == "" || t.Root == "" || t.FPMSocket == "" {
		return "", fmt.Errorf("server name, root and FPM socket are required")
	}
	if t.MaxBodySize == "" {
		t.MaxBodySize = "64M"
	}
	var buf bytes.Buffer
	if err := siteTmpl.Execute(&buf, t); err != nil {
		return "", fmt.Errorf("render nginx vhost template: %w", err)
	}
	return buf.String(), nil
}
