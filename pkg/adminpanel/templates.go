package adminpanel

import (
	"bytes"
	"crypto/rand"
	"embed"
	"encoding/hex"
	"fmt"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// SnippetTemplate renders the nginx location block for the panel.
type SnippetTemplate struct {
	Project   string
	Alias     string
	Dir       string
	FPMSocket string
	Htpasswd  string // empty disables basic auth
	AllowList []string
}

// Render produces the snippet.
func (t SnippetTemplate) Render() (string, error) {
	return render("snippet.conf.tmpl", t)
}

// ConfigTemplate renders phpMyAdmin's config.inc.php.
type ConfigTemplate struct {
	BlowfishSecret string // 64 hex characters
	DBHost         string
	DBPort         int
	Dir            string
}

// Render produces config.inc.php.
func (t ConfigTemplate) Render() (string, error) {
	if len(t.BlowfishSecret) != 64 {
		return "", fmt.Errorf("blowfish secret must be 32 bytes hex encoded")
	}
	return render("config.inc.php.tmpl", t)
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// NewBlowfishSecret returns 32 random bytes, hex encoded.
func NewBlowfishSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
