// Package envfile edits dotenv files without disturbing lines it does not own.
package envfile

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"

	"github.com/redentordev/laravel-vps/pkg/host"
)

// Name is the environment file inside a project.
const Name = ".env"

// UpsertKey sets key to value. The first line starting with "key=" is
// replaced in place and any later duplicates are dropped; otherwise
// "key=value" is appended. Every other line is kept byte for byte.
func UpsertKey(content, key, value string) string {
	line := key + "=" + FormatValue(value)
	prefix := key + "="

	lines := strings.Split(content, "\n")
	trailingNewline := strings.HasSuffix(content, "\n")
	if trailingNewline {
		lines = lines[:len(lines)-1]
	}

	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			if replaced {
				continue
			}
			out = append(out, line)
			replaced = true
			continue
		}
		out = append(out, l)
	}
	if !replaced {
		if len(out) == 1 && out[0] == "" && !trailingNewline {
			out = out[:0]
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n") + "\n"
}

// FormatValue double-quotes values that contain whitespace, '#' or quotes.
func FormatValue(v string) string {
	if !strings.ContainsAny(v, " \t\r\n#\"'") {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return `"` + r.Replace(v) + `"`
}

// Parse returns the key/value pairs in content.
func Parse(content string) (map[string]string, error) {
	return godotenv.Unmarshal(content)
}

// File is a dotenv file on a host.
type File struct {
	Path    string
	Content string
}

// Load reads dir/.env from h.
func Load(ctx context.Context, h host.Host, dir string) (*File, error) {
	p := path.Join(dir, Name)
	data, err := h.ReadFile(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return &File{Path: p, Content: string(data)}, nil
}

// Set upserts each pair in order.
func (f *File) Set(pairs ...Pair) {
	for _, p := range pairs {
		f.Content = UpsertKey(f.Content, p.Key, p.Value)
	}
}

// Get returns the parsed value of key.
func (f *File) Get(key string) (string, bool, error) {
	vars, err := Parse(f.Content)
	if err != nil {
		return "", false, err
	}
	v, ok := vars[key]
	return v, ok, nil
}

// Save writes the file back. The .env holds credentials, so it is not world readable.
func (f *File) Save(ctx context.Context, h host.Host) error {
	if err := h.WriteFile(ctx, f.Path, []byte(f.Content), os.FileMode(0o640)); err != nil {
		return fmt.Errorf("failed to write %s: %w", f.Path, err)
	}
	return nil
}

// Pair is one key and its unquoted value.
type Pair struct {
	Key   string
	Value string
}
