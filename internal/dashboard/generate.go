// Package dashboard renders Grafana dashboards over the fleet status table
// that the GreptimeDB report writer fills.
package dashboard

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

//go:embed templates/*.json.tmpl
var templates embed.FS

// Params are the values the templates reference besides env lookups.
type Params struct {
	Table string
}

// Render writes every dashboard template to outDir. Templates read the
// Grafana datasource UIDs from the environment and fail when one is unset.
func Render(outDir string, p Params) error {
	funcMap := template.FuncMap{
		"env": func(key string) (string, error) {
			v := os.Getenv(key)
			if v == "" {
				return "", fmt.Errorf("environment variable %s not set", key)
			}
			return v, nil
		},
	}
	if p.Table == "" {
		p.Table = "fleet_status"
	}

	names, err := templates.ReadDir("templates")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	for _, n := range names {
		t, err := template.New(n.Name()).Funcs(funcMap).ParseFS(templates, "templates/"+n.Name())
		if err != nil {
			return err
		}
		outPath := filepath.Join(outDir, strings.TrimSuffix(n.Name(), ".tmpl"))
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		if err := t.Execute(f, p); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
