package handlers

import (
	"fmt"
	"html/template"
	"path/filepath"
	"time"

	"memberdir/internal/models"
)

// TemplateFuncs returns the helpers available to every page template
func TemplateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			return t.Format("Jan 2, 2006")
		},
		"formatTime": func(t *time.Time) string {
			if t == nil {
				return "never"
			}
			return t.Format("Jan 2, 2006 15:04")
		},
		"age": func(dob string) int {
			return models.Age(dob, time.Now())
		},
		"add": func(a, b int) int {
			return a + b
		},
		"imageURL": func(key string) string {
			if key == "" {
				return ""
			}
			return "/uploads/" + key
		},
	}
}

// LoadTemplates parses every page template under templatesPath
func LoadTemplates(templatesPath string) (*template.Template, error) {
	patterns := []string{
		filepath.Join(templatesPath, "*.tmpl"),
		filepath.Join(templatesPath, "admin/*.tmpl"),
	}

	var files []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to glob pattern %s: %w", pattern, err)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no templates found in %s", templatesPath)
	}

	tmpl, err := template.New("").Funcs(TemplateFuncs()).ParseFiles(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return tmpl, nil
}
