// Package report renders the static HTML gallery of recently stored media.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"mediakeeper/pkg/database"
)

var galleryTemplate = template.Must(template.New("gallery").Funcs(template.FuncMap{
	"date": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("2006-01-02 15:04")
	},
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; background: #15202b; color: #d9d9d9; }
.grid { display: flex; flex-wrap: wrap; gap: 8px; }
.item { width: 240px; }
.item img { width: 240px; height: 240px; object-fit: cover; }
.item p { font-size: 12px; margin: 2px 0; overflow: hidden; text-overflow: ellipsis; white-space: nowrap; }
.gone { opacity: 0.4; }
a { color: #1d9bf0; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
<p>{{len .Records}} items, generated {{date .Generated}}</p>
<div class="grid">
{{- range .Records}}
<div class="item{{if not .Exists}} gone{{end}}">
<a href="{{.PostURL}}" target="_blank" rel="noopener"><img src="{{if .ThumbnailURL}}{{.ThumbnailURL}}{{else}}{{.URL}}{{end}}" alt="{{.Filename}}" loading="lazy"></a>
<p><a href="{{.URL}}">{{.Filename}}</a>{{if eq .MediaKind "video"}} (video){{end}}</p>
<p>{{.AuthorName}} @{{.AuthorHandle}}</p>
<p>{{date .CreatedAt}}</p>
<p title="{{.Caption}}">{{.Caption}}</p>
</div>
{{- end}}
</div>
</body>
</html>
`))

type galleryData struct {
	Title     string
	Generated time.Time
	Records   []database.MediaRecord
}

// GalleryFilename is the gallery page name for a collection
func GalleryFilename(kind database.Kind) string {
	return kind.Title() + "Media.html"
}

// WriteGallery renders records into an HTML page at path. The page is
// written to a temp file first so readers never see a partial gallery.
func WriteGallery(path, title string, records []database.MediaRecord) error {
	var buf bytes.Buffer
	data := galleryData{Title: title, Generated: time.Now(), Records: records}
	if err := galleryTemplate.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render gallery: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize gallery: %w", err)
	}
	return nil
}
