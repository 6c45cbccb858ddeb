package http

import (
	"io/fs"
	"testing"
)

func TestEmbeddedStaticFiles(t *testing.T) {
	for _, name := range []string{"index.html", "css/style.css", "js/app.js"} {
		if _, err := fs.ReadFile(StaticFS(), name); err != nil {
			t.Fatalf("expected embedded asset %s, got error: %v", name, err)
		}
	}
}
