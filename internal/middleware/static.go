package middleware

import (
	"net/http"
	"os"
	"path/filepath"
)

// placeholderBadge is served when a reward or achievement image is missing.
const placeholderBadge = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 200 200"><rect width="200" height="200" fill="#f0f0f0"/><circle cx="100" cy="90" r="45" fill="none" stroke="#999" stroke-width="10"/><path d="M80 130l-10 45 30-15 30 15-10-45" fill="#999"/><text x="100" y="97" text-anchor="middle" font-family="Arial" font-size="18" fill="#666">REWARD</text></svg>`

// StaticFileServer serves catalog artwork from dir, falling back to a placeholder badge.
func StaticFileServer(dir string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))

		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			w.Header().Set("Cache-Control", "public, max-age=2592000")
			http.ServeFile(w, r, path)
			return
		}

		w.Header().Set("Content-Type", "image/svg+xml")
		w.Header().Set("Cache-Control", "public, max-age=86400")
		w.Write([]byte(placeholderBadge))
	})
}
