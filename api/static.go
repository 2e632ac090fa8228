package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

const defaultStaticDir = "web/static"

// registerStatic mounts the dashboard as a catch-all SPA handler.
// Unknown non-API paths fall back to index.html so client-side routes
// survive a hard refresh.
func (s *Server) registerStatic() {
	if s == nil || s.router == nil {
		return
	}

	dir := strings.TrimSpace(os.Getenv("BENCH_STATIC_DIR"))
	if dir == "" {
		dir = defaultStaticDir
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		root = dir
	}

	handler := staticHandler(root)
	s.router.GET("/*filepath", handler)
	s.router.HEAD("/*filepath", handler)
}

func staticHandler(root string) gin.HandlerFunc {
	index := filepath.Join(root, "index.html")

	return func(c *gin.Context) {
		urlPath := c.Request.URL.Path
		if urlPath == "/api" || strings.HasPrefix(urlPath, "/api/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if urlPath == "/" {
			c.File(index)
			return
		}

		target, ok := resolveStaticPath(root, urlPath)
		if !ok {
			c.Status(http.StatusForbidden)
			return
		}
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			c.File(target)
			return
		}
		c.File(index)
	}
}

// resolveStaticPath maps a request path to a file under root, rejecting
// anything that escapes it.
func resolveStaticPath(root, urlPath string) (string, bool) {
	rel := filepath.Clean(strings.TrimPrefix(urlPath, "/"))
	target, err := filepath.Abs(filepath.Join(root, rel))
	if err != nil {
		return "", false
	}
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", false
	}
	return target, true
}
