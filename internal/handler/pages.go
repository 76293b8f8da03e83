package handler

import (
	"net/http"
	"os"
	"path"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/session-gateway/internal/dto"
)

// PagesHandler serves the page files under root as-is
func PagesHandler(root string) gin.HandlerFunc {
	files := http.FileServer(noListingFS{http.Dir(root)})

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.JSON(http.StatusNotFound, dto.ErrorResponse{
				Error:   "Not found",
				Message: "No route for " + c.Request.Method + " " + c.Request.URL.Path,
			})
			return
		}

		files.ServeHTTP(c.Writer, c.Request)
	}
}

// noListingFS hides directories without an index.html, so the file server never lists them
type noListingFS struct {
	fs http.FileSystem
}

func (n noListingFS) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !info.IsDir() {
		return f, nil
	}

	index, err := n.fs.Open(path.Join(name, "index.html"))
	if err != nil {
		f.Close()
		return nil, os.ErrNotExist
	}
	index.Close()
	return f, nil
}
