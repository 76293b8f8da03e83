package handler

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPagesRouter(t *testing.T) *gin.Engine {
	root := t.TempDir()
	for name, content := range map[string]string{
		"Dashboard/index.html": "dashboard",
		"assets/logo.txt":      "logo",
	} {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.NoRoute(PagesHandler(root))
	return router
}

func TestPagesHandler_ServesFilesAndIndexes(t *testing.T) {
	router := newPagesRouter(t)

	for target, want := range map[string]string{
		"/assets/logo.txt": "logo",
		"/Dashboard/":      "dashboard",
	} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusOK, w.Code, target)
		assert.Equal(t, want, w.Body.String(), target)
	}
}

func TestPagesHandler_RefusesDirectoryListing(t *testing.T) {
	router := newPagesRouter(t)

	for _, target := range []string{"/assets/", "/"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))

		assert.Equal(t, http.StatusNotFound, w.Code, target)
		assert.NotContains(t, w.Body.String(), "logo.txt", target)
	}
}

func TestPagesHandler_RejectsOtherMethods(t *testing.T) {
	router := newPagesRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assets/logo.txt", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}
