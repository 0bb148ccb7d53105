package server

import (
	"context"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"

	"github.com/transportuni/chatbot-api/apperror"
	"github.com/transportuni/chatbot-api/auth"
	_ "github.com/transportuni/chatbot-api/docs" // registers the OpenAPI document
)

const healthCheckTimeout = 2 * time.Second

// BannerResponse is returned by GET /api.
type BannerResponse struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func bannerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		auth.WriteJSON(w, http.StatusOK, BannerResponse{
			Name:    "University Chatbot API",
			Version: "1.0",
			Docs:    "/docs/index.html",
		})
	}
}

// healthHandler reports ok, or 503 when check fails. A nil check always passes.
func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := check(ctx); err != nil {
				auth.WriteJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: "database unreachable"})
				return
			}
		}
		auth.WriteJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
	}
}

func apiNotFound(w http.ResponseWriter, r *http.Request) {
	auth.WriteError(w, r, apperror.NewNotFoundError("resource not found", nil))
}

func apiMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusMethodNotAllowed)
	_, _ = w.Write([]byte(`{"error":"method not allowed"}` + "\n"))
}

// mountDocs serves the Swagger UI and the raw OpenAPI document.
func mountDocs(r chi.Router) {
	ui := httpSwagger.Handler(httpSwagger.URL("/openapi.json"))
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/docs/*", ui)
	r.Get("/swagger/*", ui)
	r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
		doc, err := swag.ReadDoc()
		if err != nil {
			auth.WriteError(w, r, apperror.NewInternalError("failed to render OpenAPI document", err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(doc))
	})
}

// spaHandler serves the built front-end from dir. Unknown paths get index.html
// so client-side routes survive a reload.
func spaHandler(dir string) http.HandlerFunc {
	root := http.Dir(dir)
	files := http.FileServer(root)
	index := filepath.Join(dir, "index.html")
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api" || strings.HasPrefix(r.URL.Path, "/api/") {
			apiNotFound(w, r)
			return
		}
		if f, err := root.Open(path.Clean(r.URL.Path)); err == nil {
			stat, statErr := f.Stat()
			_ = f.Close()
			if statErr == nil && !stat.IsDir() {
				files.ServeHTTP(w, r)
				return
			}
		}
		if _, err := os.Stat(index); err != nil {
			apiNotFound(w, r)
			return
		}
		http.ServeFile(w, r, index)
	}
}
