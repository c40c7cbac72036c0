// Package api exposes the blog over HTTP: a public read-only surface under /blog and an
// administration surface under /admin.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jacentio/bloggy/blog"
	"github.com/jacentio/bloggy/internal/metrics"
	"github.com/jacentio/bloggy/internal/render"
)

const defaultPageSize = 10

// Options configures the router. The zero value is usable.
type Options struct {
	// PageSize is the number of items per listing page.
	PageSize int32

	// AllowedOrigins lists the CORS origins; empty allows any origin.
	AllowedOrigins []string

	// Metrics, when set, instruments every route and serves /metrics.
	Metrics *metrics.Collector

	Logger *zap.Logger
}

// Server holds the handlers' dependencies.
type Server struct {
	repo     *blog.Repository
	renderer *render.Renderer
	validate *validator.Validate
	logger   *zap.Logger
	pageSize int32
}

// NewRouter returns the HTTP handler for repo.
func NewRouter(repo *blog.Repository, opts Options) *chi.Mux {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		repo:     repo,
		renderer: render.New(),
		validate: newValidator(),
		logger:   opts.Logger,
		pageSize: opts.PageSize,
	}

	router := chi.NewRouter()
	router.Use(requestID)
	router.Use(chimiddleware.RealIP)
	router.Use(requestLogger(opts.Logger))
	router.Use(chimiddleware.Recoverer)
	if opts.Metrics != nil {
		router.Use(opts.Metrics.Middleware)
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader, "Location"},
		MaxAge:         300,
	}))

	router.Get("/ping", s.ping)
	if opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	router.Route("/blog", func(r chi.Router) {
		r.Get("/posts", s.listPublishedPosts)
		r.Get("/posts/{slug}", s.showPublishedPost)
		r.Get("/tags", s.listTags)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Route("/posts", func(r chi.Router) {
			r.Get("/", s.listAllPosts)
			r.Post("/", s.createPost)
			r.Get("/{slug}", s.getPost)
			r.Put("/{slug}", s.updatePost)
			r.Delete("/{slug}", s.deletePost)
		})
		r.Route("/tags", func(r chi.Router) {
			r.Get("/", s.listTags)
			r.Post("/", s.createTag)
			r.Get("/{name}", s.getTag)
			r.Put("/{name}", s.updateTag)
			r.Delete("/{name}", s.deleteTag)
		})
	})

	return router
}

func (s *Server) ping(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("pong"))
}
