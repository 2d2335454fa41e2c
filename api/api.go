// Package api exposes the admin CRUD surface and the price-history read
// side over HTTP. It is the out-of-band twin of the chat-command surface:
// the same mutations with the same catalog-reload guarantee, for operators
// who prefer curl or a dashboard over chat messages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/hazyhaar/pricewatch/catalog"
	"github.com/hazyhaar/pricewatch/store"
)

// Server serves the pricewatch HTTP API.
type Server struct {
	st     *store.Store
	cat    *catalog.Catalog
	user   string
	hash   []byte // bcrypt hash of the basic-auth password; empty disables auth
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithBasicAuth protects every /api route with basic auth. passwordHash is
// a bcrypt hash. With an empty hash the API is open — only acceptable on a
// loopback bind.
func WithBasicAuth(user string, passwordHash []byte) Option {
	return func(s *Server) {
		s.user = user
		s.hash = passwordHash
	}
}

// NewServer creates a Server over the given store and catalog.
func NewServer(st *store.Store, cat *catalog.Catalog, opts ...Option) *Server {
	s := &Server{
		st:     st,
		cat:    cat,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi router. /healthz is always open; /api/* honours
// the configured basic auth.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth)

		r.Get("/products", s.handleListProducts)
		r.Post("/products", s.handleAddProduct)
		r.Delete("/products/{id}", s.handleDeleteProduct)
		r.Get("/products/{id}/observations", s.handleListObservations)

		r.Get("/sources", s.handleListSources)
		r.Post("/sources", s.handleAddSource)
		r.Delete("/sources/{id}", s.handleDeleteSource)
	})

	return r
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.hash) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != s.user ||
			bcrypt.CompareHashAndPassword(s.hash, []byte(pass)) != nil {
			w.Header().Set("WWW-Authenticate", `Basic realm="pricewatch"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := s.st.ListProducts(r.Context())
	if err != nil {
		s.logger.Error("api: list products", "error", err)
		writeError(w, http.StatusInternalServerError, "list products failed")
		return
	}
	if products == nil {
		products = []store.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

func (s *Server) handleAddProduct(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	p, err := s.st.AddProduct(r.Context(), in.Name)
	if err != nil {
		s.logger.Error("api: add product", "name", in.Name, "error", err)
		writeError(w, http.StatusInternalServerError, "add product failed")
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleDeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	name, ok, err := s.st.DeleteProduct(r.Context(), id)
	if err != nil {
		s.logger.Error("api: delete product", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete product failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "name": name, "deleted": true})
}

func (s *Server) handleListObservations(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid product id")
		return
	}
	limit := 0
	if q := r.URL.Query().Get("limit"); q != "" {
		limit, err = strconv.Atoi(q)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}
	obs, err := s.st.ListObservations(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("api: list observations", "product_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "list observations failed")
		return
	}
	if obs == nil {
		obs = []store.Observation{}
	}
	writeJSON(w, http.StatusOK, obs)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	ids, err := s.st.ListSources(r.Context())
	if err != nil {
		s.logger.Error("api: list sources", "error", err)
		writeError(w, http.StatusInternalServerError, "list sources failed")
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ChatID int64 `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.ChatID == 0 {
		writeError(w, http.StatusBadRequest, "chat_id is required")
		return
	}
	if err := s.st.AddSource(r.Context(), in.ChatID); err != nil {
		if errors.Is(err, store.ErrDuplicateSource) {
			writeError(w, http.StatusConflict, "source already whitelisted")
			return
		}
		s.logger.Error("api: add source", "chat_id", in.ChatID, "error", err)
		writeError(w, http.StatusInternalServerError, "add source failed")
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusCreated, map[string]int64{"chat_id": in.ChatID})
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid chat id")
		return
	}
	ok, err := s.st.DeleteSource(r.Context(), id)
	if err != nil {
		s.logger.Error("api: delete source", "chat_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "delete source failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "source not whitelisted")
		return
	}
	s.reload(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"chat_id": id, "deleted": true})
}

// reload refreshes the catalog after a mutation, before the response is
// written, so the pipeline and the caller agree on the new state.
func (s *Server) reload(ctx context.Context) {
	if err := s.cat.Reload(ctx); err != nil {
		s.logger.Error("api: catalog reload after mutation failed", "error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
