package mock

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/cbconsul/consul_sdk_go/internal/consulapi"
)

// kvParams holds the typed query modifiers of a /v1/kv request. Boolean
// modifiers follow Consul's presence semantics and are read separately.
type kvParams struct {
	Separator *string
	Index     *uint64
	Wait      *string
	Flags     *uint64
	Cas       *uint64
	Acquire   *string
	Release   *string
}

func bindParams(r *http.Request) (kvParams, error) {
	var p kvParams
	q := r.URL.Query()
	bindings := []struct {
		name string
		dest any
	}{
		{"separator", &p.Separator},
		{"index", &p.Index},
		{"wait", &p.Wait},
		{"flags", &p.Flags},
		{"cas", &p.Cas},
		{"acquire", &p.Acquire},
		{"release", &p.Release},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, q, b.dest); err != nil {
			return kvParams{}, err
		}
	}
	return p, nil
}

func flagSet(r *http.Request, name string) bool {
	return r.URL.Query().Has(name)
}

// NewHandler serves the /v1/kv endpoints of the Consul HTTP API from m.
func NewHandler(m *Mock) http.Handler {
	h := &handler{store: m}
	r := chi.NewRouter()
	r.Use(h.authorize)
	r.Route(consulapi.APIVersionPath+"/"+consulapi.KVEndpoint, func(r chi.Router) {
		r.Get("/*", h.get)
		r.Put("/*", h.put)
		r.Delete("/*", h.delete)
	})
	return r
}

type handler struct {
	store *Mock
}

func (h *handler) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.store.token != "" && r.Header.Get(consulapi.HeaderToken) != h.store.token {
			h.writeHeaders(w)
			http.Error(w, "Permission denied", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *handler) writeHeaders(w http.ResponseWriter) {
	w.Header().Set(consulapi.HeaderIndex, strconv.FormatUint(h.store.Index(), 10))
	w.Header().Set(consulapi.HeaderKnownLeader, "true")
	w.Header().Set(consulapi.HeaderLastContact, "0")
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	params, err := bindParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	if params.Index != nil && *params.Index > 0 {
		var wait time.Duration
		if params.Wait != nil {
			wait, err = time.ParseDuration(*params.Wait)
			if err != nil {
				http.Error(w, "Invalid wait time", http.StatusBadRequest)
				return
			}
		}
		if err := h.store.WaitIndex(ctx, *params.Index, wait); err != nil {
			return
		}
	}

	switch {
	case flagSet(r, "keys"):
		sep := ""
		if params.Separator != nil {
			sep = *params.Separator
		}
		keys, err := h.store.Keys(ctx, key, sep)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(keys) == 0 {
			h.notFound(w)
			return
		}
		h.writeJSON(w, keys)
	case flagSet(r, "recurse"):
		records, err := h.store.List(ctx, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if len(records) == 0 {
			h.notFound(w)
			return
		}
		h.writeJSON(w, records)
	case flagSet(r, "raw"):
		value, ok, err := h.store.GetValue(ctx, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			h.notFound(w)
			return
		}
		h.writeHeaders(w)
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(value)
	default:
		rec, ok, err := h.store.Get(ctx, key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !ok {
			h.notFound(w)
			return
		}
		h.writeJSON(w, []any{rec})
	}
}

func (h *handler) put(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	params, err := bindParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if key == "" {
		http.Error(w, "Missing key name", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := PutOptions{Flags: params.Flags, CAS: params.Cas}
	if params.Acquire != nil {
		opts.Acquire = *params.Acquire
	}
	if params.Release != nil {
		opts.Release = *params.Release
	}
	if opts.Acquire != "" && opts.Release != "" {
		http.Error(w, "Conflicting flags: acquire and release", http.StatusBadRequest)
		return
	}
	ok, err := h.store.Put(r.Context(), key, body, opts)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, ok)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	params, err := bindParams(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	recurse := flagSet(r, "recurse")
	if recurse && params.Cas != nil {
		http.Error(w, "Conflicting flags: cas and recurse", http.StatusBadRequest)
		return
	}
	ok, err := h.store.Delete(r.Context(), key, recurse, params.Cas)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, ok)
}

func (h *handler) notFound(w http.ResponseWriter) {
	h.writeHeaders(w)
	w.WriteHeader(http.StatusNotFound)
}

func (h *handler) writeJSON(w http.ResponseWriter, payload any) {
	h.writeHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
