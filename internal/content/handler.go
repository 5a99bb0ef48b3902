package content

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mtadic/portfolio-backend/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// maxSectionBytes keeps a single dashboard edit reasonably sized
const maxSectionBytes = 1 << 20

type Handler struct {
	repo *Repo
}

func NewHandler(repo *Repo) *Handler {
	return &Handler{
		repo: repo,
	}
}

func (handler *Handler) SetupRoutes(router *mux.Router) {
	router.HandleFunc("/content/{section}", handler.handleGet).Methods("GET").Name("get-content")
	router.HandleFunc("/content/{section}", handler.handleSet).Methods("PUT", "OPTIONS").Name("set-content")
}

func (handler *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	section := mux.Vars(r)["section"]

	data, err := handler.repo.Get(r.Context(), section)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownSection):
			http.Error(w, "unknown content section", http.StatusNotFound)
		case errors.Is(err, ErrSectionNotSet):
			// the section exists but was never edited
			pkg.WriteJSONResponseOK(w, `{}`)
		default:
			log.Errorf("get content section %s: %s", section, err)
			http.Error(w, "get content failed", http.StatusInternalServerError)
		}
		return
	}

	pkg.WriteResponseBytesOK(w, pkg.ContentType.JSON, data)
}

func (handler *Handler) handleSet(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Add("Allow", "PUT, OPTIONS")
		w.WriteHeader(http.StatusOK)
		return
	}

	section := mux.Vars(r)["section"]
	if !IsValidSection(section) {
		http.Error(w, "unknown content section", http.StatusNotFound)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxSectionBytes))
	if err != nil {
		log.Errorf("set content section %s, read body: %s", section, err)
		http.Error(w, "set content failed", http.StatusBadRequest)
		return
	}

	// the payload is opaque to the backend, but it has to be a JSON object
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		http.Error(w, "error, content must be a JSON object", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Set(r.Context(), section, data); err != nil {
		log.Errorf("set content section %s: %s", section, err)
		http.Error(w, "set content failed", http.StatusInternalServerError)
		return
	}

	log.Tracef("content section [%s] updated", section)
	pkg.WriteTextResponseOK(w, "updated:"+section)
}
