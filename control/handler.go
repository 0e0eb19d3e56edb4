package control

import (
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/health"
	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/keys"
	"github.com/icecave/sniroute/resolver"
	"github.com/sirupsen/logrus"
)

// maxKeyBodySize limits the size of a single endpoint list.
const maxKeyBodySize = 1 << 20

// Handler is the HTTP control surface of the router.
type Handler struct {
	Ingestor *ingest.Ingestor
	Updater  *keys.Updater
	Resolver *resolver.Resolver
	Logger   logrus.FieldLogger

	// Health serves the health-check endpoint, if non-nil.
	Health http.Handler

	// Metrics serves the Prometheus endpoint, if non-nil.
	Metrics http.Handler

	once   sync.Once
	router *mux.Router
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.once.Do(h.route)
	h.router.ServeHTTP(w, r)
}

func (h *Handler) route() {
	r := mux.NewRouter()
	r.Use(h.logRequests)

	r.HandleFunc("/configuration", h.configure).Methods(http.MethodPost)
	r.HandleFunc("/configuration/status", h.status).Methods(http.MethodGet)

	r.HandleFunc("/keys/{key}", h.setKey).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/keys", h.setKey).Methods(http.MethodPost)
	r.HandleFunc("/keys", h.truncate).Methods(http.MethodDelete)

	r.HandleFunc("/resolve/{mode}", h.resolve).Methods(http.MethodGet)
	r.HandleFunc("/resolve/{mode}/{hostname}", h.resolve).Methods(http.MethodGet)

	if h.Health != nil {
		r.Handle(health.RequestPath, h.Health).Methods(http.MethodGet)
	}

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods(http.MethodGet)
	}

	h.router = r
}

// configure streams the request body into a bulk configuration upload.
func (h *Handler) configure(w http.ResponseWriter, r *http.Request) {
	deadline := time.Now().Add(h.Ingestor.UploadTimeout())
	if err := http.NewResponseController(w).SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.Logger.WithError(err).Debug("could not set upload deadline")
	}

	status, err := h.Ingestor.Consume(r.Context(), r.Body)
	if err != nil {
		switch {
		case errors.Is(err, ingest.ErrTooLarge):
			writeText(w, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge.Error())
		case isTimeout(err):
			writeText(w, http.StatusRequestTimeout, "upload abandoned")
		default:
			writeText(w, http.StatusBadRequest, "upload abandoned")
		}
		return
	}

	code := http.StatusOK
	if status != ingest.StatusOK {
		code = http.StatusBadRequest
	}

	writeText(w, code, string(status))
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, string(h.Ingestor.Status()))
}

// setKey stores the request body as the endpoint list of the key given in the
// path or in the "key" query parameter.
func (h *Handler) setKey(w http.ResponseWriter, r *http.Request) {
	key, ok := mux.Vars(r)["key"]
	if !ok {
		key = r.URL.Query().Get("key")
	}

	body, err := ioutil.ReadAll(http.MaxBytesReader(w, r.Body, maxKeyBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "endpoint list too large")
			return
		}
		writeText(w, http.StatusBadRequest, keys.MessageInvalidBody)
		return
	}

	err = h.Updater.Set(r.Context(), key, body)

	var verr *backend.ValidationError
	switch {
	case err == nil:
		writeText(w, http.StatusOK, keys.MessageOK)
	case errors.As(err, &verr):
		writeText(w, http.StatusBadRequest, verr.Message)
	default:
		writeText(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) truncate(w http.ResponseWriter, r *http.Request) {
	if err := h.Updater.Truncate(r.Context()); err != nil {
		writeText(w, http.StatusBadRequest, keys.MessageTruncateError)
		return
	}

	writeText(w, http.StatusOK, keys.MessageOK)
}

// resolve reports the result of one of the resolution paths for a hostname.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	hostname := vars["hostname"]

	switch vars["mode"] {
	case "backend":
		writeText(w, http.StatusOK, h.Resolver.Backend(r.Context(), hostname))
	case "upstream":
		writeText(w, http.StatusOK, h.Resolver.Upstream(r.Context(), hostname))
	case "proxied":
		endpoint, err := h.Resolver.ProxiedBackend(r.Context(), hostname)
		if err != nil {
			writeText(w, http.StatusForbidden, err.Error())
			return
		}
		writeText(w, http.StatusOK, endpoint)
	default:
		writeText(w, http.StatusNotFound, "unknown resolution mode")
	}
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		h.Logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"remote":   r.RemoteAddr,
			"duration": time.Since(start).Round(time.Microsecond).String(),
		}).Debug("control request")
	})
}

func writeText(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, body)
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
}
