package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/italolelis/bundle_installer/internal/bundle"
	"github.com/italolelis/bundle_installer/internal/logctx"
	"github.com/italolelis/bundle_installer/internal/storage"
	"github.com/italolelis/bundle_installer/internal/transfer"
)

// BundleService is the part of bundle.Service the HTTP API drives.
type BundleService interface {
	StartInBackground(ctx context.Context, done func(bundle.Result, error)) bool
	RetryInBackground(ctx context.Context, done func(bundle.Result, error)) bool
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	State(ctx context.Context) (bundle.State, error)
	SetDescriptor(ctx context.Context, d storage.Descriptor) error
}

type actionResponse struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type BundleHandler struct {
	// installs started over HTTP outlive the request and stop with baseCtx.
	baseCtx context.Context
	svc     BundleService
}

// NewBundleHandler creates the bundle API handler. Installs triggered through
// it run in the background until they finish or baseCtx is cancelled.
func NewBundleHandler(baseCtx context.Context, svc BundleService) *BundleHandler {
	return &BundleHandler{baseCtx: baseCtx, svc: svc}
}

func (h *BundleHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/bundle", h.HandleState)
	r.Put("/bundle/descriptor", h.HandleDescriptor)
	r.Post("/bundle/start", h.HandleStart)
	r.Post("/bundle/retry", h.HandleRetry)
	r.Post("/bundle/pause", h.HandlePause)
	r.Post("/bundle/resume", h.HandleResume)

	return r
}

func (h *BundleHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.State(r.Context())
	if err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to read bundle state", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: transfer.Describe(err)})

		return
	}

	writeJSON(w, http.StatusOK, st)
}

func (h *BundleHandler) HandleDescriptor(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	var d storage.Descriptor
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		logger.Error("failed to decode descriptor", "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})

		return
	}

	if strings.TrimSpace(d.URL) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "url is required"})

		return
	}

	if err := h.svc.SetDescriptor(r.Context(), d); err != nil {
		logger.Error("failed to store descriptor", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: transfer.Describe(err)})

		return
	}

	logger.Info("bundle descriptor updated", "url", d.URL, "version", d.Version)

	w.WriteHeader(http.StatusNoContent)
}

func (h *BundleHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, "start", h.svc.StartInBackground)
}

func (h *BundleHandler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	h.launch(w, r, "retry", h.svc.RetryInBackground)
}

func (h *BundleHandler) HandlePause(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Pause(r.Context()); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to pause install", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: transfer.Describe(err)})

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *BundleHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Resume(r.Context()); err != nil {
		logctx.LoggerFromContext(r.Context()).Error("failed to resume install", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: transfer.Describe(err)})

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// launch admits the install before answering, so of two concurrent requests
// exactly one gets 202 and the other 409. The install then runs in the
// background and its outcome is observable through GET /bundle.
func (h *BundleHandler) launch(
	w http.ResponseWriter,
	r *http.Request,
	trigger string,
	action func(context.Context, func(bundle.Result, error)) bool,
) {
	logger := logctx.LoggerFromContext(r.Context()).With("trigger", trigger)

	ctx := logctx.WithLogger(h.baseCtx, logger)
	if id := logctx.RequestIDFromContext(r.Context()); id != "" {
		ctx = logctx.WithRequestID(ctx, id)
	}

	admitted := action(ctx, func(result bundle.Result, err error) {
		switch {
		case errors.Is(err, context.Canceled):
			logger.Info("install cancelled")
		case err != nil:
			logger.Error("install failed", "err", err)
		default:
			logger.Info("install finished", "version", result.Version, "recipes", result.RecipeCount)
		}
	})
	if !admitted {
		writeJSON(w, http.StatusConflict, actionResponse{Accepted: false, Message: "an install is already running"})

		return
	}

	writeJSON(w, http.StatusAccepted, actionResponse{Accepted: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(v)
}
