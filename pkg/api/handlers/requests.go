package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marmos91/nearstore/pkg/batch"
	"github.com/marmos91/nearstore/pkg/requests"
)

// Submitter runs admission for a raw request message.
// *ingest.Dispatcher implements it.
type Submitter interface {
	Submit(ctx context.Context, tenant, kind string, payload []byte) (batch.Decision, error)
}

// RequestHandler accepts request messages over HTTP.
type RequestHandler struct {
	submitter Submitter
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(submitter Submitter) *RequestHandler {
	return &RequestHandler{submitter: submitter}
}

// Submit handles POST /api/v1/tenants/{tenant}/requests/{kind}.
//
// Admission is reported in the body: a denied request still answers 202.
// Unknown kinds and undecodable payloads answer 400.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	name, ok := tenantOrError(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		BadRequest(w, "Failed to read request body")
		return
	}

	decision, err := h.submitter.Submit(r.Context(), name, chi.URLParam(r, "kind"), payload)
	if err != nil {
		if errors.Is(err, requests.ErrUnknownKind) {
			BadRequest(w, err.Error())
			return
		}
		BadRequest(w, "Invalid request message: "+err.Error())
		return
	}

	Accepted(w, decision)
}
