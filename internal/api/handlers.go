package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/internal/drafts"
	"github.com/davidahmann/lawgate/internal/gate"
	"github.com/davidahmann/lawgate/internal/lawbook"
	"github.com/davidahmann/lawgate/internal/logging"
	"github.com/davidahmann/lawgate/internal/runs"
	"github.com/davidahmann/lawgate/internal/schema"
	"github.com/davidahmann/lawgate/pkg/types"
)

// Handler serves the lawgate HTTP API. Lawbooks may be nil when the server
// runs from a lawbook file; Provider then supplies the active lawbook.
type Handler struct {
	Lawbooks *lawbook.Service
	Provider lawbook.Provider
	Drafts   *drafts.Service
	Runs     *runs.Service
	Log      *zap.Logger

	// Now is the clock used for guardrail evaluation.
	Now func() time.Time
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) CreateLawbookVersion(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLawbooks(w, r) {
		return
	}
	raw, err := readBody(r)
	if err != nil {
		bodyError(w, r, err)
		return
	}
	res, err := h.Lawbooks.CreateVersion(r.Context(), raw, subject(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (h *Handler) ListLawbookVersions(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLawbooks(w, r) {
		return
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "limit must be a non-negative integer", nil)
			return
		}
		limit = n
	}
	versions, err := h.Lawbooks.ListVersions(r.Context(), limit)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

type activateRequest struct {
	VersionID string `json:"versionId"`
}

func (h *Handler) ActivateLawbook(w http.ResponseWriter, r *http.Request) {
	if !h.ensureLawbooks(w, r) {
		return
	}
	var req activateRequest
	if err := readJSON(r, &req); err != nil {
		bodyError(w, r, err)
		return
	}
	if req.VersionID == "" {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "versionId is required", nil)
		return
	}
	v, err := h.Lawbooks.Activate(r.Context(), req.VersionID, subject(r))
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"active": v})
}

func (h *Handler) ActiveLawbook(w http.ResponseWriter, r *http.Request) {
	lb, v, err := h.provider().Active(r.Context())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": v, "lawbook": lb})
}

func (h *Handler) ValidateDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := schemaParam(w, r)
	if !ok {
		return
	}
	raw, err := readBody(r)
	if err != nil {
		bodyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Drafts.Validate(r.Context(), id, raw))
}

func (h *Handler) SubmitDraft(w http.ResponseWriter, r *http.Request) {
	id, ok := schemaParam(w, r)
	if !ok {
		return
	}
	raw, err := readBody(r)
	if err != nil {
		bodyError(w, r, err)
		return
	}
	sub, err := h.Drafts.Submit(r.Context(), id, raw)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	status := http.StatusOK
	if sub.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, sub)
}

// EvaluateGuardrail answers 200 with the verdict whatever it is. Only
// undecodable params are a client error.
func (h *Handler) EvaluateGuardrail(w http.ResponseWriter, r *http.Request) {
	kind, err := gate.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_GATE", err.Error(), map[string]any{"kinds": gate.Kinds()})
		return
	}
	raw, err := readBody(r)
	if err != nil {
		bodyError(w, r, err)
		return
	}
	params, err := gate.DecodeParams(kind, raw)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMS", err.Error(), nil)
		return
	}
	lb, _, err := lawbook.ActiveOrNil(r.Context(), h.provider())
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	verdict := gate.Evaluator{Now: h.Now}.Evaluate(kind, params, lb)
	h.logger().Info("guardrail evaluated",
		zap.String("kind", string(kind)),
		zap.String("verdict", string(verdict.Verdict)),
		zap.String("inputs_hash", crypto.ShortHash(verdict.InputsHash)),
		zap.String("subject", subject(r)),
	)
	writeJSON(w, http.StatusOK, verdict)
}

func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	var req runs.Request
	if err := readJSON(r, &req); err != nil {
		bodyError(w, r, err)
		return
	}
	res, err := h.Runs.Start(r.Context(), req)
	if err != nil {
		h.serviceError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

type hashRequest struct {
	Value     any      `json:"value"`
	SetFields []string `json:"setFields,omitempty"`
}

type hashResponse struct {
	Canonical string `json:"canonical"`
	Hash      string `json:"hash"`
	ShortHash string `json:"shortHash"`
}

// CanonicalHash returns the canonical encoding and hash of an arbitrary
// JSON value.
func (h *Handler) CanonicalHash(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := readJSON(r, &req); err != nil {
		bodyError(w, r, err)
		return
	}
	canonical, err := crypto.Canonicalize(req.Value, crypto.WithSetFields(req.SetFields...))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "CANONICALIZATION_FAILED", err.Error(), nil)
		return
	}
	full := crypto.DigestHex(canonical)
	writeJSON(w, http.StatusOK, hashResponse{
		Canonical: string(canonical),
		Hash:      full,
		ShortHash: crypto.ShortHash(full),
	})
}

func (h *Handler) ensureLawbooks(w http.ResponseWriter, r *http.Request) bool {
	if h.Lawbooks == nil {
		writeError(w, r, http.StatusNotImplemented, "NOT_CONFIGURED", "lawbook versions are read from a file", nil)
		return false
	}
	return true
}

func (h *Handler) provider() lawbook.Provider {
	if h.Provider != nil {
		return h.Provider
	}
	if h.Lawbooks != nil {
		return h.Lawbooks
	}
	return noLawbook{}
}

func (h *Handler) logger() *zap.Logger {
	return logging.OrNop(h.Log)
}

// serviceError maps service errors onto HTTP responses.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error(), verr.Errors)
	case errors.Is(err, lawbook.ErrVersionNotFound):
		writeError(w, r, http.StatusNotFound, "VERSION_NOT_FOUND", err.Error(), nil)
	case errors.Is(err, lawbook.ErrNoActiveLawbook):
		writeError(w, r, http.StatusNotFound, "NO_ACTIVE_LAWBOOK", err.Error(), nil)
	case errors.Is(err, runs.ErrInvalidRequest):
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		h.logger().Error("request failed", zap.String("request_id", RequestIDFrom(r.Context())), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
	}
}

func schemaParam(w http.ResponseWriter, r *http.Request) (schema.SchemaID, bool) {
	id, err := schema.ParseID(chi.URLParam(r, "schema"))
	if err != nil {
		writeError(w, r, http.StatusNotFound, "UNKNOWN_SCHEMA", err.Error(), map[string]any{"schemas": schema.IDs()})
		return "", false
	}
	return id, true
}

func subject(r *http.Request) string {
	claims, _ := ClaimsFrom(r.Context())
	return claims.Subject
}

type noLawbook struct{}

func (noLawbook) Active(_ context.Context) (*types.Lawbook, lawbook.Version, error) {
	return nil, lawbook.Version{}, lawbook.ErrNoActiveLawbook
}
