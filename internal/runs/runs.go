// Package runs starts remediation playbook runs behind the playbook_run
// gate.
package runs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/internal/gate"
	"github.com/davidahmann/lawgate/internal/idempotency"
	"github.com/davidahmann/lawgate/internal/lawbook"
	"github.com/davidahmann/lawgate/internal/ledger"
	"github.com/davidahmann/lawgate/pkg/types"
)

var ErrInvalidRequest = errors.New("invalid run request")

// runSetFields are request arrays whose order does not change the run.
var runSetFields = crypto.WithSetFields("actionTypes", "evidence", "approvals")

// Request asks to run a playbook for an incident. Run counters come from
// the ledger, never from the caller.
type Request struct {
	IncidentID  string              `json:"incidentId"`
	Category    string              `json:"category"`
	PlaybookID  string              `json:"playbookId"`
	ActionTypes []string            `json:"actionTypes"`
	Evidence    []types.EvidenceRef `json:"evidence"`
	Approvals   []string            `json:"approvals,omitempty"`
	Inputs      map[string]any      `json:"inputs,omitempty"`
}

type Run struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	IncidentID  string `json:"incidentId"`
	PlaybookID  string `json:"playbookId"`
	Status      string `json:"status"`
	InputsHash  string `json:"inputsHash"`
	LawbookHash string `json:"lawbookHash"`
	CreatedAt   string `json:"createdAt"`
}

// Result carries the verdict and, for an allowed request, the run. A replay
// of an already started run returns it with Created=false.
type Result struct {
	Verdict types.Verdict `json:"verdict"`
	Run     *Run          `json:"run,omitempty"`
	Created bool          `json:"created"`
}

type Service struct {
	store    ledger.Store
	lawbooks lawbook.Provider
	log      *zap.Logger

	Now   func() time.Time
	NewID func() string
}

func NewService(store ledger.Store, lawbooks lawbook.Provider, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		lawbooks: lawbooks,
		log:      log,
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// Key returns the idempotency key of req.
func Key(req Request) (string, error) {
	inputs := map[string]any{
		"category":    strings.TrimSpace(req.Category),
		"actionTypes": req.ActionTypes,
		"evidence":    req.Evidence,
		"approvals":   req.Approvals,
		"inputs":      req.Inputs,
	}
	return idempotency.BuildKey("incident:"+strings.TrimSpace(req.IncidentID), req.PlaybookID, inputs, runSetFields)
}

// Start evaluates the playbook_run gate and records an allowed run. Denied
// and held requests leave no record.
func (s *Service) Start(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.IncidentID) == "" || strings.TrimSpace(req.PlaybookID) == "" {
		return Result{}, fmt.Errorf("%w: incidentId and playbookId are required", ErrInvalidRequest)
	}
	key, err := Key(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if existing, ok := s.store.GetRunByKey(key); ok {
		return replay(existing)
	}

	// The lawbook is read once; a concurrent activation does not affect
	// this evaluation.
	lb, _, err := lawbook.ActiveOrNil(ctx, s.lawbooks)
	if err != nil {
		return Result{}, err
	}

	var (
		verdict types.Verdict
		stored  ledger.RunRecord
		created bool
	)
	err = s.store.WithTx(func(tx ledger.Tx) error {
		params, err := s.params(tx, req)
		if err != nil {
			return err
		}
		verdict = gate.Evaluator{Now: s.Now}.Evaluate(gate.KindPlaybookRun, params, lb)
		if !verdict.Allowed() {
			return nil
		}

		body, err := json.Marshal(verdict)
		if err != nil {
			return err
		}
		stored, created, err = tx.PutRun(ledger.RunRecord{
			RunID:       s.NewID(),
			RunKey:      key,
			IncidentID:  params.IncidentID,
			PlaybookID:  params.PlaybookID,
			Status:      ledger.RunStarted,
			Verdict:     string(verdict.Verdict),
			InputsHash:  verdict.InputsHash,
			LawbookHash: deref(verdict.LawbookHash),
			VerdictJSON: body,
			CreatedAt:   ledger.FormatTime(s.Now()),
		})
		return err
	})
	if err != nil {
		return Result{}, err
	}

	if !verdict.Allowed() {
		s.log.Info("playbook run blocked",
			zap.String("incident_id", req.IncidentID),
			zap.String("playbook_id", req.PlaybookID),
			zap.String("verdict", string(verdict.Verdict)),
			zap.Strings("codes", verdict.Codes()),
		)
		return Result{Verdict: verdict}, nil
	}
	if !created {
		return replay(stored)
	}

	s.log.Info("playbook run started",
		zap.String("run_id", stored.RunID),
		zap.String("incident_id", stored.IncidentID),
		zap.String("playbook_id", stored.PlaybookID),
	)
	run := runOf(stored)
	return Result{Verdict: verdict, Run: &run, Created: true}, nil
}

func (s *Service) params(tx ledger.Tx, req Request) (gate.PlaybookRunParams, error) {
	p := gate.PlaybookRunParams{
		IncidentID:  strings.TrimSpace(req.IncidentID),
		Category:    strings.TrimSpace(req.Category),
		PlaybookID:  strings.TrimSpace(req.PlaybookID),
		ActionTypes: req.ActionTypes,
		Evidence:    req.Evidence,
		Approvals:   req.Approvals,
	}
	count, err := tx.CountRuns(p.IncidentID, p.PlaybookID)
	if err != nil {
		return p, fmt.Errorf("count runs: %w", err)
	}
	p.CurrentRunCount = count

	last, ok, err := tx.LastRunAt(p.IncidentID, p.PlaybookID)
	if err != nil {
		return p, fmt.Errorf("last run: %w", err)
	}
	if ok {
		at, err := ledger.ParseTime(last)
		if err != nil {
			return p, fmt.Errorf("last run time %q: %w", last, err)
		}
		p.LastRunAt = &at
	}
	return p, nil
}

func replay(rec ledger.RunRecord) (Result, error) {
	var verdict types.Verdict
	if err := json.Unmarshal(rec.VerdictJSON, &verdict); err != nil {
		return Result{}, fmt.Errorf("decode verdict of run %s: %w", rec.RunID, err)
	}
	run := runOf(rec)
	return Result{Verdict: verdict, Run: &run}, nil
}

func runOf(rec ledger.RunRecord) Run {
	return Run{
		ID:          rec.RunID,
		Key:         rec.RunKey,
		IncidentID:  rec.IncidentID,
		PlaybookID:  rec.PlaybookID,
		Status:      rec.Status,
		InputsHash:  rec.InputsHash,
		LawbookHash: rec.LawbookHash,
		CreatedAt:   rec.CreatedAt,
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
