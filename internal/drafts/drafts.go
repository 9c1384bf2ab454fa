// Package drafts stores validated issue drafts, change requests and work
// plans addressed by content.
package drafts

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/internal/ledger"
	"github.com/davidahmann/lawgate/internal/schema"
)

// Submission is the outcome of a successful Submit.
type Submission struct {
	ID        string          `json:"id"`
	Schema    schema.SchemaID `json:"schema"`
	Hash      string          `json:"hash"`
	BodyHash  string          `json:"bodyHash"`
	Created   bool            `json:"created"`
	CreatedAt string          `json:"createdAt"`
	Data      any             `json:"data"`
}

type Service struct {
	store ledger.Store
	log   *zap.Logger

	Now   func() time.Time
	NewID func() string
}

func NewService(store ledger.Store, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store: store,
		log:   log,
		Now:   time.Now,
		NewID: uuid.NewString,
	}
}

// Validate reports the validation result without storing anything.
func (s *Service) Validate(_ context.Context, id schema.SchemaID, raw []byte) schema.Result {
	return schema.Validate(id, raw)
}

// Submit parses raw and stores the normalized document. Resubmitting
// semantically equal content returns the first submission with
// Created=false. Invalid documents return *schema.ValidationError.
func (s *Service) Submit(ctx context.Context, id schema.SchemaID, raw []byte) (Submission, error) {
	if err := ctx.Err(); err != nil {
		return Submission{}, err
	}
	res := schema.Parse(id, raw)
	if err := res.Err(); err != nil {
		return Submission{}, err
	}

	rec, err := ledger.MakeDraftRecord(s.NewID(), string(id), res.Data, ledger.FormatTime(s.Now()))
	if err != nil {
		return Submission{}, err
	}
	stored, created, err := s.store.PutDraft(rec)
	if err != nil {
		return Submission{}, err
	}

	s.log.Info("draft stored",
		zap.String("schema", string(id)),
		zap.String("draft_id", stored.DraftID),
		zap.String("body_hash", crypto.ShortHash(stored.ContentHash)),
		zap.Bool("created", created),
	)
	return Submission{
		ID:        stored.DraftID,
		Schema:    id,
		Hash:      stored.ContentHash,
		BodyHash:  crypto.ShortHash(stored.ContentHash),
		Created:   created,
		CreatedAt: stored.CreatedAt,
		Data:      res.Data,
	}, nil
}

// Get returns a stored draft after checking its body against its hash.
func (s *Service) Get(ctx context.Context, draftID string) (ledger.DraftRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ledger.DraftRecord{}, false, err
	}
	rec, ok := s.store.GetDraft(draftID)
	if !ok {
		return ledger.DraftRecord{}, false, nil
	}
	if err := ledger.VerifyDraft(rec); err != nil {
		return ledger.DraftRecord{}, false, err
	}
	return rec, true, nil
}
