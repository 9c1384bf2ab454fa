package lawbook

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/lawgate/internal/crypto"
	"github.com/davidahmann/lawgate/internal/ledger"
	"github.com/davidahmann/lawgate/pkg/types"
)

// Provider yields the lawbook that gates evaluate against. A Provider with
// nothing active returns ErrNoActiveLawbook.
type Provider interface {
	Active(ctx context.Context) (*types.Lawbook, Version, error)
}

// Version describes one stored lawbook version.
type Version struct {
	ID             string `json:"id"`
	LawbookID      string `json:"lawbookId"`
	LawbookVersion string `json:"lawbookVersion"`
	Hash           string `json:"lawbookHash"`
	CreatedAt      string `json:"createdAt"`
	CreatedBy      string `json:"createdBy"`
}

type CreateResult struct {
	Version Version       `json:"version"`
	Lawbook types.Lawbook `json:"lawbook"`
	Created bool          `json:"created"`
}

// Service versions lawbooks in a ledger.Store and tracks the active one.
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

// CreateVersion stores raw as a new lawbook version. Content that hashes
// equal to an existing version returns that version with Created=false.
func (s *Service) CreateVersion(ctx context.Context, raw []byte, actor string) (CreateResult, error) {
	if err := ctx.Err(); err != nil {
		return CreateResult{}, err
	}
	lb, err := Parse(raw)
	if err != nil {
		return CreateResult{}, err
	}
	hash, err := ComputeHash(lb)
	if err != nil {
		return CreateResult{}, err
	}
	body, err := crypto.Canonicalize(lb)
	if err != nil {
		return CreateResult{}, err
	}

	stored, created, err := s.store.PutLawbookVersion(ledger.LawbookVersionRecord{
		VersionID:      s.NewID(),
		LawbookID:      lb.LawbookID,
		LawbookVersion: lb.LawbookVersion,
		LawbookHash:    hash,
		BodyJSON:       body,
		CreatedAt:      ledger.FormatTime(s.Now()),
		CreatedBy:      cmp.Or(actor, lb.CreatedBy),
	})
	if err != nil {
		return CreateResult{}, fmt.Errorf("store lawbook version: %w", err)
	}

	storedLB, err := decodeBody(stored)
	if err != nil {
		return CreateResult{}, err
	}
	s.log.Info("lawbook version stored",
		zap.String("version_id", stored.VersionID),
		zap.String("lawbook_hash", crypto.ShortHash(stored.LawbookHash)),
		zap.Bool("created", created),
		zap.String("actor", actor),
	)
	return CreateResult{Version: versionOf(stored), Lawbook: storedLB, Created: created}, nil
}

// Activate points the active lawbook at versionID.
func (s *Service) Activate(ctx context.Context, versionID, actor string) (Version, error) {
	if err := ctx.Err(); err != nil {
		return Version{}, err
	}
	var rec ledger.LawbookVersionRecord
	err := s.store.WithTx(func(tx ledger.Tx) error {
		var ok bool
		rec, ok = tx.GetLawbookVersion(versionID)
		if !ok {
			return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
		}
		return tx.SetActiveLawbook(ledger.ActivePointer{
			LawbookID: rec.LawbookID,
			VersionID: rec.VersionID,
			UpdatedAt: ledger.FormatTime(s.Now()),
			UpdatedBy: actor,
		})
	})
	if err != nil {
		return Version{}, err
	}
	s.log.Info("lawbook activated",
		zap.String("version_id", rec.VersionID),
		zap.String("lawbook_version", rec.LawbookVersion),
		zap.String("lawbook_hash", crypto.ShortHash(rec.LawbookHash)),
		zap.String("actor", actor),
	)
	return versionOf(rec), nil
}

// Active returns a private copy of the active lawbook.
func (s *Service) Active(ctx context.Context) (*types.Lawbook, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, Version{}, err
	}
	ptr, ok := s.store.GetActiveLawbook()
	if !ok {
		return nil, Version{}, ErrNoActiveLawbook
	}
	return s.Get(ctx, ptr.VersionID)
}

// Get returns a stored version and its lawbook.
func (s *Service) Get(ctx context.Context, versionID string) (*types.Lawbook, Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, Version{}, err
	}
	rec, ok := s.store.GetLawbookVersion(versionID)
	if !ok {
		return nil, Version{}, fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	lb, err := decodeBody(rec)
	if err != nil {
		return nil, Version{}, err
	}
	return &lb, versionOf(rec), nil
}

// ListVersions returns stored versions newest first.
func (s *Service) ListVersions(ctx context.Context, limit int) ([]Version, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	recs, err := s.store.ListLawbookVersions(limit)
	if err != nil {
		return nil, err
	}
	out := make([]Version, 0, len(recs))
	for _, rec := range recs {
		out = append(out, versionOf(rec))
	}
	return out, nil
}

// ActiveOrNil returns the active lawbook, or nil when none is active so
// that gates deny with LAWBOOK_MISSING.
func ActiveOrNil(ctx context.Context, p Provider) (*types.Lawbook, Version, error) {
	lb, v, err := p.Active(ctx)
	if errors.Is(err, ErrNoActiveLawbook) {
		return nil, Version{}, nil
	}
	return lb, v, err
}

func versionOf(rec ledger.LawbookVersionRecord) Version {
	return Version{
		ID:             rec.VersionID,
		LawbookID:      rec.LawbookID,
		LawbookVersion: rec.LawbookVersion,
		Hash:           rec.LawbookHash,
		CreatedAt:      rec.CreatedAt,
		CreatedBy:      rec.CreatedBy,
	}
}

func decodeBody(rec ledger.LawbookVersionRecord) (types.Lawbook, error) {
	var lb types.Lawbook
	if err := json.Unmarshal(rec.BodyJSON, &lb); err != nil {
		return types.Lawbook{}, fmt.Errorf("decode lawbook version %s: %w", rec.VersionID, err)
	}
	return lb, nil
}
