package services

import (
	"context"
	"fmt"

	"github.com/notecore/notecore/internal/model"
	"github.com/notecore/notecore/internal/store"
)

// SignerService manages writer verification material. Re-registration
// is last-write-wins.
type SignerService struct {
	store store.Store
}

func NewSignerService(st store.Store) *SignerService {
	return &SignerService{store: st}
}

func (s *SignerService) UpsertSigner(ctx context.Context, signer *model.Signer) (*model.Signer, error) {
	if signer.WriterType == "" || signer.WriterID == "" {
		return nil, fmt.Errorf("%w: INVALID_SIGNER: writerType and writerId are required", model.ErrValidation)
	}
	if signer.KeyRef == "" {
		return nil, fmt.Errorf("%w: INVALID_SIGNER: keyRef is required", model.ErrValidation)
	}
	return s.store.Signers().Upsert(ctx, signer)
}

func (s *SignerService) GetSigner(ctx context.Context, writerType, writerID string) (*model.Signer, error) {
	return s.store.Signers().Get(ctx, writerType, writerID)
}
