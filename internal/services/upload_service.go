package services

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/chainlance/backend/internal/models"
	"github.com/chainlance/backend/internal/store"
)

// contentStore is the deliverable storage surface. Satisfied by
// store.IPFSStore.
type contentStore interface {
	Put(data []byte) (string, error)
	Get(cid string) ([]byte, error)
	GatewayURL(cid string) string
}

// UploadService stores deliverables: the original goes in as-is, images get a
// watermarked preview pinned alongside. The client sees only the preview until
// the checkpoint is paid.
type UploadService struct {
	store contentStore
	log   *zap.Logger
}

func NewUploadService(store contentStore, log *zap.Logger) *UploadService {
	return &UploadService{store: store, log: log}
}

const maxUploadBytes = 50 << 20

// UploadDeliverable pins the file and returns the original/preview pair.
// Non-image files reuse the original as their own preview.
func (s *UploadService) UploadDeliverable(filename string, data []byte) (models.DeliverableRef, error) {
	if len(data) == 0 {
		return models.DeliverableRef{}, fmt.Errorf("empty upload")
	}
	if len(data) > maxUploadBytes {
		return models.DeliverableRef{}, fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)
	}

	originalCID, err := s.store.Put(data)
	if err != nil {
		return models.DeliverableRef{}, &CollaboratorError{Op: "store original", Err: err}
	}

	previewCID := originalCID
	if store.IsImage(filename) {
		preview, err := store.Watermark(data)
		if err != nil {
			// An undecodable "image" still ships, just without a preview.
			s.log.Warn("watermark failed, using original as preview",
				zap.String("filename", filename), zap.Error(err))
		} else {
			previewCID, err = s.store.Put(preview)
			if err != nil {
				return models.DeliverableRef{}, &CollaboratorError{Op: "store preview", Err: err}
			}
		}
	}

	s.log.Info("deliverable stored",
		zap.String("original_cid", originalCID),
		zap.String("preview_cid", previewCID),
	)
	return models.DeliverableRef{OriginalCID: originalCID, PreviewCID: previewCID}, nil
}

// PreviewURL resolves the encoded ref to a public gateway link for the
// watermarked preview.
func (s *UploadService) PreviewURL(encoded string) (string, error) {
	ref, err := models.ParseDeliverableRef(encoded)
	if err != nil {
		return "", err
	}
	return s.store.GatewayURL(ref.PreviewCID), nil
}

// FetchOriginal returns the unwatermarked content. Callers must verify the
// requester is the unit's client or freelancer first.
func (s *UploadService) FetchOriginal(encoded string) ([]byte, error) {
	ref, err := models.ParseDeliverableRef(encoded)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Get(ref.OriginalCID)
	if err != nil {
		return nil, &CollaboratorError{Op: "fetch original", Err: err}
	}
	return data, nil
}
