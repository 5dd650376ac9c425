package dto

import "github.com/chainlance/backend/internal/models"

type ErrorResponse struct {
	Error string `json:"error"`
}

type AuthChallengeResponse struct {
	Message string `json:"message"` // exact text the wallet must sign
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

type TxResponse struct {
	TxHash string `json:"tx_hash"`
}

type UploadResponse struct {
	OriginalCID    string `json:"original_cid"`
	PreviewCID     string `json:"preview_cid"`
	DeliverableRef string `json:"deliverable_ref"`
	PreviewURL     string `json:"preview_url"`
}

type EscrowStatusResponse struct {
	Unit        *models.EscrowUnit        `json:"unit"`
	Checkpoints []models.CheckpointRecord `json:"checkpoints"`
}

type ListingResponse struct {
	Listing      *models.JobListing   `json:"listing"`
	Applications []models.Application `json:"applications,omitempty"`
}
