package dto

type AuthChallengeRequest struct {
	Address string `json:"address"`
}

type AuthLoginRequest struct {
	Address     string  `json:"address"`
	Signature   string  `json:"signature"`
	DisplayName *string `json:"display_name,omitempty"`
}

type CreateListingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	JobType     string `json:"job_type"`
	Deadline    string `json:"deadline"` // RFC3339
	MinPriceUSD string `json:"min_price_usd"` // decimal dollars, e.g. "250" or "99.50"
	MaxPriceUSD string `json:"max_price_usd"`
	Asset       string `json:"asset"`
	MetadataURI string `json:"metadata_uri,omitempty"`
}

type ApplyRequest struct {
	ProposedPriceUSD       string `json:"proposed_price_usd"`
	CancellationWindowDays int    `json:"cancellation_window_days"`
	EstimatedDelivery      string `json:"estimated_delivery"`
	PortfolioLink          string `json:"portfolio_link,omitempty"`
}

type ApproveApplicationRequest struct {
	ApplicationIndex int `json:"application_index"`
}

type SubmitCheckpointRequest struct {
	OriginalCID string `json:"original_cid"`
	PreviewCID  string `json:"preview_cid,omitempty"`
}
