package models

import (
	"strconv"
	"strings"
	"time"
)

// JobListing mirrors the job board contract's listing record. The chain is the
// source of truth; rows in postgres are a read-through projection and are only
// written from chain state (create, apply, approve saga, bind, deactivate).
type JobListing struct {
	JobID           uint64     `json:"job_id"`
	ClientAddress   string     `json:"client_address"`
	Title           string     `json:"title"`
	Description     string     `json:"description"`
	JobType         string     `json:"job_type"`
	Deadline        time.Time  `json:"deadline"`
	MinPriceUSD     string     `json:"min_price_usd"` // 18-decimal fixed point, numeric as string
	MaxPriceUSD     string     `json:"max_price_usd"`
	SettlementAsset string     `json:"settlement_asset"`
	MetadataURI     string     `json:"metadata_uri,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	IsActive        bool       `json:"is_active"`
	EscrowAddress   *string    `json:"escrow_address,omitempty"` // set once, by saga step 4
	SyncedAt        *time.Time `json:"-"`
}

// IsExpired reports whether the listing deadline has passed. Expiry is derived,
// never stored.
func (j *JobListing) IsExpired(now time.Time) bool {
	return !j.Deadline.IsZero() && now.After(j.Deadline)
}

// Application is one freelancer's proposal on a listing, identified by
// (job_id, application_index). IsApproved flips exactly once, on saga step 3.
type Application struct {
	JobID                  uint64    `json:"job_id"`
	Index                  int       `json:"index"`
	FreelancerAddress      string    `json:"freelancer_address"`
	ProposedPriceUSD       string    `json:"proposed_price_usd"`
	CancellationWindowDays int       `json:"cancellation_window_days"`
	EstimatedDelivery      string    `json:"estimated_delivery"` // free text, e.g. "3 weeks"
	PortfolioLink          string    `json:"portfolio_link,omitempty"`
	AppliedAt              time.Time `json:"applied_at"`
	IsApproved             bool      `json:"is_approved"`
}

// ParseEstimatedDelivery converts free-text delivery estimates ("3 weeks",
// "10 days", "1 month") into an absolute timestamp. Unparseable input falls
// back to 30 days out.
func ParseEstimatedDelivery(s string, now time.Time) time.Time {
	lower := strings.ToLower(strings.TrimSpace(s))
	n := leadingInt(lower)

	switch {
	case n > 0 && strings.Contains(lower, "week"):
		return now.AddDate(0, 0, n*7)
	case n > 0 && strings.Contains(lower, "month"):
		return now.AddDate(0, 0, n*30)
	case n > 0 && strings.Contains(lower, "day"):
		return now.AddDate(0, 0, n)
	}
	return now.AddDate(0, 0, 30)
}

func leadingInt(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return 0
	}
	return n
}
