package crowdfund

import (
	"fmt"
	"math/big"
	"strings"
)

// CampaignStatus enumerates the lifecycle states of a campaign. Cancelled and
// Closed are terminal.
type CampaignStatus uint8

const (
	CampaignActive CampaignStatus = iota
	CampaignCancelled
	CampaignClosed
)

// Valid reports whether the status value is within the supported range.
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignActive, CampaignCancelled, CampaignClosed:
		return true
	default:
		return false
	}
}

func (s CampaignStatus) String() string {
	switch s {
	case CampaignActive:
		return "active"
	case CampaignCancelled:
		return "cancelled"
	case CampaignClosed:
		return "closed"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// ParseStatus converts the textual form produced by String back into a status.
func ParseStatus(raw string) (CampaignStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return CampaignActive, nil
	case "cancelled", "canceled":
		return CampaignCancelled, nil
	case "closed":
		return CampaignClosed, nil
	default:
		return 0, fmt.Errorf("unknown campaign status %q", raw)
	}
}

// Campaign is the persistent record of a single crowdfunding effort. Funds
// accepted for the campaign sit in the vault derived from ID until they are
// claimed by the authority or refunded to donors. DonationCompleted latches
// once TotalDonated reaches Goal and never resets.
type Campaign struct {
	ID                [32]byte       `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description"`
	OrgName           string         `json:"orgName"`
	ProjectLink       string         `json:"projectLink"`
	ProjectImage      string         `json:"projectImage"`
	Authority         [20]byte       `json:"authority"`
	Goal              *big.Int       `json:"goal"`
	TotalDonated      *big.Int       `json:"totalDonated"`
	DonationCompleted bool           `json:"donationCompleted"`
	Claimed           bool           `json:"claimed"`
	StartAt           int64          `json:"startAt"`
	EndAt             int64          `json:"endAt"`
	Status            CampaignStatus `json:"status"`
}

// Clone returns a deep copy of the campaign so callers can safely mutate the
// copy without affecting the stored instance.
func (c *Campaign) Clone() *Campaign {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Goal = newBigInt(c.Goal)
	clone.TotalDonated = newBigInt(c.TotalDonated)
	return &clone
}

// Remaining returns max(goal - total_donated, 0).
func (c *Campaign) Remaining() *big.Int {
	if c == nil {
		return big.NewInt(0)
	}
	remaining := new(big.Int).Sub(newBigInt(c.Goal), newBigInt(c.TotalDonated))
	if remaining.Sign() < 0 {
		return big.NewInt(0)
	}
	return remaining
}

// Contribution tracks the unsettled amount a single donor has placed into a
// campaign's escrow.
type Contribution struct {
	Campaign  [32]byte `json:"campaign"`
	Authority [20]byte `json:"authority"`
	Amount    *big.Int `json:"amount"`
}

// Clone returns a deep copy of the contribution.
func (c *Contribution) Clone() *Contribution {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Amount = newBigInt(c.Amount)
	return &clone
}

// CreateParams bundles the caller supplied fields of a new campaign.
type CreateParams struct {
	Title        string
	Description  string
	OrgName      string
	ProjectLink  string
	ProjectImage string
	Goal         *big.Int
	StartAt      int64
	EndAt        int64
}

// MetadataUpdate carries optional replacements for the descriptive fields. Nil
// pointers leave the stored value untouched.
type MetadataUpdate struct {
	Title        *string
	Description  *string
	OrgName      *string
	ProjectLink  *string
	ProjectImage *string
}

// Empty reports whether the update would change nothing.
func (u MetadataUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.OrgName == nil && u.ProjectLink == nil && u.ProjectImage == nil
}

// SanitizeCampaign validates a campaign record against the bookkeeping
// invariants and returns a normalised clone with non-nil amounts.
func SanitizeCampaign(c *Campaign) (*Campaign, error) {
	if c == nil {
		return nil, fmt.Errorf("nil campaign")
	}
	clone := c.Clone()
	if clone.Goal.Sign() <= 0 {
		return nil, fmt.Errorf("campaign goal must be positive")
	}
	if clone.TotalDonated.Sign() < 0 {
		return nil, fmt.Errorf("campaign total donated must be non-negative")
	}
	if clone.TotalDonated.Cmp(clone.Goal) > 0 {
		return nil, fmt.Errorf("campaign total donated exceeds goal")
	}
	if clone.DonationCompleted != (clone.TotalDonated.Cmp(clone.Goal) >= 0) {
		return nil, fmt.Errorf("campaign completion flag inconsistent with totals")
	}
	if clone.Claimed && !clone.DonationCompleted {
		return nil, fmt.Errorf("campaign claimed before completion")
	}
	if clone.EndAt <= clone.StartAt {
		return nil, fmt.Errorf("campaign window end must follow start")
	}
	if !clone.Status.Valid() {
		return nil, fmt.Errorf("invalid campaign status: %d", clone.Status)
	}
	return clone, nil
}

// SanitizeContribution validates a contribution record.
func SanitizeContribution(c *Contribution) (*Contribution, error) {
	if c == nil {
		return nil, fmt.Errorf("nil contribution")
	}
	clone := c.Clone()
	if clone.Amount.Sign() < 0 {
		return nil, fmt.Errorf("contribution amount must be non-negative")
	}
	return clone, nil
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
