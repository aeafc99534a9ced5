package rpc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"

	"fundchain/crypto"
	"fundchain/native/crowdfund"
)

// CampaignResponse is the wire form of a campaign.
type CampaignResponse struct {
	ID                string `json:"id"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	OrgName           string `json:"orgName"`
	ProjectLink       string `json:"projectLink"`
	ProjectImage      string `json:"projectImage"`
	Authority         string `json:"authority"`
	Vault             string `json:"vault"`
	Goal              string `json:"goal"`
	TotalDonated      string `json:"totalDonated"`
	Remaining         string `json:"remaining"`
	DonationCompleted bool   `json:"donationCompleted"`
	Claimed           bool   `json:"claimed"`
	StartAt           int64  `json:"startAt"`
	EndAt             int64  `json:"endAt"`
	Status            string `json:"status"`
}

func campaignResponse(c *crowdfund.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:                crowdfund.FormatID(c.ID),
		Title:             c.Title,
		Description:       c.Description,
		OrgName:           c.OrgName,
		ProjectLink:       c.ProjectLink,
		ProjectImage:      c.ProjectImage,
		Authority:         crypto.FormatFundAddress(c.Authority),
		Vault:             crypto.FormatFundAddress(crowdfund.VaultAddress(c.ID)),
		Goal:              amountString(c.Goal),
		TotalDonated:      amountString(c.TotalDonated),
		Remaining:         amountString(c.Remaining()),
		DonationCompleted: c.DonationCompleted,
		Claimed:           c.Claimed,
		StartAt:           c.StartAt,
		EndAt:             c.EndAt,
		Status:            c.Status.String(),
	}
}

// ContributionResponse is the wire form of a donor's unsettled contribution.
type ContributionResponse struct {
	Campaign string `json:"campaign"`
	Donor    string `json:"donor"`
	Amount   string `json:"amount"`
}

func contributionResponse(c *crowdfund.Contribution) ContributionResponse {
	return ContributionResponse{
		Campaign: crowdfund.FormatID(c.Campaign),
		Donor:    crypto.FormatFundAddress(c.Authority),
		Amount:   amountString(c.Amount),
	}
}

// AccountResponse reports a ledger holding.
type AccountResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// AmountResponse reports the value moved by a donation, refund or claim.
type AmountResponse struct {
	Campaign string `json:"campaign"`
	Amount   string `json:"amount"`
}

// CreateCampaignRequest is the body of POST /campaigns.
type CreateCampaignRequest struct {
	Title        string `json:"title"`
	Description  string `json:"description"`
	OrgName      string `json:"orgName"`
	ProjectLink  string `json:"projectLink"`
	ProjectImage string `json:"projectImage"`
	Goal         string `json:"goal"`
	StartAt      int64  `json:"startAt"`
	EndAt        int64  `json:"endAt"`
}

// UpdateMetadataRequest is the body of PATCH /campaigns/{id}. Omitted fields
// keep their stored value.
type UpdateMetadataRequest struct {
	Title        *string `json:"title,omitempty"`
	Description  *string `json:"description,omitempty"`
	OrgName      *string `json:"orgName,omitempty"`
	ProjectLink  *string `json:"projectLink,omitempty"`
	ProjectImage *string `json:"projectImage,omitempty"`
}

func (r UpdateMetadataRequest) update() crowdfund.MetadataUpdate {
	return crowdfund.MetadataUpdate{
		Title:        r.Title,
		Description:  r.Description,
		OrgName:      r.OrgName,
		ProjectLink:  r.ProjectLink,
		ProjectImage: r.ProjectImage,
	}
}

// ExtendCampaignRequest is the body of POST /campaigns/{id}/extend.
type ExtendCampaignRequest struct {
	EndAt int64 `json:"endAt"`
}

// DonateRequest is the body of POST /campaigns/{id}/donations.
type DonateRequest struct {
	Amount string `json:"amount"`
}

// parseAmount accepts a base-10 integer in the uint256 range.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%s is required", field)
	}
	value, err := uint256.FromDecimal(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return value.ToBig(), nil
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
