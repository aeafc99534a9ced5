package state

import (
	"encoding/binary"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"fundchain/native/crowdfund"
)

type storedCampaign struct {
	ID                [32]byte
	Title             string
	Description       string
	OrgName           string
	ProjectLink       string
	ProjectImage      string
	Authority         [20]byte
	Goal              *big.Int
	TotalDonated      *big.Int
	DonationCompleted bool
	Claimed           bool
	StartAt           *big.Int
	EndAt             *big.Int
	Status            uint8
}

func newStoredCampaign(c *crowdfund.Campaign) (*storedCampaign, error) {
	if c.StartAt < 0 || c.EndAt < 0 {
		return nil, fmt.Errorf("crowdfund: negative timestamps cannot be stored")
	}
	return &storedCampaign{
		ID:                c.ID,
		Title:             c.Title,
		Description:       c.Description,
		OrgName:           c.OrgName,
		ProjectLink:       c.ProjectLink,
		ProjectImage:      c.ProjectImage,
		Authority:         c.Authority,
		Goal:              new(big.Int).Set(c.Goal),
		TotalDonated:      new(big.Int).Set(c.TotalDonated),
		DonationCompleted: c.DonationCompleted,
		Claimed:           c.Claimed,
		StartAt:           big.NewInt(c.StartAt),
		EndAt:             big.NewInt(c.EndAt),
		Status:            uint8(c.Status),
	}, nil
}

func (s *storedCampaign) toCampaign() (*crowdfund.Campaign, error) {
	out := &crowdfund.Campaign{
		ID:                s.ID,
		Title:             s.Title,
		Description:       s.Description,
		OrgName:           s.OrgName,
		ProjectLink:       s.ProjectLink,
		ProjectImage:      s.ProjectImage,
		Authority:         s.Authority,
		Goal:              big.NewInt(0),
		TotalDonated:      big.NewInt(0),
		DonationCompleted: s.DonationCompleted,
		Claimed:           s.Claimed,
		Status:            crowdfund.CampaignStatus(s.Status),
	}
	if s.Goal != nil {
		out.Goal.Set(s.Goal)
	}
	if s.TotalDonated != nil {
		out.TotalDonated.Set(s.TotalDonated)
	}
	if s.StartAt != nil {
		out.StartAt = s.StartAt.Int64()
	}
	if s.EndAt != nil {
		out.EndAt = s.EndAt.Int64()
	}
	return crowdfund.SanitizeCampaign(out)
}

type storedContribution struct {
	Campaign  [32]byte
	Authority [20]byte
	Amount    *big.Int
}

func campaignKey(id [32]byte) []byte { return prefixed(campaignRecordPrefix, id[:]) }

func contributionKey(id [32]byte, donor [20]byte) []byte {
	return prefixed(contributionRecordPrefix, id[:], donor[:])
}

func contributorIndexKey(id [32]byte) []byte { return prefixed(contributorIndexPrefix, id[:]) }

// CampaignGet loads the campaign with the supplied identifier.
func (t *Txn) CampaignGet(id [32]byte) (*crowdfund.Campaign, bool, error) {
	var stored storedCampaign
	ok, err := t.KVGet(campaignKey(id), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	campaign, err := stored.toCampaign()
	if err != nil {
		return nil, false, err
	}
	return campaign, true, nil
}

// CampaignPut persists the campaign, registering it in the index on first
// write.
func (t *Txn) CampaignPut(c *crowdfund.Campaign) error {
	sanitized, err := crowdfund.SanitizeCampaign(c)
	if err != nil {
		return err
	}
	exists, err := t.KVGet(campaignKey(sanitized.ID), nil)
	if err != nil {
		return err
	}
	stored, err := newStoredCampaign(sanitized)
	if err != nil {
		return err
	}
	if err := t.KVPut(campaignKey(sanitized.ID), stored); err != nil {
		return err
	}
	if !exists {
		return t.KVAppend(campaignIndexKey, sanitized.ID[:])
	}
	return nil
}

// CampaignNextID derives the identifier of the authority's next campaign from
// its creation nonce and bumps the nonce.
func (t *Txn) CampaignNextID(authority [20]byte) ([32]byte, error) {
	var id [32]byte
	nonceKey := prefixed(campaignNoncePrefix, authority[:])
	var nonce uint64
	if _, err := t.KVGet(nonceKey, &nonce); err != nil {
		return id, err
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], nonce)
	copy(id[:], ethcrypto.Keccak256(campaignIDDomain, authority[:], buf[:]))
	if err := t.KVPut(nonceKey, nonce+1); err != nil {
		return id, err
	}
	return id, nil
}

// CampaignIDs lists every campaign in creation order.
func (t *Txn) CampaignIDs() ([][32]byte, error) {
	list, err := t.KVGetList(campaignIndexKey)
	if err != nil {
		return nil, err
	}
	out := make([][32]byte, 0, len(list))
	for _, raw := range list {
		if len(raw) != 32 {
			return nil, fmt.Errorf("state: malformed campaign index entry")
		}
		var id [32]byte
		copy(id[:], raw)
		out = append(out, id)
	}
	return out, nil
}

// ContributionGet loads a donor's contribution to a campaign.
func (t *Txn) ContributionGet(id [32]byte, donor [20]byte) (*crowdfund.Contribution, bool, error) {
	var stored storedContribution
	ok, err := t.KVGet(contributionKey(id, donor), &stored)
	if err != nil || !ok {
		return nil, ok, err
	}
	out := &crowdfund.Contribution{Campaign: stored.Campaign, Authority: stored.Authority, Amount: big.NewInt(0)}
	if stored.Amount != nil {
		out.Amount.Set(stored.Amount)
	}
	return out, true, nil
}

// ContributionPut persists a contribution and records the donor against the
// campaign.
func (t *Txn) ContributionPut(c *crowdfund.Contribution) error {
	sanitized, err := crowdfund.SanitizeContribution(c)
	if err != nil {
		return err
	}
	stored := &storedContribution{
		Campaign:  sanitized.Campaign,
		Authority: sanitized.Authority,
		Amount:    sanitized.Amount,
	}
	if err := t.KVPut(contributionKey(sanitized.Campaign, sanitized.Authority), stored); err != nil {
		return err
	}
	return t.KVAppend(contributorIndexKey(sanitized.Campaign), sanitized.Authority[:])
}

// Contributors lists the donors that ever contributed to the campaign.
func (t *Txn) Contributors(id [32]byte) ([][20]byte, error) {
	list, err := t.KVGetList(contributorIndexKey(id))
	if err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(list))
	for _, raw := range list {
		if len(raw) != 20 {
			return nil, fmt.Errorf("state: malformed contributor index entry")
		}
		var addr [20]byte
		copy(addr[:], raw)
		out = append(out, addr)
	}
	return out, nil
}
