package core

import (
	"math/big"

	fundstate "fundchain/core/state"
	"fundchain/native/crowdfund"
)

// CampaignFilter narrows Campaigns. Nil fields match everything.
type CampaignFilter struct {
	Status    *crowdfund.CampaignStatus
	Authority *[20]byte
}

func (f CampaignFilter) match(c *crowdfund.Campaign) bool {
	if f.Status != nil && c.Status != *f.Status {
		return false
	}
	if f.Authority != nil && c.Authority != *f.Authority {
		return false
	}
	return true
}

// Campaign returns the stored campaign or crowdfund.ErrCampaignNotFound.
func (n *Node) Campaign(id [32]byte) (*crowdfund.Campaign, error) {
	var out *crowdfund.Campaign
	err := n.state.View(func(txn *fundstate.Txn) error {
		campaign, ok, err := txn.CampaignGet(id)
		if err != nil {
			return err
		}
		if !ok {
			return crowdfund.ErrCampaignNotFound
		}
		out = campaign
		return nil
	})
	return out, err
}

// Campaigns lists campaigns in creation order.
func (n *Node) Campaigns(filter CampaignFilter) ([]*crowdfund.Campaign, error) {
	var out []*crowdfund.Campaign
	err := n.state.View(func(txn *fundstate.Txn) error {
		ids, err := txn.CampaignIDs()
		if err != nil {
			return err
		}
		out = make([]*crowdfund.Campaign, 0, len(ids))
		for _, id := range ids {
			campaign, ok, err := txn.CampaignGet(id)
			if err != nil {
				return err
			}
			if ok && filter.match(campaign) {
				out = append(out, campaign)
			}
		}
		return nil
	})
	return out, err
}

// Contribution returns the donor's unsettled contribution. A donor that never
// contributed to an existing campaign reads as a zero contribution.
func (n *Node) Contribution(id [32]byte, donor [20]byte) (*crowdfund.Contribution, error) {
	var out *crowdfund.Contribution
	err := n.state.View(func(txn *fundstate.Txn) error {
		if _, ok, err := txn.CampaignGet(id); err != nil {
			return err
		} else if !ok {
			return crowdfund.ErrCampaignNotFound
		}
		contribution, ok, err := txn.ContributionGet(id, donor)
		if err != nil {
			return err
		}
		if !ok {
			contribution = &crowdfund.Contribution{Campaign: id, Authority: donor, Amount: big.NewInt(0)}
		}
		out = contribution
		return nil
	})
	return out, err
}

// Contributions lists every contribution recorded against the campaign,
// including settled ones at zero.
func (n *Node) Contributions(id [32]byte) ([]*crowdfund.Contribution, error) {
	var out []*crowdfund.Contribution
	err := n.state.View(func(txn *fundstate.Txn) error {
		if _, ok, err := txn.CampaignGet(id); err != nil {
			return err
		} else if !ok {
			return crowdfund.ErrCampaignNotFound
		}
		donors, err := txn.Contributors(id)
		if err != nil {
			return err
		}
		out = make([]*crowdfund.Contribution, 0, len(donors))
		for _, donor := range donors {
			contribution, ok, err := txn.ContributionGet(id, donor)
			if err != nil {
				return err
			}
			if ok {
				out = append(out, contribution)
			}
		}
		return nil
	})
	return out, err
}

// Balance returns the ledger holding of addr.
func (n *Node) Balance(addr [20]byte) (*big.Int, error) {
	var out *big.Int
	err := n.state.View(func(txn *fundstate.Txn) error {
		balance, err := txn.BalanceGet(addr)
		out = balance
		return err
	})
	return out, err
}

// VaultAddress returns the escrow holding of the campaign.
func (n *Node) VaultAddress(id [32]byte) [20]byte {
	return crowdfund.VaultAddress(id)
}
