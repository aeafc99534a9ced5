package crowdfund

import "math/big"

// ClaimDonations pays the full escrowed total to the authority once the window
// has ended with the goal met. The claim can succeed at most once.
func (e *Engine) ClaimDonations(id [32]byte, caller [20]byte) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	campaign, err := e.loadAuthorized(id, caller)
	if err != nil {
		return nil, err
	}
	if e.now() <= campaign.EndAt {
		return nil, ErrNotYetOver
	}
	if !campaign.DonationCompleted {
		return nil, ErrGoalNotMet
	}
	if campaign.Claimed {
		return nil, ErrAlreadyClaimed
	}
	amount := newBigInt(campaign.TotalDonated)
	if err := e.transfer(VaultAddress(id), campaign.Authority, amount); err != nil {
		return nil, err
	}
	campaign.Claimed = true
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	e.emit(DonationsClaimedEvent(id, amount))
	return amount, nil
}
