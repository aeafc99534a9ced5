package crowdfund

import (
	"math/big"

	"fundchain/core/types"
)

// Donate moves min(amount, remaining goal) from the donor into the campaign
// vault and credits the donor's contribution by the same amount. Any excess
// above the remaining goal is never taken. The accepted amount is returned.
func (e *Engine) Donate(id [32]byte, donor [20]byte, amount *big.Int) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	if campaign.Status == CampaignCancelled {
		return nil, ErrCampaignNotActive
	}
	now := e.now()
	if now < campaign.StartAt {
		return nil, ErrNotStarted
	}
	if now > campaign.EndAt {
		return nil, ErrCampaignOver
	}
	if campaign.DonationCompleted {
		return nil, ErrGoalAlreadyMet
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrZeroAmount
	}

	accepted := newBigInt(amount)
	if remaining := campaign.Remaining(); accepted.Cmp(remaining) > 0 {
		accepted = remaining
	}

	contribution, ok, err := e.state.ContributionGet(id, donor)
	if err != nil {
		return nil, err
	}
	if !ok || contribution == nil {
		contribution = &Contribution{Campaign: id, Authority: donor, Amount: big.NewInt(0)}
	} else {
		contribution = contribution.Clone()
	}

	if err := e.transfer(donor, VaultAddress(id), accepted); err != nil {
		return nil, err
	}

	campaign.TotalDonated = new(big.Int).Add(campaign.TotalDonated, accepted)
	if campaign.TotalDonated.Cmp(campaign.Goal) >= 0 {
		campaign.DonationCompleted = true
	}
	contribution.Authority = donor
	contribution.Amount = new(big.Int).Add(contribution.Amount, accepted)

	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	if err := e.state.ContributionPut(contribution); err != nil {
		return nil, err
	}
	e.emit(DonationReceivedEvent(id, donor, accepted))
	return new(big.Int).Set(accepted), nil
}

// CancelDonation returns the donor's unsettled contribution once the window
// has closed without reaching the goal.
func (e *Engine) CancelDonation(id [32]byte, donor [20]byte) (*big.Int, error) {
	return e.settleContribution(id, donor, DonationCancelledEvent)
}

// RefundDonations is the refund-named entry point to the same settlement as
// CancelDonation; only the emitted event differs.
func (e *Engine) RefundDonations(id [32]byte, donor [20]byte) (*big.Int, error) {
	return e.settleContribution(id, donor, DonationRefundedEvent)
}

// settleContribution pays out the contribution balance from escrow and zeroes
// it, so a second settlement finds nothing to refund.
func (e *Engine) settleContribution(id [32]byte, donor [20]byte, eventFn func([32]byte, [20]byte, *big.Int) *types.Event) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	campaign, err := e.loadCampaign(id)
	if err != nil {
		return nil, err
	}
	if e.now() <= campaign.EndAt {
		return nil, ErrNotYetOver
	}
	if campaign.DonationCompleted {
		return nil, ErrGoalAlreadyMet
	}
	contribution, ok, err := e.state.ContributionGet(id, donor)
	if err != nil {
		return nil, err
	}
	if !ok || contribution == nil || contribution.Amount == nil || contribution.Amount.Sign() <= 0 {
		return nil, ErrNothingToRefund
	}
	contribution = contribution.Clone()
	amount := newBigInt(contribution.Amount)

	if err := e.transfer(VaultAddress(id), donor, amount); err != nil {
		return nil, err
	}
	contribution.Amount = big.NewInt(0)
	if err := e.state.ContributionPut(contribution); err != nil {
		return nil, err
	}
	e.emit(eventFn(id, donor, amount))
	return amount, nil
}
