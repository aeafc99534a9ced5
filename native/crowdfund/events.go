package crowdfund

import (
	"math/big"
	"strconv"

	"fundchain/core/events"
	"fundchain/core/types"
	"fundchain/crypto"
)

const (
	// EventTypeCampaignCreated is emitted when a new campaign is registered.
	EventTypeCampaignCreated = "crowdfund.campaign.created"
	// EventTypeCampaignCancelled is emitted when the authority cancels before start.
	EventTypeCampaignCancelled = "crowdfund.campaign.cancelled"
	// EventTypeCampaignMetadataUpdated is emitted after descriptive fields change.
	EventTypeCampaignMetadataUpdated = "crowdfund.campaign.metadata_updated"
	// EventTypeCampaignExtended is emitted when the donation window is lengthened.
	EventTypeCampaignExtended = "crowdfund.campaign.extended"
	// EventTypeCampaignClosed is emitted when the authority closes an ended campaign.
	EventTypeCampaignClosed = "crowdfund.campaign.closed"
	// EventTypeDonationReceived is emitted with the accepted (capped) amount.
	EventTypeDonationReceived = "crowdfund.donation.received"
	// EventTypeDonationCancelled is emitted when a donor cancels their contribution.
	EventTypeDonationCancelled = "crowdfund.donation.cancelled"
	// EventTypeDonationRefunded is emitted when a donor is refunded.
	EventTypeDonationRefunded = "crowdfund.donation.refunded"
	// EventTypeDonationsClaimed is emitted when the authority withdraws escrow.
	EventTypeDonationsClaimed = "crowdfund.donations.claimed"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func timeString(v int64) string { return strconv.FormatInt(v, 10) }

// CampaignCreatedEvent announces a campaign with its goal and window.
func CampaignCreatedEvent(c *Campaign) *types.Event {
	return &types.Event{
		Type: EventTypeCampaignCreated,
		Attributes: map[string]string{
			"campaign":    FormatID(c.ID),
			"authority":   crypto.FormatFundAddress(c.Authority),
			"title":       c.Title,
			"description": c.Description,
			"goal":        amountString(c.Goal),
			"startAt":     timeString(c.StartAt),
			"endAt":       timeString(c.EndAt),
		},
	}
}

// CampaignCancelledEvent carries only the campaign identity.
func CampaignCancelledEvent(id [32]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeCampaignCancelled,
		Attributes: map[string]string{"campaign": FormatID(id)},
	}
}

// CampaignMetadataUpdatedEvent reports the title and description after an update.
func CampaignMetadataUpdatedEvent(c *Campaign) *types.Event {
	return &types.Event{
		Type: EventTypeCampaignMetadataUpdated,
		Attributes: map[string]string{
			"campaign":    FormatID(c.ID),
			"title":       c.Title,
			"description": c.Description,
		},
	}
}

// CampaignExtendedEvent reports the new end of the donation window.
func CampaignExtendedEvent(id [32]byte, newEndAt int64) *types.Event {
	return &types.Event{
		Type: EventTypeCampaignExtended,
		Attributes: map[string]string{
			"campaign": FormatID(id),
			"newEndAt": timeString(newEndAt),
		},
	}
}

// CampaignClosedEvent carries only the campaign identity.
func CampaignClosedEvent(id [32]byte) *types.Event {
	return &types.Event{
		Type:       EventTypeCampaignClosed,
		Attributes: map[string]string{"campaign": FormatID(id)},
	}
}

func donorEvent(eventType string, id [32]byte, donor [20]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"campaign": FormatID(id),
			"donor":    crypto.FormatFundAddress(donor),
			"amount":   amountString(amount),
		},
	}
}

// DonationReceivedEvent reports the amount actually moved into escrow.
func DonationReceivedEvent(id [32]byte, donor [20]byte, accepted *big.Int) *types.Event {
	return donorEvent(EventTypeDonationReceived, id, donor, accepted)
}

// DonationCancelledEvent reports a contribution returned via cancellation.
func DonationCancelledEvent(id [32]byte, donor [20]byte, amount *big.Int) *types.Event {
	return donorEvent(EventTypeDonationCancelled, id, donor, amount)
}

// DonationRefundedEvent reports a contribution returned via refund.
func DonationRefundedEvent(id [32]byte, donor [20]byte, amount *big.Int) *types.Event {
	return donorEvent(EventTypeDonationRefunded, id, donor, amount)
}

// DonationsClaimedEvent reports the escrow amount paid to the authority.
func DonationsClaimedEvent(id [32]byte, amount *big.Int) *types.Event {
	return &types.Event{
		Type: EventTypeDonationsClaimed,
		Attributes: map[string]string{
			"campaign": FormatID(id),
			"amount":   amountString(amount),
		},
	}
}
