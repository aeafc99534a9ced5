package crowdfund

import "math/big"

// CreateCampaign validates the window and goal, assigns an identifier and
// persists an Active campaign owned by authority.
func (e *Engine) CreateCampaign(authority [20]byte, params CreateParams) (*Campaign, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	now := e.now()
	if params.StartAt < now {
		return nil, ErrInvalidStartTime
	}
	if params.EndAt <= params.StartAt {
		return nil, ErrInvalidWindow
	}
	if params.Goal == nil || params.Goal.Sign() <= 0 {
		return nil, ErrInvalidGoal
	}
	id, err := e.state.CampaignNextID(authority)
	if err != nil {
		return nil, err
	}
	campaign := &Campaign{
		ID:           id,
		Title:        params.Title,
		Description:  params.Description,
		OrgName:      params.OrgName,
		ProjectLink:  params.ProjectLink,
		ProjectImage: params.ProjectImage,
		Authority:    authority,
		Goal:         new(big.Int).Set(params.Goal),
		TotalDonated: big.NewInt(0),
		StartAt:      params.StartAt,
		EndAt:        params.EndAt,
		Status:       CampaignActive,
	}
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	e.emit(CampaignCreatedEvent(campaign))
	return campaign.Clone(), nil
}

// CancelCampaign marks a campaign Cancelled. Only possible before the window
// opens, so no escrowed funds can exist.
func (e *Engine) CancelCampaign(id [32]byte, caller [20]byte) error {
	campaign, err := e.loadAuthorized(id, caller)
	if err != nil {
		return err
	}
	if e.now() >= campaign.StartAt {
		return ErrAlreadyStarted
	}
	if campaign.Status != CampaignActive {
		return ErrCampaignNotActive
	}
	campaign.Status = CampaignCancelled
	if err := e.storeCampaign(campaign); err != nil {
		return err
	}
	e.emit(CampaignCancelledEvent(campaign.ID))
	return nil
}

// UpdateCampaignMetadata replaces the supplied descriptive fields. There is no
// time or status precondition.
func (e *Engine) UpdateCampaignMetadata(id [32]byte, caller [20]byte, update MetadataUpdate) (*Campaign, error) {
	campaign, err := e.loadAuthorized(id, caller)
	if err != nil {
		return nil, err
	}
	if update.Title != nil {
		campaign.Title = *update.Title
	}
	if update.Description != nil {
		campaign.Description = *update.Description
	}
	if update.OrgName != nil {
		campaign.OrgName = *update.OrgName
	}
	if update.ProjectLink != nil {
		campaign.ProjectLink = *update.ProjectLink
	}
	if update.ProjectImage != nil {
		campaign.ProjectImage = *update.ProjectImage
	}
	if err := e.storeCampaign(campaign); err != nil {
		return nil, err
	}
	e.emit(CampaignMetadataUpdatedEvent(campaign))
	return campaign.Clone(), nil
}

// ExtendCampaign moves the end of the donation window strictly later. An ended
// window is never reopened. Checks run in the order ended, not active, too
// short, in the past.
func (e *Engine) ExtendCampaign(id [32]byte, caller [20]byte, newEndAt int64) error {
	campaign, err := e.loadAuthorized(id, caller)
	if err != nil {
		return err
	}
	if e.now() > campaign.EndAt {
		return ErrCampaignOver
	}
	if campaign.Status != CampaignActive {
		return ErrCampaignNotActive
	}
	if newEndAt <= campaign.EndAt {
		return ErrWindowTooShort
	}
	if newEndAt <= e.now() {
		return ErrInvalidStartTime
	}
	campaign.EndAt = newEndAt
	if err := e.storeCampaign(campaign); err != nil {
		return err
	}
	e.emit(CampaignExtendedEvent(campaign.ID, newEndAt))
	return nil
}

// CloseCampaign marks an ended campaign Closed. Settlement is independent of
// closure and remains available afterwards.
func (e *Engine) CloseCampaign(id [32]byte, caller [20]byte) error {
	campaign, err := e.loadAuthorized(id, caller)
	if err != nil {
		return err
	}
	if campaign.Status != CampaignActive {
		return ErrCampaignNotActive
	}
	if e.now() <= campaign.EndAt {
		return ErrNotYetOver
	}
	campaign.Status = CampaignClosed
	if err := e.storeCampaign(campaign); err != nil {
		return err
	}
	e.emit(CampaignClosedEvent(campaign.ID))
	return nil
}
