package rpc

import (
	"math/big"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fundchain/crypto"
	"fundchain/native/crowdfund"
)

func (s *Server) handleDonate(w http.ResponseWriter, r *http.Request) {
	donor, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	var req DonateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_amount", err.Error())
		return
	}
	accepted, err := s.node.Donate(id, donor, amount)
	s.respondAmount(w, id, accepted, err)
}

func (s *Server) handleCancelDonation(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.node.CancelDonation)
}

func (s *Server) handleRefundDonations(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.node.RefundDonations)
}

func (s *Server) handleClaimDonations(w http.ResponseWriter, r *http.Request) {
	s.settle(w, r, s.node.ClaimDonations)
}

func (s *Server) settle(w http.ResponseWriter, r *http.Request, op func([32]byte, [20]byte) (*big.Int, error)) {
	caller, ok := callerOrReject(w, r)
	if !ok {
		return
	}
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	amount, err := op(id, caller)
	s.respondAmount(w, id, amount, err)
}

func (s *Server) respondAmount(w http.ResponseWriter, id [32]byte, amount *big.Int, err error) {
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AmountResponse{Campaign: crowdfund.FormatID(id), Amount: amountString(amount)})
}

func (s *Server) handleGetContribution(w http.ResponseWriter, r *http.Request) {
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	donor, ok := parseAddressParam(w, "donor", chi.URLParam(r, "donor"))
	if !ok {
		return
	}
	contribution, err := s.node.Contribution(id, donor)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contributionResponse(contribution))
}

func (s *Server) handleListContributions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathCampaignID(w, r)
	if !ok {
		return
	}
	contributions, err := s.node.Contributions(id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]ContributionResponse, 0, len(contributions))
	for _, c := range contributions {
		out = append(out, contributionResponse(c))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := parseAddressParam(w, "address", chi.URLParam(r, "addr"))
	if !ok {
		return
	}
	balance, err := s.node.Balance(addr)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AccountResponse{Address: crypto.FormatFundAddress(addr), Balance: amountString(balance)})
}
