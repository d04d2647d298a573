package handlers

import (
	"log"
	"net/http"

	"github.com/clearlane/rewards/internal/models"
	"github.com/clearlane/rewards/internal/services"
	"github.com/go-chi/chi/v5"
)

// RewardsHandler exposes balance, catalog and redemption operations.
type RewardsHandler struct {
	ledger      *services.LedgerService
	catalog     *services.CatalogService
	redemptions *services.RedemptionService
}

func NewRewardsHandler(ledger *services.LedgerService, catalog *services.CatalogService, redemptions *services.RedemptionService) *RewardsHandler {
	return &RewardsHandler{
		ledger:      ledger,
		catalog:     catalog,
		redemptions: redemptions,
	}
}

// GetBalance returns the caller's point balance
// @Summary Get balance
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{userId=string,balance=int64}
// @Router /balance [get]
func (h *RewardsHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "balance": balance})
}

// GetLedger returns the caller's recent ledger entries
// @Summary Ledger history
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries (default 20, max 100)"
// @Success 200 {array} models.LedgerEntry
// @Router /ledger [get]
func (h *RewardsHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.History(r.Context(), userID, queryLimit(r))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// GetCatalog lists rewards with the caller's eligibility
// @Summary Reward catalog
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Success 200 {array} services.CatalogItem
// @Router /rewards [get]
func (h *RewardsHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	items, err := h.catalog.GetCatalog(r.Context(), userID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// CanRedeem reports advisory eligibility for one reward
// @Summary Check eligibility
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param rewardId path string true "Reward ID"
// @Success 200 {object} services.Eligibility
// @Failure 404 {object} services.ErrorResponse
// @Router /rewards/{rewardId}/eligibility [get]
func (h *RewardsHandler) CanRedeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	eligibility, err := h.catalog.CanRedeem(r.Context(), userID, chi.URLParam(r, "rewardId"))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibility)
}

// Redeem spends points on a reward
// @Summary Redeem reward
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param rewardId path string true "Reward ID"
// @Success 201 {object} services.RedeemResult
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Failure 422 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /rewards/{rewardId}/redeem [post]
func (h *RewardsHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	rewardID := chi.URLParam(r, "rewardId")

	result, err := h.redemptions.Redeem(r.Context(), userID, rewardID)
	if err != nil {
		log.Printf("[RewardsHandler] Redeem - user %s reward %s: %v", userID, rewardID, err)
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetRedemptions returns the caller's redemption history
// @Summary Redemption history
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries (default 20, max 100)"
// @Success 200 {array} models.Redemption
// @Router /redemptions [get]
func (h *RewardsHandler) GetRedemptions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	history, err := h.redemptions.GetRedemptionHistory(r.Context(), userID, queryLimit(r))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

// ValidateCode checks whether a redemption code can still be claimed
// @Summary Validate redemption code
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Param code path string true "Redemption code"
// @Success 200 {object} services.CodeValidation
// @Router /redemptions/{code}/validate [get]
func (h *RewardsHandler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	result, err := h.redemptions.ValidateCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RedemptionQR renders a redemption code as a PNG QR image
// @Summary Redemption QR
// @Tags Rewards
// @Produce png
// @Security BearerAuth
// @Param code path string true "Redemption code"
// @Success 200 {file} binary
// @Router /redemptions/{code}/qr [get]
func (h *RewardsHandler) RedemptionQR(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	png, err := h.redemptions.RedemptionQR(r.Context(), userID, chi.URLParam(r, "code"))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

// ApproveRedemption moves a pending redemption to APPROVED
// @Summary Approve redemption
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param code path string true "Redemption code"
// @Success 200 {object} models.Redemption
// @Failure 409 {object} services.ErrorResponse
// @Router /admin/redemptions/{code}/approve [post]
func (h *RewardsHandler) ApproveRedemption(w http.ResponseWriter, r *http.Request) {
	redemption, err := h.redemptions.Approve(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

type fulfillRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// FulfillRedemption marks a redemption as handed over
// @Summary Fulfill redemption
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param code path string true "Redemption code"
// @Param request body object{notes=string} false "Fulfillment notes"
// @Success 200 {object} models.Redemption
// @Failure 409 {object} services.ErrorResponse
// @Failure 410 {object} services.ErrorResponse
// @Router /admin/redemptions/{code}/fulfill [post]
func (h *RewardsHandler) FulfillRedemption(w http.ResponseWriter, r *http.Request) {
	var req fulfillRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	if req.Notes != nil && len(*req.Notes) > 500 {
		services.SendErrorResponse(w, "Notes too long", http.StatusBadRequest, nil)
		return
	}

	redemption, err := h.redemptions.Fulfill(r.Context(), chi.URLParam(r, "code"), req.Notes)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

// CancelRedemption closes an open redemption without refund
// @Summary Cancel redemption
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param code path string true "Redemption code"
// @Success 200 {object} models.Redemption
// @Router /admin/redemptions/{code}/cancel [post]
func (h *RewardsHandler) CancelRedemption(w http.ResponseWriter, r *http.Request) {
	redemption, err := h.redemptions.Cancel(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, redemption)
}

// ExpireRedemptions runs the expiry sweep on demand
// @Summary Expire overdue redemptions
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{expired=int64}
// @Router /admin/redemptions/expire [post]
func (h *RewardsHandler) ExpireRedemptions(w http.ResponseWriter, r *http.Request) {
	expired, err := h.redemptions.ExpireDue(r.Context())
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expired": expired})
}

// UpsertReward creates or edits a catalog item
// @Summary Upsert reward
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.RewardDefinition true "Reward definition"
// @Success 200 {object} models.RewardDefinition
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/rewards [put]
func (h *RewardsHandler) UpsertReward(w http.ResponseWriter, r *http.Request) {
	var reward models.RewardDefinition
	if !decodeJSON(w, r, &reward) {
		return
	}

	if err := h.catalog.UpsertReward(r.Context(), &reward); err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reward)
}

// Reconcile compares a user's stored balance with the ledger
// @Summary Reconcile balance
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param userId path string true "User ID"
// @Success 200 {object} models.Reconciliation
// @Router /admin/accounts/{userId}/reconcile [get]
func (h *RewardsHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ledger.Reconcile(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
