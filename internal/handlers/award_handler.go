package handlers

import (
	"log"
	"net/http"

	"github.com/clearlane/rewards/internal/services"
)

// AwardHandler receives activity events from the ride and emergency services.
type AwardHandler struct {
	service   *services.AwardService
	validator *services.ValidationHelper
}

func NewAwardHandler(service *services.AwardService) *AwardHandler {
	return &AwardHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// EmergencyAssist awards points for yielding to an emergency vehicle
// @Summary Award emergency assist
// @Description Credit a user for an emergency assist. Repeated deliveries return zero points with reason "duplicate".
// @Tags Awards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.EmergencyAssistRequest true "Emergency assist event"
// @Success 200 {object} services.AwardResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 503 {object} services.ErrorResponse
// @Router /awards/emergency-assist [post]
func (h *AwardHandler) EmergencyAssist(w http.ResponseWriter, r *http.Request) {
	var req services.EmergencyAssistRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.AwardEmergencyAssist(r.Context(), req)
	if err != nil {
		log.Printf("[AwardHandler] EmergencyAssist - user %s: %v", req.UserID, err)
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RideCompletion awards points for a completed ride
// @Summary Award ride completion
// @Tags Awards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body services.RideCompletionRequest true "Ride completion event"
// @Success 200 {object} services.AwardResult
// @Failure 400 {object} services.ErrorResponse
// @Router /awards/ride-completion [post]
func (h *AwardHandler) RideCompletion(w http.ResponseWriter, r *http.Request) {
	var req services.RideCompletionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.AwardRideCompletion(r.Context(), req)
	if err != nil {
		log.Printf("[AwardHandler] RideCompletion - user %s: %v", req.UserID, err)
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
