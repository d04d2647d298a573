package handlers

import (
	"net/http"

	"github.com/clearlane/rewards/internal/models"
	"github.com/clearlane/rewards/internal/services"
)

type AchievementHandler struct {
	service *services.AchievementService
}

func NewAchievementHandler(service *services.AchievementService) *AchievementHandler {
	return &AchievementHandler{service: service}
}

// GetAll lists the active achievement definitions
// @Summary Achievement catalog
// @Tags Achievements
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.AchievementDefinition
// @Router /achievements [get]
func (h *AchievementHandler) GetAll(w http.ResponseWriter, r *http.Request) {
	defs, err := h.service.GetAllAchievements(r.Context())
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, defs)
}

// GetMine returns the caller's progress on every achievement
// @Summary My achievements
// @Tags Achievements
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.UserAchievement
// @Router /achievements/me [get]
func (h *AchievementHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	progress, err := h.service.GetUserAchievements(r.Context(), userID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

// Check re-evaluates every achievement for the caller
// @Summary Re-check achievements
// @Tags Achievements
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{unlocked=[]models.UserAchievement}
// @Router /achievements/check [post]
func (h *AchievementHandler) Check(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	unlocked, err := h.service.CheckAndUnlock(r.Context(), userID)
	if err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unlocked": unlocked})
}

// Upsert creates or edits an achievement definition
// @Summary Upsert achievement
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.AchievementDefinition true "Achievement definition"
// @Success 200 {object} models.AchievementDefinition
// @Failure 400 {object} services.ErrorResponse
// @Router /admin/achievements [put]
func (h *AchievementHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var def models.AchievementDefinition
	if !decodeJSON(w, r, &def) {
		return
	}

	if err := h.service.UpsertAchievement(r.Context(), &def); err != nil {
		services.SendDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}
