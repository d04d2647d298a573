package handlers

import (
	"github.com/clearlane/rewards/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// Mount registers the /api/v1 routes. Every route requires a bearer token;
// award intake is limited to service callers and /admin to operators.
func Mount(r chi.Router, awards *AwardHandler, rewards *RewardsHandler, achievements *AchievementHandler) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleService, middleware.RoleAdmin))

			r.Post("/awards/emergency-assist", awards.EmergencyAssist)
			r.Post("/awards/ride-completion", awards.RideCompletion)
			r.Get("/redemptions/{code}/validate", rewards.ValidateCode)
		})

		r.Get("/balance", rewards.GetBalance)
		r.Get("/ledger", rewards.GetLedger)
		r.Get("/rewards", rewards.GetCatalog)
		r.Get("/rewards/{rewardId}/eligibility", rewards.CanRedeem)
		r.Post("/rewards/{rewardId}/redeem", rewards.Redeem)
		r.Get("/redemptions", rewards.GetRedemptions)
		r.Get("/redemptions/{code}/qr", rewards.RedemptionQR)

		r.Get("/achievements", achievements.GetAll)
		r.Get("/achievements/me", achievements.GetMine)
		r.Post("/achievements/check", achievements.Check)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(middleware.RoleAdmin))

			r.Put("/rewards", rewards.UpsertReward)
			r.Put("/achievements", achievements.Upsert)
			r.Post("/redemptions/expire", rewards.ExpireRedemptions)
			r.Post("/redemptions/{code}/approve", rewards.ApproveRedemption)
			r.Post("/redemptions/{code}/fulfill", rewards.FulfillRedemption)
			r.Post("/redemptions/{code}/cancel", rewards.CancelRedemption)
			r.Get("/accounts/{userId}/reconcile", rewards.Reconcile)
		})
	})
}
