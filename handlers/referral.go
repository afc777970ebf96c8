// handlers/referral.go
package handlers

import (
	"referral-tracking-system/middleware"
	"referral-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupReferralRoutes(app *fiber.App, referralService *services.ReferralService, rewardService *services.RewardService) {
	// 🔐 Secured routes — require user context forwarded by the Gateway.
	// The gateway forwards paths like /api/v1/referral/s/start -> /s/start
	secured := app.Group("/s", middleware.UserContextMiddleware())

	// Entry event: register + attribute + personalized links
	secured.Post("/start", referralService.HandleStart)

	// Reward submission conversation
	secured.Post("/reward/start", rewardService.HandleStartSubmission)
	secured.Post("/reward/input", rewardService.HandleAdvanceSubmission)
	secured.Post("/reward/cancel", rewardService.HandleCancelSubmission)
}
