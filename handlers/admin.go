// handlers/admin.go
package handlers

import (
	"referral-tracking-system/middleware"
	"referral-tracking-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupAdminRoutes(app *fiber.App, bankService *services.BankService, statsService *services.StatsService, rewardService *services.RewardService) {
	// 🔐 Admin routes — user context plus the admin role.
	admin := app.Group("/s/admin", middleware.UserContextMiddleware(), middleware.RequireAdmin())

	// Aggregates
	admin.Get("/stats", statsService.HandleStats)
	admin.Get("/stats/export", statsService.HandleExport)

	// Bank CRUD
	admin.Get("/banks", bankService.HandleList)
	admin.Post("/banks", bankService.HandleAdd)
	admin.Put("/banks/:key", bankService.HandleUpdate)
	admin.Delete("/banks/:key", bankService.HandleDelete)

	// Settings
	admin.Put("/welcome", bankService.HandleSetWelcome)

	// Reward review
	admin.Get("/rewards/pending", rewardService.HandleListPending)
	admin.Get("/rewards/history", rewardService.HandleListHistory)
	admin.Post("/rewards/:id/resolve", rewardService.HandleResolve)
}
