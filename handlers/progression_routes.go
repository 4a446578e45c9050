// handlers/progression_routes.go
package handlers

import (
	"errors"
	"strconv"
	"time"

	"coach-gamification/middleware"
	"coach-gamification/services"
	"coach-gamification/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type Deps struct {
	Progression *services.ProgressionService
	Badges      *services.BadgeService
	Streaks     *services.StreakService
	Stats       *services.StatsService
	Actions     *services.DailyActionService
	Rollup      *workers.StreakRollupWorker
	Location    *time.Location
}

func SetupProgressionRoutes(app *fiber.App, d Deps) {
	if d.Location == nil {
		d.Location = time.UTC
	}
	log := logrus.WithField("component", "routes")

	// The gateway forwards /api/v1/coach/user/progress -> /user/progress
	api := app.Group("/", middleware.UserContextMiddleware())
	secured := api.Group("/s")
	admin := secured.Group("/admin", middleware.RequireRole("admin"))

	api.Get("/user/progress", func(c *fiber.Ctx) error {
		userID, ok := currentUser(c)
		if !ok {
			return missingUser(c)
		}
		snap, err := d.Stats.GetGamificationStats(c.UserContext(), userID)
		if err != nil {
			return fail(c, "failed to load progress", err)
		}
		return c.JSON(snap)
	})

	api.Get("/user/progress/history", func(c *fiber.Ctx) error {
		userID, ok := currentUser(c)
		if !ok {
			return missingUser(c)
		}
		limit := c.QueryInt("limit", 20)
		history, err := d.Progression.RecentHistory(c.UserContext(), userID, limit)
		if err != nil {
			return fail(c, "failed to get history", err)
		}
		return c.JSON(history)
	})

	api.Get("/levels", func(c *fiber.Ctx) error {
		raw := c.Query("points")
		if raw == "" {
			return c.JSON(d.Progression.Catalog.Levels)
		}
		points, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "points must be an integer",
				"cause": err.Error(),
			})
		}
		return c.JSON(d.Progression.GetLevelFromPoints(points))
	})

	secured.Post("/events/points", func(c *fiber.Ctx) error {
		var req struct {
			Reason      string `json:"reason" validate:"required,max=64"`
			ReferenceID string `json:"reference_id" validate:"max=64"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		userID := c.Locals("user_id").(string)
		ctx := c.UserContext()

		if _, err := d.Progression.EnsureProgressRecord(ctx, userID); err != nil {
			return fail(c, "failed to create progress record", err)
		}
		res, err := d.Progression.AwardForReason(ctx, userID, req.Reason, req.ReferenceID)
		if err != nil {
			return fail(c, "points award failed", err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	secured.Post("/events/badge", func(c *fiber.Ctx) error {
		var req struct {
			BadgeID string `json:"badge_id" validate:"required,max=64"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		userID := c.Locals("user_id").(string)
		ctx := c.UserContext()

		// level and streak badges are only granted by the engine itself
		if def, ok := d.Badges.Catalog.Badge(req.BadgeID); ok && def.Criteria.Kind != services.CriteriaEvent {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "badge is not claimable by event",
				"cause": string(def.Criteria.Kind),
			})
		}
		if _, err := d.Progression.EnsureProgressRecord(ctx, userID); err != nil {
			return fail(c, "failed to create progress record", err)
		}
		award, err := d.Badges.AwardBadge(ctx, userID, req.BadgeID)
		if err != nil {
			return fail(c, "badge award failed", err)
		}
		return c.JSON(award)
	})

	secured.Post("/events/daily-completion", func(c *fiber.Ctx) error {
		var req struct {
			Day string `json:"day" validate:"required,datetime=2006-01-02"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		day, err := services.ParseDay(req.Day, d.Location)
		if err != nil {
			return fail(c, "invalid day", err)
		}
		userID := c.Locals("user_id").(string)
		ctx := c.UserContext()

		if _, err := d.Progression.EnsureProgressRecord(ctx, userID); err != nil {
			return fail(c, "failed to create progress record", err)
		}
		complete, err := d.Badges.CheckDailyCompletionBadge(ctx, userID, day)
		if err != nil {
			return fail(c, "daily completion check failed", err)
		}
		return c.JSON(fiber.Map{"day": req.Day, "all_complete": complete})
	})

	secured.Post("/actions", func(c *fiber.Ctx) error {
		var req struct {
			Day   string `json:"day" validate:"required,datetime=2006-01-02"`
			Title string `json:"title" validate:"required,max=255"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		day, err := services.ParseDay(req.Day, d.Location)
		if err != nil {
			return fail(c, "invalid day", err)
		}
		action, err := d.Actions.AddAction(c.UserContext(), c.Locals("user_id").(string), day, req.Title)
		if err != nil {
			return fail(c, "failed to add action", err)
		}
		return c.Status(fiber.StatusCreated).JSON(action)
	})

	// Completing an action pays complete_action once, grants first_step and
	// settles the daily completion bonus.
	secured.Post("/actions/:id/complete", func(c *fiber.Ctx) error {
		userID := c.Locals("user_id").(string)
		actionID := c.Params("id")
		ctx := c.UserContext()

		action, changed, err := d.Actions.CompleteAction(ctx, userID, actionID)
		if err != nil {
			return fail(c, "failed to complete action", err)
		}
		resp := fiber.Map{"action": action, "newly_completed": changed}
		if !changed {
			return c.JSON(resp)
		}

		if _, err := d.Progression.EnsureProgressRecord(ctx, userID); err != nil {
			return fail(c, "failed to create progress record", err)
		}
		award, err := d.Progression.AwardForReason(ctx, userID, services.ReasonCompleteAction, actionID)
		if err != nil {
			return fail(c, "points award failed", err)
		}
		resp["points"] = award

		if _, ok := d.Badges.Catalog.Badge(services.BadgeFirstStep); ok {
			badge, err := d.Badges.AwardBadge(ctx, userID, services.BadgeFirstStep)
			if err != nil {
				log.WithError(err).WithField("user_id", userID).Warn("⚠️ first_step badge failed")
			} else if badge.Awarded {
				resp["badge"] = badge
			}
		}

		day, err := services.ParseDay(action.Day, d.Location)
		if err != nil {
			return fail(c, "invalid action day", err)
		}
		complete, err := d.Badges.CheckDailyCompletionBadge(ctx, userID, day)
		if err != nil {
			return fail(c, "daily completion check failed", err)
		}
		resp["all_complete"] = complete
		return c.JSON(resp)
	})

	// Admin endpoints
	admin.Post("/points/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID      string `json:"user_id" validate:"required,max=64"`
			Points      int64  `json:"points" validate:"required,min=1"`
			Reason      string `json:"reason" validate:"required,max=64"`
			ReferenceID string `json:"reference_id" validate:"max=64"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		ctx := c.UserContext()

		if _, err := d.Progression.EnsureProgressRecord(ctx, req.UserID); err != nil {
			return fail(c, "failed to create progress record", err)
		}
		res, err := d.Progression.AwardPoints(ctx, req.UserID, req.Points, req.Reason, req.ReferenceID)
		if err != nil {
			return fail(c, "points award failed", err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	admin.Post("/badges/grant", func(c *fiber.Ctx) error {
		var req struct {
			UserID  string `json:"user_id" validate:"required,max=64"`
			BadgeID string `json:"badge_id" validate:"required,max=64"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		award, err := d.Badges.AwardBadge(c.UserContext(), req.UserID, req.BadgeID)
		if err != nil {
			return fail(c, "badge award failed", err)
		}
		return c.JSON(award)
	})

	admin.Post("/streak", func(c *fiber.Ctx) error {
		var req struct {
			UserID      string `json:"user_id" validate:"required,max=64"`
			HasActivity bool   `json:"has_activity"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		res, err := d.Streaks.UpdateStreak(c.UserContext(), req.UserID, req.HasActivity)
		if err != nil {
			return fail(c, "streak update failed", err)
		}
		return c.JSON(res)
	})

	admin.Post("/streak/rollup", func(c *fiber.Ctx) error {
		if d.Rollup == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "streak rollup not configured"})
		}
		var req struct {
			Day string `json:"day" validate:"required,datetime=2006-01-02"`
		}
		if ok, err := parseBody(c, &req); !ok {
			return err
		}
		day, err := services.ParseDay(req.Day, d.Location)
		if err != nil {
			return fail(c, "invalid day", err)
		}
		stats, err := d.Rollup.RunForDay(c.UserContext(), day)
		if err != nil {
			return fail(c, "streak rollup failed", err)
		}
		return c.JSON(stats)
	})

	admin.Get("/ledger/:user_id", func(c *fiber.Ctx) error {
		bal, err := d.Progression.LedgerBalance(c.UserContext(), c.Params("user_id"))
		if err != nil {
			return fail(c, "ledger check failed", err)
		}
		return c.JSON(bal)
	})
}

func currentUser(c *fiber.Ctx) (string, bool) {
	userID, _ := c.Locals("user_id").(string)
	return userID, userID != ""
}

func missingUser(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": "missing X-User-ID",
	})
}

// parseBody decodes and validates the JSON body. When ok is false the 400
// response has already been written.
func parseBody(c *fiber.Ctx, out interface{}) (ok bool, err error) {
	if err := c.BodyParser(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid JSON",
			"cause": err.Error(),
		})
	}
	if err := validate.Struct(out); err != nil {
		return false, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "validation failed",
			"cause": formatValidationError(err),
		})
	}
	return true, nil
}

func fail(c *fiber.Ctx, msg string, err error) error {
	status := statusFor(err)
	if status == fiber.StatusInternalServerError {
		logrus.WithField("component", "routes").WithError(err).Error("❌ " + msg)
	}
	return c.Status(status).JSON(fiber.Map{
		"error": msg,
		"cause": err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrUserNotFound), errors.Is(err, services.ErrActionNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrInvalidPoints),
		errors.Is(err, services.ErrUnknownBadge),
		errors.Is(err, services.ErrUnknownReason),
		errors.Is(err, services.ErrInvalidDay):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrInvalidCatalog):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
