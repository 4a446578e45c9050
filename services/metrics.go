package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry holds the gamification collectors; main.go exposes it on /metrics.
	Registry = prometheus.NewRegistry()

	pointsAwarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "gamification",
			Name:      "points_awarded_total",
			Help:      "Total points awarded, by reason.",
		},
		[]string{"reason"},
	)

	awardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "gamification",
			Name:      "awards_total",
			Help:      "Point award transactions, by outcome.",
		},
		[]string{"outcome"},
	)

	levelUps = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "gamification",
			Name:      "level_ups_total",
			Help:      "Number of awards that moved a user to a higher level.",
		},
	)

	badgesGranted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "gamification",
			Name:      "badges_granted_total",
			Help:      "Badges granted for the first time, by badge id.",
		},
		[]string{"badge_id"},
	)

	streakUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "gamification",
			Name:      "streak_updates_total",
			Help:      "Streak updates, by action (advance|reset|skipped).",
		},
		[]string{"action"},
	)

	dailyBonuses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coach",
			Subsystem: "gamification",
			Name:      "daily_bonuses_total",
			Help:      "Daily completion bonuses paid.",
		},
	)
)

func init() {
	Registry.MustRegister(
		pointsAwarded,
		awardsTotal,
		levelUps,
		badgesGranted,
		streakUpdates,
		dailyBonuses,
	)
}
