package services

import (
	"fmt"
	"math"
	"os"

	"github.com/gosimple/slug"
	"gopkg.in/yaml.v3"
)

// Award reasons with a configured point value.
const (
	ReasonCompleteAction  = "complete_action"
	ReasonLogActivity     = "log_activity"
	ReasonCreateGoal      = "create_goal"
	ReasonApprovePlan     = "approve_plan"
	ReasonCompletePlan    = "complete_plan"
	ReasonDailyCompletion = "daily_completion"
)

// BadgeFirstStep is granted on a user's first completed daily action.
const BadgeFirstStep = "first_step"

// CriteriaKind says what drives a badge unlock.
type CriteriaKind string

const (
	CriteriaEvent  CriteriaKind = "event"  // granted directly by a caller event
	CriteriaLevel  CriteriaKind = "level"  // level >= threshold
	CriteriaStreak CriteriaKind = "streak" // current streak >= threshold
)

type BadgeCriteria struct {
	Kind      CriteriaKind `yaml:"kind" json:"kind"`
	Threshold int64        `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// BadgeDefinition: static config (loaded from YAML or the built-in table)
type BadgeDefinition struct {
	ID          string        `yaml:"id" json:"id"`
	Name        string        `yaml:"name" json:"name"`
	Description string        `yaml:"description" json:"description"`
	Icon        string        `yaml:"icon" json:"icon"` // object key or URL
	Criteria    BadgeCriteria `yaml:"criteria" json:"criteria"`
}

type Level struct {
	Level          int    `yaml:"level" json:"level"`
	Name           string `yaml:"name" json:"name"`
	PointsRequired int64  `yaml:"points_required" json:"points_required"`
}

// LevelInfo is the derived level position for a point total.
type LevelInfo struct {
	Level          int    `json:"level"`
	Name           string `json:"name"`
	PointsRequired int64  `json:"points_required"`
	ProgressToNext int    `json:"progress_to_next"` // 0-100
	PointsToNext   int64  `json:"points_to_next"`
	Next           *Level `json:"next,omitempty"`
}

// Catalog is the fixed game-design table the engine applies. It must be
// validated (DefaultCatalog and LoadCatalog do it) before use.
type Catalog struct {
	Points map[string]int64  `yaml:"points"`
	Levels []Level           `yaml:"levels"`
	Badges []BadgeDefinition `yaml:"badges"`

	badgeIndex map[string]int
}

// DefaultCatalog returns the built-in table.
func DefaultCatalog() *Catalog {
	c := &Catalog{
		Points: map[string]int64{
			ReasonCompleteAction:  10,
			ReasonLogActivity:     5,
			ReasonCreateGoal:      15,
			ReasonApprovePlan:     25,
			ReasonCompletePlan:    100,
			ReasonDailyCompletion: 20,
		},
		Levels: []Level{
			{Level: 1, Name: "Beginner", PointsRequired: 0},
			{Level: 2, Name: "Explorer", PointsRequired: 100},
			{Level: 3, Name: "Achiever", PointsRequired: 250},
			{Level: 4, Name: "Committed", PointsRequired: 500},
			{Level: 5, Name: "Champion", PointsRequired: 1000},
			{Level: 6, Name: "Master", PointsRequired: 2000},
			{Level: 7, Name: "Legend", PointsRequired: 5000},
		},
		Badges: []BadgeDefinition{
			{ID: BadgeFirstStep, Name: "First Step", Description: "Completed your first daily action", Criteria: BadgeCriteria{Kind: CriteriaEvent}},
			{ID: "first_goal", Name: "Goal Setter", Description: "Created your first goal", Criteria: BadgeCriteria{Kind: CriteriaEvent}},
			{ID: "plan_approved", Name: "Plan Maker", Description: "Approved your first coaching plan", Criteria: BadgeCriteria{Kind: CriteriaEvent}},
			{ID: "plan_complete", Name: "Finisher", Description: "Completed a whole plan", Criteria: BadgeCriteria{Kind: CriteriaEvent}},
			{ID: "streak_3", Name: "Warming Up", Description: "3 active days in a row", Criteria: BadgeCriteria{Kind: CriteriaStreak, Threshold: 3}},
			{ID: "streak_7", Name: "Week Warrior", Description: "7 active days in a row", Criteria: BadgeCriteria{Kind: CriteriaStreak, Threshold: 7}},
			{ID: "streak_30", Name: "Monthly Master", Description: "30 active days in a row", Criteria: BadgeCriteria{Kind: CriteriaStreak, Threshold: 30}},
			{ID: "level_5", Name: "Champion", Description: "Reached level 5", Criteria: BadgeCriteria{Kind: CriteriaLevel, Threshold: 5}},
		},
	}
	if err := c.Validate(); err != nil {
		panic(err)
	}
	return c
}

// LoadCatalog reads a YAML catalog file and validates it.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the table invariants and builds the badge index.
func (c *Catalog) Validate() error {
	if len(c.Levels) == 0 {
		return fmt.Errorf("%w: no levels configured", ErrInvalidCatalog)
	}
	if c.Levels[0].PointsRequired != 0 {
		return fmt.Errorf("%w: first level must require 0 points, got %d", ErrInvalidCatalog, c.Levels[0].PointsRequired)
	}
	for i := 1; i < len(c.Levels); i++ {
		prev, cur := c.Levels[i-1], c.Levels[i]
		if cur.PointsRequired <= prev.PointsRequired {
			return fmt.Errorf("%w: level %d threshold %d is not above level %d threshold %d",
				ErrInvalidCatalog, cur.Level, cur.PointsRequired, prev.Level, prev.PointsRequired)
		}
		if cur.Level <= prev.Level {
			return fmt.Errorf("%w: level numbers must increase (%d after %d)", ErrInvalidCatalog, cur.Level, prev.Level)
		}
	}

	for reason, pts := range c.Points {
		if reason == "" || pts <= 0 {
			return fmt.Errorf("%w: reason %q has non-positive points %d", ErrInvalidCatalog, reason, pts)
		}
	}

	c.badgeIndex = make(map[string]int, len(c.Badges))
	for i := range c.Badges {
		b := &c.Badges[i]
		if b.ID == "" || b.Name == "" {
			return fmt.Errorf("%w: badge #%d needs an id and a name", ErrInvalidCatalog, i)
		}
		if _, dup := c.badgeIndex[b.ID]; dup {
			return fmt.Errorf("%w: duplicate badge id %q", ErrInvalidCatalog, b.ID)
		}
		switch b.Criteria.Kind {
		case CriteriaEvent:
		case CriteriaLevel, CriteriaStreak:
			if b.Criteria.Threshold <= 0 {
				return fmt.Errorf("%w: badge %q needs a positive %s threshold", ErrInvalidCatalog, b.ID, b.Criteria.Kind)
			}
		default:
			return fmt.Errorf("%w: badge %q has unknown criteria kind %q", ErrInvalidCatalog, b.ID, b.Criteria.Kind)
		}
		if b.Icon == "" {
			b.Icon = "badges/" + slug.Make(b.Name) + ".svg"
		}
		c.badgeIndex[b.ID] = i
	}
	return nil
}

// Badge looks up a badge definition by id.
func (c *Catalog) Badge(id string) (BadgeDefinition, bool) {
	i, ok := c.badgeIndex[id]
	if !ok {
		return BadgeDefinition{}, false
	}
	return c.Badges[i], true
}

// PointsFor returns the configured point value of an award reason.
func (c *Catalog) PointsFor(reason string) (int64, bool) {
	pts, ok := c.Points[reason]
	return pts, ok
}

// BadgesFor lists badges of one criteria kind whose threshold is reached by value.
func (c *Catalog) BadgesFor(kind CriteriaKind, value int64) []BadgeDefinition {
	var out []BadgeDefinition
	for _, b := range c.Badges {
		if b.Criteria.Kind == kind && b.Criteria.Threshold <= value {
			out = append(out, b)
		}
	}
	return out
}

// LevelFromPoints selects the highest tier whose threshold is <= points.
func (c *Catalog) LevelFromPoints(points int64) LevelInfo {
	if points < 0 {
		points = 0
	}
	idx := 0
	for i, lvl := range c.Levels {
		if lvl.PointsRequired <= points {
			idx = i
		} else {
			break
		}
	}

	cur := c.Levels[idx]
	info := LevelInfo{
		Level:          cur.Level,
		Name:           cur.Name,
		PointsRequired: cur.PointsRequired,
	}
	if idx == len(c.Levels)-1 {
		info.ProgressToNext = 100
		info.PointsToNext = 0
		return info
	}

	next := c.Levels[idx+1]
	span := float64(next.PointsRequired - cur.PointsRequired)
	info.ProgressToNext = int(math.Round(100 * float64(points-cur.PointsRequired) / span))
	info.PointsToNext = next.PointsRequired - points
	info.Next = &next
	return info
}
