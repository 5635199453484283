package goal

import (
	"github.com/trezcool/examtrack/core/user"
)

const pointsPerDay = 10

// streakBonuses are the bonus points earned when a streak reaches a milestone.
var streakBonuses = map[int]int{7: 50, 14: 100, 30: 200}

type StreakUpdate struct {
	Applied       bool `json:"applied"` // false if today was already counted
	CurrentStreak int  `json:"current_streak"`
	LongestStreak int  `json:"longest_streak"`
	TotalPoints   int  `json:"total_points"`
	PointsEarned  int  `json:"points_earned"`
	Bonus         int  `json:"bonus"`
}

// applyStreak counts today's completed goals into the user's streak and points.
// A streak continues when the last completed day is yesterday, and restarts at 1 otherwise.
// Completing today twice earns nothing.
func applyStreak(usr *user.User, today, yesterday string) StreakUpdate {
	if usr.LastGoalCompletedDate == today {
		return StreakUpdate{
			CurrentStreak: usr.CurrentStreak,
			LongestStreak: usr.LongestStreak,
			TotalPoints:   usr.TotalPoints,
		}
	}

	streak := 1
	if usr.LastGoalCompletedDate == yesterday {
		streak = usr.CurrentStreak + 1
	}
	bonus := streakBonuses[streak]
	earned := pointsPerDay + bonus

	usr.CurrentStreak = streak
	if streak > usr.LongestStreak {
		usr.LongestStreak = streak
	}
	usr.TotalPoints += earned
	usr.LastGoalCompletedDate = today

	return StreakUpdate{
		Applied:       true,
		CurrentStreak: usr.CurrentStreak,
		LongestStreak: usr.LongestStreak,
		TotalPoints:   usr.TotalPoints,
		PointsEarned:  earned,
		Bonus:         bonus,
	}
}
