package main

// Achievement definitions
type AchievementDef struct {
	ID          string
	Name        string
	Description string
}

var Achievements = []AchievementDef{
	{"first_win", "Opening Move", "Win your first match"},
	{"victor", "Victor", "Win 10 matches"},
	{"champion", "Champion", "Win 50 matches"},
	{"century", "Centurion", "Win 100 rounds"},
	{"flawless", "Flawless", "Win a match without dropping a round"},
	{"hustler", "Hustler", "Win a Hustle match"},
	{"gridlock", "Gridlock", "Win a Comotion match"},
	{"survivor", "Survivor", "Play for 1 hour total"},
}

// CheckAchievements unlocks any achievements a finished match earned the
// player. roundsLost is the player's losing rounds for that match. Returns
// the newly unlocked definitions.
func CheckAchievements(db *DB, playerID int64, variant Variant, roundsLost int, won bool) []AchievementDef {
	if db == nil {
		return nil
	}

	stats, err := db.GetStats(playerID)
	if err != nil || stats == nil {
		return nil
	}

	existing, err := db.GetAchievements(playerID)
	if err != nil {
		return nil
	}
	has := make(map[string]bool, len(existing))
	for _, a := range existing {
		has[a] = true
	}

	check := func(id string) bool {
		if has[id] {
			return false
		}
		switch id {
		case "first_win":
			return stats.MatchesWon >= 1
		case "victor":
			return stats.MatchesWon >= 10
		case "champion":
			return stats.MatchesWon >= 50
		case "century":
			return stats.RoundsWon >= 100
		case "flawless":
			return won && roundsLost <= 0
		case "hustler":
			return won && variant == VariantHustle
		case "gridlock":
			return won && variant == VariantComotion
		case "survivor":
			return stats.Playtime >= 3600
		}
		return false
	}

	var unlocked []AchievementDef
	for _, def := range Achievements {
		if !check(def.ID) {
			continue
		}
		if fresh, err := db.UnlockAchievement(playerID, def.ID); err == nil && fresh {
			unlocked = append(unlocked, def)
		}
	}
	return unlocked
}
