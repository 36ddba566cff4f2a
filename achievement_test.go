package main

import "testing"

func unlockedIDs(defs []AchievementDef) map[string]bool {
	ids := make(map[string]bool, len(defs))
	for _, d := range defs {
		ids[d.ID] = true
	}
	return ids
}

func TestCheckAchievementsFirstWin(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("alice", "h")
	db.UpdateStatsAfterMatch(id, 6, 2, true, 120)

	got := unlockedIDs(CheckAchievements(db, id, VariantBlockade, 2, true))
	if !got["first_win"] {
		t.Error("first match win must unlock first_win")
	}
	if got["flawless"] {
		t.Error("flawless requires zero rounds lost")
	}
	if got["hustler"] || got["gridlock"] {
		t.Error("variant achievements need the matching variant")
	}

	// Already unlocked achievements never report twice.
	again := unlockedIDs(CheckAchievements(db, id, VariantBlockade, 2, true))
	if again["first_win"] {
		t.Error("first_win unlocked twice")
	}
}

func TestCheckAchievementsFlawlessAndVariants(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("bob", "h")
	db.UpdateStatsAfterMatch(id, 6, 0, true, 90)

	got := unlockedIDs(CheckAchievements(db, id, VariantHustle, 0, true))
	for _, want := range []string{"first_win", "flawless", "hustler"} {
		if !got[want] {
			t.Errorf("%s not unlocked", want)
		}
	}
	if got["gridlock"] {
		t.Error("gridlock unlocked for a hustle match")
	}

	db.UpdateStatsAfterMatch(id, 6, 1, true, 90)
	got = unlockedIDs(CheckAchievements(db, id, VariantComotion, 1, true))
	if !got["gridlock"] {
		t.Error("gridlock not unlocked for a comotion win")
	}
}

func TestCheckAchievementsLoserGetsNothingVariant(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("carol", "h")
	db.UpdateStatsAfterMatch(id, 2, 6, false, 60)

	got := unlockedIDs(CheckAchievements(db, id, VariantHustle, 6, false))
	if got["first_win"] || got["hustler"] || got["flawless"] {
		t.Errorf("losing match unlocked %v", got)
	}
}

func TestCheckAchievementsCumulative(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("dave", "h")
	for i := 0; i < 10; i++ {
		db.UpdateStatsAfterMatch(id, 10, 0, true, 400)
	}

	got := unlockedIDs(CheckAchievements(db, id, VariantBlockade, 0, true))
	for _, want := range []string{"victor", "century", "survivor"} {
		if !got[want] {
			t.Errorf("%s not unlocked at 10 wins / 100 rounds / >1h", want)
		}
	}
	if got["champion"] {
		t.Error("champion needs 50 match wins")
	}
}

func TestAchievementPersistence(t *testing.T) {
	db := openTestDB(t)
	id, _ := db.CreatePlayer("erin", "h")

	fresh, err := db.UnlockAchievement(id, "first_win")
	if err != nil || !fresh {
		t.Fatalf("unlock = %v err = %v", fresh, err)
	}
	fresh, err = db.UnlockAchievement(id, "first_win")
	if err != nil || fresh {
		t.Errorf("second unlock = %v, want false", fresh)
	}

	ids, err := db.GetAchievements(id)
	if err != nil || len(ids) != 1 || ids[0] != "first_win" {
		t.Errorf("achievements = %v err = %v", ids, err)
	}
}
