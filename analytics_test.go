package main

import "testing"

func TestAnalyticsFlushOnStop(t *testing.T) {
	db := openTestDB(t)
	a := NewAnalytics(db)
	a.Track(EvtSessionStart, 0, "s1", "blockade")
	a.Track(EvtRoundEnd, 0, "s1", "round=1 winner=2")
	a.Stop()

	var count int
	if err := db.conn.QueryRow("SELECT COUNT(*) FROM events").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("persisted events = %d, want 2", count)
	}
}

func TestAnalyticsLiveMetrics(t *testing.T) {
	a := NewAnalytics(nil)
	defer a.Stop()
	a.SetConcurrentPeers(3)
	a.SetActiveSessions(2)
	peers, sessions := a.GetLiveMetrics()
	if peers != 3 || sessions != 2 {
		t.Errorf("metrics = (%d, %d), want (3, 2)", peers, sessions)
	}
}
