package notify

import (
	"testing"
	"time"
)

func n(id, thread string, typ Type, unread int) Notification {
	return Notification{
		ID:          id,
		ThreadID:    thread,
		Type:        typ,
		Text:        "text-" + id,
		UnreadCount: unread,
		Timestamp:   time.Now(),
	}
}

func TestSupersession_MessageThenRecommendation(t *testing.T) {
	a := NewAggregator(nil)
	a.AddOne(n("n1", "T9", TypeMessage, 1))
	a.AddOne(n("n2", "T9", TypeRecommendation, 1))

	feed := a.Visible()
	if len(feed) != 1 {
		t.Fatalf("feed length = %d, want 1", len(feed))
	}
	if feed[0].Type != TypeRecommendation {
		t.Errorf("surviving type = %s, want recommendation", feed[0].Type)
	}
	if a.Unread() != 1 {
		t.Errorf("unread = %d, want 1 (not 2)", a.Unread())
	}
}

func TestSupersession_RecommendationThenMessage(t *testing.T) {
	a := NewAggregator(nil)
	a.AddOne(n("n2", "T9", TypeRecommendation, 1))
	a.AddOne(n("n1", "T9", TypeMessage, 1))

	feed := a.Visible()
	if len(feed) != 1 || feed[0].Type != TypeRecommendation {
		t.Fatalf("feed = %+v, want single recommendation", feed)
	}
	if a.Unread() != 1 {
		t.Errorf("unread = %d, want 1", a.Unread())
	}
}

func TestAddOne_RecommendationReplacesAllForThread(t *testing.T) {
	a := NewAggregator(nil)
	a.AddOne(n("n1", "T1", TypeMessage, 1))
	a.AddOne(n("n2", "T1", TypeTaskReminder, 1))
	a.AddOne(n("n3", "T2", TypeMessage, 1))
	a.AddOne(n("n4", "T1", TypeRecommendation, 1))

	feed := a.Visible()
	if len(feed) != 2 {
		t.Fatalf("feed length = %d, want 2", len(feed))
	}
	for _, entry := range feed {
		if entry.ThreadID == "T1" && entry.Type != TypeRecommendation {
			t.Errorf("thread T1 still represented by %s", entry.Type)
		}
	}
	if a.Unread() != 2 {
		t.Errorf("unread = %d, want 2", a.Unread())
	}
}

func TestAddOne_Dedup(t *testing.T) {
	tests := []struct {
		name     string
		existing Notification
		incoming Notification
		wantLen  int
	}{
		{
			name:     "same id dropped",
			existing: n("n1", "T1", TypeMessage, 1),
			incoming: n("n1", "T1", TypeMessage, 1),
			wantLen:  1,
		},
		{
			name:     "same thread and type dropped",
			existing: n("n1", "T1", TypeMessage, 1),
			incoming: n("n2", "T1", TypeMessage, 1),
			wantLen:  1,
		},
		{
			name:     "same thread different type kept",
			existing: n("n1", "T1", TypeMessage, 1),
			incoming: n("n2", "T1", TypeTaskReminder, 1),
			wantLen:  2,
		},
		{
			name:     "different thread kept",
			existing: n("n1", "T1", TypeMessage, 1),
			incoming: n("n2", "T2", TypeMessage, 1),
			wantLen:  2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator(nil)
			a.AddOne(tt.existing)
			a.AddOne(tt.incoming)
			if got := len(a.Visible()); got != tt.wantLen {
				t.Errorf("feed length = %d, want %d", got, tt.wantLen)
			}
		})
	}
}

func TestAddOne_InsertsAtHead(t *testing.T) {
	a := NewAggregator(nil)
	a.AddOne(n("n1", "T1", TypeMessage, 1))
	a.AddOne(n("n2", "T2", TypeMessage, 1))

	feed := a.Visible()
	if feed[0].ID != "n2" {
		t.Errorf("head = %s, want most recent first", feed[0].ID)
	}
}

func TestSetAll_FiltersAndRecomputes(t *testing.T) {
	a := NewAggregator(nil)
	a.SetAll([]Notification{
		n("n1", "T9", TypeMessage, 1),
		n("n2", "T9", TypeRecommendation, 1),
		n("n3", "T2", TypeMessage, 1),
		n("n4", "T3", Type("bogus"), -2),
	})

	feed := a.Visible()
	if len(feed) != 3 {
		t.Fatalf("feed length = %d, want 3 (superseded message dropped)", len(feed))
	}
	for _, entry := range feed {
		if entry.ID == "n1" {
			t.Error("superseded message survived SetAll")
		}
		if entry.ID == "n4" {
			if entry.Type != TypeOther {
				t.Errorf("unknown type not normalized: %s", entry.Type)
			}
			if entry.UnreadCount != 0 {
				t.Errorf("negative unread not clamped: %d", entry.UnreadCount)
			}
		}
	}
	if a.Unread() != 2 {
		t.Errorf("unread = %d, want 2", a.Unread())
	}
}

func TestMarkRead_OptimisticDecrement(t *testing.T) {
	a := NewAggregator(nil)
	a.SetAll([]Notification{
		n("n1", "T1", TypeMessage, 1),
		n("n2", "T2", TypeMessage, 1),
	})

	a.MarkRead("n1")
	if a.Unread() != 1 {
		t.Errorf("unread = %d, want 1", a.Unread())
	}

	// Marking the same entry again must not decrement twice.
	a.MarkRead("n1")
	if a.Unread() != 1 {
		t.Errorf("double mark decremented twice: %d", a.Unread())
	}
}

func TestClearAll(t *testing.T) {
	a := NewAggregator(nil)
	a.SetAll([]Notification{n("n1", "T1", TypeMessage, 1)})
	a.ClearAll()

	if len(a.Visible()) != 0 || a.Unread() != 0 {
		t.Errorf("state not reset: feed=%d unread=%d", len(a.Visible()), a.Unread())
	}
}

func TestUpdateUnreadCount_Override(t *testing.T) {
	a := NewAggregator(nil)
	a.UpdateUnreadCount(7)
	if a.Unread() != 7 {
		t.Errorf("unread = %d, want 7", a.Unread())
	}
	a.UpdateUnreadCount(-3)
	if a.Unread() != 0 {
		t.Errorf("negative count not clamped: %d", a.Unread())
	}
}

func TestOnChange_Fires(t *testing.T) {
	a := NewAggregator(nil)
	calls := 0
	a.OnChange(func() { calls++ })

	a.AddOne(n("n1", "T1", TypeMessage, 1))
	a.MarkRead("n1")
	a.ClearAll()

	if calls != 3 {
		t.Errorf("change callback fired %d times, want 3", calls)
	}
}
