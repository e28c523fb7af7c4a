package journal

import (
	"testing"
	"time"

	"github.com/cachepulse/cachepulse/pkg/event"
	"github.com/cachepulse/cachepulse/pkg/monitor"
)

var _ monitor.EventWriter = (*Journal)(nil)

func openJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func journalEvent(t *testing.T, pattern string, start time.Time) event.Event {
	t.Helper()
	e, err := event.New(event.OpGet, event.LayerRemoteShared, pattern, start, start.Add(time.Millisecond), event.ResultHit, 64, nil)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestAppendAndRecent(t *testing.T) {
	j := openJournal(t)
	base := time.Now()

	for i := 0; i < 5; i++ {
		e := journalEvent(t, "k", base.Add(time.Duration(i)*time.Second))
		if err := j.Append(e); err != nil {
			t.Fatal(err)
		}
	}

	recent, err := j.Recent(3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 events, got %d", len(recent))
	}
	// Newest first.
	for i := 1; i < len(recent); i++ {
		if recent[i].StartTime.After(recent[i-1].StartTime) {
			t.Error("expected newest-first ordering")
		}
	}
}

func TestRecentEmpty(t *testing.T) {
	j := openJournal(t)
	recent, err := j.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 0 {
		t.Errorf("expected empty journal, got %d events", len(recent))
	}
}

func TestLen(t *testing.T) {
	j := openJournal(t)

	n, err := j.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected 0 events, got %d", n)
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		if err := j.Append(journalEvent(t, "k", now.Add(time.Duration(i)*time.Millisecond))); err != nil {
			t.Fatal(err)
		}
	}

	n, err = j.Len()
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("expected 3 events, got %d", n)
	}
}

func TestRoundTripPreservesFields(t *testing.T) {
	j := openJournal(t)

	start := time.Now().Truncate(time.Millisecond)
	e, err := event.New(event.OpSet, event.LayerLocalInProcess, "user:{id}", start, start.Add(20*time.Millisecond), event.ResultSuccess, 2048, map[string]string{"region": "eu"})
	if err != nil {
		t.Fatal(err)
	}
	if err := j.Append(e); err != nil {
		t.Fatal(err)
	}

	recent, err := j.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 {
		t.Fatalf("expected 1 event, got %d", len(recent))
	}
	got := recent[0]
	if got.OperationID != e.OperationID {
		t.Errorf("operation ID mismatch: %s vs %s", got.OperationID, e.OperationID)
	}
	if got.Operation != event.OpSet || got.Layer != event.LayerLocalInProcess {
		t.Errorf("unexpected event fields: %+v", got)
	}
	if got.Duration != 20*time.Millisecond {
		t.Errorf("expected 20ms duration, got %v", got.Duration)
	}
	if got.Metadata["region"] != "eu" {
		t.Errorf("metadata lost in round trip: %v", got.Metadata)
	}
}
