package store

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"gree-ir-home/internal/transmit"
)

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionRoundTrip(t *testing.T) {
	s := newTestStore(t)

	sess := &transmit.Session{
		DeviceType: 0x5F36,
		MAC:        []byte{0xAA, 0xBB, 0xCC, 0x11, 0x22, 0x33},
		ID:         []byte{0x01, 0x02, 0x03, 0x04},
		Key:        []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
	}

	if err := s.PutSession("192.168.1.40", sess); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetSession("192.168.1.40")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("session not found")
	}
	if got.DeviceType != sess.DeviceType {
		t.Errorf("device_type = 0x%04X, want 0x%04X", got.DeviceType, sess.DeviceType)
	}
	if string(got.Key) != string(sess.Key) {
		t.Errorf("key = % X, want % X", got.Key, sess.Key)
	}
	if string(got.MAC) != string(sess.MAC) {
		t.Errorf("mac = % X, want % X", got.MAC, sess.MAC)
	}
}

func TestGetSessionAbsent(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetSession("10.0.0.9")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("session = %+v, want nil", got)
	}
}

func TestDeleteSession(t *testing.T) {
	s := newTestStore(t)

	if err := s.PutSession("h", &transmit.Session{DeviceType: 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSession("h"); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetSession("h")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("session still present after delete")
	}
}

func TestCommandHistoryOrderAndLimit(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		rec := &CommandRecord{
			Time:        time.Now(),
			Mode:        "cool",
			Temperature: 20 + i,
			Fan:         "auto",
			Frame:       fmt.Sprintf("%02d", i),
			Delivered:   true,
		}
		if err := s.AppendCommand("living_room", rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ListCommands("living_room", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Fatalf("len = %d, want 3", len(recs))
	}
	// Newest first.
	if recs[0].Temperature != 24 || recs[2].Temperature != 22 {
		t.Errorf("order wrong: temps %d, %d, %d", recs[0].Temperature, recs[1].Temperature, recs[2].Temperature)
	}
}

func TestCommandHistoryUnknownUnit(t *testing.T) {
	s := newTestStore(t)

	recs, err := s.ListCommands("nope", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 0 {
		t.Errorf("len = %d, want 0", len(recs))
	}
}

func TestCommandHistoryPruned(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < historyKeep+25; i++ {
		rec := &CommandRecord{Time: time.Now(), Mode: "heat", Temperature: 21, Fan: "min", Frame: fmt.Sprintf("%d", i)}
		if err := s.AppendCommand("unit", rec); err != nil {
			t.Fatal(err)
		}
	}

	recs, err := s.ListCommands("unit", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != historyKeep {
		t.Errorf("len = %d, want %d", len(recs), historyKeep)
	}
	// Oldest entries are gone; newest survives.
	if recs[0].Frame != fmt.Sprintf("%d", historyKeep+24) {
		t.Errorf("newest frame = %q", recs[0].Frame)
	}
}
