package hub

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/gymstack/presenced/internal/logger"
	"github.com/gymstack/presenced/internal/message"
	"github.com/gymstack/presenced/internal/training"
)

type fakeStore struct {
	mu      sync.Mutex
	records map[string][]training.Record
	err     error
}

func (f *fakeStore) Records(ctx context.Context, userID string) ([]training.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.records[userID], nil
}

func (f *fakeStore) MarkCompleted(ctx context.Context, userID, moduleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.records == nil {
		f.records = make(map[string][]training.Record)
	}
	f.records[userID] = append(f.records[userID], training.Record{
		UserID: userID, ModuleID: moduleID, Status: training.StatusCompleted,
	})
	return nil
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func completionRecords(total, completed int) []training.Record {
	records := make([]training.Record, total)
	for i := range records {
		records[i] = training.Record{Status: training.StatusInProgress}
		if i < completed {
			records[i].Status = training.StatusCompleted
		}
	}
	return records
}

func newTestHub(t *testing.T, store training.Store) *Hub {
	t.Helper()
	h := NewHub(nil, nil, store, logger.NewLogger("test"))
	go h.Run()
	t.Cleanup(h.Close)
	return h
}

func newTestClient(userID string) *Client {
	return NewClient(userID, "", "", nil)
}

// waitForFrame drains a client's send channel until a frame of the wanted
// type arrives.
func waitForFrame(t *testing.T, client *Client, frameType string) map[string]interface{} {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case data := <-client.Send:
			var frame map[string]interface{}
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("invalid frame %q: %v", data, err)
			}
			if frame["type"] == frameType {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s frame", frameType)
		}
	}
}

func TestRegisterMarksUserOnline(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")

	h.Register(client)

	if got := h.ActiveUsers(); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Errorf("ActiveUsers() = %v, want [u1]", got)
	}

	frame := waitForFrame(t, client, message.TypeOnlineUsersUpdate)
	users, ok := frame["users"].([]interface{})
	if !ok || len(users) != 1 {
		t.Fatalf("presence update users = %v, want one entry", frame["users"])
	}
}

func TestActiveUsersLifecycle(t *testing.T) {
	h := newTestHub(t, nil)
	c1 := newTestClient("u1")
	c2 := newTestClient("u2")

	h.Register(c1)
	h.Register(c2)
	if got := h.ActiveUsers(); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Fatalf("after joins ActiveUsers() = %v, want [u1 u2]", got)
	}

	// Away is still an active connection.
	h.HandleStatus(c1, message.StatusAway)
	if got := h.ActiveUsers(); !reflect.DeepEqual(got, []string{"u1", "u2"}) {
		t.Errorf("after away ActiveUsers() = %v, want [u1 u2]", got)
	}

	h.Unregister("u2")
	if got := h.ActiveUsers(); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Errorf("after u2 disconnect ActiveUsers() = %v, want [u1]", got)
	}

	h.DropClient(c1)
	if got := h.ActiveUsers(); len(got) != 0 {
		t.Errorf("after all disconnects ActiveUsers() = %v, want empty", got)
	}

	// Offline entries are retained with their history.
	snapshot := h.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Snapshot() kept %d entries, want 2", len(snapshot))
	}
	for _, entry := range snapshot {
		if entry.Status != message.StatusOffline {
			t.Errorf("entry %s status = %s, want offline", entry.UserID, entry.Status)
		}
	}
}

func TestPresenceUpdateOmitsConnectionHandle(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")
	h.Register(client)

	frame := waitForFrame(t, client, message.TypeOnlineUsersUpdate)
	users := frame["users"].([]interface{})
	entry := users[0].(map[string]interface{})

	allowed := map[string]bool{
		"user_id": true, "name": true, "avatar_url": true,
		"status": true, "last_seen": true, "training": true,
	}
	for key := range entry {
		if !allowed[key] {
			t.Errorf("presence entry leaked field %q", key)
		}
	}
}

func TestJoinSynthesizesDefaultName(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1-abcdef")

	h.Register(client)
	h.HandleClientMessage(client, message.Inbound{Type: message.TypePresenceJoin})

	snapshot := h.Snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("Snapshot() has %d entries, want 1", len(snapshot))
	}
	if got, want := snapshot[0].Name, "User u1-a"; got != want {
		t.Errorf("default name = %q, want %q", got, want)
	}
	if snapshot[0].Status != message.StatusOnline {
		t.Errorf("status = %s, want online", snapshot[0].Status)
	}
}

func TestJoinOverwritesName(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")

	h.Register(client)
	h.HandleClientMessage(client, message.Inbound{Type: message.TypePresenceJoin, Name: "Alex"})

	if got := h.Snapshot()[0].Name; got != "Alex" {
		t.Errorf("name = %q, want Alex", got)
	}
}

func TestStaleHandleErrorIgnored(t *testing.T) {
	h := newTestHub(t, nil)
	first := newTestClient("u1")
	second := newTestClient("u1")

	h.Register(first)
	h.Register(second)

	// Transport error on the superseded handle must not tear down the
	// live reconnect.
	h.DropClient(first)
	if got := h.ActiveUsers(); !reflect.DeepEqual(got, []string{"u1"}) {
		t.Fatalf("after stale error ActiveUsers() = %v, want [u1]", got)
	}

	h.DropClient(second)
	if got := h.ActiveUsers(); len(got) != 0 {
		t.Errorf("after real disconnect ActiveUsers() = %v, want empty", got)
	}
}

func TestBroadcastSkipsUsersWithoutConnection(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")
	h.Register(client)

	payload := map[string]string{"text": "class starts in 10 minutes"}
	if err := h.Broadcast([]string{"u1", "u2"}, payload); err != nil {
		t.Fatalf("Broadcast() error = %v", err)
	}

	frame := waitForFrame(t, client, message.TypeNotification)
	got := frame["payload"].(map[string]interface{})
	if got["text"] != "class starts in 10 minutes" {
		t.Errorf("payload = %v", got)
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")
	h.Register(client)

	h.Unregister("u1")
	before := h.Snapshot()
	h.Unregister("u1")
	after := h.Snapshot()

	if before[0].Status != message.StatusOffline || after[0].Status != message.StatusOffline {
		t.Errorf("status after double unregister = %s/%s, want offline", before[0].Status, after[0].Status)
	}
	if got := h.ActiveUsers(); len(got) != 0 {
		t.Errorf("ActiveUsers() = %v, want empty", got)
	}
}

func TestStatusChangeRequiresJoin(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("ghost")

	h.HandleStatus(client, message.StatusAway)

	if got := h.Snapshot(); len(got) != 0 {
		t.Errorf("status change without join created entries: %v", got)
	}
}

func TestTrainingLevelPush(t *testing.T) {
	store := &fakeStore{records: map[string][]training.Record{
		"u1": completionRecords(10, 8),
	}}
	h := newTestHub(t, store)
	client := newTestClient("u1")
	h.Register(client)

	h.BroadcastTrainingLevel("u1")

	frame := waitForFrame(t, client, message.TypeTrainingLevel)
	if frame["level"] != training.LevelExpert {
		t.Errorf("level = %v, want Expert", frame["level"])
	}
	if frame["progress"] != float64(80) {
		t.Errorf("progress = %v, want 80", frame["progress"])
	}

	entry := h.Snapshot()[0]
	if entry.Training == nil || entry.Training.Level != training.LevelExpert {
		t.Errorf("entry training = %+v, want Expert summary", entry.Training)
	}
}

func TestTrainingLevelZeroRecords(t *testing.T) {
	store := &fakeStore{}
	h := newTestHub(t, store)
	client := newTestClient("u1")
	h.Register(client)

	h.BroadcastTrainingLevel("u1")

	frame := waitForFrame(t, client, message.TypeTrainingLevel)
	if frame["level"] != training.LevelBeginner || frame["progress"] != float64(0) {
		t.Errorf("frame = %v, want Beginner/0", frame)
	}
}

func TestTrainingStoreFailureKeepsPriorSummary(t *testing.T) {
	store := &fakeStore{records: map[string][]training.Record{
		"u1": completionRecords(10, 5),
	}}
	h := newTestHub(t, store)
	client := newTestClient("u1")
	h.Register(client)

	h.BroadcastTrainingLevel("u1")
	waitForFrame(t, client, message.TypeTrainingLevel)

	store.setErr(errors.New("storage unavailable"))
	h.BroadcastTrainingLevel("u1")

	entry := h.Snapshot()[0]
	if entry.Training == nil {
		t.Fatal("training summary was cleared on store failure")
	}
	if entry.Training.Level != training.LevelIntermediate || entry.Training.Progress != 50 {
		t.Errorf("training summary = %+v, want stale Intermediate/50", entry.Training)
	}
}

func TestTrainingPushWithoutConnectionIsNoOp(t *testing.T) {
	store := &fakeStore{records: map[string][]training.Record{
		"u1": completionRecords(4, 4),
	}}
	h := newTestHub(t, store)
	client := newTestClient("u1")
	h.Register(client)
	h.Unregister("u1")

	// Must not panic or error; the summary still lands on the retained
	// offline entry.
	h.BroadcastTrainingLevel("u1")

	entry := h.Snapshot()[0]
	if entry.Training == nil || entry.Training.Level != training.LevelExpert {
		t.Errorf("offline entry training = %+v, want Expert summary", entry.Training)
	}
}

func TestJoinTriggersTrainingPushAndPresenceBroadcast(t *testing.T) {
	store := &fakeStore{records: map[string][]training.Record{
		"u1": completionRecords(10, 8),
	}}
	h := newTestHub(t, store)
	client := newTestClient("u1")
	h.Register(client)

	h.HandleClientMessage(client, message.Inbound{Type: message.TypePresenceJoin, Name: "Sam"})

	waitForFrame(t, client, message.TypeOnlineUsersUpdate)
	frame := waitForFrame(t, client, message.TypeTrainingLevel)
	if frame["level"] != training.LevelExpert {
		t.Errorf("level = %v, want Expert", frame["level"])
	}
}

func TestUnknownMessageTypeReturnsError(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")
	h.Register(client)

	h.HandleClientMessage(client, message.Inbound{Type: "presence:nonsense"})

	frame := waitForFrame(t, client, message.TypeError)
	if frame["data"] != "Unknown message type" {
		t.Errorf("error data = %v", frame["data"])
	}
}

func TestInvalidStatusReturnsError(t *testing.T) {
	h := newTestHub(t, nil)
	client := newTestClient("u1")
	h.Register(client)

	h.HandleClientMessage(client, message.Inbound{Type: message.TypePresenceStatus, Status: "busy"})

	waitForFrame(t, client, message.TypeError)
	if got := h.Snapshot()[0].Status; got != message.StatusOnline {
		t.Errorf("status = %s, want online unchanged", got)
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	h := NewHub(nil, nil, nil, logger.NewLogger("test"))
	go h.Run()
	client := newTestClient("u1")
	h.Register(client)

	h.Close()

	// Further broadcasts must not panic or deliver to torn-down clients.
	h.BroadcastPresence()
	if err := h.Broadcast([]string{"u1"}, "ignored"); err != nil {
		t.Errorf("Broadcast() after close error = %v", err)
	}
}

func TestDefaultName(t *testing.T) {
	tests := []struct {
		userID string
		want   string
	}{
		{userID: "abcdef", want: "User abcd"},
		{userID: "ab", want: "User ab"},
		{userID: "abcd", want: "User abcd"},
	}
	for _, tt := range tests {
		if got := DefaultName(tt.userID); got != tt.want {
			t.Errorf("DefaultName(%q) = %q, want %q", tt.userID, got, tt.want)
		}
	}
}
