package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/schoolgate/schoolgate/internal/event"
	"github.com/schoolgate/schoolgate/internal/store"
	"github.com/schoolgate/schoolgate/pkg/module"
	"go.uber.org/zap"
)

func testLedger(t *testing.T) (*Ledger, *event.Bus) {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.Migrate(context.Background(), "audit", migrations()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	bus := event.NewBus(zap.NewNop())
	return NewLedger(NewAuditStore(st.DB()), bus, zap.NewNop()), bus
}

func successRecord(txID, deviceID string) *Record {
	return &Record{
		TransmissionID: txID,
		DeviceID:       deviceID,
		Status:         StatusSuccess,
		DataType:       "ATTENDANCE_RECORD",
		FieldCount:     4,
	}
}

func TestAppend_FillsIDAndTimestamp(t *testing.T) {
	l, _ := testLedger(t)

	rec := successRecord("tx-1", "dev-1")
	if err := l.Append(context.Background(), rec); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if rec.ID == "" {
		t.Error("record ID should be minted")
	}
	if rec.Timestamp.IsZero() {
		t.Error("timestamp should be stamped")
	}

	got, err := l.ListRecent(context.Background(), 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(got) != 1 || got[0].TransmissionID != "tx-1" {
		t.Errorf("ListRecent = %+v, want one tx-1 record", got)
	}
}

func TestAppend_StatusFieldExclusivity(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		rec     Record
		wantErr bool
	}{
		{"success ok", *successRecord("tx", "dev"), false},
		{"success with block reason", Record{
			TransmissionID: "tx", Status: StatusSuccess, BlockReason: "x",
		}, true},
		{"blocked ok", Record{
			TransmissionID: "tx", DeviceID: "dev", Status: StatusBlocked,
			BlockReason: "INSUFFICIENT_PERMISSIONS",
		}, false},
		{"blocked without reason", Record{
			TransmissionID: "tx", Status: StatusBlocked,
		}, true},
		{"blocked with error message", Record{
			TransmissionID: "tx", Status: StatusBlocked,
			BlockReason: "x", ErrorMessage: "y",
		}, true},
		{"failed ok", Record{
			TransmissionID: "tx", DeviceID: "dev", Status: StatusFailed,
			ErrorMessage: "serialization failed",
		}, false},
		{"failed without message", Record{
			TransmissionID: "tx", Status: StatusFailed,
		}, true},
		{"unregistered ok", Record{
			TransmissionID: "tx", DeviceID: "ghost",
			Status: StatusUnregisteredAttempt, SourceIP: "203.0.113.7",
		}, false},
		{"unregistered without source ip", Record{
			TransmissionID: "tx", Status: StatusUnregisteredAttempt,
		}, true},
		{"source ip on success", Record{
			TransmissionID: "tx", Status: StatusSuccess, SourceIP: "203.0.113.7",
		}, true},
		{"unknown status", Record{
			TransmissionID: "tx", Status: "MAYBE",
		}, true},
		{"missing transmission id", Record{
			Status: StatusSuccess,
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			err := l.Append(ctx, &rec)
			if (err != nil) != tt.wantErr {
				t.Errorf("Append err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestListByDeviceAndStatus(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	if err := l.Append(ctx, successRecord("tx-1", "dev-a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(ctx, successRecord("tx-2", "dev-b")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(ctx, &Record{
		TransmissionID: "tx-3", DeviceID: "dev-a", Status: StatusBlocked,
		BlockReason: "NO_PERMISSION",
	}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	byDevice, err := l.ListByDevice(ctx, "dev-a", 10)
	if err != nil {
		t.Fatalf("ListByDevice: %v", err)
	}
	if len(byDevice) != 2 {
		t.Errorf("ListByDevice(dev-a) = %d records, want 2", len(byDevice))
	}

	blocked, err := l.ListByStatus(ctx, StatusBlocked, 10)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(blocked) != 1 || blocked[0].BlockReason != "NO_PERMISSION" {
		t.Errorf("ListByStatus(BLOCKED) = %+v", blocked)
	}

	counts, err := l.CountByStatus(ctx)
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if counts[StatusSuccess] != 2 || counts[StatusBlocked] != 1 {
		t.Errorf("CountByStatus = %v", counts)
	}
}

func TestAppend_PublishesEvent(t *testing.T) {
	l, bus := testLedger(t)

	var (
		mu     sync.Mutex
		events []module.Event
		wg     sync.WaitGroup
	)
	wg.Add(1)
	bus.Subscribe(TopicRecorded, func(ctx context.Context, e module.Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		wg.Done()
	})

	if err := l.Append(context.Background(), successRecord("tx-1", "dev-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	waitTimeout(t, &wg, time.Second)
	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	rec, ok := events[0].Payload.(Record)
	if !ok {
		t.Fatalf("payload type = %T, want Record", events[0].Payload)
	}
	if rec.TransmissionID != "tx-1" {
		t.Errorf("event record = %+v", rec)
	}
}

func TestPrune_RemovesOldRecords(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	old := successRecord("tx-old", "dev-1")
	old.Timestamp = time.Now().UTC().Add(-100 * 24 * time.Hour)
	if err := l.Append(ctx, old); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(ctx, successRecord("tx-new", "dev-1")); err != nil {
		t.Fatalf("Append: %v", err)
	}

	removed, err := l.Prune(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	left, err := l.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("ListRecent: %v", err)
	}
	if len(left) != 1 || left[0].TransmissionID != "tx-new" {
		t.Errorf("remaining = %+v, want only tx-new", left)
	}
}

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for event delivery")
	}
}
