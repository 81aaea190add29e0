package services

import (
	"testing"

	"github.com/google/uuid"
)

func TestAuditLogActionAndListing(t *testing.T) {
	db := newTestDB(t)
	svc := NewAuditService(db)

	adminA := uuid.New()
	adminB := uuid.New()
	svc.LogAction(adminA, "import_video", "video", uuid.NewString(), map[string]interface{}{"key": "courses/a.mp4"}, "127.0.0.1")
	svc.LogAction(adminA, "bulk_delete_videos", "video", "", nil, "127.0.0.1")
	svc.LogAction(adminB, "import_video", "video", uuid.NewString(), nil, "10.0.0.1")

	logs, total, err := svc.GetRecentActions(1, 50, nil, "")
	if err != nil {
		t.Fatalf("listing failed: %v", err)
	}
	if total != 3 || len(logs) != 3 {
		t.Fatalf("expected 3 entries, got total=%d len=%d", total, len(logs))
	}

	logs, total, err = svc.GetRecentActions(1, 50, &adminA, "import_video")
	if err != nil {
		t.Fatalf("filtered listing failed: %v", err)
	}
	if total != 1 || len(logs) != 1 {
		t.Fatalf("expected 1 filtered entry, got total=%d len=%d", total, len(logs))
	}
	if logs[0].Details == "" {
		t.Fatalf("expected JSON details recorded")
	}
}
