package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"OpenCargoRegistry/db"
	"OpenCargoRegistry/storage"
	"OpenCargoRegistry/storage/disk"
)

func Test_Reconcile_ReportsOrphansAndMissingBlobs(t *testing.T) {
	tr := newTestRegistry(t)
	ada := tr.author(t, "ada@example.com")
	tr.publish(t, ada, "hello", "0.1.0")
	tr.publish(t, ada, "hello", "0.2.0")
	err := tr.db.WithTransaction(context.Background(), func(c *db.Conn) error {
		_, err := c.InsertCrate(db.Crate{Name: "orphan", CanonName: "orphan"})
		return err
	})
	if err != nil {
		t.Fatalf("failed to insert orphan: %v", err)
	}
	if err := tr.blobs.Remove(storage.CrateKey(disk.Prefix, "hello", "0.1.0")); err != nil {
		t.Fatalf("failed to remove blob: %v", err)
	}

	report, err := tr.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	want := &Report{OrphanCrates: []string{"orphan"}, MissingBlobs: []string{"hello#0.1.0"}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("unexpected report (-want +got):\n%s", diff)
	}
	if _, err := tr.Crate(context.Background(), "orphan"); err != nil {
		t.Errorf("expected the orphan row to be kept, got %v", err)
	}
}

func Test_Reconcile_PurgesExpiredSessions(t *testing.T) {
	tr := newTestRegistry(t)
	if _, err := tr.Register(context.Background(), "ada@example.com", "Ada", "s3cret"); err != nil {
		t.Fatalf("registration failed: %v", err)
	}
	if _, err := tr.Login(context.Background(), "ada@example.com", "s3cret"); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	tr.clock.Advance(25 * time.Hour)

	report, err := tr.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if report.ExpiredSessions != 1 {
		t.Errorf("expected one expired session, got %d", report.ExpiredSessions)
	}
}

func Test_RebuildSearch_RestoresDocuments(t *testing.T) {
	tr := newTestRegistry(t)
	ada := tr.author(t, "ada@example.com")
	tr.publishWith(t, ada, map[string]any{"name": "hello", "vers": "0.1.0", "readme": "A friendly *greeting* crate"})
	tr.publish(t, ada, "other", "1.0.0")
	if err := tr.search.Clear(context.Background()); err != nil {
		t.Fatalf("failed to clear search: %v", err)
	}

	if err := tr.EnsureSearchIndex(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	count, err := tr.search.Count(context.Background())
	if err != nil || count != 2 {
		t.Errorf("expected two documents, got %d (%v)", count, err)
	}
	results, err := tr.Search(context.Background(), "greeting", 1, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if diff := cmp.Diff([]string{"hello"}, summaryNames(results)); diff != "" {
		t.Errorf("expected README text to be indexed again (-want +got):\n%s", diff)
	}
}

func Test_EnsureSearchIndex_NonEmpty_DoesNothing(t *testing.T) {
	tr := newTestRegistry(t)
	ada := tr.author(t, "ada@example.com")
	tr.publish(t, ada, "hello", "0.1.0")

	if err := tr.EnsureSearchIndex(context.Background()); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	count, _ := tr.search.Count(context.Background())
	if count != 1 {
		t.Errorf("expected one document, got %d", count)
	}
}
