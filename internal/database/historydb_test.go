package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/brokersafety/internal/model"
	"github.com/nao1215/brokersafety/internal/regulator"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *HistoryDB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newReport returns a report for homepage generated at ts with one entity
// per regulator.
func newReport(homepage string, ts time.Time, regulators ...string) *model.SafetyReport {
	report := model.NewSafetyReport(homepage, "heuristic")
	report.GeneratedAt = ts
	for _, abbr := range regulators {
		report.Record.Entities = append(report.Record.Entities, model.DetectedEntity{
			EntityName:    "Broker " + abbr + " Ltd",
			RegulatorAbbr: abbr,
			Tier:          regulator.Tier1,
		})
	}
	report.Record.IsRegulated = strings.Join(regulators, ", ")
	return report
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, FileName)); os.IsNotExist(err) {
			t.Error("database file was not created")
		}
		if db.Path() != filepath.Join(dbDir, FileName) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false returns error when database does not exist", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "nonexistent-db")
		_, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err == nil {
			t.Fatal("expected error when CreateIfNotExists=false and database does not exist")
		}
		if !strings.Contains(err.Error(), "database not found") {
			t.Errorf("expected informative error, got %q", err.Error())
		}
		if _, statErr := os.Stat(dbDir); !os.IsNotExist(statErr) {
			t.Error("database directory should not have been created when CreateIfNotExists=false")
		}
	})

	t.Run("CreateIfNotExists=false opens existing database", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "existing-db")
		db1, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to create database: %v", err)
		}
		ctx := context.Background()
		report := newReport("https://broker.example", time.Now(), "FCA")
		if err := db1.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		db1.Close()

		db2, err := Open(dbDir, Options{CreateIfNotExists: false, EnableWAL: true})
		if err != nil {
			t.Fatalf("failed to open existing database: %v", err)
		}
		defer db2.Close()

		if _, err := db2.GetReportByID(ctx, report.ID); err != nil {
			t.Errorf("expected report to persist, got %v", err)
		}
	})
}

// TestDefaultOptions tests the default options values.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists {
		t.Error("expected CreateIfNotExists to be true by default")
	}
	if !opts.EnableWAL {
		t.Error("expected EnableWAL to be true by default")
	}
}

// TestReports tests saving and retrieving safety reports.
func TestReports(t *testing.T) {
	t.Parallel()

	t.Run("latest and history", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		older := newReport("https://broker.example", base, "FCA")
		newer := newReport("https://broker.example", base.Add(time.Hour), "FCA", "CySEC")
		other := newReport("https://other.example", base, "ASIC")
		for _, r := range []*model.SafetyReport{newer, older, other} {
			if err := db.SaveReport(ctx, r); err != nil {
				t.Fatalf("failed to save report: %v", err)
			}
		}

		latest, err := db.GetLatestReport(ctx, "https://broker.example")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if latest.ID != newer.ID {
			t.Errorf("expected latest %s, got %s", newer.ID, latest.ID)
		}
		if !slices.Equal(latest.Regulators(), []string{"FCA", "CySEC"}) {
			t.Errorf("unexpected regulators %v", latest.Regulators())
		}

		history, err := db.GetReportHistory(ctx, "https://broker.example", 0)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(history) != 2 || history[0].ID != newer.ID || history[1].ID != older.ID {
			t.Errorf("unexpected history order")
		}

		limited, err := db.GetReportHistory(ctx, "https://broker.example", 1)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(limited) != 1 {
			t.Errorf("expected 1 report, got %d", len(limited))
		}

		meta, err := db.GetReportMetadata(ctx, "https://broker.example")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(meta) != 2 || !slices.Equal(meta[0].Regulators, []string{"FCA", "CySEC"}) {
			t.Errorf("unexpected metadata %+v", meta)
		}
		if !meta[0].GeneratedAt.Equal(newer.GeneratedAt) {
			t.Errorf("expected timestamp %v, got %v", newer.GeneratedAt, meta[0].GeneratedAt)
		}

		homepages, err := db.ListHomepages(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !slices.Equal(homepages, []string{"https://broker.example", "https://other.example"}) {
			t.Errorf("unexpected homepages %v", homepages)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		if _, err := db.GetLatestReport(ctx, "https://none.example"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
		if _, err := db.GetReportByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("saving twice replaces entities", func(t *testing.T) {
		t.Parallel()

		db := setupTestDB(t)
		ctx := context.Background()
		report := newReport("https://broker.example", time.Now(), "FCA")
		if err := db.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
		if err := db.SaveReport(ctx, report); err != nil {
			t.Fatalf("failed to save report again: %v", err)
		}

		rows, err := db.QueryEntitiesByRegulator(ctx, "FCA")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rows) != 1 {
			t.Errorf("expected 1 entity, got %d", len(rows))
		}
	})

	t.Run("nil report", func(t *testing.T) {
		t.Parallel()

		if err := setupTestDB(t).SaveReport(context.Background(), nil); err == nil {
			t.Error("expected error for nil report")
		}
	})
}

// TestQueryEntitiesByRegulator tests the cross-report entity query.
func TestQueryEntitiesByRegulator(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	reports := []*model.SafetyReport{
		newReport("https://a.example", base, "FCA"),
		newReport("https://a.example", base.Add(time.Hour), "CySEC"),
		newReport("https://b.example", base, "FCA", "ASIC"),
	}
	for _, r := range reports {
		if err := db.SaveReport(ctx, r); err != nil {
			t.Fatalf("failed to save report: %v", err)
		}
	}

	rows, err := db.QueryEntitiesByRegulator(ctx, "fca")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// a.example no longer lists the FCA in its latest report.
	if len(rows) != 1 || rows[0].Homepage != "https://b.example" {
		t.Fatalf("unexpected rows %+v", rows)
	}
	if rows[0].EntityName != "Broker FCA Ltd" || rows[0].Tier != string(regulator.Tier1) {
		t.Errorf("unexpected row %+v", rows[0])
	}

	rows, err = db.QueryEntitiesByRegulator(ctx, "FINMA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %+v", rows)
	}
}
