package state

import (
	"time"

	"github.com/pacewise/course-tracker/internal/domain/shared"
	"github.com/pacewise/course-tracker/internal/domain/tracking"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Migrations run on the raw JSON document before it is decoded, so a step
// can reshape fields the current document struct no longer has. Each step
// upgrades exactly one version and records itself in metadata.

type migration struct {
	from  string
	to    string
	apply func(doc map[string]any, now time.Time)
}

var schemaMigrations = []migration{
	{from: "1.0", to: "1.1", apply: migrateV10ToV11},
}

// migrateDocument upgrades the document in place to the current schema.
// An unversioned document is stamped as 1.0 first. A version with no
// migration path is corruption: the caller falls back to backups.
func migrateDocument(doc map[string]any, now time.Time) error {
	var applied []string

	version, _ := doc["schema_version"].(string)
	if version == "" {
		version = tracking.SchemaVersionLegacy
		doc["schema_version"] = version
		applied = append(applied, "stamped unversioned document as "+version)
	}

	for version != tracking.SchemaVersion {
		step := findMigration(version)
		if step == nil {
			return shared.NewDomainError("state", "migrate", shared.ErrUnknownSchema,
				"no migration path from schema version "+version)
		}
		step.apply(doc, now)
		doc["schema_version"] = step.to
		applied = append(applied, step.from+" -> "+step.to)
		version = step.to
	}

	if len(applied) > 0 {
		recordMigrations(doc, applied, now)
	}
	return nil
}

func findMigration(from string) *migration {
	for i := range schemaMigrations {
		if schemaMigrations[i].from == from {
			return &schemaMigrations[i]
		}
	}
	return nil
}

// migrateV10ToV11 pads bare dates to full timestamps and introduces the
// metadata block. 1.0 files stored "2025-06-01" where 1.1 stores
// "2025-06-01T00:00:00".
func migrateV10ToV11(doc map[string]any, now time.Time) {
	for _, key := range []string{"tracking_start_date", "last_daily_reset_date", "last_notification_timestamp"} {
		if v, ok := doc[key].(string); ok && len(v) == 10 {
			doc[key] = v + "T00:00:00"
		}
	}
	ensureMetadata(doc, now)
}

func ensureMetadata(doc map[string]any, now time.Time) map[string]any {
	meta, ok := doc["metadata"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		doc["metadata"] = meta
	}
	if _, ok := meta["created_at"].(string); !ok {
		meta["created_at"] = now.Format(timestampLayout)
	}
	return meta
}

func recordMigrations(doc map[string]any, applied []string, now time.Time) {
	meta := ensureMetadata(doc, now)
	history, _ := meta["migration_history"].([]any)
	for _, entry := range applied {
		history = append(history, entry)
	}
	meta["migration_history"] = history
}
