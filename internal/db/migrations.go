package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS postgis;`,
	`CREATE TABLE IF NOT EXISTS hazard_detections (
		id              UUID PRIMARY KEY,
		location        GEOGRAPHY(POINT, 4326),
		hazard_type     TEXT NOT NULL,
		detected_at     TIMESTAMPTZ NOT NULL,
		confidence      DOUBLE PRECISION,
		bounding_box    JSONB,
		driver_lane     BOOLEAN NOT NULL DEFAULT FALSE,
		distance_meters DOUBLE PRECISION,
		frame_number    INT,
		source          TEXT NOT NULL,
		status          TEXT NOT NULL DEFAULT 'reported',
		fingerprint     TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_hazard_detections_location ON hazard_detections USING GIST (location);`,
	`CREATE INDEX IF NOT EXISTS idx_hazard_detections_detected_at ON hazard_detections(detected_at);`,
	`CREATE INDEX IF NOT EXISTS idx_hazard_detections_type ON hazard_detections(hazard_type);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_hazard_detections_manual_fingerprint
		ON hazard_detections(fingerprint)
		WHERE source = 'manual' AND fingerprint IS NOT NULL;`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_hazard_detections_status') THEN
			ALTER TABLE hazard_detections
				ADD CONSTRAINT chk_hazard_detections_status CHECK (status IN ('reported', 'resolved'));
		END IF;
	END
	$$;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
