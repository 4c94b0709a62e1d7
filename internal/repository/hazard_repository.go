package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"hazard-service/internal/domain/hazard"
)

const uniqueViolation = "23505"

// PostGISStore persists events in PostgreSQL with a GiST-indexed geography column.
type PostGISStore struct {
	db      *gorm.DB
	timeout time.Duration
}

func NewPostGISStore(db *gorm.DB, timeout time.Duration) *PostGISStore {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &PostGISStore{db: db, timeout: timeout}
}

type HazardDetection struct {
	ID             string    `gorm:"primaryKey;type:uuid"`
	Location       GeoPoint  `gorm:"type:geography(Point,4326)"`
	HazardType     string    `gorm:"not null"`
	DetectedAt     time.Time `gorm:"not null"`
	Confidence     *float64
	BoundingBox    datatypes.JSON `gorm:"type:jsonb"`
	DriverLane     bool
	DistanceMeters *float64
	FrameNumber    *int
	Source         string `gorm:"not null"`
	Status         string `gorm:"not null"`
	Fingerprint    *string
	CreatedAt      time.Time
}

func (HazardDetection) TableName() string { return "hazard_detections" }

// detectionRow is the read shape: the geography column is projected to lat/lng.
type detectionRow struct {
	ID                 string
	HazardType         string
	DetectedAt         time.Time
	Confidence         *float64
	BoundingBox        datatypes.JSON
	DriverLane         bool
	DistanceMeters     *float64
	FrameNumber        *int
	Source             string
	Status             string
	Fingerprint        *string
	Lat                *float64
	Lng                *float64
	DistanceFromCenter float64
}

const selectColumns = `
	id, hazard_type, detected_at, confidence, bounding_box, driver_lane,
	distance_meters, frame_number, source, status, fingerprint,
	CASE WHEN location IS NOT NULL THEN ST_Y(location::geometry) END AS lat,
	CASE WHEN location IS NOT NULL THEN ST_X(location::geometry) END AS lng`

func (s *PostGISStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", hazard.ErrStorageUnavailable, op, err)
}

func (s *PostGISStore) Insert(ctx context.Context, event *hazard.Event) (string, error) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = hazard.StatusReported
	}

	dbEvent, err := newDetection(event)
	if err != nil {
		return "", err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.WithContext(ctx).Create(&dbEvent).Error; err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return "", fmt.Errorf("%w: %s", hazard.ErrDuplicateFingerprint, event.Fingerprint)
		}
		return "", storageErr("insert", err)
	}
	return event.ID, nil
}

// newDetection maps an event to its row. Confidence is always written, so a genuine 0
// stays distinguishable from a missing value.
func newDetection(event *hazard.Event) (HazardDetection, error) {
	confidence := event.Confidence
	row := HazardDetection{
		ID:             event.ID,
		HazardType:     string(event.Type),
		DetectedAt:     event.Timestamp,
		Confidence:     &confidence,
		DriverLane:     event.DriverLane,
		DistanceMeters: event.DistanceMeters,
		FrameNumber:    event.FrameNumber,
		Source:         string(event.Source),
		Status:         string(event.Status),
		CreatedAt:      time.Now(),
	}
	if event.Location != nil {
		row.Location = GeoPoint{Lat: event.Location.Lat, Lng: event.Location.Lng, Valid: true}
	}
	if event.BoundingBox != nil {
		raw, err := json.Marshal(event.BoundingBox)
		if err != nil {
			return HazardDetection{}, fmt.Errorf("%w: bounding box: %v", hazard.ErrInvalidInput, err)
		}
		row.BoundingBox = datatypes.JSON(raw)
	}
	if event.Fingerprint != "" {
		fp := event.Fingerprint
		row.Fingerprint = &fp
	}
	return row, nil
}

func (s *PostGISStore) FindNearby(ctx context.Context, center hazard.Location, radiusMeters float64, sinceDays int) ([]hazard.NearbyEvent, error) {
	if radiusMeters <= 0 {
		return []hazard.NearbyEvent{}, nil
	}
	since := time.Time{}
	if sinceDays > 0 {
		since = time.Now().Add(-time.Duration(sinceDays) * 24 * time.Hour)
	}

	query := `SELECT ` + selectColumns + `,
		ST_Distance(location, ST_SetSRID(ST_MakePoint(@lng, @lat), 4326)::geography) AS distance_from_center
	FROM hazard_detections
	WHERE location IS NOT NULL
	  AND ST_DWithin(location, ST_SetSRID(ST_MakePoint(@lng, @lat), 4326)::geography, @radius)
	  AND detected_at >= @since
	ORDER BY distance_from_center ASC, id ASC`

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []detectionRow
	err := s.db.WithContext(ctx).Raw(query, map[string]interface{}{
		"lng":    center.Lng,
		"lat":    center.Lat,
		"radius": radiusMeters,
		"since":  since,
	}).Scan(&rows).Error
	if err != nil {
		return nil, storageErr("find nearby", err)
	}

	result := make([]hazard.NearbyEvent, 0, len(rows))
	for _, r := range rows {
		result = append(result, hazard.NearbyEvent{Event: r.toEvent(), DistanceMeters: r.DistanceFromCenter})
	}
	return result, nil
}

func (s *PostGISStore) Get(ctx context.Context, id string) (*hazard.Event, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []detectionRow
	err := s.db.WithContext(ctx).
		Raw(`SELECT `+selectColumns+` FROM hazard_detections WHERE id = ?`, id).
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("get", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	e := rows[0].toEvent()
	return &e, nil
}

func (s *PostGISStore) List(ctx context.Context, limit, offset int) ([]hazard.Event, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rows []detectionRow
	err := s.db.WithContext(ctx).
		Raw(`SELECT `+selectColumns+` FROM hazard_detections ORDER BY detected_at DESC LIMIT ? OFFSET ?`, limit, offset).
		Scan(&rows).Error
	if err != nil {
		return nil, storageErr("list", err)
	}
	events := make([]hazard.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, r.toEvent())
	}
	return events, nil
}

func (s *PostGISStore) UpdateStatus(ctx context.Context, id string, status hazard.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", hazard.ErrInvalidInput, status)
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Model(&HazardDetection{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return storageErr("update status", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	return nil
}

func (s *PostGISStore) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&HazardDetection{})
	if res.Error != nil {
		return storageErr("delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: hazard %s", hazard.ErrNotFound, id)
	}
	return nil
}

func (s *PostGISStore) DeleteOldEvents(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		return 0, fmt.Errorf("%w: days must be positive", hazard.ErrInvalidInput)
	}
	cutoff := time.Now().Add(-time.Duration(days) * 24 * time.Hour)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res := s.db.WithContext(ctx).Where("detected_at < ?", cutoff).Delete(&HazardDetection{})
	if res.Error != nil {
		return 0, storageErr("delete old events", res.Error)
	}
	return res.RowsAffected, nil
}

func (s *PostGISStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storageErr("ping", err)
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (r detectionRow) toEvent() hazard.Event {
	e := hazard.Event{
		ID:             r.ID,
		Type:           hazard.Type(r.HazardType),
		Timestamp:      r.DetectedAt,
		DriverLane:     r.DriverLane,
		DistanceMeters: r.DistanceMeters,
		FrameNumber:    r.FrameNumber,
		Source:         hazard.Source(r.Source),
		Status:         hazard.Status(r.Status),
	}
	if r.Lat != nil && r.Lng != nil {
		e.Location = &hazard.Location{Lat: *r.Lat, Lng: *r.Lng}
	}
	if r.Confidence != nil {
		e.Confidence = *r.Confidence
	}
	if len(r.BoundingBox) > 0 {
		var box hazard.BoundingBox
		if err := json.Unmarshal(r.BoundingBox, &box); err == nil {
			e.BoundingBox = &box
		}
	}
	if r.Fingerprint != nil {
		e.Fingerprint = *r.Fingerprint
	}
	return e
}
