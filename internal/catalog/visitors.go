package catalog

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

const (
	opRecordVisitor  = "catalog.record_visitor"
	opCountVisitors  = "catalog.count_visitors"
	opVisitorStats   = "catalog.visitor_stats"
	opHasVisitor     = "catalog.has_visitor"
	visitorDayLayout = "2006-01-02"
)

// RecordVisitor appends a visit for visitorID with optional metadata.
func (s *Store) RecordVisitor(ctx context.Context, visitorID string, metadata map[string]any) error {
	db, err := s.session(ctx, opRecordVisitor)
	if err != nil {
		return err
	}
	if visitorID, err = NormalizeIdentifier(visitorID); err != nil {
		return s.fail(opRecordVisitor, reasonInvalidInput, err)
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return s.fail(opRecordVisitor, "metadata_encode_failed", err, zap.String("visitor_id", visitorID))
	}
	session := VisitorSession{
		VisitorID:       visitorID,
		Metadata:        datatypes.JSON(encoded),
		CreatedAtMillis: s.nowMillis(),
	}
	if err := db.Create(&session).Error; err != nil {
		return s.fail(opRecordVisitor, "session_insert_failed", err, zap.String("visitor_id", visitorID))
	}
	return nil
}

// HasVisitor reports whether any visit was recorded for visitorID.
func (s *Store) HasVisitor(ctx context.Context, visitorID string) (bool, error) {
	db, err := s.session(ctx, opHasVisitor)
	if err != nil {
		return false, err
	}
	var count int64
	if err := db.Model(&VisitorSession{}).Where("visitor_id = ?", visitorID).Count(&count).Error; err != nil {
		return false, s.fail(opHasVisitor, reasonQueryFailed, err, zap.String("visitor_id", visitorID))
	}
	return count > 0, nil
}

// CountVisitors returns the number of distinct visitors within the trailing window.
func (s *Store) CountVisitors(ctx context.Context, window time.Duration) (int64, error) {
	db, err := s.session(ctx, opCountVisitors)
	if err != nil {
		return 0, err
	}
	cutoff := s.clock().UTC().Add(-window).UnixMilli()
	var count int64
	err = db.Model(&VisitorSession{}).
		Where("created_at_ms >= ?", cutoff).
		Distinct("visitor_id").
		Count(&count).Error
	if err != nil {
		return 0, s.fail(opCountVisitors, reasonQueryFailed, err)
	}
	return count, nil
}

// VisitorStats returns distinct visitors over the last days, in total and per
// UTC day (most recent day first).
func (s *Store) VisitorStats(ctx context.Context, days int) (VisitorStats, error) {
	db, err := s.session(ctx, opVisitorStats)
	if err != nil {
		return VisitorStats{}, err
	}
	if days <= 0 {
		days = 30
	}
	cutoff := s.clock().UTC().AddDate(0, 0, -days).UnixMilli()

	var sessions []VisitorSession
	err = db.Select("visitor_id", "created_at_ms").
		Where("created_at_ms >= ?", cutoff).
		Find(&sessions).Error
	if err != nil {
		return VisitorStats{}, s.fail(opVisitorStats, reasonQueryFailed, err)
	}

	overall := make(map[string]struct{})
	perDay := make(map[string]map[string]struct{})
	for _, session := range sessions {
		overall[session.VisitorID] = struct{}{}
		day := time.UnixMilli(session.CreatedAtMillis).UTC().Format(visitorDayLayout)
		if _, ok := perDay[day]; !ok {
			perDay[day] = make(map[string]struct{})
		}
		perDay[day][session.VisitorID] = struct{}{}
	}

	daily := make([]DailyVisitors, 0, len(perDay))
	for day, visitors := range perDay {
		daily = append(daily, DailyVisitors{Date: day, Count: int64(len(visitors))})
	}
	sort.Slice(daily, func(i, j int) bool {
		return daily[i].Date > daily[j].Date
	})

	return VisitorStats{Total: int64(len(overall)), Daily: daily}, nil
}
