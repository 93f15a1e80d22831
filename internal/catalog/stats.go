package catalog

import "context"

const opStats = "catalog.stats"

type groupCount struct {
	GroupKey string `gorm:"column:group_key"`
	Total    int64  `gorm:"column:total"`
}

// Stats returns content and category totals plus per-type and per-category counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	db, err := s.session(ctx, opStats)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{
		ContentsByType:     map[string]int64{},
		ContentsByCategory: map[string]int64{},
	}
	if err := db.Model(&Content{}).Count(&stats.TotalContents).Error; err != nil {
		return Stats{}, s.fail(opStats, "content_count_failed", err)
	}
	if err := db.Model(&Category{}).Count(&stats.TotalCategories).Error; err != nil {
		return Stats{}, s.fail(opStats, "category_count_failed", err)
	}

	var byType []groupCount
	if err := db.Model(&Content{}).Select("type AS group_key, COUNT(*) AS total").Group("type").Scan(&byType).Error; err != nil {
		return Stats{}, s.fail(opStats, "type_count_failed", err)
	}
	for _, row := range byType {
		stats.ContentsByType[row.GroupKey] = row.Total
	}

	var byCategory []groupCount
	if err := db.Model(&Content{}).Select("category AS group_key, COUNT(*) AS total").Group("category").Scan(&byCategory).Error; err != nil {
		return Stats{}, s.fail(opStats, "category_group_failed", err)
	}
	for _, row := range byCategory {
		stats.ContentsByCategory[row.GroupKey] = row.Total
	}
	return stats, nil
}
