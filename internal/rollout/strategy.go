package rollout

import "github.com/fairyhunter13/hybrid-capture/internal/domain"

// categoryStageOrder is the fixed stage-gate ordering for the
// repository_size strategy (spec §4.4, §13 open-question decision: the
// 25/50/75/100 thresholds are fixed, not configurable).
var categoryStageOrder = []struct {
	category  domain.RepositoryCategory
	threshold int
}{
	{domain.CategoryTest, 25},
	{domain.CategorySmall, 50},
	{domain.CategoryMedium, 75},
	{domain.CategoryLarge, 100},
}

// categoryOpened reports whether percentage has crossed the threshold at
// which category becomes eligible.
func categoryOpened(category domain.RepositoryCategory, percentage int) bool {
	for _, stage := range categoryStageOrder {
		if stage.category == category {
			return percentage >= stage.threshold
		}
	}
	return false
}
