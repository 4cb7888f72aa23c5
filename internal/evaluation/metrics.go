package evaluation

import (
	"time"

	"robotbakery/internal/models"
)

// Summarize computes production statistics over products in any state.
// Lead time is measured from the first contribution to the sale.
func Summarize(products []*models.Product) ProductionStats {
	stats := ProductionStats{
		SoldByProduct:        make(map[string]int),
		ContributionsByRobot: make(map[string]int),
	}

	var totalLead time.Duration
	for _, p := range products {
		stats.Total++
		for _, c := range p.Contributions {
			stats.ContributionsByRobot[c.RobotID]++
		}
		if p.State != models.StateSold {
			stats.InProgress++
			continue
		}
		stats.Sold++
		stats.SoldByProduct[p.ProductName]++

		lead := leadTime(p)
		totalLead += lead
		if lead > stats.LongestLeadTime {
			stats.LongestLeadTime = lead
			stats.LongestLeadProduct = p.ID
		}
	}
	if stats.Sold > 0 {
		stats.AverageLeadTime = totalLead / time.Duration(stats.Sold)
	}
	return stats
}

// CountByState counts products per state, listing every known state
func CountByState(products []*models.Product) map[models.ProductState]int {
	counts := map[models.ProductState]int{
		models.StateNew:               0,
		models.StateDoughBase:         0,
		models.StateDoughInStorage:    0,
		models.StateDoughInBakeroom:   0,
		models.StateDoughFinal:        0,
		models.StateProductInStorage:  0,
		models.StateProductInCounter:  0,
		models.StateProductInTerminal: 0,
		models.StateSold:              0,
	}
	for _, p := range products {
		counts[p.State]++
	}
	return counts
}

func leadTime(p *models.Product) time.Duration {
	if len(p.Contributions) < 2 {
		return 0
	}
	first := p.Contributions[0].Timestamp
	last := p.Contributions[len(p.Contributions)-1].Timestamp
	if last.Before(first) {
		return 0
	}
	return last.Sub(first)
}
