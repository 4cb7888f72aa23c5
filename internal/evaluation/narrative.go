package evaluation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
)

// ErrNoModel is returned when a narrative is requested without a model
var ErrNoModel = errors.New("no language model configured")

// HasModel reports whether narratives are available
func (e *Evaluator) HasModel() bool {
	return e.model != nil
}

// Narrate asks the model for a short summary of the report
func (e *Evaluator) Narrate(ctx context.Context, report *ShiftReport) (string, error) {
	if e.model == nil {
		return "", ErrNoModel
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	text, err := llms.GenerateFromSinglePrompt(ctx, e.model, NarrativePrompt(report),
		llms.WithTemperature(0.3),
		llms.WithMaxTokens(300),
	)
	if err != nil {
		return "", fmt.Errorf("narrative: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// NarrativePrompt renders the report as a prompt for the shift summary
func NarrativePrompt(report *ShiftReport) string {
	var b strings.Builder
	b.WriteString("You are the shift manager of a small robot bakery. ")
	b.WriteString("Write three or four plain sentences summarizing the shift for the owner, ")
	b.WriteString("mentioning what sold, what is running low and anything that looks stuck.\n\n")

	if report.Scenario != "" {
		fmt.Fprintf(&b, "Scenario: %s\n", report.Scenario)
	}
	fmt.Fprintf(&b, "Flour packs: %d\n", report.FlourPacks)

	b.WriteString("Ingredients:")
	for _, kind := range report.Ingredients.Kinds() {
		fmt.Fprintf(&b, " %s=%d", kind, report.Ingredients[kind])
	}
	b.WriteString("\n")

	writeCounts(&b, "Counter", report.Counter)
	writeCounts(&b, "Sold", report.Production.SoldByProduct)

	b.WriteString("Products by state:")
	states := make([]string, 0, len(report.ProductsByState))
	for state, n := range report.ProductsByState {
		if n > 0 {
			states = append(states, fmt.Sprintf(" %s=%d", state, n))
		}
	}
	sort.Strings(states)
	b.WriteString(strings.Join(states, ""))
	b.WriteString("\n")

	if report.Production.Sold > 0 {
		fmt.Fprintf(&b, "Average lead time: %s\n", report.Production.AverageLeadTime.Round(time.Second))
	}
	for _, r := range report.Robots {
		fmt.Fprintf(&b, "Robot %s (%s): %s, %d committed, %d failed", r.ID, r.Role, r.State, r.Committed, r.Failed)
		if r.Error != "" {
			fmt.Fprintf(&b, ", error: %s", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func writeCounts(b *strings.Builder, label string, counts map[string]int) {
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString(label + ":")
	if len(names) == 0 {
		b.WriteString(" none")
	}
	for _, name := range names {
		fmt.Fprintf(b, " %s=%d", name, counts[name])
	}
	b.WriteString("\n")
}
