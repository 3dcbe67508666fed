package repair

import (
	"context"
	"strings"

	"github.com/mendrake/siteforge/validate"
)

// CrossCheck runs the repaired recipe with a second, unrelated query and
// compares title sets. A recipe that returns near-identical titles for
// two different queries is extracting static page furniture (trending
// lists, navigation tiles) instead of search results. Returns true when
// the results are genuinely query-dependent.
func (c *Controller) CrossCheck(ctx context.Context, job Job, first []validate.Record, altQuery string) (bool, error) {
	if altQuery == "" || altQuery == job.Input {
		return true, nil
	}

	res, err := c.runner.Run(ctx, job.RecipePath, job.StepType, altQuery)
	if err != nil {
		// A failing alternate run proves nothing about staticness; let
		// the primary success stand.
		c.cfg.Logger.Warn("repair: cross-query run failed", "query", altQuery, "error", err)
		return true, nil
	}

	second := validate.List(res.Records, c.cfg.Validation).Valid
	overlap := TitleOverlap(first, second)
	if overlap >= c.cfg.OverlapThreshold {
		c.cfg.Logger.Warn("repair: cross-query titles overlap, results look static",
			"overlap", overlap, "threshold", c.cfg.OverlapThreshold)
		return false, nil
	}
	return true, nil
}

// TitleOverlap returns the fraction of the first record set's
// normalized titles that reappear in the second set. The first run's
// titles are the reference: a second query reproducing most of them
// means the recipe extracts static content, while a second run that is
// merely a small subset stays below threshold. An empty first set
// overlaps fully, since no evidence of distinctness exists.
func TitleOverlap(first, second []validate.Record) float64 {
	sa := titleSet(first)
	if len(sa) == 0 {
		return 1.0
	}
	sb := titleSet(second)
	shared := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(sa))
}

func titleSet(records []validate.Record) map[string]struct{} {
	set := make(map[string]struct{}, len(records))
	for _, r := range records {
		t, _ := r["title"].(string)
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}
