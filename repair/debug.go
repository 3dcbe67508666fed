package repair

import (
	"context"
	"strings"

	"github.com/mendrake/siteforge/browser"
	"github.com/mendrake/siteforge/domloop"
	"github.com/mendrake/siteforge/fixer"
	"github.com/mendrake/siteforge/netapi"
)

// debugSteps probes every step locator against the live page and
// reports which ones still match. The whole phase shares one page and
// one deadline; a navigation failure yields an empty diagnosis rather
// than an error, because the fix request is still worth sending with
// engine output alone.
func (c *Controller) debugSteps(ctx context.Context, job Job) []fixer.StepDebug {
	log := c.cfg.Logger
	steps := job.Recipe.Steps(job.StepType)
	if len(steps) == 0 || c.drv == nil {
		return nil
	}

	target := debugTarget(job)
	if target == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.DebugTimeout)
	defer cancel()

	page, err := c.drv.NewPage(ctx)
	if err != nil {
		log.Warn("repair: debug page open failed", "error", err)
		return nil
	}
	defer page.Close()

	if err := page.Navigate(ctx, target, browser.WaitDOMStable, c.cfg.DebugTimeout); err != nil {
		log.Warn("repair: debug navigation failed", "url", target, "error", err)
		return nil
	}

	var out []fixer.StepDebug
	for i, step := range steps {
		locator, _ := step["locator"].(string)
		if locator == "" {
			continue
		}
		d := fixer.StepDebug{StepIndex: i, Locator: locator}

		els, err := page.QueryAll(ctx, concreteSelector(locator))
		if err != nil {
			log.Warn("repair: debug query failed", "step", i, "locator", locator, "error", err)
		}
		d.MatchCount = len(els)
		d.Working = d.MatchCount > 0

		if !d.Working {
			hint, _ := step["field"].(string)
			if hint == "" {
				hint, _ = step["name"].(string)
			}
			d.Suggested = c.suggestSelectors(ctx, page, hint)
		}
		out = append(out, d)
	}
	return out
}

// debugTarget picks the URL to diagnose against: the recorded results
// page with the query substituted, falling back to the job input.
func debugTarget(job Job) string {
	if job.Evidence != nil {
		if t := job.Evidence.URLTemplate; t != "" {
			return strings.ReplaceAll(t, netapi.QueryPlaceholder, job.Input)
		}
		if job.Evidence.SearchURL != "" {
			return job.Evidence.SearchURL
		}
	}
	if strings.HasPrefix(job.Input, "http://") || strings.HasPrefix(job.Input, "https://") {
		return job.Input
	}
	return ""
}

// concreteSelector makes a loop-template locator queryable by pinning
// the index placeholder to the first list position.
func concreteSelector(locator string) string {
	return strings.ReplaceAll(locator, domloop.IndexPlaceholder, "1")
}
