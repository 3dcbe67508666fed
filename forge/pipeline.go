package forge

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/mendrake/siteforge/browser"
	"github.com/mendrake/siteforge/engine"
	"github.com/mendrake/siteforge/evidence"
	"github.com/mendrake/siteforge/fixer"
	"github.com/mendrake/siteforge/recipe"
	"github.com/mendrake/siteforge/repair"
	"github.com/mendrake/siteforge/trail"
)

// engineVersion tags every authored recipe with the collaborator
// contract it was written against.
const engineVersion = 1

// SiteRequest describes one site to forge a recipe for.
type SiteRequest struct {
	// SiteID names the recipe artifact. Empty generates one.
	SiteID   string
	Category string
	Title    string
	// BaseURL is the site entry point (homepage or landing page).
	BaseURL string
	// URLPatterns are candidate search URL templates carrying the query
	// placeholder. Tried sequentially; the first that yields evidence
	// wins.
	URLPatterns []string
	// Query is the probe search term; AltQuery is the unrelated second
	// term for the cross-query static-content check.
	Query    string
	AltQuery string
	// ProbeDetail extends the run to detail-page steps, validated
	// against DeclaredFields.
	ProbeDetail    bool
	DeclaredFields []string
}

// SiteResult is the pipeline's outcome for one site. RecipePath points
// at the artifact on disk regardless of success.
type SiteResult struct {
	Recipe       *recipe.Recipe
	RecipePath   string
	Evidence     *evidence.SearchEvidence
	SearchReport *repair.Report
	DetailReport *repair.Report
}

// Succeeded reports whether the search recipe (and the detail recipe,
// when requested) reached a validated state.
func (r *SiteResult) Succeeded() bool {
	if r.SearchReport == nil || !r.SearchReport.Succeeded() {
		return false
	}
	if r.DetailReport != nil {
		return r.DetailReport.Succeeded()
	}
	return true
}

// Pipeline wires the collector, the authoring and fixing collaborators,
// the execution engine, and the repair controller behind one facade.
// Single-flow: one site forged at a time.
type Pipeline struct {
	cfg       Config
	log       *slog.Logger
	mgr       *browser.Manager
	bypassMgr *browser.Manager
	collector *evidence.Collector
	runner    engine.Runner
	author    fixer.Author
	fixer     fixer.Fixer
	store     *trail.Store
}

// New builds and starts a pipeline. The caller must Close it.
func New(ctx context.Context, cfg Config, author fixer.Author, fx fixer.Fixer, log *slog.Logger) (*Pipeline, error) {
	cfg.applyDefaults()
	if log == nil {
		log = slog.Default()
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:        cfg.Browser.Remote,
		Stealth:          browser.LevelHeadless,
		ResourceBlocking: cfg.Browser.ResourceBlocking,
		NavigateTimeout:  cfg.Browser.NavigateTimeout,
		Logger:           log,
	})
	if err := mgr.Start(ctx); err != nil {
		return nil, fmt.Errorf("forge: start browser: %w", err)
	}

	p := &Pipeline{
		cfg: cfg,
		log: log,
		mgr: mgr,
		collector: evidence.NewCollector(mgr, evidence.Config{
			NavigateTimeout: cfg.Browser.NavigateTimeout,
			TypeDelay:       cfg.Probe.TypeDelay,
			SettleWait:      cfg.Probe.SettleWait,
			MinResults:      cfg.Probe.MinResults,
			LinkSample:      cfg.Probe.LinkSample,
			Logger:          log,
		}),
		runner: &engine.CmdRunner{Bin: cfg.Engine.Bin, Args: cfg.Engine.Args, Timeout: cfg.Engine.Timeout},
		author: author,
		fixer:  fx,
	}

	if cfg.Browser.Bypass {
		// The headed browser is only launched here, not started: the
		// bypass flow starts it on first use via the repair controller.
		p.bypassMgr = browser.NewManager(browser.Config{
			Stealth:         browser.LevelHeadful,
			NavigateTimeout: cfg.Browser.NavigateTimeout,
			XvfbDisplay:     cfg.Browser.XvfbDisplay,
			Logger:          log,
		})
		if err := p.bypassMgr.Start(ctx); err != nil {
			log.Warn("forge: headed bypass browser unavailable", "error", err)
			p.bypassMgr = nil
		}
	}

	if cfg.TrailDB != "" {
		store, err := trail.Open(cfg.TrailDB, log)
		if err != nil {
			log.Warn("forge: trail store unavailable", "path", cfg.TrailDB, "error", err)
		} else {
			p.store = store
		}
	}

	return p, nil
}

// Close releases the browsers and the trail store.
func (p *Pipeline) Close() error {
	var firstErr error
	if p.store != nil {
		if err := p.store.Close(); err != nil {
			firstErr = err
		}
	}
	if p.bypassMgr != nil {
		if err := p.bypassMgr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.mgr.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Forge runs the full discovery + repair flow for one site: probe the
// entry page, establish search mechanics, author steps, then hand the
// recipe to the repair loop. A validated list recipe is cross-checked
// with a second query; static-looking results escalate once to
// interactive API discovery before giving up.
func (p *Pipeline) Forge(ctx context.Context, req SiteRequest) (*SiteResult, error) {
	if req.BaseURL == "" {
		return nil, fmt.Errorf("forge: request needs a base url")
	}
	if req.Query == "" {
		return nil, fmt.Errorf("forge: request needs a probe query")
	}

	siteID := req.SiteID
	if siteID == "" {
		siteID = uuid.NewString()
	}
	log := p.log.With("site", siteID)

	site, err := p.collector.Probe(ctx, req.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("forge: probe %s: %w", req.BaseURL, err)
	}
	log.Info("forge: site probed", "host", site.Hostname, "has_search", site.Search.HasSearch)

	sev, err := p.discoverSearch(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info("forge: search mechanics established", "type", string(sev.Type), "items", len(sev.Items))

	rec, recipePath, err := p.authorRecipe(ctx, siteID, req, site, sev)
	if err != nil {
		return nil, err
	}

	result := &SiteResult{Recipe: rec, RecipePath: recipePath, Evidence: sev}

	ctrl := p.newController(req)
	job := repair.Job{
		Recipe:     rec,
		RecipePath: recipePath,
		StepType:   recipe.StepsAutocomplete,
		Input:      req.Query,
		Evidence:   sev,
	}

	report, err := ctrl.Run(ctx, job)
	if err != nil {
		result.SearchReport = report
		return result, err
	}
	result.SearchReport = report

	if report.Succeeded() {
		distinct, err := ctrl.CrossCheck(ctx, job, report.Records, req.AltQuery)
		if err != nil {
			return result, err
		}
		if !distinct {
			report, err = p.escalateToAPI(ctx, ctrl, req, site, sev, result)
			if err != nil {
				return result, err
			}
			result.SearchReport = report
		}
	}

	if !result.SearchReport.Succeeded() {
		log.Warn("forge: search recipe did not validate",
			"state", string(result.SearchReport.FinalState),
			"attempts", len(result.SearchReport.Attempts))
		return result, nil
	}

	if req.ProbeDetail {
		if err := p.forgeDetail(ctx, ctrl, req, result); err != nil {
			return result, err
		}
	}
	return result, nil
}

// discoverSearch walks the candidate URL patterns sequentially, then
// falls back to form discovery from the base URL.
func (p *Pipeline) discoverSearch(ctx context.Context, req SiteRequest) (*evidence.SearchEvidence, error) {
	for _, tmpl := range req.URLPatterns {
		sev, err := p.collector.ProbeSearchResults(ctx, tmpl, req.Query)
		if err != nil {
			p.log.Warn("forge: candidate pattern failed", "pattern", tmpl, "error", err)
			continue
		}
		if sev != nil {
			return sev, nil
		}
	}
	sev, err := p.collector.ProbeSearchResults(ctx, req.BaseURL, req.Query)
	if err != nil {
		return nil, fmt.Errorf("forge: search discovery: %w", err)
	}
	if sev == nil {
		return nil, evidence.ErrSearchUndiscovered
	}
	return sev, nil
}

// authorRecipe asks the authoring collaborator for the initial step
// sequence and persists the artifact.
func (p *Pipeline) authorRecipe(ctx context.Context, siteID string, req SiteRequest, site *evidence.SiteEvidence, sev *evidence.SearchEvidence) (*recipe.Recipe, string, error) {
	steps, err := p.author.Author(ctx, recipe.StepsAutocomplete, fixer.AuthorContext{Site: site, Search: sev})
	if err != nil {
		return nil, "", fmt.Errorf("forge: author steps: %w", err)
	}

	title := req.Title
	if title == "" {
		title = site.Title
	}
	rec := &recipe.Recipe{
		ID:                siteID,
		Category:          req.Category,
		EngineVersion:     engineVersion,
		Title:             title,
		Description:       site.MetaDescription,
		BaseURLs:          []string{req.BaseURL},
		AutocompleteSteps: steps,
	}

	recipePath := filepath.Join(p.cfg.RecipeDir, siteID+".json")
	if err := rec.Save(recipePath); err != nil {
		return nil, "", err
	}
	return rec, recipePath, nil
}

func (p *Pipeline) newController(req SiteRequest) *repair.Controller {
	cfg := repair.Config{
		MaxIterations:    p.cfg.Repair.MaxIterations,
		OverlapThreshold: p.cfg.Repair.OverlapThreshold,
		DebugTimeout:     p.cfg.Repair.DebugTimeout,
		Logger:           p.log,
	}
	var opts []repair.Option
	if p.store != nil {
		opts = append(opts, repair.WithTrailStore(p.store))
	}
	if p.bypassMgr != nil {
		opts = append(opts, repair.WithBypassDriver(p.bypassMgr))
	}
	return repair.NewController(cfg, p.mgr, p.runner, p.fixer, opts...)
}

// escalateToAPI re-establishes search mechanics through interactive API
// discovery, re-authors the steps, and gives the repair loop one more
// full run. Invoked at most once per site.
func (p *Pipeline) escalateToAPI(ctx context.Context, ctrl *repair.Controller, req SiteRequest, site *evidence.SiteEvidence, old *evidence.SearchEvidence, result *SiteResult) (*repair.Report, error) {
	p.log.Warn("forge: results look static, escalating to api discovery")

	home, err := homepageOf(req.BaseURL)
	if err != nil {
		return result.SearchReport, err
	}
	sev, err := p.collector.DiscoverAPI(ctx, home, req.Query)
	if err != nil {
		p.log.Warn("forge: api discovery escalation failed", "error", err)
		// The original success stands discredited; report it as such.
		result.SearchReport.FinalState = repair.StateExhausted
		return result.SearchReport, nil
	}
	result.Evidence = sev

	steps, err := p.author.Author(ctx, recipe.StepsAutocomplete, fixer.AuthorContext{Site: site, Search: sev})
	if err != nil {
		return result.SearchReport, fmt.Errorf("forge: re-author steps: %w", err)
	}
	result.Recipe.SetSteps(recipe.StepsAutocomplete, steps)
	if err := result.Recipe.Save(result.RecipePath); err != nil {
		return result.SearchReport, err
	}

	job := repair.Job{
		Recipe:     result.Recipe,
		RecipePath: result.RecipePath,
		StepType:   recipe.StepsAutocomplete,
		Input:      req.Query,
		Evidence:   sev,
	}
	return ctrl.Run(ctx, job)
}

// forgeDetail authors and repairs the url_steps against the first
// validated result's detail page.
func (p *Pipeline) forgeDetail(ctx context.Context, ctrl *repair.Controller, req SiteRequest, result *SiteResult) error {
	detailURL := firstRecordURL(result.SearchReport)
	if detailURL == "" {
		p.log.Warn("forge: no detail url in validated results, skipping detail steps")
		return nil
	}

	dev, err := p.collector.ProbeDetailPage(ctx, detailURL)
	if err != nil {
		return fmt.Errorf("forge: probe detail %s: %w", detailURL, err)
	}

	steps, err := p.author.Author(ctx, recipe.StepsURL, fixer.AuthorContext{Detail: dev})
	if err != nil {
		return fmt.Errorf("forge: author detail steps: %w", err)
	}
	result.Recipe.SetSteps(recipe.StepsURL, steps)
	if err := result.Recipe.Save(result.RecipePath); err != nil {
		return err
	}

	job := repair.Job{
		Recipe:         result.Recipe,
		RecipePath:     result.RecipePath,
		StepType:       recipe.StepsURL,
		Input:          detailURL,
		Evidence:       result.Evidence,
		Detail:         true,
		DeclaredFields: req.DeclaredFields,
	}
	report, err := ctrl.Run(ctx, job)
	result.DetailReport = report
	return err
}

func firstRecordURL(report *repair.Report) string {
	for _, rec := range report.Records {
		if u, _ := rec["url"].(string); u != "" {
			return u
		}
	}
	return ""
}

func homepageOf(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("forge: bad url %q", raw)
	}
	return u.Scheme + "://" + u.Host + "/", nil
}
