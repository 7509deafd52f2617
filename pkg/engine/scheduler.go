package engine

import (
	"context"
	"errors"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dealradar/alert-engine/pkg/metrics"
	"github.com/dealradar/alert-engine/pkg/models"
	"github.com/dealradar/alert-engine/pkg/stores"
)

// SchedulerConfig bounds the sweep loop.
type SchedulerConfig struct {
	Interval      time.Duration // tick interval between sweeps
	SweepDeadline time.Duration // soft deadline; unreached rules wait for the next sweep
	Workers       int           // bounded worker pool size
	MetricsEvery  int           // recompute per-rule AlertMetrics every N sweeps (0 disables)
}

// SweepStats summarizes one sweep for logging and the ops surface.
type SweepStats struct {
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Rules       int           `json:"rules"`
	Evaluated   int           `json:"evaluated"`
	Suppressed  int           `json:"suppressed"`
	Triggered   int           `json:"triggered"`
	Errors      int           `json:"errors"`
	DeadlineHit bool          `json:"deadlineHit"`
}

// Scheduler drives fixed-interval sweeps over all active rules. At most one
// sweep runs at a time: a tick that fires while the previous sweep is still
// running is skipped and logged, never queued.
type Scheduler struct {
	rules    stores.RuleStore
	market   stores.MarketDataProvider
	selector *Selector
	throttle *ThrottleController
	dispatch *Dispatcher
	cfg      SchedulerConfig

	sweeping atomic.Bool
	cancel   context.CancelFunc
	done     chan struct{}

	mu         sync.RWMutex
	lastStats  SweepStats
	sweepCount int
	ruleStats  map[string]models.AlertMetrics
}

func NewScheduler(rules stores.RuleStore, market stores.MarketDataProvider, selector *Selector, throttle *ThrottleController, dispatch *Dispatcher, cfg SchedulerConfig) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.SweepDeadline <= 0 || cfg.SweepDeadline > cfg.Interval {
		cfg.SweepDeadline = cfg.Interval
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &Scheduler{
		rules:     rules,
		market:    market,
		selector:  selector,
		throttle:  throttle,
		dispatch:  dispatch,
		cfg:       cfg,
		ruleStats: make(map[string]models.AlertMetrics),
	}
}

// Start launches the sweep loop. It returns immediately; Stop cancels the
// loop and waits for any in-flight sweep to wind down.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		logrus.Infof("Scheduler started: interval %s, deadline %s, %d workers",
			s.cfg.Interval, s.cfg.SweepDeadline, s.cfg.Workers)
		ticker := time.NewTicker(s.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				logrus.Info("Scheduler stopped")
				return
			case <-ticker.C:
				s.tick(runCtx)
			}
		}
	}()
}

// Stop cancels the loop and blocks until it has exited.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.sweeping.CompareAndSwap(false, true) {
		metrics.SweepsSkippedTotal.Inc()
		logrus.Warn("Previous sweep still running, skipping this tick")
		return
	}
	defer s.sweeping.Store(false)

	stats, err := s.RunSweep(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("Sweep failed: %v", err)
		return
	}

	s.mu.Lock()
	s.lastStats = stats
	s.sweepCount++
	count := s.sweepCount
	s.mu.Unlock()

	if s.cfg.MetricsEvery > 0 && count%s.cfg.MetricsEvery == 0 {
		s.recomputeAlertMetrics(ctx)
	}
}

// ruleJob is one rule's unit of work, with selection and gating already done.
type ruleJob struct {
	rule       models.AlertRule
	candidates []string
}

// RunSweep executes one full sweep: list active rules, gate and select
// candidates, build a single shared snapshot, then evaluate rules on a
// bounded worker pool. Exported so tests can drive sweeps directly.
func (s *Scheduler) RunSweep(ctx context.Context) (SweepStats, error) {
	start := time.Now()
	stats := SweepStats{StartedAt: start}

	sweepCtx, cancel := context.WithTimeout(ctx, s.cfg.SweepDeadline)
	defer cancel()

	rules, err := s.rules.ListActiveRules(sweepCtx)
	if err != nil {
		return stats, err
	}
	stats.Rules = len(rules)
	if len(rules) == 0 {
		stats.Duration = time.Since(start)
		return stats, nil
	}

	// Phase 1: cheap gate + candidate selection per rule, collecting the
	// union of items the snapshot must cover.
	jobs := make([]ruleJob, 0, len(rules))
	itemSet := make(map[string]struct{})
	for i := range rules {
		rule := rules[i]
		decision, err := s.throttle.Gate(sweepCtx, &rule, start)
		if err != nil {
			logrus.Errorf("Throttle gate failed for rule %s: %v", rule.ID, err)
			stats.Errors++
			continue
		}
		if decision.State != StateEligible {
			metrics.RulesSuppressedTotal.WithLabelValues(string(decision.Reason)).Inc()
			stats.Suppressed++
			logrus.Debugf("Rule %s suppressed this sweep: %s", rule.ID, decision.Reason)
			continue
		}

		candidates, err := s.selector.Select(sweepCtx, &rule)
		if err != nil {
			if errors.Is(err, ErrCatalogTooLarge) {
				logrus.Warnf("Skipping rule %s: %v", rule.ID, err)
			} else {
				logrus.Errorf("Candidate selection failed for rule %s: %v", rule.ID, err)
			}
			stats.Errors++
			continue
		}
		candidates = decision.FilterCooldown(candidates)
		if len(candidates) == 0 {
			continue
		}
		jobs = append(jobs, ruleJob{rule: rule, candidates: candidates})
		for _, id := range candidates {
			itemSet[id] = struct{}{}
		}
	}

	if len(jobs) == 0 {
		stats.Duration = time.Since(start)
		s.observeSweep(&stats, sweepCtx)
		return stats, nil
	}

	// Phase 2: one shared snapshot for every evaluation in this sweep.
	itemIDs := make([]string, 0, len(itemSet))
	for id := range itemSet {
		itemIDs = append(itemIDs, id)
	}
	sort.Strings(itemIDs)
	snapshot, err := s.market.Snapshot(sweepCtx, itemIDs)
	if err != nil {
		stats.Duration = time.Since(start)
		return stats, err
	}

	// Phase 3: bounded worker pool over rule jobs. Workers abandon the
	// queue once the sweep deadline hits; those rules simply wait for the
	// next sweep.
	jobCh := make(chan ruleJob)
	var wg sync.WaitGroup
	var evaluated, triggered, errcount atomic.Int64
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.Errorf("Sweep worker panic recovered: %v\n%s", r, debug.Stack())
				}
			}()
			for job := range jobCh {
				if sweepCtx.Err() != nil {
					continue // drain without evaluating
				}
				t, err := s.evaluateRule(sweepCtx, &job.rule, job.candidates, snapshot, start)
				evaluated.Add(1)
				triggered.Add(int64(t))
				if err != nil {
					errcount.Add(1)
				}
			}
		}()
	}
	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	stats.Evaluated = int(evaluated.Load())
	stats.Triggered = int(triggered.Load())
	stats.Errors += int(errcount.Load())
	stats.Duration = time.Since(start)
	s.observeSweep(&stats, sweepCtx)

	logrus.Infof("Sweep done in %s: %d rules, %d evaluated, %d suppressed, %d triggered, %d errors",
		stats.Duration, stats.Rules, stats.Evaluated, stats.Suppressed, stats.Triggered, stats.Errors)
	return stats, nil
}

func (s *Scheduler) observeSweep(stats *SweepStats, sweepCtx context.Context) {
	metrics.SweepDuration.Observe(stats.Duration.Seconds())
	if errors.Is(sweepCtx.Err(), context.DeadlineExceeded) {
		stats.DeadlineHit = true
		metrics.SweepOverrunsTotal.Inc()
		logrus.Warnf("Sweep hit its %s deadline; unreached rules move to the next sweep", s.cfg.SweepDeadline)
	}
}

// evaluateRule runs one rule over its candidates and dispatches satisfied
// items. Returns the number of alerts triggered.
func (s *Scheduler) evaluateRule(ctx context.Context, rule *models.AlertRule, candidates []string, snapshot *models.MarketSnapshot, now time.Time) (int, error) {
	metrics.RulesEvaluatedTotal.Inc()
	triggered := 0
	var lastErr error
	for _, itemID := range candidates {
		if ctx.Err() != nil {
			return triggered, ctx.Err()
		}
		satisfied, trace := EvaluateWithTrace(rule.Condition, itemID, snapshot)
		if !satisfied {
			continue
		}
		item := snapshot.Item(itemID)
		if item == nil {
			continue
		}
		if _, err := s.dispatch.Dispatch(ctx, rule, item, trace, now); err != nil {
			logrus.Errorf("Dispatch failed for rule %s item %s: %v", rule.ID, itemID, err)
			lastErr = err
			continue
		}
		triggered++
		if rule.IsOneTime {
			break // first trigger disables the rule
		}
		if rule.MaxAlertsPerDay > 0 && s.remainingDailyBudget(ctx, rule, now) <= 0 {
			break
		}
	}
	return triggered, lastErr
}

// remainingDailyBudget re-checks the cap mid-rule so a single sweep over many
// candidates cannot blow past maxAlertsPerDay.
func (s *Scheduler) remainingDailyBudget(ctx context.Context, rule *models.AlertRule, now time.Time) int {
	count, err := s.dispatch.alerts.CountTriggersSince(ctx, rule.ID, startOfDayUTC(now))
	if err != nil {
		logrus.Warnf("Failed to re-check daily cap for rule %s: %v", rule.ID, err)
		return 0 // fail closed: stop triggering this rule this sweep
	}
	remaining := rule.MaxAlertsPerDay - count
	if remaining < 0 {
		return 0
	}
	return remaining
}

// recomputeAlertMetrics refreshes the per-rule engagement aggregates from
// alert history. Slow path, decoupled from the sweep.
func (s *Scheduler) recomputeAlertMetrics(ctx context.Context) {
	rules, err := s.rules.ListActiveRules(ctx)
	if err != nil {
		logrus.Warnf("Metrics recompute: failed to list rules: %v", err)
		return
	}
	computed := make(map[string]models.AlertMetrics, len(rules))
	for _, rule := range rules {
		alerts, err := s.dispatch.alerts.ListAlerts(ctx, rule.ID, 1000)
		if err != nil {
			logrus.Warnf("Metrics recompute: failed to list alerts for rule %s: %v", rule.ID, err)
			continue
		}
		computed[rule.ID] = models.ComputeAlertMetrics(rule.ID, alerts, time.Now())
	}
	s.mu.Lock()
	s.ruleStats = computed
	s.mu.Unlock()
	logrus.Debugf("Recomputed alert metrics for %d rules", len(computed))
}

// LastSweep returns the most recent sweep's stats.
func (s *Scheduler) LastSweep() SweepStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStats
}

// RuleMetrics returns the latest per-rule engagement aggregates.
func (s *Scheduler) RuleMetrics() map[string]models.AlertMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.AlertMetrics, len(s.ruleStats))
	for k, v := range s.ruleStats {
		out[k] = v
	}
	return out
}
