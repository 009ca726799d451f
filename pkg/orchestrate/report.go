package orchestrate

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/Sriram-PR/ratings-crawler/pkg/metrics"
	"github.com/Sriram-PR/ratings-crawler/pkg/utils"
)

// ItemStatus is the outcome of one batch item
type ItemStatus string

const (
	ItemOK      ItemStatus = "ok"
	ItemSkipped ItemStatus = "skipped"
	ItemError   ItemStatus = "error"
)

// Skip reasons reported on skipped items
const (
	SkipRobots     = "robots"
	SkipNoRating   = "no_rating"
	SkipNoMatch    = "no_match"
	SkipFull       = "full"
	SkipUnresolved = "unresolved"
	SkipFresh      = "fresh"
	SkipNoHandle   = "no_handle"
	SkipNoSamples  = "no_samples"
)

// ItemResult is the per-item line of a stage report
type ItemResult struct {
	ID     string     `yaml:"id"`
	Label  string     `yaml:"label,omitempty"` // Merchant name, product URL or email address
	Status ItemStatus `yaml:"status"`
	Reason string     `yaml:"reason,omitempty"`
	Detail string     `yaml:"detail,omitempty"`
}

// StageReport summarizes one batch stage run
type StageReport struct {
	Stage     string        `yaml:"stage"`
	Disabled  bool          `yaml:"disabled,omitempty"`
	Processed int           `yaml:"processed"`
	OK        int           `yaml:"ok"`
	Skipped   int           `yaml:"skipped"`
	Failed    int           `yaml:"failed"`
	Duration  time.Duration `yaml:"duration"`
	Err       string        `yaml:"error,omitempty"`
	Items     []ItemResult  `yaml:"items,omitempty"`

	started time.Time
}

func newStageReport(stage string) *StageReport {
	return &StageReport{Stage: stage, started: time.Now()}
}

func (r *StageReport) add(item ItemResult) {
	r.Processed++
	switch item.Status {
	case ItemOK:
		r.OK++
	case ItemSkipped:
		r.Skipped++
	case ItemError:
		r.Failed++
	}
	r.Items = append(r.Items, item)
	metrics.ObserveStageItem(r.Stage, string(item.Status))
}

func (r *StageReport) ok(id, label, detail string) {
	r.add(ItemResult{ID: id, Label: label, Status: ItemOK, Detail: detail})
}

func (r *StageReport) skip(id, label, reason string) {
	r.add(ItemResult{ID: id, Label: label, Status: ItemSkipped, Reason: reason})
}

func (r *StageReport) fail(id, label string, err error) {
	r.add(ItemResult{ID: id, Label: label, Status: ItemError, Reason: utils.CategorizeError(err), Detail: err.Error()})
}

// failReason records an error item with a literal reason, e.g. "status 404"
func (r *StageReport) failReason(id, label, reason string) {
	r.add(ItemResult{ID: id, Label: label, Status: ItemError, Reason: reason})
}

// finish stamps the duration and records a stage-level error, returning it unchanged
func (r *StageReport) finish(err error) (*StageReport, error) {
	r.Duration = time.Since(r.started)
	if err != nil {
		r.Err = err.Error()
	}
	return r, err
}

// Find returns the item with the given ID, or nil
func (r *StageReport) Find(id string) *ItemResult {
	for i := range r.Items {
		if r.Items[i].ID == id {
			return &r.Items[i]
		}
	}
	return nil
}

// logSummary logs a summary banner for the stage
func (r *StageReport) logSummary(log *logrus.Entry) {
	log.Info("============================================")
	if r.Disabled {
		log.Infof("Stage '%s' disabled, no external service configured", r.Stage)
		log.Info("============================================")
		return
	}
	log.Infof("Stage '%s' completed in %v", r.Stage, r.Duration)
	for _, item := range r.Items {
		if item.Status == ItemOK {
			continue
		}
		log.Infof("  %s (%s): %s %s", item.Label, item.ID, item.Status, item.Reason)
	}
	log.Info("--------------------------------------------")
	log.Infof("Total: %d items (%d ok, %d skipped, %d failed)", r.Processed, r.OK, r.Skipped, r.Failed)
	if r.Err != "" {
		log.Infof("Error: %s", r.Err)
	}
	log.Info("============================================")
}

// RunReport collects the stage reports of a full pipeline run
type RunReport struct {
	StartedAt time.Time      `yaml:"started_at"`
	Duration  time.Duration  `yaml:"duration"`
	Stages    []*StageReport `yaml:"stages"`
}

// Stage returns the report of the named stage, or nil
func (r *RunReport) Stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s
		}
	}
	return nil
}

// WriteYAML writes the report to path
func (r *RunReport) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write run report %s: %w", path, err)
	}
	return nil
}
