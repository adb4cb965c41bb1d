package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CoursePlan describes the published course outline. It is optional: without
// a plan the tracker works purely from the configured totals, with one the
// section layout feeds reports and the excluded-unit list feeds
// classification.
type CoursePlan struct {
	// Course is the display name, e.g. "French".
	Course string `yaml:"course"`

	// TotalUnits overrides COURSE_TOTAL_UNITS when positive. Zero means
	// "sum the sections".
	TotalUnits int `yaml:"total_units"`

	// Sections is the published section layout, in order.
	Sections []PlanSection `yaml:"sections,omitempty"`

	// ExcludedUnits are names that show up in the activity feed but are not
	// real course units (promotional or seasonal content). They never count
	// toward progress or averages.
	ExcludedUnits []string `yaml:"excluded_units,omitempty"`
}

// PlanSection is one published course section.
type PlanSection struct {
	Name  string `yaml:"name"`
	Units int    `yaml:"units"`
}

// LoadCoursePlan reads and validates a course plan YAML file.
func LoadCoursePlan(path string) (*CoursePlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read course plan: %w", err)
	}

	var plan CoursePlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parse course plan: %w", err)
	}

	for _, s := range plan.Sections {
		if s.Units < 0 {
			return nil, fmt.Errorf("course plan: section %q has negative units", s.Name)
		}
	}
	if plan.TotalUnits < 0 {
		return nil, fmt.Errorf("course plan: total_units cannot be negative")
	}

	if plan.TotalUnits == 0 && len(plan.Sections) > 0 {
		for _, s := range plan.Sections {
			plan.TotalUnits += s.Units
		}
	}

	return &plan, nil
}

// IsExcluded reports whether a unit name is on the excluded list.
// Matching is case-insensitive because feed labels drift in capitalization.
func (p *CoursePlan) IsExcluded(name string) bool {
	if p == nil {
		return false
	}
	for _, ex := range p.ExcludedUnits {
		if strings.EqualFold(ex, name) {
			return true
		}
	}
	return false
}

// ExcludedSet returns the excluded unit names normalized to lower case.
func (p *CoursePlan) ExcludedSet() map[string]struct{} {
	set := make(map[string]struct{})
	if p == nil {
		return set
	}
	for _, ex := range p.ExcludedUnits {
		set[strings.ToLower(ex)] = struct{}{}
	}
	return set
}
