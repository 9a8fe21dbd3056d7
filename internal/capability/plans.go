package capability

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/projectkeeper/internal/models"
)

var ErrUnknownPlan = errors.New("unknown plan")

// Plan lists the resource types a subscription plan enables.
type Plan struct {
	Name  string                `yaml:"name"`
	Types []models.ResourceType `yaml:"types"`
}

// PlanFile is the YAML document describing all plans.
//
//	default_plan: standard
//	plans:
//	  - name: standard
//	    types: [lead, ebook, link]
type PlanFile struct {
	DefaultPlan string `yaml:"default_plan"`
	Plans       []Plan `yaml:"plans"`
}

// Plans is the validated, indexed form of a PlanFile.
type Plans struct {
	defaultPlan string
	enabled     map[string]map[models.ResourceType]bool
}

// LoadPlans reads and validates a YAML plan file.
func LoadPlans(path string) (*Plans, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	return ParsePlans(data)
}

// ParsePlans parses and validates a YAML plan document.
func ParsePlans(data []byte) (*Plans, error) {
	var file PlanFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan file: %w", err)
	}
	return NewPlans(file)
}

// NewPlans indexes file, rejecting unknown resource types and duplicate plan names.
func NewPlans(file PlanFile) (*Plans, error) {
	p := &Plans{
		defaultPlan: file.DefaultPlan,
		enabled:     make(map[string]map[models.ResourceType]bool, len(file.Plans)),
	}

	for _, plan := range file.Plans {
		if plan.Name == "" {
			return nil, errors.New("plan name is required")
		}
		if _, exists := p.enabled[plan.Name]; exists {
			return nil, fmt.Errorf("duplicate plan %q", plan.Name)
		}

		types := make(map[models.ResourceType]bool, len(plan.Types))
		for _, t := range plan.Types {
			if !t.Valid() {
				return nil, fmt.Errorf("plan %q: %w: %q", plan.Name, models.ErrUnknownResourceType, t)
			}
			types[t] = true
		}
		p.enabled[plan.Name] = types
	}

	if p.defaultPlan != "" {
		if _, ok := p.enabled[p.defaultPlan]; !ok {
			return nil, fmt.Errorf("default plan %q: %w", p.defaultPlan, ErrUnknownPlan)
		}
	}

	return p, nil
}

// AllTypes returns plans with a single default plan enabling every resource type.
func AllTypes() *Plans {
	p, _ := NewPlans(PlanFile{
		DefaultPlan: "standard",
		Plans:       []Plan{{Name: "standard", Types: models.ResourceTypes}},
	})
	return p
}

// Enabled reports whether plan enables t. An empty plan name resolves to the default plan.
func (p *Plans) Enabled(plan string, t models.ResourceType) (bool, error) {
	if plan == "" {
		plan = p.defaultPlan
	}

	types, ok := p.enabled[plan]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownPlan, plan)
	}

	return types[t], nil
}

// Default returns the plan used when a tenant has none.
func (p *Plans) Default() string {
	return p.defaultPlan
}

// Names returns the plan names in sorted order.
func (p *Plans) Names() []string {
	names := make([]string, 0, len(p.enabled))
	for name := range p.enabled {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Types returns the resource types plan enables in declaration order.
func (p *Plans) Types(plan string) []models.ResourceType {
	var types []models.ResourceType
	for _, t := range models.ResourceTypes {
		if p.enabled[plan][t] {
			types = append(types, t)
		}
	}
	return types
}
