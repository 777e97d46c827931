// pkg/config/study.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// Study describes which survey variables are extracted and how their codes
// are read. It is loaded from YAML; DefaultStudy reproduces the US household
// public-use selection.
type Study struct {
	Name string `yaml:"name"`

	// Key is the participant identifier shared by every group
	Key string `yaml:"key"`

	// Groups are extracted in order and joined left to right
	Groups []VariableGroup `yaml:"groups"`

	// MissingCodes apply to every numeric variable
	MissingCodes map[float64]model.MissingReason `yaml:"missing_codes,omitempty"`

	// Variables carries per-variable labels and missing codes
	Variables map[string]Variable `yaml:"variables,omitempty"`

	// ProfileColumn is the categorical variable tabulated per cluster
	ProfileColumn string `yaml:"profile_column,omitempty"`

	// Subset is the reduced feature list used by the first cluster run
	Subset []string `yaml:"subset,omitempty"`
}

// VariableGroup is one participant record group, e.g. background variables
type VariableGroup struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// Variable holds codebook metadata for one column
type Variable struct {
	Label        string                          `yaml:"label,omitempty"`
	ValueLabels  map[float64]string              `yaml:"value_labels,omitempty"`
	MissingCodes map[float64]model.MissingReason `yaml:"missing_codes,omitempty"`
}

// LoadStudy reads a study definition. An empty path yields DefaultStudy.
func LoadStudy(path string) (*Study, error) {
	if path == "" {
		return DefaultStudy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study file: %w", err)
	}
	return ParseStudy(data)
}

// ParseStudy decodes a YAML study definition, rejecting unknown fields
func ParseStudy(data []byte) (*Study, error) {
	var study Study
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&study); err != nil {
		return nil, fmt.Errorf("failed to parse study YAML: %w", err)
	}

	if study.Key == "" {
		study.Key = "SEQID"
	}

	if err := study.Validate(); err != nil {
		return nil, fmt.Errorf("invalid study: %w", err)
	}
	return &study, nil
}

// Validate checks that groups are named, disjoint and do not list the key
func (s *Study) Validate() error {
	if s.Key == "" {
		return errors.New("key is required")
	}
	if len(s.Groups) == 0 {
		return errors.New("at least one variable group is required")
	}

	owner := make(map[string]string)
	names := make(map[string]bool)
	for _, g := range s.Groups {
		if g.Name == "" {
			return errors.New("group name is required")
		}
		if names[g.Name] {
			return fmt.Errorf("group %q is defined twice", g.Name)
		}
		names[g.Name] = true

		if len(g.Columns) == 0 {
			return fmt.Errorf("group %q has no columns", g.Name)
		}
		for _, c := range g.Columns {
			if c == "" {
				return fmt.Errorf("group %q has an empty column name", g.Name)
			}
			if c == s.Key {
				return fmt.Errorf("group %q lists the key %q; it is added automatically", g.Name, c)
			}
			if prev, ok := owner[c]; ok {
				return fmt.Errorf("column %q appears in groups %q and %q", c, prev, g.Name)
			}
			owner[c] = g.Name
		}
	}

	if s.ProfileColumn != "" {
		if _, ok := owner[s.ProfileColumn]; !ok {
			return fmt.Errorf("profile column %q is not in any group", s.ProfileColumn)
		}
	}
	for _, c := range s.Subset {
		if _, ok := owner[c]; !ok {
			return fmt.Errorf("subset column %q is not in any group", c)
		}
	}
	return nil
}

// Group returns the named group
func (s *Study) Group(name string) (VariableGroup, bool) {
	for _, g := range s.Groups {
		if g.Name == name {
			return g, true
		}
	}
	return VariableGroup{}, false
}

// SelectColumns returns the key followed by the group's columns, the
// projection used to extract the group from the raw table
func (s *Study) SelectColumns(g VariableGroup) []string {
	cols := make([]string, 0, len(g.Columns)+1)
	cols = append(cols, s.Key)
	return append(cols, g.Columns...)
}

// Annotate attaches labels, value labels and missing codes to the matching
// columns of t. Rows are shared with t.
func (s *Study) Annotate(t *model.Table) *model.Table {
	cols := make([]model.Column, len(t.Columns))
	for i, c := range t.Columns {
		if v, ok := s.Variables[c.Name]; ok {
			if v.Label != "" {
				c.Label = v.Label
			}
			if len(v.ValueLabels) > 0 {
				c.ValueLabels = v.ValueLabels
			}
			if len(v.MissingCodes) > 0 {
				c.MissingCodes = v.MissingCodes
			}
		}
		cols[i] = c
	}
	return &model.Table{Name: t.Name, Columns: cols, Rows: t.Rows}
}

// Policy builds the missing-value policy from the study's global codes.
// exclude names the reasons that trigger listwise deletion; empty means all.
func (s *Study) Policy(exclude []string) (model.MissingPolicy, error) {
	policy := model.DefaultMissingPolicy()
	for code, reason := range s.MissingCodes {
		policy.Codes[code] = reason
	}
	if len(exclude) == 0 {
		return policy, nil
	}

	reasons := make([]model.MissingReason, 0, len(exclude))
	for _, name := range exclude {
		r, err := model.ParseMissingReason(name)
		if err != nil {
			return model.MissingPolicy{}, err
		}
		reasons = append(reasons, r)
	}
	return policy.WithExclude(reasons...), nil
}

// MissingPolicy builds the policy for the configured study and exclusions
func (c *Config) MissingPolicy() (model.MissingPolicy, error) {
	return c.Study.Policy(c.MissingExclude)
}

// DefaultStudy returns the variable selection of the US household analysis:
// background variables, ten literacy and ten numeracy plausible values.
func DefaultStudy() *Study {
	pv := func(prefix string) []string {
		cols := make([]string, 10)
		for i := range cols {
			cols[i] = fmt.Sprintf("%s%d", prefix, i+1)
		}
		return cols
	}

	singleDigit := map[float64]model.MissingReason{
		6: model.ReasonValidSkip,
		7: model.ReasonDontKnow,
		8: model.ReasonRefused,
		9: model.ReasonNotStated,
	}
	index := map[float64]model.MissingReason{
		9996: model.ReasonValidSkip,
		9997: model.ReasonDontKnow,
		9998: model.ReasonRefused,
		9999: model.ReasonNotStated,
	}

	return &Study{
		Name: "PIAAC 2012/2014 US household",
		Key:  "SEQID",
		Groups: []VariableGroup{
			{Name: "bkg", Columns: []string{"GENDER_R", "B_Q01A", "C_D05", "WRITHOME", "WRITWORK",
				"READHOME", "READWORK", "ICTHOME", "ICTWORK"}},
			{Name: "lit", Columns: pv("PVLIT")},
			{Name: "num", Columns: pv("PVNUM")},
		},
		Variables: map[string]Variable{
			"GENDER_R": {
				Label:        "Gender",
				ValueLabels:  map[float64]string{1: "Male", 2: "Female"},
				MissingCodes: map[float64]model.MissingReason{9: model.ReasonNotStated},
			},
			"B_Q01A": {
				Label: "Highest level of formal education obtained",
				MissingCodes: map[float64]model.MissingReason{
					96: model.ReasonValidSkip,
					97: model.ReasonDontKnow,
					98: model.ReasonRefused,
					99: model.ReasonNotStated,
				},
			},
			"C_D05": {
				Label: "Current status/work history - Employment status",
				ValueLabels: map[float64]string{
					1: "Employed",
					2: "Unemployed",
					3: "Out of the labour force",
				},
				MissingCodes: singleDigit,
			},
			"WRITHOME": {Label: "Index of use of writing skills at home", MissingCodes: index},
			"WRITWORK": {Label: "Index of use of writing skills at work", MissingCodes: index},
			"READHOME": {Label: "Index of use of reading skills at home", MissingCodes: index},
			"READWORK": {Label: "Index of use of reading skills at work", MissingCodes: index},
			"ICTHOME":  {Label: "Index of use of ICT skills at home", MissingCodes: index},
			"ICTWORK":  {Label: "Index of use of ICT skills at work", MissingCodes: index},
		},
		ProfileColumn: "GENDER_R",
		Subset: []string{"GENDER_R", "B_Q01A", "C_D05", "WRITHOME", "WRITWORK", "READHOME", "READWORK",
			"ICTHOME", "ICTWORK", "PVLIT1", "PVNUM1"},
	}
}
