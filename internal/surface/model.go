package surface

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

const modelExtension = ".model3.json"

// Model is the subset of a Live2D model3.json the surface needs.
type Model struct {
	Path        string
	Motions     map[string][]MotionRef
	Expressions []ExpressionRef
}

// MotionRef is one entry of a motion group.
type MotionRef struct {
	File string `json:"File"`
}

// ExpressionRef is one entry of the expression list.
type ExpressionRef struct {
	Name string `json:"Name"`
	File string `json:"File"`
}

type model3 struct {
	Version        int `json:"Version"`
	FileReferences struct {
		Moc         string                 `json:"Moc"`
		Motions     map[string][]MotionRef `json:"Motions"`
		Expressions []ExpressionRef        `json:"Expressions"`
	} `json:"FileReferences"`
}

// LoadModel reads a model3.json definition.
func LoadModel(path string) (*Model, error) {
	if !strings.HasSuffix(path, modelExtension) {
		return nil, fmt.Errorf("Model file not found or invalid: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Model file not found or invalid: %s", path)
	}
	var def model3
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("Model file not found or invalid: %s: %v", path, err)
	}
	return &Model{
		Path:        path,
		Motions:     def.FileReferences.Motions,
		Expressions: def.FileReferences.Expressions,
	}, nil
}

// MotionGroups returns the names of groups holding at least one motion,
// sorted.
func (m *Model) MotionGroups() []string {
	groups := make([]string, 0, len(m.Motions))
	for name, motions := range m.Motions {
		if len(motions) > 0 {
			groups = append(groups, name)
		}
	}
	sort.Strings(groups)
	return groups
}

// HasMotionGroup reports whether group exists and is non-empty.
func (m *Model) HasMotionGroup(group string) bool {
	return len(m.Motions[group]) > 0
}

// ExpressionNames returns expression names in definition order.
func (m *Model) ExpressionNames() []string {
	names := make([]string, 0, len(m.Expressions))
	for _, e := range m.Expressions {
		names = append(names, e.Name)
	}
	return names
}

// HasExpression matches by name or file.
func (m *Model) HasExpression(name string) bool {
	for _, e := range m.Expressions {
		if e.Name == name || e.File == name {
			return true
		}
	}
	return false
}
