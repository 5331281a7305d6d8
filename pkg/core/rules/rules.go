// Package rules holds the versioned, data-driven tables the resolution
// engine runs on: per-role exact tag allowlists and keyword rules, and the
// table of required variables the validator understands.
//
// The default table is embedded; operators can point the engine at an
// override file in YAML or Hjson.
package rules

import (
	_ "embed"
	"os"
	"path/filepath"
	"strings"
	"sync"

	hjson "github.com/hjson/hjson-go/v4"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v2"

	"lineitem_engine/pkg/models"
)

//go:embed default.yaml
var defaultRules []byte

// RoleRule describes how to recognise one role in a statement.
type RoleRule struct {
	Role            models.Role `yaml:"role" json:"role"`
	ExactTags       []string    `yaml:"exact_tags" json:"exact_tags"`
	CombinedTags    []string    `yaml:"combined_tags" json:"combined_tags"`
	Keywords        []string    `yaml:"keywords" json:"keywords"`
	ExcludeKeywords []string    `yaml:"exclude_keywords" json:"exclude_keywords"`
}

// Variable is a required variable the validator can resolve.
type Variable struct {
	Name       string               `yaml:"name" json:"name"`
	Statement  models.StatementType `yaml:"statement" json:"statement"`
	Roles      []models.Role        `yaml:"roles" json:"roles"`
	Derivation string               `yaml:"derivation" json:"derivation"`
}

// HasRole reports whether role is one of the variable's expected roles.
func (v Variable) HasRole(role models.Role) bool {
	for _, r := range v.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Table is a loaded, validated rule table.
type Table struct {
	Version   string     `yaml:"version" json:"version"`
	Roles     []RoleRule `yaml:"roles" json:"roles"`
	Variables []Variable `yaml:"variables" json:"variables"`

	byRole map[models.Role]int
	byVar  map[string]int
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
	defaultErr   error
)

// Default returns the embedded rule table.
func Default() (*Table, error) {
	defaultOnce.Do(func() {
		defaultTable, defaultErr = Parse(defaultRules)
	})
	return defaultTable, defaultErr
}

// MustDefault is Default for callers that cannot recover from a broken
// embedded table.
func MustDefault() *Table {
	t, err := Default()
	if err != nil {
		panic(err)
	}
	return t
}

// Parse decodes and validates a YAML rule table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "rules: parse yaml")
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// ParseHjson decodes and validates an Hjson rule table.
func ParseHjson(data []byte) (*Table, error) {
	var t Table
	if err := hjson.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrap(err, "rules: parse hjson")
	}
	if err := t.index(); err != nil {
		return nil, err
	}
	return &t, nil
}

// LoadFile loads a rule table from disk. ".hjson" files are read as Hjson,
// anything else as YAML. An empty path returns the embedded table.
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "rules: read %s", path)
	}
	if strings.EqualFold(filepath.Ext(path), ".hjson") {
		return ParseHjson(data)
	}
	return Parse(data)
}

func (t *Table) index() error {
	if t.Version == "" {
		return eris.New("rules: table has no version")
	}
	t.byRole = make(map[models.Role]int, len(t.Roles))
	for i, r := range t.Roles {
		if !r.Role.Known() {
			return eris.Errorf("rules: unknown role %q", r.Role)
		}
		if _, dup := t.byRole[r.Role]; dup {
			return eris.Errorf("rules: duplicate role %q", r.Role)
		}
		t.byRole[r.Role] = i
	}
	t.byVar = make(map[string]int, len(t.Variables))
	for i, v := range t.Variables {
		if v.Name == "" {
			return eris.Errorf("rules: variable %d has no name", i)
		}
		if len(v.Roles) == 0 {
			return eris.Errorf("rules: variable %q has no roles", v.Name)
		}
		for _, r := range v.Roles {
			if !r.Known() {
				return eris.Errorf("rules: variable %q references unknown role %q", v.Name, r)
			}
		}
		switch v.Statement {
		case models.IncomeStatement, models.BalanceSheet, models.CashFlow:
		default:
			return eris.Errorf("rules: variable %q has unknown statement %q", v.Name, v.Statement)
		}
		if _, dup := t.byVar[v.Name]; dup {
			return eris.Errorf("rules: duplicate variable %q", v.Name)
		}
		t.byVar[v.Name] = i
	}
	return nil
}

// Rule returns the rule registered for role.
func (t *Table) Rule(role models.Role) (RoleRule, bool) {
	i, ok := t.byRole[role]
	if !ok {
		return RoleRule{}, false
	}
	return t.Roles[i], true
}

// Variable looks up a required variable by name.
func (t *Table) Variable(name string) (Variable, bool) {
	i, ok := t.byVar[name]
	if !ok {
		return Variable{}, false
	}
	return t.Variables[i], true
}

// VariableNames returns all variable names in table order.
func (t *Table) VariableNames() []string {
	names := make([]string, len(t.Variables))
	for i, v := range t.Variables {
		names[i] = v.Name
	}
	return names
}

// StatementTags returns every exact and combined tag registered for
// roles of the given statement, in table order and without duplicates.
func (t *Table) StatementTags(st models.StatementType) []string {
	var out []string
	seen := make(map[string]bool)
	for _, r := range t.Roles {
		if r.Role.Statement() != st {
			continue
		}
		for _, tags := range [][]string{r.ExactTags, r.CombinedTags} {
			for _, tag := range tags {
				tag = models.LocalTag(tag)
				if !seen[tag] {
					seen[tag] = true
					out = append(out, tag)
				}
			}
		}
	}
	return out
}
