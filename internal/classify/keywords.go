package classify

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/rumor-ml/commons.systems/bankrecon/internal/textnorm"
	"gopkg.in/yaml.v3"
)

//go:embed keywords.yaml
var embeddedKeywords []byte

// Role is the semantic meaning assigned to a statement column.
type Role string

const (
	RoleDate        Role = "date"
	RoleDescription Role = "description"
	RoleDebit       Role = "debit"
	RoleCredit      Role = "credit"
	RoleBalance     Role = "balance"
	RoleReference   Role = "reference"
	RoleBranch      Role = "branch"
	RoleAmount      Role = "amount"
	RoleIgnore      Role = "ignore"
)

var validRoles = map[Role]struct{}{
	RoleDate: {}, RoleDescription: {}, RoleDebit: {}, RoleCredit: {},
	RoleBalance: {}, RoleReference: {}, RoleBranch: {}, RoleAmount: {},
}

// ValidRole reports whether r is a role the classifier can assign to a
// column (RoleIgnore is an outcome, not a keyword set).
func ValidRole(r Role) bool {
	_, ok := validRoles[r]
	return ok
}

// roleSet is one role's keyword set, in evaluation order.
type roleSet struct {
	Role     Role     `yaml:"role"`
	Keywords []string `yaml:"keywords"`
}

// keywordFile is the top-level YAML structure.
type keywordFile struct {
	Roles   []roleSet `yaml:"roles"`
	Footers []string  `yaml:"footers"`
}

// Classifier assigns semantic roles to statement columns using keyword sets
// evaluated in fixed priority order.
type Classifier struct {
	sets    []roleSet
	footers []string
}

// NewClassifier builds a classifier from YAML keyword data, validating every
// role and keyword at load.
func NewClassifier(data []byte) (*Classifier, error) {
	var kf keywordFile
	if err := yaml.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse keyword YAML (check syntax and indentation): %w", err)
	}
	if len(kf.Roles) == 0 {
		return nil, fmt.Errorf("keyword file defines no roles")
	}

	seen := make(map[Role]bool)
	for i, set := range kf.Roles {
		if !ValidRole(set.Role) {
			return nil, fmt.Errorf("role set %d: unknown role %q", i, set.Role)
		}
		if seen[set.Role] {
			return nil, fmt.Errorf("role set %d: duplicate role %q", i, set.Role)
		}
		seen[set.Role] = true
		if len(set.Keywords) == 0 {
			return nil, fmt.Errorf("role set %d (%s): keyword list is empty", i, set.Role)
		}
		for j, kw := range set.Keywords {
			folded := textnorm.Fold(kw)
			if folded == "" {
				return nil, fmt.Errorf("role set %d (%s): keyword %d is blank", i, set.Role, j)
			}
			kf.Roles[i].Keywords[j] = folded
		}
	}

	footers := make([]string, 0, len(kf.Footers))
	for _, f := range kf.Footers {
		folded := textnorm.Fold(f)
		if folded != "" {
			footers = append(footers, folded)
		}
	}

	return &Classifier{sets: kf.Roles, footers: footers}, nil
}

// LoadEmbedded loads the embedded keywords.yaml.
func LoadEmbedded() (*Classifier, error) {
	c, err := NewClassifier(embeddedKeywords)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded keyword sets: %w", err)
	}
	return c, nil
}

// LoadFromFile loads keyword sets from a filesystem path, for banks whose
// headers the embedded sets do not cover.
func LoadFromFile(path string) (*Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}
	c, err := NewClassifier(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load keywords from %q: %w", path, err)
	}
	return c, nil
}

// Footers returns the folded footer phrases, for merged-cell resolution and
// commit-time footer filtering.
func (c *Classifier) Footers() []string {
	return append([]string(nil), c.footers...)
}

// matchKeyword checks a folded header against one keyword set. kind is
// "exact" or "superset"; ok is false when nothing matched.
func matchKeyword(folded string, keywords []string) (kw, kind string, ok bool) {
	for _, k := range keywords {
		if folded == k {
			return k, "exact", true
		}
	}
	for _, k := range keywords {
		if textnorm.ContainsWord(folded, k) && len(folded)-len(k) <= supersetSlack {
			return k, "superset", true
		}
	}
	return "", "", false
}

// supersetSlack bounds how much longer than a keyword a header may be and
// still match ("ngay giao dich" vs "ngay").
const supersetSlack = 10
