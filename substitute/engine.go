package substitute

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/elastic-stacker/stacker/faults"
)

// Rule is a single named search/replace applied to the serialized text of
// a resource document. The replacement string must itself be valid inside
// a JSON text context; the rule author is responsible for quoting.
type Rule struct {
	Name    string
	Search  *regexp.Regexp
	Replace string
}

// Engine applies an ordered list of substitution rules to document text on
// both write and read. Rules run in name-sorted order so multi-rule output
// is deterministic regardless of configuration map ordering.
type Engine struct {
	rules []Rule
}

// New compiles every rule pattern up front; an invalid pattern fails here,
// before any file or network I/O begins.
func New(patterns map[string]Pattern) (*Engine, error) {
	names := make([]string, 0, len(patterns))
	for name := range patterns {
		names = append(names, name)
	}
	sort.Strings(names)

	rules := make([]Rule, 0, len(names))
	for _, name := range names {
		pattern := patterns[name]
		search, err := regexp.Compile(pattern.Search)
		if err != nil {
			return nil, faults.NewTypedError(faults.ValidationError,
				fmt.Sprintf("substitution %q has an invalid search pattern", name), err)
		}
		rules = append(rules, Rule{Name: name, Search: search, Replace: pattern.Replace})
	}

	return &Engine{rules: rules}, nil
}

// Pattern is the raw configuration form of a substitution rule.
type Pattern struct {
	Search  string `yaml:"search"`
	Replace string `yaml:"replace"`
}

func (e *Engine) Apply(text string) string {
	if e == nil {
		return text
	}
	for _, rule := range e.rules {
		text = rule.Search.ReplaceAllString(text, rule.Replace)
	}
	return text
}

func (e *Engine) Len() int {
	if e == nil {
		return 0
	}
	return len(e.rules)
}
