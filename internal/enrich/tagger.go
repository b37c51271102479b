package enrich

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/linkvault/internal/domain"
)

// DefaultTag is used when no rule matches.
const DefaultTag = "general"

// Scope selects the text a rule is tested against.
type Scope string

const (
	// ScopeText matches lowercase(url + " " + title).
	ScopeText Scope = "text"
	// ScopeURL matches the lowercased URL only.
	ScopeURL Scope = "url"
)

// Rule maps a pattern to a tag.
type Rule struct {
	Tag     string `yaml:"tag"`
	Pattern string `yaml:"pattern"`
	Scope   Scope  `yaml:"scope,omitempty"`
}

// RulesFile is the YAML layout accepted by LoadRules.
type RulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules is the built-in table. Order matters: tags are emitted in rule order.
func DefaultRules() []Rule {
	return []Rule{
		{Tag: "development", Pattern: `github|code|programming|dev`},
		{Tag: "frontend", Pattern: `react|vue|angular|next`},
		{Tag: "backend", Pattern: `node|python|java|go`},
		{Tag: "ai", Pattern: `ai|ml|machine learning|neural`},
		{Tag: "design", Pattern: `design|figma|ux|ui`},
		{Tag: "article", Pattern: `article|blog|post`},
		{Tag: "video", Pattern: `video|youtube|watch`},
		{Tag: "documentation", Pattern: `doc|documentation|guide`},
		{Tag: "tutorial", Pattern: `tutorial|learn|course`},
		{Tag: "youtube", Pattern: `youtube\.com`, Scope: ScopeURL},
		{Tag: "github", Pattern: `github\.com`, Scope: ScopeURL},
		{Tag: "stackoverflow", Pattern: `stackoverflow\.com`, Scope: ScopeURL},
		{Tag: "medium", Pattern: `medium\.com`, Scope: ScopeURL},
		{Tag: "devto", Pattern: `dev\.to`, Scope: ScopeURL},
	}
}

type compiledRule struct {
	tag   string
	scope Scope
	re    *regexp.Regexp
}

// Tagger is the deterministic fallback classifier. Safe for concurrent use.
type Tagger struct {
	rules []compiledRule
}

// DefaultTagger compiles DefaultRules.
func DefaultTagger() *Tagger {
	t, err := NewTagger(DefaultRules())
	if err != nil {
		panic(fmt.Sprintf("enrich: built-in rules do not compile: %v", err))
	}
	return t
}

// NewTagger compiles rules. An empty rule set is rejected.
func NewTagger(rules []Rule) (*Tagger, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("no tagging rules")
	}
	compiled := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		tag := strings.ToLower(strings.TrimSpace(r.Tag))
		if tag == "" {
			return nil, fmt.Errorf("rule %d: empty tag", i)
		}
		scope := r.Scope
		switch scope {
		case "":
			scope = ScopeText
		case ScopeText, ScopeURL:
		default:
			return nil, fmt.Errorf("rule %d (%s): unknown scope %q", i, tag, scope)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, tag, err)
		}
		compiled = append(compiled, compiledRule{tag: tag, scope: scope, re: re})
	}
	return &Tagger{rules: compiled}, nil
}

// LoadRules reads a YAML rules file and compiles it.
func LoadRules(path string) (*Tagger, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file RulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules yaml: %w", err)
	}

	return NewTagger(file.Rules)
}

// Tags classifies a page. Always returns at least one tag and at most domain.MaxTags.
func (t *Tagger) Tags(title, url string) []string {
	lowerURL := strings.ToLower(url)
	text := lowerURL + " " + strings.ToLower(title)

	tags := make([]string, 0, domain.MaxTags)
	for _, r := range t.rules {
		subject := text
		if r.scope == ScopeURL {
			subject = lowerURL
		}
		if r.re.MatchString(subject) {
			tags = append(tags, r.tag)
		}
	}

	tags = clampTags(tags)
	if len(tags) == 0 {
		return []string{DefaultTag}
	}
	return tags
}

// Fallback builds the canned result for a page.
func (t *Tagger) Fallback(title, url string) Result {
	return Result{
		Summary: FallbackSummary(title),
		Tags:    t.Tags(title, url),
		Source:  SourceFallback,
	}
}

// FallbackSummary is the canned sentence used when no model answer is available.
func FallbackSummary(title string) string {
	return fmt.Sprintf("This bookmark is a useful reference about \"%s\".", title)
}
