// Package hooks implements the HookEngine: a configuration-driven pipeline
// that can reject, wrap, or annotate a pending terminal write. It never
// touches a PTY directly — Session is the only caller, and only to decide
// what bytes (if any) to write and what annotation text to hand back to the
// caller.
package hooks

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/loopwire/termsession/src/toolerr"
)

// MatchKind selects how Pattern is compared against the normalized command.
type MatchKind int

const (
	MatchExact MatchKind = iota
	MatchPrefix
	MatchRegex
)

// Kind is the hook class.
type Kind int

const (
	KindPreScript Kind = iota
	KindPostScript
	KindPreCommand
	KindPostCommand
	KindAIAnnotation
	KindBlacklist
)

// Rule is one configured hook descriptor. Scope is a session-name glob
// pattern (using filepath.Match syntax); an empty Scope matches every
// session.
type Rule struct {
	Kind    Kind
	Match   MatchKind
	Pattern string
	Payload string // command string, script path, or annotation text
	Message string // surfaced verbatim on a Blacklist rejection
	Scope   string

	re *regexp.Regexp
}

// matchOrder ranks rules for precedence: exact > prefix > regex. Rule order
// is otherwise stable (Go's sort.SliceStable preserves configuration order
// within a class).
func matchOrder(m MatchKind) int {
	switch m {
	case MatchExact:
		return 0
	case MatchPrefix:
		return 1
	default:
		return 2
	}
}

// Engine holds the compiled, ordered rule set. Safe for concurrent Apply
// calls; Reload swaps the whole rule set atomically under a write lock.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// New compiles rules and returns a ready Engine. Rules are sorted once by
// match-kind precedence; callers should not rely on slice identity after.
func New(rules []Rule) (*Engine, error) {
	e := &Engine{}
	if err := e.Reload(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Reload replaces the rule set, recompiling any regex patterns. On a
// compile error the previous rule set is left untouched.
func (e *Engine) Reload(rules []Rule) error {
	compiled := make([]Rule, len(rules))
	copy(compiled, rules)
	for i := range compiled {
		if compiled[i].Match == MatchRegex {
			re, err := regexp.Compile(compiled[i].Pattern)
			if err != nil {
				return fmt.Errorf("hook rule %d: %w", i, err)
			}
			compiled[i].re = re
		}
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return matchOrder(compiled[i].Match) < matchOrder(compiled[j].Match)
	})

	e.mu.Lock()
	e.rules = compiled
	e.mu.Unlock()
	return nil
}

func scopeMatches(scope, sessionName string) bool {
	if scope == "" {
		return true
	}
	ok, err := filepath.Match(scope, sessionName)
	return err == nil && ok
}

func ruleMatches(r *Rule, command string) bool {
	switch r.Match {
	case MatchExact:
		return command == r.Pattern
	case MatchPrefix:
		return strings.HasPrefix(command, r.Pattern)
	case MatchRegex:
		return r.re != nil && r.re.MatchString(command)
	default:
		return false
	}
}

// Decision is the result of running the pipeline for one write.
type Decision struct {
	Prefix     []string // writes to inject before the user's input
	Suffix     []string // writes to inject after
	Annotation string   // synthetic text returned to the caller, never to the PTY
}

// Apply runs the ordered pipeline (blacklist gate, then prefix/suffix
// injection, then annotation) against one candidate write. input is the
// normalized command text (whitespace
// trimmed) used purely for rule matching; the raw bytes the caller intends
// to write are untouched and are the session's responsibility.
func (e *Engine) Apply(sessionName, input string) (Decision, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var d Decision
	var annotations []string

	for i := range e.rules {
		r := &e.rules[i]
		if !scopeMatches(r.Scope, sessionName) {
			continue
		}
		if !ruleMatches(r, input) {
			continue
		}
		switch r.Kind {
		case KindBlacklist:
			msg := r.Message
			if msg == "" {
				msg = "command rejected by blacklist rule"
			}
			return Decision{}, fmt.Errorf("%s: %w", msg, toolerr.BlacklistedCommand)
		case KindPreCommand, KindPreScript:
			d.Prefix = append(d.Prefix, r.Payload)
		case KindPostCommand, KindPostScript:
			d.Suffix = append(d.Suffix, r.Payload)
		case KindAIAnnotation:
			annotations = append(annotations, r.Payload)
		}
	}

	if len(annotations) > 0 {
		d.Annotation = strings.Join(annotations, "\n")
	}
	return d, nil
}
