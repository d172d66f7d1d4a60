package hooks

import (
	"errors"
	"testing"

	"github.com/loopwire/termsession/src/toolerr"
)

func TestEngineApply(t *testing.T) {
	t.Run("BlacklistRejectsExactMatch", func(t *testing.T) {
		e, err := New([]Rule{
			{Kind: KindBlacklist, Match: MatchExact, Pattern: "rm -rf /", Message: "destructive command blocked"},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, err = e.Apply("sess-1", "rm -rf /")
		if err == nil {
			t.Fatal("expected rejection")
		}
		if !errors.Is(err, toolerr.BlacklistedCommand) {
			t.Fatalf("expected BlacklistedCommand, got %v", err)
		}
	})

	t.Run("NonMatchingCommandPassesThrough", func(t *testing.T) {
		e, err := New([]Rule{
			{Kind: KindBlacklist, Match: MatchExact, Pattern: "rm -rf /"},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		d, err := e.Apply("sess-1", "ls -la")
		if err != nil {
			t.Fatalf("unexpected rejection: %v", err)
		}
		if d.Prefix != nil || d.Suffix != nil || d.Annotation != "" {
			t.Fatalf("expected empty decision, got %+v", d)
		}
	})

	t.Run("PrefixAndSuffixInjection", func(t *testing.T) {
		e, err := New([]Rule{
			{Kind: KindPreCommand, Match: MatchPrefix, Pattern: "deploy", Payload: "echo starting"},
			{Kind: KindPostCommand, Match: MatchPrefix, Pattern: "deploy", Payload: "echo done"},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		d, err := e.Apply("sess-1", "deploy prod")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(d.Prefix) != 1 || d.Prefix[0] != "echo starting" {
			t.Fatalf("unexpected prefix: %+v", d.Prefix)
		}
		if len(d.Suffix) != 1 || d.Suffix[0] != "echo done" {
			t.Fatalf("unexpected suffix: %+v", d.Suffix)
		}
	})

	t.Run("AnnotationsJoinWithNewline", func(t *testing.T) {
		e, err := New([]Rule{
			{Kind: KindAIAnnotation, Match: MatchPrefix, Pattern: "git", Payload: "first note"},
			{Kind: KindAIAnnotation, Match: MatchRegex, Pattern: "^git", Payload: "second note"},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		d, err := e.Apply("sess-1", "git push")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := "first note\nsecond note"
		if d.Annotation != want {
			t.Fatalf("expected annotation %q, got %q", want, d.Annotation)
		}
	})

	t.Run("ExactBeatsPrefixBeatsRegexOnBlacklist", func(t *testing.T) {
		// A regex rule alone would also match, but since match precedence
		// is exact > prefix > regex, the exact rule's message should win.
		e, err := New([]Rule{
			{Kind: KindBlacklist, Match: MatchRegex, Pattern: "^sudo.*", Message: "regex hit"},
			{Kind: KindBlacklist, Match: MatchExact, Pattern: "sudo reboot", Message: "exact hit"},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		_, err = e.Apply("sess-1", "sudo reboot")
		if err == nil || err.Error()[:len("exact hit")] != "exact hit" {
			t.Fatalf("expected exact-match rule to win, got %v", err)
		}
	})

	t.Run("ScopeRestrictsRuleToMatchingSessions", func(t *testing.T) {
		e, err := New([]Rule{
			{Kind: KindBlacklist, Match: MatchExact, Pattern: "reboot", Scope: "prod-*", Message: "blocked in prod"},
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if _, err := e.Apply("dev-box", "reboot"); err != nil {
			t.Fatalf("rule should not apply outside scope: %v", err)
		}
		if _, err := e.Apply("prod-1", "reboot"); !errors.Is(err, toolerr.BlacklistedCommand) {
			t.Fatalf("rule should apply within scope, got %v", err)
		}
	})
}

func TestEngineReload(t *testing.T) {
	e, err := New([]Rule{
		{Kind: KindBlacklist, Match: MatchExact, Pattern: "old"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Reload([]Rule{
		{Kind: KindBlacklist, Match: MatchExact, Pattern: "new"},
	}); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, err := e.Apply("sess-1", "old"); err != nil {
		t.Fatalf("stale rule should no longer apply: %v", err)
	}
	if _, err := e.Apply("sess-1", "new"); err == nil {
		t.Fatal("reloaded rule should apply")
	}
}

func TestEngineReloadRejectsBadRegex(t *testing.T) {
	e, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = e.Reload([]Rule{
		{Kind: KindBlacklist, Match: MatchRegex, Pattern: "("},
	})
	if err == nil {
		t.Fatal("expected compile error")
	}
	// Previous (empty) rule set must be left untouched.
	if _, err := e.Apply("sess-1", "anything"); err != nil {
		t.Fatalf("unexpected error after failed reload: %v", err)
	}
}
