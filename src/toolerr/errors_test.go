package toolerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestInvalidArgWrapsInvalidArgs(t *testing.T) {
	err := InvalidArg("cols", "must be positive")
	if !errors.Is(err, InvalidArgs) {
		t.Fatalf("expected InvalidArg to unwrap to InvalidArgs, got %v", err)
	}
	if err.Error() != "invalid argument cols: must be positive" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{NotFound, NameInUse, SpawnFailed, SessionTerminated, BlacklistedCommand, InvalidArgs, Overflow, Internal}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			if errors.Is(a, b) {
				t.Fatalf("sentinel %v should not match sentinel %v", a, b)
			}
		}
	}
}

func TestWrappedSentinelStillMatches(t *testing.T) {
	wrapped := fmt.Errorf("create session: %w", NameInUse)
	if !errors.Is(wrapped, NameInUse) {
		t.Fatal("expected errors.Is to see through fmt.Errorf wrapping")
	}
}
