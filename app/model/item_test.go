package model

import (
	"testing"
	"time"
)

func TestImportState_NewState(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := NewImportState(now)

	if state.Status != ImportStatusNew {
		t.Errorf("Expected status new, got %s", state.Status)
	}
	if !state.ShouldFetch {
		t.Error("New state must have should_fetch set")
	}
	if !state.LastImportRequestedTime.Equal(now) {
		t.Errorf("Expected last import requested time %v, got %v", now, state.LastImportRequestedTime)
	}
	if err := state.Validate(); err != nil {
		t.Errorf("New state should validate, got: %v", err)
	}
}

func TestImportState_ClaimRequiresShouldFetch(t *testing.T) {
	now := time.Now().UTC()
	state := NewImportState(now)

	claimed, err := state.Claim(now)
	if err != nil {
		t.Fatalf("Claim of eligible item should succeed, got: %v", err)
	}
	if claimed.Status != ImportStatusProcessing {
		t.Errorf("Expected status processing, got %s", claimed.Status)
	}
	if claimed.ShouldFetch {
		t.Error("Claimed state must clear should_fetch")
	}
	if claimed.ImportStartedTime == nil {
		t.Error("Claimed state must record import started time")
	}

	// A second claim against the claimed state must abstain.
	if _, err := claimed.Claim(now); err == nil {
		t.Error("Claim of already-claimed item should fail")
	}
}

func TestImportState_CompletePreservesRefetch(t *testing.T) {
	now := time.Now().UTC()
	state := NewImportState(now)
	claimed, _ := state.Claim(now)

	completed, err := claimed.Complete(now, false)
	if err != nil {
		t.Fatalf("Complete from processing should succeed, got: %v", err)
	}
	if completed.Status != ImportStatusCompleted {
		t.Errorf("Expected status completed, got %s", completed.Status)
	}
	if completed.ShouldFetch {
		t.Error("Completed static content must not have should_fetch set")
	}
	if completed.LastSuccessfulImportTime == nil {
		t.Error("Completed state must record last successful import time")
	}

	// Periodic refresh keeps should_fetch set for a later re-import.
	refetch, err := claimed.Complete(now, true)
	if err != nil {
		t.Fatalf("Complete with refetch should succeed, got: %v", err)
	}
	if !refetch.ShouldFetch {
		t.Error("Refetching content must keep should_fetch set")
	}
	if err := refetch.Validate(); err != nil {
		t.Errorf("Refetching completed state should validate, got: %v", err)
	}
}

func TestImportState_FailPreservesLastSuccess(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := NewImportState(base)
	claimed, _ := state.Claim(base)
	completed, _ := claimed.Complete(base, true)

	reclaimed, err := completed.Claim(base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Re-claim of refetching item should succeed, got: %v", err)
	}

	failed, err := reclaimed.Fail(base.Add(2*time.Hour), "failed to fetch url")
	if err != nil {
		t.Fatalf("Fail from processing should succeed, got: %v", err)
	}
	if failed.Status != ImportStatusFailed {
		t.Errorf("Expected status failed, got %s", failed.Status)
	}
	if !failed.ShouldFetch {
		t.Error("Failed items must remain retryable")
	}
	if failed.ErrorMessage != "failed to fetch url" {
		t.Errorf("Unexpected error message: %s", failed.ErrorMessage)
	}
	if failed.LastSuccessfulImportTime == nil || !failed.LastSuccessfulImportTime.Equal(base) {
		t.Error("Fail must preserve the prior last successful import time")
	}
}

func TestImportState_ShouldFetchFalseImpliesSettledStatus(t *testing.T) {
	// should_fetch=false only ever appears on processing, completed, and
	// failed states, never on new.
	now := time.Now().UTC()
	state := NewImportState(now)

	transitions := []ImportState{}
	claimed, _ := state.Claim(now)
	transitions = append(transitions, claimed)
	completed, _ := claimed.Complete(now, false)
	transitions = append(transitions, completed)

	for _, s := range transitions {
		if s.ShouldFetch {
			continue
		}
		switch s.Status {
		case ImportStatusProcessing, ImportStatusCompleted, ImportStatusFailed:
		default:
			t.Errorf("should_fetch=false with status %s violates invariant", s.Status)
		}
	}

	bad := ImportState{Status: ImportStatusNew, ShouldFetch: false, LastImportRequestedTime: now}
	if err := bad.Validate(); err == nil {
		t.Error("New state without should_fetch should fail validation")
	}
}

func TestImportState_RequestImportIsMonotonic(t *testing.T) {
	later := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	state := NewImportState(later)
	requested := state.RequestImport(earlier)
	if !requested.LastImportRequestedTime.Equal(later) {
		t.Error("LastImportRequestedTime must not move backwards")
	}

	requested = state.RequestImport(later.Add(time.Minute))
	if !requested.LastImportRequestedTime.Equal(later.Add(time.Minute)) {
		t.Error("LastImportRequestedTime should advance for later requests")
	}
	if !requested.ShouldFetch {
		t.Error("RequestImport must set should_fetch")
	}
}

func TestImportState_RequestImportWhileProcessingIsNoOp(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	state := NewImportState(start)
	claimed, err := state.Claim(start.Add(time.Minute))
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}

	requested := claimed.RequestImport(start.Add(2 * time.Minute))
	if requested.Status != ImportStatusProcessing {
		t.Errorf("Expected status to stay processing, got %q", requested.Status)
	}
	if requested.ShouldFetch {
		t.Error("A request during an in-flight import must not re-open the fetch gate")
	}
	if !requested.LastImportRequestedTime.Equal(claimed.LastImportRequestedTime) {
		t.Error("LastImportRequestedTime must not change during an in-flight import")
	}
}

func TestFeedItem_DedupKey(t *testing.T) {
	subID := NewUserFeedSubscriptionID()
	a := FeedItem{
		AccountID:  "acct-1",
		Source:     NewRSSFeedSource(subID),
		URL:        "https://example.com/post/1",
		ExternalID: "ext-1",
	}
	b := a
	b.URL = "https://example.com/post/1?utm=x" // url changes, identity does not

	if a.DedupKey() != b.DedupKey() {
		t.Error("Subscription-backed items dedup on (subscription, external id)")
	}

	c := a
	c.ExternalID = "ext-2"
	if a.DedupKey() == c.DedupKey() {
		t.Error("Different external ids must produce different dedup keys")
	}

	manual := FeedItem{AccountID: "acct-1", Source: NewPWAFeedSource(), URL: "https://example.com/a"}
	manualDup := FeedItem{AccountID: "acct-1", Source: NewExtensionFeedSource(), URL: "https://example.com/a"}
	if manual.DedupKey() != manualDup.DedupKey() {
		t.Error("Manual saves dedup on (account, url) regardless of client")
	}
}

func TestContentHash_NormalizesUnicode(t *testing.T) {
	// "é" composed vs decomposed
	composed := ContentHash("café")
	decomposed := ContentHash("café")
	if composed != decomposed {
		t.Error("Canonically equal strings must hash identically")
	}
}
