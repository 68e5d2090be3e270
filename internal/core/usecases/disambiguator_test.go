package usecases_test

import (
	"testing"

	"github.com/tsig-uy/mapgate/internal/core/domain"
	"github.com/tsig-uy/mapgate/internal/core/usecases"
)

func TestDisambiguator_EmptyOfferStaysInert(t *testing.T) {
	d := usecases.NewDisambiguator()

	direct, held := d.Offer(nil)
	if direct != nil || held {
		t.Fatalf("expected inert outcome, got direct=%v held=%v", direct, held)
	}
	if got := d.Active(); got != nil {
		t.Fatalf("expected no active set, got %v", got)
	}
}

func TestDisambiguator_SingleCandidatePassesThrough(t *testing.T) {
	d := usecases.NewDisambiguator()

	direct, held := d.Offer([]domain.FeatureCandidate{stopCandidate("42", "Plaza Independencia")})
	if held {
		t.Fatal("single candidate must not open a set")
	}
	if direct == nil || direct.ID != "42" {
		t.Fatalf("expected direct candidate 42, got %v", direct)
	}
	if got := d.Active(); got != nil {
		t.Fatalf("expected no active set after pass-through, got %v", got)
	}
}

func TestDisambiguator_SelectResolvesAndCloses(t *testing.T) {
	d := usecases.NewDisambiguator()
	d.Offer([]domain.FeatureCandidate{
		stopCandidate("42", "Plaza Independencia"),
		{Type: domain.FeatureLine, ID: "104", DisplayName: "104 Centro"},
	})

	if got := len(d.Active()); got != 2 {
		t.Fatalf("expected 2 held candidates, got %d", got)
	}

	picked, err := d.Select(domain.FeatureLine, "104")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if picked.DisplayName != "104 Centro" {
		t.Fatalf("unexpected pick: %v", picked)
	}
	if got := d.Active(); got != nil {
		t.Fatalf("set must close after selection, got %v", got)
	}
	if _, err := d.Select(domain.FeatureLine, "104"); err != usecases.ErrNoCandidateSet {
		t.Fatalf("expected ErrNoCandidateSet on closed set, got %v", err)
	}
}

func TestDisambiguator_SelectDistinguishesFeatureTypes(t *testing.T) {
	d := usecases.NewDisambiguator()
	d.Offer([]domain.FeatureCandidate{
		{Type: domain.FeatureStop, ID: "7", DisplayName: "stop seven"},
		{Type: domain.FeatureLine, ID: "7", DisplayName: "line seven"},
	})

	picked, err := d.Select(domain.FeatureStop, "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if picked.DisplayName != "stop seven" {
		t.Fatalf("expected the stop, got %v", picked)
	}
}

func TestDisambiguator_SelectUnknownKeepsSetOpen(t *testing.T) {
	d := usecases.NewDisambiguator()
	d.Offer([]domain.FeatureCandidate{
		stopCandidate("1", "a"),
		stopCandidate("2", "b"),
	})

	if _, err := d.Select(domain.FeatureStop, "99"); err != usecases.ErrCandidateNotFound {
		t.Fatalf("expected ErrCandidateNotFound, got %v", err)
	}
	if got := len(d.Active()); got != 2 {
		t.Fatalf("failed selection must keep the set open, got %d candidates", got)
	}
}

func TestDisambiguator_NewOfferReplacesHeldSet(t *testing.T) {
	d := usecases.NewDisambiguator()
	d.Offer([]domain.FeatureCandidate{
		stopCandidate("1", "a"),
		stopCandidate("2", "b"),
	})
	d.Offer([]domain.FeatureCandidate{
		stopCandidate("3", "c"),
		stopCandidate("4", "d"),
	})

	if _, err := d.Select(domain.FeatureStop, "1"); err != usecases.ErrCandidateNotFound {
		t.Fatalf("stale candidate must not resolve, got %v", err)
	}
	if _, err := d.Select(domain.FeatureStop, "3"); err != nil {
		t.Fatalf("fresh candidate must resolve, got %v", err)
	}
}

func TestDisambiguator_DismissDiscards(t *testing.T) {
	d := usecases.NewDisambiguator()
	d.Offer([]domain.FeatureCandidate{
		stopCandidate("1", "a"),
		stopCandidate("2", "b"),
	})

	d.Dismiss()
	if got := d.Active(); got != nil {
		t.Fatalf("expected empty set after dismiss, got %v", got)
	}
	d.Dismiss() // no-op on empty
}
