package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
)

var profileTestTime = time.Date(2026, 3, 15, 8, 0, 0, 0, time.UTC)

func newProfileServiceForTest(t *testing.T, users *fakeUserRepo, mailing *fakeMailingList) ProfileService {
	t.Helper()
	deps := ProfileServiceDeps{
		Users: users,
		Clock: fixedClock(profileTestTime),
	}
	if mailing != nil {
		deps.MailingList = mailing
	}
	svc, err := NewProfileService(deps)
	if err != nil {
		t.Fatalf("NewProfileService: %v", err)
	}
	return svc
}

func strPtr(s string) *string { return &s }

func TestProfileUpdateAppliesPartialChanges(t *testing.T) {
	users := newFakeUserRepo(domain.UserProfile{ID: "u1", DisplayName: "Old Name", Email: "old@example.com"})
	mailing := &fakeMailingList{}
	svc := newProfileServiceForTest(t, users, mailing)

	updated, err := svc.Update(context.Background(), UpdateProfileCommand{
		UserID: "u1",
		Email:  strPtr("  New@Example.COM "),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Errorf("email = %q, want lowercased and trimmed", updated.Email)
	}
	if updated.DisplayName != "Old Name" {
		t.Errorf("display name = %q, want untouched", updated.DisplayName)
	}
	if len(mailing.upserts) != 1 || mailing.upserts[0] != "u1" {
		t.Errorf("mailing list upserts = %v, want one for u1", mailing.upserts)
	}
}

func TestProfileUpdateRejectsInvalidEmail(t *testing.T) {
	users := newFakeUserRepo(domain.UserProfile{ID: "u1", Email: "old@example.com"})
	svc := newProfileServiceForTest(t, users, nil)

	for _, email := range []string{"", "   ", "not-an-address"} {
		_, err := svc.Update(context.Background(), UpdateProfileCommand{UserID: "u1", Email: strPtr(email)})
		if !errors.Is(err, ErrProfileInvalidInput) {
			t.Errorf("email %q: err = %v, want ErrProfileInvalidInput", email, err)
		}
	}
}

func TestProfileUpdateRejectsEmptyDisplayName(t *testing.T) {
	users := newFakeUserRepo(domain.UserProfile{ID: "u1", DisplayName: "Name"})
	svc := newProfileServiceForTest(t, users, nil)

	_, err := svc.Update(context.Background(), UpdateProfileCommand{UserID: "u1", DisplayName: strPtr("   ")})
	if !errors.Is(err, ErrProfileInvalidInput) {
		t.Fatalf("err = %v, want ErrProfileInvalidInput", err)
	}
}

func TestProfileUpdateSurvivesMailingListFailure(t *testing.T) {
	users := newFakeUserRepo(domain.UserProfile{ID: "u1", Email: "old@example.com"})
	mailing := &fakeMailingList{err: errors.New("provider down")}
	svc := newProfileServiceForTest(t, users, mailing)

	updated, err := svc.Update(context.Background(), UpdateProfileCommand{UserID: "u1", Email: strPtr("new@example.com")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Email != "new@example.com" {
		t.Errorf("email = %q, want updated despite sync failure", updated.Email)
	}
}

func TestProfileTierForMapsRoles(t *testing.T) {
	users := newFakeUserRepo(
		domain.UserProfile{ID: "whole", Role: domain.RoleWholesale},
		domain.UserProfile{ID: "chain", Role: "Chain Store"},
	)
	svc := newProfileServiceForTest(t, users, nil)

	tests := []struct {
		userID string
		want   domain.Tier
	}{
		{"whole", domain.TierWholesale},
		{"chain", domain.TierChainStore},
		{"unknown-user", domain.TierFranchise},
		{"", domain.TierFranchise},
	}
	for _, tc := range tests {
		got, err := svc.TierFor(context.Background(), tc.userID)
		if err != nil {
			t.Fatalf("TierFor(%q): %v", tc.userID, err)
		}
		if got != tc.want {
			t.Errorf("TierFor(%q) = %q, want %q", tc.userID, got, tc.want)
		}
	}
}

func TestProfileGetUnknownUser(t *testing.T) {
	svc := newProfileServiceForTest(t, newFakeUserRepo(), nil)

	_, err := svc.Get(context.Background(), "ghost")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}
