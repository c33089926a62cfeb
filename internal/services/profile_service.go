package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
	"github.com/meridian-commerce/api/internal/repositories"
)

var (
	errProfileUsersRequired = errors.New("profile service: user repository is required")
	errProfileClockRequired = errors.New("profile service: clock is required")
)

// ErrProfileInvalidInput indicates the caller supplied invalid input.
var ErrProfileInvalidInput = errors.New("profile service: invalid input")

// ErrProfileNotFound indicates the profile does not exist.
var ErrProfileNotFound = errors.New("profile service: not found")

// ErrProfileUnavailable indicates the backend rejected or could not serve the request.
var ErrProfileUnavailable = errors.New("profile service: unavailable")

const mailingListProfileTag = "profile_updated"

// ProfileServiceDeps wires the repositories and collaborators for profile
// operations.
type ProfileServiceDeps struct {
	Users       repositories.UserRepository
	MailingList MailingListSync
	Clock       func() time.Time
	Logger      EventLogger
}

type profileService struct {
	users       repositories.UserRepository
	mailingList MailingListSync
	now         func() time.Time
	logger      EventLogger
}

// NewProfileService constructs a ProfileService enforcing dependency validation.
func NewProfileService(deps ProfileServiceDeps) (ProfileService, error) {
	if deps.Users == nil {
		return nil, errProfileUsersRequired
	}
	if deps.Clock == nil {
		return nil, errProfileClockRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &profileService{
		users:       deps.Users,
		mailingList: deps.MailingList,
		now:         func() time.Time { return deps.Clock().UTC() },
		logger:      logger,
	}, nil
}

// Get returns one user profile.
func (s *profileService) Get(ctx context.Context, userID string) (UserProfile, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}
	profile, err := s.users.FindByID(ctx, trimmed)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}
	return profile, nil
}

// Update applies partial profile changes and mirrors them to the mailing-list
// provider best-effort.
func (s *profileService) Update(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrProfileInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}

	if cmd.DisplayName != nil {
		name := strings.TrimSpace(*cmd.DisplayName)
		if name == "" {
			return UserProfile{}, fmt.Errorf("%w: display name cannot be empty", ErrProfileInvalidInput)
		}
		profile.DisplayName = name
	}
	if cmd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*cmd.Email))
		if email == "" || !strings.Contains(email, "@") {
			return UserProfile{}, fmt.Errorf("%w: invalid email address", ErrProfileInvalidInput)
		}
		profile.Email = email
	}
	profile.UpdatedAt = s.now()

	updated, err := s.users.UpdateProfile(ctx, profile)
	if err != nil {
		return UserProfile{}, s.translateRepoError(err)
	}

	if s.mailingList != nil {
		if err := s.mailingList.UpsertContact(ctx, updated, mailingListProfileTag); err != nil {
			s.logger(ctx, "profile.mailing_list_sync_failed", map[string]any{"userId": updated.ID, "error": err.Error()})
		}
	}
	return updated, nil
}

// TierFor resolves the user's pricing tier from their role. Unknown users get
// the default tier so public pricing never errors on identity gaps.
func (s *profileService) TierFor(ctx context.Context, userID string) (Tier, error) {
	trimmed := strings.TrimSpace(userID)
	if trimmed == "" {
		return domain.TierForRole(""), nil
	}
	profile, err := s.users.FindByID(ctx, trimmed)
	if err != nil {
		if isRepoNotFound(err) {
			return domain.TierForRole(""), nil
		}
		return "", s.translateRepoError(err)
	}
	return domain.TierForRole(string(profile.Role)), nil
}

func (s *profileService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrProfileNotFound
		case repoErr.IsConflict():
			return ErrProfileUnavailable
		}
	}
	return ErrProfileUnavailable
}
