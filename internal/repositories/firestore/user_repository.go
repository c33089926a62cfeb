package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/meridian-commerce/api/internal/domain"
	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
	"github.com/meridian-commerce/api/internal/repositories"
)

const userCollection = "users"

type userDocument struct {
	Email         string    `firestore:"email"`
	DisplayName   string    `firestore:"displayName,omitempty"`
	Role          string    `firestore:"role"`
	CustomerRef   string    `firestore:"customerRef,omitempty"`
	MailingListID string    `firestore:"mailingListId,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// UserRepository reads and updates user profile documents. Auth credentials
// live with the identity provider, never here.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// FindByID loads one user profile.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return toDomainUserProfile(doc.ID, doc.Data), nil
}

// UpdateProfile overwrites the profile document and returns the stored state.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}
	if _, err := r.base.Set(ctx, profile.ID, fromDomainUserProfile(profile)); err != nil {
		return domain.UserProfile{}, err
	}
	return profile, nil
}

func fromDomainUserProfile(profile domain.UserProfile) userDocument {
	return userDocument{
		Email:         strings.ToLower(strings.TrimSpace(profile.Email)),
		DisplayName:   strings.TrimSpace(profile.DisplayName),
		Role:          string(profile.Role),
		CustomerRef:   profile.CustomerRef,
		MailingListID: profile.MailingListID,
		CreatedAt:     profile.CreatedAt.UTC(),
		UpdatedAt:     profile.UpdatedAt.UTC(),
	}
}

func toDomainUserProfile(id string, doc userDocument) domain.UserProfile {
	return domain.UserProfile{
		ID:            id,
		Email:         doc.Email,
		DisplayName:   doc.DisplayName,
		Role:          domain.UserRole(doc.Role),
		CustomerRef:   doc.CustomerRef,
		MailingListID: doc.MailingListID,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}

var _ repositories.UserRepository = (*UserRepository)(nil)
