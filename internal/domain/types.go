package domain

import (
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// UserRole is the account classification assigned at registration. It drives
// pricing-tier resolution; unrecognised roles resolve to the Franchise tier.
type UserRole string

const (
	RoleWholesale  UserRole = "Wholesale"
	RoleRetailer   UserRole = "Retailer"
	RoleChainStore UserRole = "ChainStore"
	RoleFranchise  UserRole = "Franchise"
	RoleAdmin      UserRole = "Admin"
)

// UserProfile carries the account fields the core needs: identity, role, and
// the payment-gateway customer handle. Raw credentials never enter this type.
type UserProfile struct {
	ID            string
	Email         string
	DisplayName   string
	Role          UserRole
	CustomerRef   string
	MailingListID string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
