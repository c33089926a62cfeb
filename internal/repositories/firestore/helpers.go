package firestore

import (
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/meridian-commerce/api/internal/platform/firestore"
)

// notFoundError builds a repository error carrying not-found semantics for
// query paths where Firestore returns an empty result set instead of a gRPC
// NotFound status.
func notFoundError(op string) error {
	return pfirestore.WrapError(op, status.Error(codes.NotFound, "document not found"))
}
