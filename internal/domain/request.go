package domain

import (
	"time"
)

// RequestType distinguishes refund from replacement dispositions. A given
// order line holds at most one open item per type, and a line can never be
// both refunded and replaced.
type RequestType string

const (
	RequestTypeRefund      RequestType = "refund"
	RequestTypeReplacement RequestType = "replacement"
)

// RequestItemStatus is the per-line state inside a request document.
type RequestItemStatus string

const (
	RequestItemPending    RequestItemStatus = "Pending"
	RequestItemApproved   RequestItemStatus = "Approved"
	RequestItemRejected   RequestItemStatus = "Rejected"
	RequestItemProcessing RequestItemStatus = "Processing"
	RequestItemCompleted  RequestItemStatus = "Completed"
)

// Resolved reports whether the item has left the Pending state.
func (s RequestItemStatus) Resolved() bool {
	return s != RequestItemPending
}

// RequestStatus is the aggregate state of a request document, always derived
// from its item statuses via FoldRequestStatus.
type RequestStatus string

const (
	RequestStatusPending            RequestStatus = "Pending"
	RequestStatusProcessing         RequestStatus = "Processing"
	RequestStatusCompleted          RequestStatus = "Completed"
	RequestStatusPartiallyCompleted RequestStatus = "Partially_Completed"
	RequestStatusRejected           RequestStatus = "Rejected"
)

// RequestItem is one product's disposition line inside a request.
type RequestItem struct {
	ProductID   string
	Quantity    int64
	UnitPrice   int64
	RequestType RequestType
	Status      RequestItemStatus
	Reason      string
	AdminNotes  string
	ProcessedAt time.Time
}

// Request tracks post-sale refund/replacement dispositions for one order.
// Status is the deterministic fold of the item statuses.
type Request struct {
	ID          string
	OrderID     string
	UserID      string
	Items       []RequestItem
	Status      RequestStatus
	CompletedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FoldRequestStatus derives the aggregate request status from item statuses.
// Any Pending item keeps the request Pending; any Processing item (with no
// Pending) keeps it Processing. Once every item is resolved: all
// Approved/Completed folds to Completed, all Rejected folds to Rejected, and
// a mix folds to Partially_Completed. This is the single fold used by both
// write and read paths.
func FoldRequestStatus(items []RequestItem) RequestStatus {
	if len(items) == 0 {
		return RequestStatusPending
	}

	var processing, completed, rejected int
	for _, item := range items {
		switch item.Status {
		case RequestItemPending:
			return RequestStatusPending
		case RequestItemProcessing:
			processing++
		case RequestItemRejected:
			rejected++
		default:
			completed++
		}
	}

	switch {
	case processing > 0:
		return RequestStatusProcessing
	case rejected == 0:
		return RequestStatusCompleted
	case completed == 0:
		return RequestStatusRejected
	default:
		return RequestStatusPartiallyCompleted
	}
}
