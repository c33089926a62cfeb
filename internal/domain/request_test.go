package domain

import "testing"

func TestFoldRequestStatus(t *testing.T) {
	items := func(statuses ...RequestItemStatus) []RequestItem {
		out := make([]RequestItem, 0, len(statuses))
		for _, status := range statuses {
			out = append(out, RequestItem{Status: status})
		}
		return out
	}

	tests := []struct {
		name  string
		items []RequestItem
		want  RequestStatus
	}{
		{"empty", nil, RequestStatusPending},
		{"any pending wins", items(RequestItemApproved, RequestItemPending), RequestStatusPending},
		{"processing without pending", items(RequestItemProcessing, RequestItemApproved), RequestStatusProcessing},
		{"all approved", items(RequestItemApproved, RequestItemApproved), RequestStatusCompleted},
		{"all rejected", items(RequestItemRejected), RequestStatusRejected},
		{"mixed outcomes", items(RequestItemApproved, RequestItemRejected), RequestStatusPartiallyCompleted},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := FoldRequestStatus(tc.items); got != tc.want {
				t.Errorf("FoldRequestStatus = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRequestItemStatusResolved(t *testing.T) {
	if RequestItemPending.Resolved() {
		t.Error("pending reported resolved")
	}
	for _, status := range []RequestItemStatus{RequestItemApproved, RequestItemRejected, RequestItemCompleted} {
		if !status.Resolved() {
			t.Errorf("%s not reported resolved", status)
		}
	}
}
