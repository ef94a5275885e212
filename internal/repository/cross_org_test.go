package repository

import (
	"errors"
	"testing"

	"expensetracker/internal/model"
)

func TestCrossOrgListing_Defaults(t *testing.T) {
	q := model.CrossOrgQuery{}
	q.Normalize()

	where, tail, args, err := ruleListing.clauses(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if where != "r.is_active" {
		t.Errorf("default listing should hide inactive rows, got %q", where)
	}
	if tail != "ORDER BY r.name ASC, r.id ASC LIMIT $1 OFFSET $2" {
		t.Errorf("unexpected tail %q", tail)
	}
	if len(args) != 2 || args[0] != 20 || args[1] != 0 {
		t.Errorf("unexpected args %v", args)
	}
}

func TestCrossOrgListing_AllFilters(t *testing.T) {
	inactive := false
	q := model.CrossOrgQuery{
		OrgID:    "org-1",
		Search:   "50%_off",
		IsActive: &inactive,
		SortBy:   "created_at",
		SortDesc: true,
		Page:     3,
		Limit:    10,
	}
	q.Normalize()

	where, tail, args, err := integrationListing.clauses(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if where != "i.org_id = $1 AND i.is_active = $2 AND i.email_address ILIKE $3" {
		t.Errorf("unexpected where %q", where)
	}
	if tail != "ORDER BY i.created_at DESC, i.id ASC LIMIT $4 OFFSET $5" {
		t.Errorf("unexpected tail %q", tail)
	}
	want := []any{"org-1", false, `%50\%\_off%`, 10, 20}
	if len(args) != len(want) {
		t.Fatalf("expected %d args, got %v", len(want), args)
	}
	for i := range want {
		if args[i] != want[i] {
			t.Errorf("arg %d = %v, want %v", i, args[i], want[i])
		}
	}
}

func TestCrossOrgListing_IncludeInactive(t *testing.T) {
	q := model.CrossOrgQuery{IncludeInactive: true}
	q.Normalize()

	where, _, _, err := categoryListing.clauses(q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if where != "TRUE" {
		t.Errorf("expected no filter, got %q", where)
	}
}

func TestCrossOrgListing_RejectsUnknownSort(t *testing.T) {
	q := model.CrossOrgQuery{SortBy: "name; DROP TABLE member"}
	q.Normalize()

	if _, _, _, err := categoryListing.clauses(q); !errors.Is(err, ErrInvalidSort) {
		t.Fatalf("expected ErrInvalidSort, got %v", err)
	}
}

func TestQualify(t *testing.T) {
	got := qualify("c", "id, org_id,\n       name")
	if got != "c.id, c.org_id, c.name" {
		t.Errorf("unexpected %q", got)
	}
}

func TestOrgRef(t *testing.T) {
	if orgRef(nil, nil) != nil {
		t.Error("missing org should be nil")
	}
	id, name := "o1", "Acme"
	if ref := orgRef(&id, &name); ref == nil || ref.ID != "o1" || ref.Name != "Acme" {
		t.Errorf("unexpected ref %+v", ref)
	}
}
