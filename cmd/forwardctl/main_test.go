package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"expensetracker/internal/model"
	"expensetracker/internal/repository"
	"expensetracker/pkg/config"
)

type fakeCategories struct {
	orgID   string
	created *model.CreateCategoryInput
	updated *model.UpdateCategoryInput
	deleted string
	query   *model.CrossOrgQuery
}

func (f *fakeCategories) List(ctx context.Context, orgID string, includeInactive bool) ([]model.EmailCategory, int, error) {
	f.orgID = orgID
	return []model.EmailCategory{{ID: "cat-1", OrgID: orgID, Name: "Invoices"}}, 1, nil
}

func (f *fakeCategories) Get(ctx context.Context, orgID, id string) (*model.EmailCategory, error) {
	return nil, repository.ErrNotFound
}

func (f *fakeCategories) Create(ctx context.Context, orgID, userID string, in model.CreateCategoryInput) (*model.EmailCategory, error) {
	f.orgID, f.created = orgID, &in
	return &model.EmailCategory{ID: "cat-new", OrgID: orgID, Name: in.Name, CreatedBy: userID}, nil
}

func (f *fakeCategories) Update(ctx context.Context, orgID, id string, in model.UpdateCategoryInput) (*model.EmailCategory, error) {
	f.orgID, f.updated = orgID, &in
	return &model.EmailCategory{ID: id, OrgID: orgID}, nil
}

func (f *fakeCategories) Delete(ctx context.Context, orgID, id string) error {
	f.orgID, f.deleted = orgID, id
	return nil
}

func (f *fakeCategories) ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.CategoryWithOrg], error) {
	f.query = &q
	return &model.CrossOrgPage[model.CategoryWithOrg]{Page: 1, Limit: 20}, nil
}

func (f *fakeCategories) Stats(ctx context.Context) (*model.CrossOrgStats, error) {
	return &model.CrossOrgStats{TotalCount: 3, ActiveCount: 2}, nil
}

type fakeRules struct {
	created *model.CreateRuleInput
	updated *model.UpdateRuleInput
	query   *model.CrossOrgQuery
	err     error
}

func (f *fakeRules) List(ctx context.Context, orgID string, includeInactive bool) ([]model.ForwardingRule, int, error) {
	return nil, 0, nil
}

func (f *fakeRules) Get(ctx context.Context, orgID, id string) (*model.ForwardingRule, error) {
	return &model.ForwardingRule{ID: id, OrgID: orgID}, nil
}

func (f *fakeRules) Create(ctx context.Context, orgID, userID string, in model.CreateRuleInput) (*model.ForwardingRule, error) {
	f.created = &in
	if f.err != nil {
		return nil, f.err
	}
	return &model.ForwardingRule{ID: "rule-new", OrgID: orgID, Name: in.Name, NotifyRoles: in.NotifyRoles}, nil
}

func (f *fakeRules) Update(ctx context.Context, orgID, id string, in model.UpdateRuleInput) (*model.ForwardingRule, error) {
	f.updated = &in
	return &model.ForwardingRule{ID: id, OrgID: orgID}, nil
}

func (f *fakeRules) Delete(ctx context.Context, orgID, id string) error { return nil }

func (f *fakeRules) ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.RuleWithOrg], error) {
	f.query = &q
	return &model.CrossOrgPage[model.RuleWithOrg]{
		Items: []model.RuleWithOrg{{
			ForwardingRule: model.ForwardingRule{ID: "rule-1", OrgID: "org-2"},
			Organization:   &model.OrgRef{ID: "org-2", Name: "Acme"},
		}},
		Total: 1, Page: q.Page, Limit: q.Limit,
	}, nil
}

func (f *fakeRules) Stats(ctx context.Context) (*model.CrossOrgStats, error) {
	return &model.CrossOrgStats{TotalCount: 5, ActiveCount: 4}, nil
}

type fakeEmails struct {
	filter *model.EmailFilter
	patch  *model.EmailPatch
}

func (f *fakeEmails) List(ctx context.Context, orgID string, filter model.EmailFilter) ([]model.DetectedEmail, int, error) {
	f.filter = &filter
	return nil, 0, nil
}

func (f *fakeEmails) Get(ctx context.Context, orgID, id string) (*model.DetectedEmail, error) {
	return &model.DetectedEmail{ID: id, OrgID: orgID}, nil
}

func (f *fakeEmails) Update(ctx context.Context, orgID, id string, p model.EmailPatch) (*model.DetectedEmail, error) {
	f.patch = &p
	return &model.DetectedEmail{ID: id, OrgID: orgID}, nil
}

type fakeNotifications struct {
	markedID    string
	markedAll   bool
	userID      string
	cutoff      time.Time
	purgedCount int64
}

func (f *fakeNotifications) List(ctx context.Context, orgID, userID string, limit int, includeRead bool) (*model.NotificationPage, error) {
	f.userID = userID
	return &model.NotificationPage{Items: []model.Notification{}}, nil
}

func (f *fakeNotifications) UnreadCount(ctx context.Context, orgID, userID string) (int, error) {
	f.userID = userID
	return 7, nil
}

func (f *fakeNotifications) MarkRead(ctx context.Context, orgID, userID, id string) error {
	f.userID, f.markedID = userID, id
	return nil
}

func (f *fakeNotifications) MarkAllRead(ctx context.Context, orgID, userID string) (int64, error) {
	f.userID, f.markedAll = userID, true
	return 4, nil
}

func (f *fakeNotifications) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.purgedCount, nil
}

type fakeIntegrations struct {
	connected *model.ConnectIntegrationInput
	patch     *model.IntegrationPatch
	disconn   string
}

func (f *fakeIntegrations) List(ctx context.Context, orgID string, includeInactive bool) ([]model.EmailIntegration, int, error) {
	return nil, 0, nil
}

func (f *fakeIntegrations) Get(ctx context.Context, orgID, id string) (*model.EmailIntegration, error) {
	return &model.EmailIntegration{ID: id, OrgID: orgID}, nil
}

func (f *fakeIntegrations) Connect(ctx context.Context, orgID, userID string, in model.ConnectIntegrationInput) (*model.EmailIntegration, error) {
	f.connected = &in
	return &model.EmailIntegration{ID: "int-new", OrgID: orgID, UserID: userID, Provider: in.Provider, EmailAddress: in.EmailAddress, IsActive: true}, nil
}

func (f *fakeIntegrations) Update(ctx context.Context, orgID, id string, p model.IntegrationPatch) (*model.EmailIntegration, error) {
	f.patch = &p
	return &model.EmailIntegration{ID: id, OrgID: orgID}, nil
}

func (f *fakeIntegrations) Disconnect(ctx context.Context, orgID, id string) error {
	f.disconn = id
	return nil
}

func (f *fakeIntegrations) ListAll(ctx context.Context, q model.CrossOrgQuery) (*model.CrossOrgPage[model.IntegrationWithOrg], error) {
	return &model.CrossOrgPage[model.IntegrationWithOrg]{}, nil
}

func (f *fakeIntegrations) Stats(ctx context.Context) (*model.CrossOrgStats, error) {
	return &model.CrossOrgStats{TotalCount: 1, ActiveCount: 1}, nil
}

func newFakeStores() *stores {
	return &stores{
		cfg:           &config.Config{Notification: config.NotificationConfig{RetentionDays: 30}},
		log:           zap.NewNop(),
		categories:    &fakeCategories{},
		rules:         &fakeRules{},
		emails:        &fakeEmails{},
		notifications: &fakeNotifications{},
		integrations:  &fakeIntegrations{},
	}
}

// run 执行一次 forwardctl 命令，返回 stdout
func run(t *testing.T, s *stores, args ...string) (string, error) {
	t.Helper()
	opened := 0
	root := newRootCmd(func(ctx context.Context) (*stores, func(), error) {
		opened++
		return s, func() { opened-- }, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	if opened != 0 {
		t.Fatalf("stores left open after %v", args)
	}
	return out.String(), err
}

func TestRulesDisable_OnlyTouchesIsActive(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	if _, err := run(t, s, "rules", "disable", "rule-1", "--org", "org-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.updated == nil || rules.updated.IsActive == nil || *rules.updated.IsActive {
		t.Fatalf("expected IsActive=false, got %+v", rules.updated)
	}
	want := model.UpdateRuleInput{IsActive: rules.updated.IsActive}
	if !reflect.DeepEqual(*rules.updated, want) {
		t.Errorf("disable must not set other fields, got %+v", rules.updated)
	}
}

func TestRulesEnable(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	if _, err := run(t, s, "rules", "enable", "rule-1", "--org", "org-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.updated.IsActive == nil || !*rules.updated.IsActive {
		t.Fatalf("expected IsActive=true, got %+v", rules.updated)
	}
}

func TestRulesCreate_ParsesRoles(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	out, err := run(t, s, "rules", "create", "--org", "org-1", "--user", "u-1",
		"--name", "Invoices to finance", "--category", "cat-1",
		"--roles", "finance, org_admin", "--users", "u-2,u-3", "--forward")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := rules.created
	if want := []model.Role{model.RoleFinance, model.RoleOrgAdmin}; !reflect.DeepEqual(in.NotifyRoles, want) {
		t.Errorf("expected roles %v, got %v", want, in.NotifyRoles)
	}
	if !reflect.DeepEqual(in.NotifyUserIDs, []string{"u-2", "u-3"}) {
		t.Errorf("unexpected users %v", in.NotifyUserIDs)
	}
	if !in.NotifyInApp || !in.ForwardEmail {
		t.Errorf("expected in-app and forward enabled, got %+v", in)
	}
	if in.Description != nil {
		t.Errorf("description should be unset, got %q", *in.Description)
	}
	if !strings.Contains(out, `"rule-new"`) {
		t.Errorf("expected created rule in output, got %s", out)
	}
}

func TestRulesCreate_RejectsUnknownRole(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	_, err := run(t, s, "rules", "create", "--org", "org-1", "--user", "u-1",
		"--name", "x", "--category", "cat-1", "--roles", "finance,superadmin")
	if !errors.Is(err, model.ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
	if rules.created != nil {
		t.Error("Create should not be called with an invalid role")
	}
}

func TestRulesCreate_PropagatesCategoryNotFound(t *testing.T) {
	s := newFakeStores()
	s.rules.(*fakeRules).err = repository.ErrCategoryNotFound

	_, err := run(t, s, "rules", "create", "--org", "org-1", "--user", "u-1",
		"--name", "x", "--category", "cat-other-org")
	if !errors.Is(err, repository.ErrCategoryNotFound) {
		t.Fatalf("expected ErrCategoryNotFound, got %v", err)
	}
}

func TestRulesUpdate_IsPartial(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	if _, err := run(t, s, "rules", "update", "rule-1", "--org", "org-1", "--roles", "viewer", "--in-app=false"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := rules.updated
	if in.NotifyRoles == nil || !reflect.DeepEqual(*in.NotifyRoles, []model.Role{model.RoleViewer}) {
		t.Errorf("expected roles [viewer], got %v", in.NotifyRoles)
	}
	if in.NotifyInApp == nil || *in.NotifyInApp {
		t.Errorf("expected NotifyInApp=false, got %v", in.NotifyInApp)
	}
	if in.Name != nil || in.CategoryID != nil || in.NotifyUserIDs != nil || in.ForwardEmail != nil || in.IsActive != nil {
		t.Errorf("unspecified fields must stay nil, got %+v", in)
	}
}

func TestRulesUpdate_EmptyRolesClearsList(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	if _, err := run(t, s, "rules", "update", "rule-1", "--org", "org-1", "--roles="); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rules.updated.NotifyRoles == nil || len(*rules.updated.NotifyRoles) != 0 {
		t.Errorf("expected an explicit empty role list, got %v", rules.updated.NotifyRoles)
	}
}

func TestCategories_RequireOrg(t *testing.T) {
	s := newFakeStores()
	if _, err := run(t, s, "categories", "list"); err == nil || !strings.Contains(err.Error(), "org") {
		t.Fatalf("expected missing --org error, got %v", err)
	}
}

func TestCategoriesCreate(t *testing.T) {
	s := newFakeStores()
	cats := s.categories.(*fakeCategories)

	if _, err := run(t, s, "categories", "create", "--org", "org-1", "--user", "u-1",
		"--name", "Invoices", "--keywords", "invoice,bill"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := cats.created
	if in.Name != "Invoices" || in.Color != "#6b7280" {
		t.Errorf("unexpected input %+v", in)
	}
	if !reflect.DeepEqual(in.Keywords, []string{"invoice", "bill"}) {
		t.Errorf("unexpected keywords %v", in.Keywords)
	}
}

func TestCategoriesUpdate_IsPartial(t *testing.T) {
	s := newFakeStores()
	cats := s.categories.(*fakeCategories)

	if _, err := run(t, s, "categories", "update", "cat-1", "--org", "org-1", "--color", "#ff0000", "--active=false"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	in := cats.updated
	if in.Color == nil || *in.Color != "#ff0000" {
		t.Errorf("expected color change, got %v", in.Color)
	}
	if in.IsActive == nil || *in.IsActive {
		t.Errorf("expected IsActive=false, got %v", in.IsActive)
	}
	if in.Name != nil || in.Description != nil || in.Keywords != nil || in.SenderPatterns != nil {
		t.Errorf("unspecified fields must stay nil, got %+v", in)
	}
}

func TestCategoriesDelete(t *testing.T) {
	s := newFakeStores()
	cats := s.categories.(*fakeCategories)

	out, err := run(t, s, "categories", "delete", "cat-9", "--org", "org-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cats.orgID != "org-1" || cats.deleted != "cat-9" {
		t.Errorf("expected delete of org-1/cat-9, got %s/%s", cats.orgID, cats.deleted)
	}
	if !strings.Contains(out, `"deleted": "cat-9"`) {
		t.Errorf("unexpected output %s", out)
	}
}

func TestCategoriesGet_NotFound(t *testing.T) {
	s := newFakeStores()
	if _, err := run(t, s, "categories", "get", "missing", "--org", "org-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEmailsUpdate_ClearCategory(t *testing.T) {
	s := newFakeStores()
	emails := s.emails.(*fakeEmails)

	if _, err := run(t, s, "emails", "update", "e-1", "--org", "org-1", "--clear-category", "--read"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := emails.patch
	if !p.ClearCategory || p.CategoryID != nil {
		t.Errorf("expected category cleared, got %+v", p)
	}
	if p.IsRead == nil || !*p.IsRead || p.IsArchived != nil {
		t.Errorf("expected only is_read=true, got %+v", p)
	}
}

func TestEmailsUpdate_ConflictingCategoryFlags(t *testing.T) {
	s := newFakeStores()
	emails := s.emails.(*fakeEmails)

	if _, err := run(t, s, "emails", "update", "e-1", "--org", "org-1", "--clear-category", "--category", "cat-1"); err == nil {
		t.Fatal("expected an error")
	}
	if emails.patch != nil {
		t.Error("Update should not be called")
	}
}

func TestEmailsList_TriStateFilters(t *testing.T) {
	s := newFakeStores()
	emails := s.emails.(*fakeEmails)

	if _, err := run(t, s, "emails", "list", "--org", "org-1", "--read=false", "--limit", "50"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f := emails.filter
	if f.IsRead == nil || *f.IsRead {
		t.Errorf("expected unread filter, got %v", f.IsRead)
	}
	if f.IsArchived != nil || f.CategoryID != nil {
		t.Errorf("unset filters must stay nil, got %+v", f)
	}
	if f.Limit != 50 || f.Page != 1 {
		t.Errorf("unexpected paging %d/%d", f.Page, f.Limit)
	}
}

func TestNotificationsRead(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantID  string
		wantAll bool
		wantErr bool
	}{
		{name: "single", args: []string{"--id", "n-1"}, wantID: "n-1"},
		{name: "all", args: []string{"--all"}, wantAll: true},
		{name: "neither", wantErr: true},
		{name: "both", args: []string{"--id", "n-1", "--all"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeStores()
			n := s.notifications.(*fakeNotifications)

			args := append([]string{"notifications", "read", "--org", "org-1", "--user", "u-1"}, tt.args...)
			_, err := run(t, s, args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if n.markedID != tt.wantID || n.markedAll != tt.wantAll {
				t.Errorf("marked id=%q all=%v", n.markedID, n.markedAll)
			}
			if !tt.wantErr && n.userID != "u-1" {
				t.Errorf("expected user u-1, got %q", n.userID)
			}
		})
	}
}

func TestNotificationsUnread(t *testing.T) {
	s := newFakeStores()
	out, err := run(t, s, "notifications", "unread", "--org", "org-1", "--user", "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, `"unread_count": 7`) {
		t.Errorf("unexpected output %s", out)
	}
}

func TestIntegrationsConnect(t *testing.T) {
	s := newFakeStores()
	ints := s.integrations.(*fakeIntegrations)

	if _, err := run(t, s, "integrations", "connect", "--org", "org-1", "--user", "u-1",
		"--provider", "outlook", "--email", "ap@acme.test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := model.ConnectIntegrationInput{Provider: model.ProviderOutlook, EmailAddress: "ap@acme.test"}
	if ints.connected == nil || *ints.connected != want {
		t.Errorf("expected %+v, got %+v", want, ints.connected)
	}
}

func TestIntegrationsConnect_RejectsUnknownProvider(t *testing.T) {
	s := newFakeStores()
	ints := s.integrations.(*fakeIntegrations)

	_, err := run(t, s, "integrations", "connect", "--org", "org-1", "--user", "u-1",
		"--provider", "yahoo", "--email", "ap@acme.test")
	if !errors.Is(err, model.ErrInvalidProvider) {
		t.Fatalf("expected ErrInvalidProvider, got %v", err)
	}
	if ints.connected != nil {
		t.Error("Connect should not be called")
	}
}

func TestIntegrationsUpdateAndDisconnect(t *testing.T) {
	s := newFakeStores()
	ints := s.integrations.(*fakeIntegrations)

	if _, err := run(t, s, "integrations", "update", "int-1", "--org", "org-1", "--active=false"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ints.patch.Provider != nil || ints.patch.IsActive == nil || *ints.patch.IsActive {
		t.Errorf("expected only is_active=false, got %+v", ints.patch)
	}

	if _, err := run(t, s, "integrations", "disconnect", "int-1", "--org", "org-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ints.disconn != "int-1" {
		t.Errorf("expected int-1 disconnected, got %q", ints.disconn)
	}
}

func TestListRules_MapsFlagsToQuery(t *testing.T) {
	s := newFakeStores()
	rules := s.rules.(*fakeRules)

	out, err := run(t, s, "list", "rules", "--org-filter", "org-2", "--search", "invoice",
		"--active=false", "--sort", "name", "--desc", "--page", "3", "--limit", "10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	q := rules.query
	if q.OrgID != "org-2" || q.Search != "invoice" || q.SortBy != "name" || !q.SortDesc || q.Page != 3 || q.Limit != 10 {
		t.Errorf("unexpected query %+v", q)
	}
	if q.IsActive == nil || *q.IsActive {
		t.Errorf("expected IsActive=false, got %v", q.IsActive)
	}

	var page model.CrossOrgPage[model.RuleWithOrg]
	if err := json.Unmarshal([]byte(out), &page); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if page.Total != 1 || page.Items[0].Organization.Name != "Acme" {
		t.Errorf("unexpected page %+v", page)
	}
}

func TestListCategories_DefaultsLeaveActiveUnset(t *testing.T) {
	s := newFakeStores()
	cats := s.categories.(*fakeCategories)

	if _, err := run(t, s, "list", "categories", "--include-inactive"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cats.query.IsActive != nil || !cats.query.IncludeInactive {
		t.Errorf("unexpected query %+v", cats.query)
	}
}

func TestStats(t *testing.T) {
	out, err := run(t, newFakeStores(), "stats")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got map[string]model.CrossOrgStats
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got["categories"].TotalCount != 3 || got["rules"].ActiveCount != 4 || got["integrations"].TotalCount != 1 {
		t.Errorf("unexpected stats %+v", got)
	}
}

func TestCleanup_RetentionOverride(t *testing.T) {
	s := newFakeStores()
	n := s.notifications.(*fakeNotifications)
	n.purgedCount = 12

	before := time.Now()
	out, err := run(t, s, "cleanup", "--retention-days", "7")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if age := before.Sub(n.cutoff); age < 7*24*time.Hour-time.Minute || age > 7*24*time.Hour+time.Minute {
		t.Errorf("expected a 7 day cutoff, got %v", age)
	}
	if !strings.Contains(out, `"deleted": 12`) {
		t.Errorf("unexpected output %s", out)
	}
}

func TestCleanup_UsesConfiguredRetention(t *testing.T) {
	s := newFakeStores()
	n := s.notifications.(*fakeNotifications)

	before := time.Now()
	if _, err := run(t, s, "cleanup"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if age := before.Sub(n.cutoff); age < 30*24*time.Hour-time.Minute {
		t.Errorf("expected the configured 30 day cutoff, got %v", age)
	}
}
