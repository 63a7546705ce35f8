package billing_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billing/pkg/billing"
)

func pricedCatalog(t *testing.T) *billing.Catalog {
	t.Helper()
	c, err := billing.DefaultCatalog().WithPriceRefs(map[billing.Plan]string{
		billing.PlanStarter: "pri_starter",
		billing.PlanGrowth:  "pri_growth",
	})
	require.NoError(t, err)
	return c
}

func newSessions(t *testing.T, store billing.Store, provider *mockProvider) *billing.Sessions {
	t.Helper()
	catalog := pricedCatalog(t)
	guard := billing.NewPlanChangeGuard(billing.NewLimitsValidator(store, catalog))
	resolver := billing.NewCustomerResolver(store, provider, discardLogger())
	return billing.NewSessions(store, catalog, guard, resolver, provider,
		billing.WithCheckoutEnvironment("sandbox"),
		billing.WithSessionsLogger(discardLogger()),
	)
}

func TestSessions_BuildCheckout(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	provider := &mockProvider{}
	provider.On("CreateCustomer", mock.Anything, "u1@example.com", map[string]string{"userId": "u1"}).
		Return("ctm_1", nil).Once()
	s := newSessions(t, store, provider)

	desc, err := s.BuildCheckout(context.Background(), billing.CheckoutRequest{
		UserID:     "u1",
		Email:      "u1@example.com",
		Plan:       billing.PlanGrowth,
		SuccessURL: "https://app.example.com/billing/success",
	})
	require.NoError(t, err)
	assert.Equal(t, &billing.CheckoutSessionDescriptor{
		PriceRef:    "pri_growth",
		CustomerID:  "ctm_1",
		Metadata:    billing.CheckoutMetadata{UserID: "u1", Plan: billing.PlanGrowth},
		SuccessURL:  "https://app.example.com/billing/success",
		Environment: "sandbox",
	}, desc)

	got, err := store.GetByUserID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", got.ProviderCustomerID)
	assert.Equal(t, billing.PlanFree, got.Plan)

	// The stored mapping is reused.
	desc, err = s.BuildCheckout(context.Background(), billing.CheckoutRequest{
		UserID: "u1", Email: "u1@example.com", Plan: billing.PlanStarter, SuccessURL: "http://localhost:3000/done",
	})
	require.NoError(t, err)
	assert.Equal(t, "ctm_1", desc.CustomerID)
	assert.Equal(t, "pri_starter", desc.PriceRef)
	provider.AssertExpectations(t)
}

func TestSessions_BuildCheckoutRejectsBeforeRemoteCalls(t *testing.T) {
	t.Parallel()

	valid := billing.CheckoutRequest{UserID: "u1", Email: "u1@example.com", Plan: billing.PlanStarter, SuccessURL: "https://example.com/ok"}

	tests := []struct {
		name    string
		mutate  func(*billing.CheckoutRequest)
		classes []error
	}{
		{name: "missing user", mutate: func(r *billing.CheckoutRequest) { r.UserID = "" }, classes: []error{billing.ErrValidation, billing.ErrMissingUserID}},
		{name: "unknown plan", mutate: func(r *billing.CheckoutRequest) { r.Plan = "enterprise" }, classes: []error{billing.ErrValidation, billing.ErrInvalidPlan}},
		{name: "free plan", mutate: func(r *billing.CheckoutRequest) { r.Plan = billing.PlanFree }, classes: []error{billing.ErrValidation, billing.ErrInvalidPlan}},
		{name: "missing success url", mutate: func(r *billing.CheckoutRequest) { r.SuccessURL = "" }, classes: []error{billing.ErrValidation, billing.ErrMissingSuccessURL}},
		{name: "relative success url", mutate: func(r *billing.CheckoutRequest) { r.SuccessURL = "/billing/done" }, classes: []error{billing.ErrValidation, billing.ErrInvalidSuccessURL}},
		{name: "non http success url", mutate: func(r *billing.CheckoutRequest) { r.SuccessURL = "javascript:alert(1)" }, classes: []error{billing.ErrValidation, billing.ErrInvalidSuccessURL}},
		{name: "plan without price", mutate: func(r *billing.CheckoutRequest) { r.Plan = billing.PlanBusiness }, classes: []error{billing.ErrConfiguration, billing.ErrMissingPriceRef}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			provider := &mockProvider{}
			s := newSessions(t, billing.NewMemoryStore(), provider)

			req := valid
			tt.mutate(&req)
			desc, err := s.BuildCheckout(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, desc)
			for _, class := range tt.classes {
				assert.ErrorIs(t, err, class)
			}
			provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSessions_DowngradeGuard(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	sub := activeRow("u1", "sub_1", billing.PlanGrowth, date(2024, 1, 1))
	sub.ProviderCustomerID = ""
	sub.Usage = billing.Usage{ChatbotsCount: 5, MessagesCount: 100}
	seed(t, store, sub)

	provider := &mockProvider{}
	s := newSessions(t, store, provider)

	_, err := s.BuildCheckout(context.Background(), billing.CheckoutRequest{
		UserID: "u1", Email: "u1@example.com", Plan: billing.PlanStarter, SuccessURL: "https://example.com/ok",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrValidation)

	var pce *billing.PlanChangeError
	require.ErrorAs(t, err, &pce)
	assert.False(t, pce.Validation.Valid)
	assert.Equal(t, billing.ReasonChatbotLimitExceeded, pce.Validation.Reason)
	assert.Contains(t, pce.Validation.Message, "5 chatbots")

	provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "FindCustomerByEmail", mock.Anything, mock.Anything)
}

func TestLimitsValidator(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	heavy := billing.NewFreeSubscription("heavy", baseTime)
	heavy.Usage = billing.Usage{ChatbotsCount: 2, MessagesCount: 5000}
	seed(t, store, heavy)
	big := billing.NewFreeSubscription("big", baseTime)
	big.Usage = billing.Usage{ChatbotsCount: 40, MessagesCount: 49000}
	seed(t, store, big)

	v := billing.NewLimitsValidator(store, billing.DefaultCatalog())

	tests := []struct {
		name   string
		user   string
		plan   billing.Plan
		valid  bool
		reason string
	}{
		{name: "no row", user: "nobody", plan: billing.PlanStarter, valid: true},
		{name: "messages over starter", user: "heavy", plan: billing.PlanStarter, reason: billing.ReasonMessageLimitExceeded},
		{name: "fits growth", user: "heavy", plan: billing.PlanGrowth, valid: true},
		{name: "unlimited chatbots", user: "big", plan: billing.PlanBusiness, valid: true},
		{name: "chatbots over growth", user: "big", plan: billing.PlanGrowth, reason: billing.ReasonChatbotLimitExceeded},
		{name: "unknown plan", user: "heavy", plan: "platinum", reason: billing.ReasonUnknownPlan},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := v.ValidatePlanChange(context.Background(), tt.user, tt.plan)
			require.NoError(t, err)
			assert.Equal(t, tt.valid, got.Valid)
			assert.Equal(t, tt.reason, got.Reason)
		})
	}
}

func TestCustomerResolver(t *testing.T) {
	t.Parallel()

	t.Run("conflict falls back to lookup", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, "u1@example.com", mock.Anything).
			Return("", errors.Join(billing.ErrCustomerConflict, errors.New("409"))).Once()
		provider.On("FindCustomerByEmail", mock.Anything, "u1@example.com").Return("ctm_existing", nil).Once()

		r := billing.NewCustomerResolver(store, provider, discardLogger())
		id, err := r.Resolve(context.Background(), "u1", "u1@example.com")
		require.NoError(t, err)
		assert.Equal(t, "ctm_existing", id)

		got, err := store.GetByUserID(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "ctm_existing", got.ProviderCustomerID)
		provider.AssertExpectations(t)
	})

	t.Run("conflict without match", func(t *testing.T) {
		t.Parallel()
		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("", billing.ErrCustomerConflict).Once()
		provider.On("FindCustomerByEmail", mock.Anything, mock.Anything).Return("", nil).Once()

		r := billing.NewCustomerResolver(billing.NewMemoryStore(), provider, discardLogger())
		_, err := r.Resolve(context.Background(), "u1", "u1@example.com")
		assert.ErrorIs(t, err, billing.ErrCustomerUnresolved)
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).
			Return("", &billing.ProviderError{Status: 500, Err: errors.New("boom")}).Once()

		store := billing.NewMemoryStore()
		r := billing.NewCustomerResolver(store, provider, discardLogger())
		_, err := r.Resolve(context.Background(), "u1", "u1@example.com")
		assert.ErrorIs(t, err, billing.ErrCustomerUnresolved)
		assert.ErrorIs(t, err, billing.ErrExternalService)
		_, err = store.GetByUserID(context.Background(), "u1")
		assert.ErrorIs(t, err, billing.ErrNotFound)
	})

	t.Run("keeps existing row", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		row := activeRow("u1", "sub_1", billing.PlanGrowth, date(2024, 1, 1))
		row.ProviderCustomerID = ""
		seed(t, store, row)
		provider := &mockProvider{}
		provider.On("CreateCustomer", mock.Anything, mock.Anything, mock.Anything).Return("ctm_new", nil).Once()

		r := billing.NewCustomerResolver(store, provider, discardLogger())
		_, err := r.Resolve(context.Background(), "u1", "u1@example.com")
		require.NoError(t, err)

		got, _ := store.GetByUserID(context.Background(), "u1")
		assert.Equal(t, billing.PlanGrowth, got.Plan)
		assert.Equal(t, "sub_1", got.ProviderSubscriptionID)
		assert.Equal(t, row.Usage, got.Usage)
		assert.Equal(t, "ctm_new", got.ProviderCustomerID)
	})

	t.Run("missing email", func(t *testing.T) {
		t.Parallel()
		provider := &mockProvider{}
		r := billing.NewCustomerResolver(billing.NewMemoryStore(), provider, discardLogger())
		_, err := r.Resolve(context.Background(), "u1", "")
		assert.ErrorIs(t, err, billing.ErrMissingEmail)
		provider.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestSessions_BuildPortal(t *testing.T) {
	t.Parallel()

	t.Run("active subscription", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		seed(t, store, activeRow("u1", "sub_1", billing.PlanGrowth, date(2024, 1, 1)))
		provider := &mockProvider{}
		provider.On("CreatePortalSession", mock.Anything, "ctm_u1", []string{"sub_1"}).
			Return("https://portal.example.com/s/abc", nil).Once()

		url, err := newSessions(t, store, provider).BuildPortal(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "https://portal.example.com/s/abc", url)
		provider.AssertExpectations(t)
	})

	t.Run("no subscription", func(t *testing.T) {
		t.Parallel()
		store := billing.NewMemoryStore()
		seed(t, store, billing.NewFreeSubscription("u2", baseTime))
		provider := &mockProvider{}
		s := newSessions(t, store, provider)

		for _, user := range []string{"u2", "ghost"} {
			_, err := s.BuildPortal(context.Background(), user)
			assert.ErrorIs(t, err, billing.ErrNoActiveSubscription)
		}
		provider.AssertNotCalled(t, "CreatePortalSession", mock.Anything, mock.Anything, mock.Anything)
	})

	tests := []struct {
		name   string
		status int
		want   error
	}{
		{name: "customer gone", status: 404, want: billing.ErrPortalCustomerNotFound},
		{name: "unauthorized", status: 401, want: billing.ErrPortalAuthentication},
		{name: "forbidden", status: 403, want: billing.ErrPortalAuthentication},
		{name: "server error", status: 502, want: billing.ErrPortalSession},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			store := billing.NewMemoryStore()
			row := activeRow("u1", "", billing.PlanFree, date(2024, 1, 1))
			row.BillingPeriod = nil
			seed(t, store, row)
			provider := &mockProvider{}
			provider.On("CreatePortalSession", mock.Anything, "ctm_u1", []string(nil)).
				Return("", &billing.ProviderError{Status: tt.status, Err: errors.New("provider said no")}).Once()

			_, err := newSessions(t, store, provider).BuildPortal(context.Background(), "u1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, billing.ErrExternalService)
		})
	}
}

func TestService_Subscriptions(t *testing.T) {
	t.Parallel()

	store := billing.NewMemoryStore()
	d := newDispatcher(store)
	p := billing.NewProcessor(billing.NewVerifier(testSecret, 0), billing.NewMemoryLedger(), d)
	svc := billing.NewService(p, newSessions(t, store, &mockProvider{}), store)
	ctx := context.Background()

	got, err := svc.GetSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanFree, got.Plan)
	_, err = store.GetByUserID(ctx, "u1")
	assert.ErrorIs(t, err, billing.ErrNotFound, "reading must not create a row")

	created, err := svc.EnsureSubscription(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, billing.PlanFree, created.Plan)
	assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Minute)

	row := activeRow("u2", "sub_2", billing.PlanStarter, date(2024, 1, 1))
	seed(t, store, row)
	kept, err := svc.EnsureSubscription(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, row, kept)

	_, err = svc.GetSubscription(ctx, "")
	assert.ErrorIs(t, err, billing.ErrMissingUserID)
}
