package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// =============================================================================
// In-memory Store
// =============================================================================

type counterKey struct {
	userID uuid.UUID
	month  string
}

// memStore is an in-memory repository.Store. It mirrors the SQL semantics
// the services depend on: unique names and emails, ON CONFLICT DO NOTHING
// for counters, and the conditional increment.
type memStore struct {
	// txMu serializes transactions, standing in for the user row lock.
	txMu sync.Mutex

	mu       sync.Mutex
	users    map[uuid.UUID]repository.User
	plans    map[uuid.UUID]repository.Plan
	subs     map[uuid.UUID]repository.UserSubscription
	counters map[counterKey]repository.UsageCounter

	// errs makes the named method fail with the given error.
	errs map[string]error
	// calls counts invocations per method name.
	calls map[string]int
	// beforeCreateCounter runs before CreateUsageCounter inserts, outside
	// the lock, to simulate a concurrent writer.
	beforeCreateCounter func()
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[uuid.UUID]repository.User),
		plans:    make(map[uuid.UUID]repository.Plan),
		subs:     make(map[uuid.UUID]repository.UserSubscription),
		counters: make(map[counterKey]repository.UsageCounter),
		errs:     make(map[string]error),
		calls:    make(map[string]int),
	}
}

var _ repository.Store = (*memStore)(nil)

// enter locks the store and records the call. Callers must unlock.
func (s *memStore) enter(name string) error {
	s.mu.Lock()
	s.calls[name]++
	return s.errs[name]
}

func (s *memStore) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func (s *memStore) failOn(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[name] = err
}

func (s *memStore) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	users := cloneMap(s.users)
	plans := cloneMap(s.plans)
	subs := cloneMap(s.subs)
	counters := cloneMap(s.counters)
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.users, s.plans, s.subs, s.counters = users, plans, subs, counters
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func uniqueViolation() error {
	return &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
}

// --- plans ---

func (s *memStore) CreatePlan(ctx context.Context, arg repository.CreatePlanParams) (repository.Plan, error) {
	defer s.mu.Unlock()
	if err := s.enter("CreatePlan"); err != nil {
		return repository.Plan{}, err
	}
	for _, p := range s.plans {
		if p.Name == arg.Name {
			return repository.Plan{}, uniqueViolation()
		}
	}
	p := repository.Plan{
		ID:                 uuid.New(),
		Name:               arg.Name,
		Description:        arg.Description,
		PriceCents:         arg.PriceCents,
		Currency:           arg.Currency,
		DurationDays:       arg.DurationDays,
		MaxChatsPerMonth:   arg.MaxChatsPerMonth,
		MaxDocuments:       arg.MaxDocuments,
		MaxHrDocuments:     arg.MaxHrDocuments,
		MaxVideoUploads:    arg.MaxVideoUploads,
		MaxPromptDocuments: arg.MaxPromptDocuments,
		MaxAiImages:        arg.MaxAiImages,
		Features:           arg.Features,
		IsActive:           true,
		CreatedAt:          time.Now(),
	}
	s.plans[p.ID] = p
	return p, nil
}

func (s *memStore) GetPlanByID(ctx context.Context, id uuid.UUID) (repository.Plan, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetPlanByID"); err != nil {
		return repository.Plan{}, err
	}
	p, ok := s.plans[id]
	if !ok {
		return repository.Plan{}, sql.ErrNoRows
	}
	return p, nil
}

func (s *memStore) GetPlanByName(ctx context.Context, name string) (repository.Plan, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetPlanByName"); err != nil {
		return repository.Plan{}, err
	}
	for _, p := range s.plans {
		if p.Name == name {
			return p, nil
		}
	}
	return repository.Plan{}, sql.ErrNoRows
}

func (s *memStore) ListActivePlans(ctx context.Context) ([]repository.Plan, error) {
	defer s.mu.Unlock()
	if err := s.enter("ListActivePlans"); err != nil {
		return nil, err
	}
	return s.sortedPlans(true), nil
}

func (s *memStore) ListPlans(ctx context.Context) ([]repository.Plan, error) {
	defer s.mu.Unlock()
	if err := s.enter("ListPlans"); err != nil {
		return nil, err
	}
	return s.sortedPlans(false), nil
}

func (s *memStore) sortedPlans(activeOnly bool) []repository.Plan {
	out := []repository.Plan{}
	for _, p := range s.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriceCents != out[j].PriceCents {
			return out[i].PriceCents < out[j].PriceCents
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// --- users ---

func (s *memStore) CreateUser(ctx context.Context, arg repository.CreateUserParams) (repository.User, error) {
	defer s.mu.Unlock()
	if err := s.enter("CreateUser"); err != nil {
		return repository.User{}, err
	}
	for _, u := range s.users {
		if u.Email == arg.Email || u.ApiTokenHash == arg.ApiTokenHash {
			return repository.User{}, uniqueViolation()
		}
	}
	now := time.Now()
	u := repository.User{
		ID:           uuid.New(),
		Email:        arg.Email,
		ApiTokenHash: arg.ApiTokenHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserByID"); err != nil {
		return repository.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *memStore) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (repository.User, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserByIDForUpdate"); err != nil {
		return repository.User{}, err
	}
	u, ok := s.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *memStore) GetUserByTokenHash(ctx context.Context, hash string) (repository.User, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUserByTokenHash"); err != nil {
		return repository.User{}, err
	}
	for _, u := range s.users {
		if u.ApiTokenHash == hash {
			return u, nil
		}
	}
	return repository.User{}, sql.ErrNoRows
}

func (s *memStore) UpdateUserSubscriptionState(ctx context.Context, arg repository.UpdateUserSubscriptionStateParams) error {
	defer s.mu.Unlock()
	if err := s.enter("UpdateUserSubscriptionState"); err != nil {
		return err
	}
	u, ok := s.users[arg.ID]
	if !ok {
		return nil
	}
	u.IsSubscribed = arg.IsSubscribed
	u.SubscriptionEndDate = arg.SubscriptionEndDate
	u.CurrentSubscriptionID = arg.CurrentSubscriptionID
	u.UpdatedAt = time.Now()
	s.users[arg.ID] = u
	return nil
}

// --- subscriptions ---

func (s *memStore) CreateSubscription(ctx context.Context, arg repository.CreateSubscriptionParams) (repository.UserSubscription, error) {
	defer s.mu.Unlock()
	if err := s.enter("CreateSubscription"); err != nil {
		return repository.UserSubscription{}, err
	}
	sub := repository.UserSubscription{
		ID:            uuid.New(),
		UserID:        arg.UserID,
		PlanID:        arg.PlanID,
		StartDate:     arg.StartDate,
		EndDate:       arg.EndDate,
		Status:        arg.Status,
		PaymentStatus: arg.PaymentStatus,
		CreatedAt:     time.Now(),
	}
	s.subs[sub.ID] = sub
	return sub, nil
}

func (s *memStore) GetSubscriptionByID(ctx context.Context, id uuid.UUID) (repository.UserSubscription, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetSubscriptionByID"); err != nil {
		return repository.UserSubscription{}, err
	}
	sub, ok := s.subs[id]
	if !ok {
		return repository.UserSubscription{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *memStore) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]repository.UserSubscription, error) {
	defer s.mu.Unlock()
	if err := s.enter("ListSubscriptionsByUser"); err != nil {
		return nil, err
	}
	out := []repository.UserSubscription{}
	for _, sub := range s.subs {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.After(out[j].StartDate) })
	return out, nil
}

func (s *memStore) ActivateSubscription(ctx context.Context, arg repository.ActivateSubscriptionParams) (repository.UserSubscription, error) {
	defer s.mu.Unlock()
	if err := s.enter("ActivateSubscription"); err != nil {
		return repository.UserSubscription{}, err
	}
	sub, ok := s.subs[arg.ID]
	if !ok {
		return repository.UserSubscription{}, sql.ErrNoRows
	}
	sub.Status = string(domain.SubscriptionStatusActive)
	sub.PaymentStatus = string(domain.PaymentStatusCompleted)
	sub.StartDate = arg.StartDate
	sub.EndDate = arg.EndDate
	s.subs[arg.ID] = sub
	return sub, nil
}

func (s *memStore) UpdateSubscriptionStatus(ctx context.Context, arg repository.UpdateSubscriptionStatusParams) (repository.UserSubscription, error) {
	defer s.mu.Unlock()
	if err := s.enter("UpdateSubscriptionStatus"); err != nil {
		return repository.UserSubscription{}, err
	}
	sub, ok := s.subs[arg.ID]
	if !ok {
		return repository.UserSubscription{}, sql.ErrNoRows
	}
	sub.Status = arg.Status
	sub.PaymentStatus = arg.PaymentStatus
	s.subs[arg.ID] = sub
	return sub, nil
}

func (s *memStore) SetSubscriptionCheckoutSession(ctx context.Context, arg repository.SetSubscriptionCheckoutSessionParams) error {
	defer s.mu.Unlock()
	if err := s.enter("SetSubscriptionCheckoutSession"); err != nil {
		return err
	}
	sub, ok := s.subs[arg.ID]
	if !ok {
		return nil
	}
	sub.CheckoutSessionID = arg.CheckoutSessionID
	s.subs[arg.ID] = sub
	return nil
}

// --- usage counters ---

func (s *memStore) GetUsageCounter(ctx context.Context, arg repository.GetUsageCounterParams) (repository.UsageCounter, error) {
	defer s.mu.Unlock()
	if err := s.enter("GetUsageCounter"); err != nil {
		return repository.UsageCounter{}, err
	}
	c, ok := s.counters[counterKey{arg.UserID, arg.MonthYear}]
	if !ok {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *memStore) CreateUsageCounter(ctx context.Context, arg repository.CreateUsageCounterParams) (repository.UsageCounter, error) {
	if hook := s.beforeCreateCounter; hook != nil {
		hook()
	}
	defer s.mu.Unlock()
	if err := s.enter("CreateUsageCounter"); err != nil {
		return repository.UsageCounter{}, err
	}
	key := counterKey{arg.UserID, arg.MonthYear}
	if _, ok := s.counters[key]; ok {
		// ON CONFLICT DO NOTHING RETURNING yields no row.
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	s.counters[key] = newCounterRow(arg.UserID, arg.MonthYear)
	return s.counters[key], nil
}

func newCounterRow(userID uuid.UUID, month string) repository.UsageCounter {
	now := time.Now()
	return repository.UsageCounter{
		ID:        uuid.New(),
		UserID:    userID,
		MonthYear: month,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// putCounter inserts a counter row directly, bypassing call accounting.
func (s *memStore) putCounter(userID uuid.UUID, month string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := counterKey{userID, month}
	if _, ok := s.counters[key]; !ok {
		s.counters[key] = newCounterRow(userID, month)
	}
}

func (s *memStore) IncrementUsage(ctx context.Context, arg repository.IncrementUsageParams) (repository.UsageCounter, error) {
	defer s.mu.Unlock()
	if err := s.enter("IncrementUsage"); err != nil {
		return repository.UsageCounter{}, err
	}
	key := counterKey{arg.UserID, arg.MonthYear}
	c, ok := s.counters[key]
	if !ok {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	if col := counterColumn(&c, arg.Resource); col != nil {
		*col++
	}
	s.counters[key] = c
	return c, nil
}

func (s *memStore) IncrementUsageIfBelow(ctx context.Context, arg repository.IncrementUsageIfBelowParams) (repository.UsageCounter, error) {
	defer s.mu.Unlock()
	if err := s.enter("IncrementUsageIfBelow"); err != nil {
		return repository.UsageCounter{}, err
	}
	key := counterKey{arg.UserID, arg.MonthYear}
	c, ok := s.counters[key]
	if !ok {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	col := counterColumn(&c, arg.Resource)
	if col == nil || *col >= arg.Limit {
		return repository.UsageCounter{}, sql.ErrNoRows
	}
	*col++
	s.counters[key] = c
	return c, nil
}

// counterValue reads a counter without call accounting.
func (s *memStore) counterValue(userID uuid.UUID, month string, r domain.Resource) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[counterKey{userID, month}]
	if !ok {
		return -1
	}
	return *counterColumn(&c, string(r))
}

func (s *memStore) counterRows() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}

func counterColumn(c *repository.UsageCounter, resource string) *int32 {
	switch domain.Resource(resource) {
	case domain.ResourceChat:
		return &c.ChatsUsed
	case domain.ResourceDocument:
		return &c.DocumentsUploaded
	case domain.ResourceHRDocument:
		return &c.HrDocumentsUploaded
	case domain.ResourceVideo:
		return &c.VideoUploads
	case domain.ResourcePromptDocument:
		return &c.PromptDocumentsUploaded
	case domain.ResourceAIImage:
		return &c.AiImagesGenerated
	}
	return nil
}

// =============================================================================
// Fixtures
// =============================================================================

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock shared by the services under test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{t: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (s *memStore) addUser(email string) uuid.UUID {
	u, err := s.CreateUser(context.Background(), repository.CreateUserParams{
		Email:        email,
		ApiTokenHash: uuid.NewString(),
	})
	if err != nil {
		panic(err)
	}
	return u.ID
}

func (s *memStore) addPlan(name string, limits domain.LimitSet, durationDays int32) uuid.UUID {
	features, _ := json.Marshal([]string{name + " features"})
	p, err := s.CreatePlan(context.Background(), repository.CreatePlanParams{
		Name:               name,
		PriceCents:         999,
		Currency:           "usd",
		DurationDays:       durationDays,
		MaxChatsPerMonth:   int32(limits.ChatsPerMonth),
		MaxDocuments:       int32(limits.Documents),
		MaxHrDocuments:     int32(limits.HRDocuments),
		MaxVideoUploads:    int32(limits.VideoUploads),
		MaxPromptDocuments: int32(limits.PromptDocuments),
		MaxAiImages:        int32(limits.AIImages),
		Features:           features,
	})
	if err != nil {
		panic(err)
	}
	return p.ID
}

func (s *memStore) setPlanActive(id uuid.UUID, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.plans[id]
	p.IsActive = active
	s.plans[id] = p
}

// linkSubscription writes an active, paid subscription directly and points
// the user at it.
func (s *memStore) linkSubscription(userID, planID uuid.UUID, start, end time.Time) uuid.UUID {
	ctx := context.Background()
	sub, err := s.CreateSubscription(ctx, repository.CreateSubscriptionParams{
		UserID:        userID,
		PlanID:        planID,
		StartDate:     start,
		EndDate:       end,
		Status:        string(domain.SubscriptionStatusActive),
		PaymentStatus: string(domain.PaymentStatusCompleted),
	})
	if err != nil {
		panic(err)
	}
	if err := s.UpdateUserSubscriptionState(ctx, linkParams(userID, sub.ID, end)); err != nil {
		panic(err)
	}
	return sub.ID
}

// addPending writes an unlinked subscription awaiting payment.
func (s *memStore) addPending(userID, planID uuid.UUID, start time.Time) uuid.UUID {
	sub, err := s.CreateSubscription(context.Background(), repository.CreateSubscriptionParams{
		UserID:        userID,
		PlanID:        planID,
		StartDate:     start,
		EndDate:       start.Add(30 * 24 * time.Hour),
		Status:        string(domain.SubscriptionStatusActive),
		PaymentStatus: string(domain.PaymentStatusPending),
	})
	if err != nil {
		panic(err)
	}
	return sub.ID
}

func (s *memStore) user(id uuid.UUID) repository.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *memStore) subscription(id uuid.UUID) repository.UserSubscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subs[id]
}
