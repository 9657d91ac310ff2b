package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/redmonkez12/blog-api/internal/logging"
	"github.com/redmonkez12/blog-api/internal/user"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

// fastArgon2 keeps hashing cheap in tests
var fastArgon2 = Argon2Params{Time: 1, Memory: 64, Threads: 1, KeyLen: 16, SaltLen: 8}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeUsers is an in-memory UserStore
type fakeUsers struct {
	mu        sync.Mutex
	users     map[uuid.UUID]*user.User
	createErr error
	getErr    error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[uuid.UUID]*user.User{}}
}

func (f *fakeUsers) Create(_ context.Context, nu user.NewUser) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.createErr != nil {
		return nil, f.createErr
	}

	now := time.Now()
	u := &user.User{
		ID:           uuid.New(),
		Name:         nu.Name,
		Username:     strings.ToLower(nu.Username),
		Email:        strings.ToLower(nu.Email),
		Phone:        nu.Phone,
		PasswordHash: nu.PasswordHash,
		Avatar:       nu.Avatar,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	f.users[u.ID] = u
	return copyUser(u), nil
}

func (f *fakeUsers) find(match func(*user.User) bool) (*user.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.getErr != nil {
		return nil, f.getErr
	}
	for _, u := range f.users {
		if match(u) {
			return copyUser(u), nil
		}
	}
	return nil, user.ErrNotFound
}

func (f *fakeUsers) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	return f.find(func(u *user.User) bool { return u.ID == id })
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*user.User, error) {
	return f.find(func(u *user.User) bool { return strings.EqualFold(u.Email, email) })
}

// GetByEmailOrUsername prefers the email owner, as the repository does
func (f *fakeUsers) GetByEmailOrUsername(ctx context.Context, identifier string) (*user.User, error) {
	u, err := f.GetByEmail(ctx, identifier)
	if !errors.Is(err, user.ErrNotFound) {
		return u, err
	}
	return f.find(func(u *user.User) bool { return strings.EqualFold(u.Username, identifier) })
}

// insert stores u as-is, bypassing registration rules
func (f *fakeUsers) insert(u user.User) *user.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u.ID = uuid.New()
	f.users[u.ID] = &u
	return copyUser(&u)
}

func (f *fakeUsers) FindConflicts(_ context.Context, username, email, phone string, excludeID uuid.UUID) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var fields []string
	seen := map[string]bool{}
	for _, u := range f.users {
		if u.ID == excludeID {
			continue
		}
		if username != "" && strings.EqualFold(u.Username, username) {
			seen["username"] = true
		}
		if email != "" && strings.EqualFold(u.Email, email) {
			seen["email"] = true
		}
		if phone != "" && u.Phone == phone {
			seen["phone"] = true
		}
	}
	for _, name := range []string{"username", "email", "phone"} {
		if seen[name] {
			fields = append(fields, name)
		}
	}
	return fields, nil
}

func (f *fakeUsers) UpdatePassword(_ context.Context, userID uuid.UUID, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.PasswordHash = passwordHash
	return nil
}

func (f *fakeUsers) MarkEmailAsVerified(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	u, ok := f.users[userID]
	if !ok {
		return user.ErrNotFound
	}
	u.IsVerified = true
	return nil
}

func (f *fakeUsers) remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.users, id)
}

func copyUser(u *user.User) *user.User {
	c := *u
	return &c
}

// fakeMailer records the last token mailed to each address
type fakeMailer struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
	err          error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{verification: map[string]string{}, reset: map[string]string{}}
}

func (m *fakeMailer) SendVerificationEmail(_ context.Context, toEmail, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.verification[toEmail] = token
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(_ context.Context, toEmail, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.reset[toEmail] = token
	return nil
}

func (m *fakeMailer) verificationToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verification[email]
}

func (m *fakeMailer) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset[email]
}

// recordingMetrics counts events by label
type recordingMetrics struct {
	mu       sync.Mutex
	ops      map[string]int
	issued   map[string]int
	consumed map[string]int
	failed   map[string]int
	pruned   int64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		ops:      map[string]int{},
		issued:   map[string]int{},
		consumed: map[string]int{},
		failed:   map[string]int{},
	}
}

func (m *recordingMetrics) Operation(op, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op+":"+outcome]++
}

func (m *recordingMetrics) TokenIssued(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued[kind]++
}

func (m *recordingMetrics) TokenConsumed(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumed[kind]++
}

func (m *recordingMetrics) NotificationFailed(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed[kind]++
}

func (m *recordingMetrics) TokensPruned(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruned += n
}

func (m *recordingMetrics) count(table map[string]int, key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return table[key]
}

type testEnv struct {
	svc     *Service
	users   *fakeUsers
	mailer  *fakeMailer
	metrics *recordingMetrics
	clock   *fakeClock
	redis   *miniredis.Miniredis
	tokens  *RedisRepository
	paseto  *PasetoService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	paseto, err := NewPasetoService(testKey)
	require.NoError(t, err)

	env := &testEnv{
		users:   newFakeUsers(),
		mailer:  newFakeMailer(),
		metrics: newRecordingMetrics(),
		clock:   &fakeClock{now: time.Now()},
		redis:   mr,
		tokens:  NewRedisRepository(client),
		paseto:  paseto,
	}

	cfg := DefaultConfig()
	cfg.NotificationTimeout = time.Second

	env.svc = NewService(
		env.users,
		env.tokens,
		NewArgon2Hasher(fastArgon2),
		paseto,
		env.mailer,
		logging.NewNopLogger(),
		cfg,
		WithClock(env.clock.Now),
		WithMetrics(env.metrics),
	)
	return env
}

func validRegistration() RegisterInput {
	return RegisterInput{
		Name:     "Alice Example",
		Username: "Alice",
		Email:    "Alice@Example.com",
		Phone:    "+15550100",
		Password: "correct-horse",
	}
}

// register creates a user and waits for the verification mail
func (e *testEnv) register(t *testing.T, in RegisterInput) *Session {
	t.Helper()

	session, err := e.svc.Register(context.Background(), in)
	require.NoError(t, err)
	e.svc.Wait()
	return session
}

var errBoom = errors.New("boom")

func ptr(s string) *string { return &s }
