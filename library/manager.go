package library

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"school-library/session"
)

// Option configures a LibraryManager.
type Option func(*settings)

type settings struct {
	logger   *slog.Logger
	now      func() time.Time
	hasher   PasswordHasher
	sessions session.Store
}

// WithLogger sets the structured logger used by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithClock replaces time.Now as the source of loan dates.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithHasher replaces the bcrypt password hasher.
func WithHasher(h PasswordHasher) Option {
	return func(s *settings) { s.hasher = h }
}

// WithSessionStore replaces the in-memory session store.
func WithSessionStore(store session.Store) Option {
	return func(s *settings) { s.sessions = store }
}

// LibraryManager is a thin façade over the components. Every operation that
// acts on behalf of someone takes the already-resolved principal explicitly.
type LibraryManager struct {
	db         *Database
	logger     *slog.Logger
	sessions   session.Store
	catalog    *Catalog
	ledger     *Ledger
	registry   *Registry
	membership *Membership
	engine     *Engine
	gate       *Gate
}

// NewLibraryManager opens (or creates) the SQLite database at dbPath.
func NewLibraryManager(dbPath string, opts ...Option) (*LibraryManager, error) {
	s := settings{
		logger: slog.Default(),
		now:    time.Now,
		hasher: BcryptHasher{},
	}
	for _, opt := range opts {
		opt(&s)
	}
	if s.sessions == nil {
		s.sessions = session.NewMemoryStore(0)
	}

	db, err := NewDatabase(dbPath, s.logger)
	if err != nil {
		return nil, err
	}
	ledger := NewLedger(db)
	membership := NewMembership(db)
	return &LibraryManager{
		db:         db,
		logger:     s.logger,
		sessions:   s.sessions,
		catalog:    NewCatalog(db),
		ledger:     ledger,
		registry:   NewRegistry(db, s.hasher),
		membership: membership,
		engine:     NewEngine(db, s.now),
		gate:       NewGate(membership, ledger),
	}, nil
}

// Close closes the underlying database.
func (lm *LibraryManager) Close() error { return lm.db.Close() }

// ------------------ Book helpers ------------------

func (lm *LibraryManager) AddBook(ctx context.Context, b Book) error {
	return lm.catalog.AddBook(ctx, b)
}

func (lm *LibraryManager) GetBook(ctx context.Context, isbn string) (*Book, error) {
	return lm.catalog.FindByISBN(ctx, isbn)
}

func (lm *LibraryManager) ListAvailableBooks(ctx context.Context) ([]Book, error) {
	return lm.catalog.ListAvailable(ctx)
}

func (lm *LibraryManager) ListBooksByCategory(ctx context.Context, c Category) ([]Book, error) {
	return lm.catalog.ListByCategory(ctx, c)
}

func (lm *LibraryManager) SearchBooks(ctx context.Context, q string) ([]Book, error) {
	return lm.catalog.Search(ctx, q)
}

func (lm *LibraryManager) Categories(ctx context.Context) ([]Category, error) {
	return lm.catalog.Categories(ctx)
}

// ------------------ Person helpers ------------------

func (lm *LibraryManager) Register(ctx context.Context, np NewPerson, secret string) (*Person, error) {
	return lm.registry.Register(ctx, np, secret)
}

func (lm *LibraryManager) GetPerson(ctx context.Context, id string) (*Person, error) {
	return lm.registry.Lookup(ctx, id)
}

func (lm *LibraryManager) Authenticate(ctx context.Context, id, secret string) (*Person, error) {
	return lm.registry.Authenticate(ctx, id, secret)
}

func (lm *LibraryManager) Rename(ctx context.Context, p *Person, name string) (*Person, error) {
	return lm.registry.RenameTo(ctx, p.ID, name)
}

func (lm *LibraryManager) SetAge(ctx context.Context, p *Person, age int) (*Person, error) {
	return lm.registry.SetAge(ctx, p.ID, age)
}

// UpdateProfile changes name and age in one step; nil fields are kept.
func (lm *LibraryManager) UpdateProfile(ctx context.Context, p *Person, name *string, age *int) (*Person, error) {
	return lm.registry.UpdateProfile(ctx, p.ID, name, age)
}

func (lm *LibraryManager) ChangePassword(ctx context.Context, p *Person, oldSecret, newSecret string) error {
	return lm.registry.ChangePassword(ctx, p.ID, oldSecret, newSecret)
}

// ------------------ Sessions ------------------

// Login verifies the credentials and issues a session token.
func (lm *LibraryManager) Login(ctx context.Context, id, secret string) (string, *Person, error) {
	p, err := lm.registry.Authenticate(ctx, id, secret)
	if err != nil {
		return "", nil, err
	}
	token, err := lm.sessions.Create(ctx, p.ID)
	if err != nil {
		return "", nil, fault(ctx, lm.logger, "create session", err)
	}
	lm.logger.InfoContext(ctx, "login", "uid", p.ID, "role", p.Role.String())
	return token, p, nil
}

// Resolve turns a session token back into the person it was issued to.
// Unknown tokens and tokens of deleted users fail with ErrAuthFail.
func (lm *LibraryManager) Resolve(ctx context.Context, token string) (*Person, error) {
	uid, err := lm.sessions.Resolve(ctx, token)
	if errors.Is(err, session.ErrUnknownToken) {
		return nil, fmt.Errorf("%w: %w", ErrAuthFail, err)
	}
	if err != nil {
		return nil, fault(ctx, lm.logger, "resolve session", err)
	}
	p, err := lm.registry.Lookup(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		_ = lm.sessions.Revoke(ctx, token)
		return nil, ErrAuthFail
	}
	return p, err
}

func (lm *LibraryManager) Logout(ctx context.Context, token string) error {
	return fault(ctx, lm.logger, "revoke session", lm.sessions.Revoke(ctx, token))
}

// ------------------ Circulation ------------------

func (lm *LibraryManager) Borrow(ctx context.Context, p *Person, isbn string) (*Loan, error) {
	return lm.engine.Borrow(ctx, p.ID, isbn)
}

func (lm *LibraryManager) Return(ctx context.Context, p *Person, loanID int64) (*Loan, error) {
	return lm.engine.Return(ctx, p.ID, loanID)
}

func (lm *LibraryManager) MyLoans(ctx context.Context, p *Person) ([]LoanView, error) {
	return lm.ledger.OpenLoansFor(ctx, p.ID)
}

// ------------------ Classes ------------------

func (lm *LibraryManager) AddClass(ctx context.Context, c Class) error {
	return lm.membership.AddClass(ctx, c)
}

func (lm *LibraryManager) Enroll(ctx context.Context, studentID, classID string) error {
	return lm.membership.Enroll(ctx, studentID, classID)
}

func (lm *LibraryManager) ListClasses(ctx context.Context) ([]Class, error) {
	return lm.membership.ListClasses(ctx)
}

// ClassesOf returns the classes a teacher manages, or the single class a
// student belongs to.
func (lm *LibraryManager) ClassesOf(ctx context.Context, p *Person) ([]string, error) {
	if p.IsTeacher() {
		return lm.membership.ClassesForTeacher(ctx, p.ID)
	}
	id, ok, err := lm.membership.ClassForStudent(ctx, p.ID)
	if err != nil || !ok {
		return []string{}, err
	}
	return []string{id}, nil
}

func (lm *LibraryManager) ManagedClasses(ctx context.Context, p *Person) ([]Class, error) {
	return lm.gate.ManagedClasses(ctx, p)
}

func (lm *LibraryManager) UnmanagedClasses(ctx context.Context, p *Person) ([]Class, error) {
	return lm.gate.UnmanagedClasses(ctx, p)
}

func (lm *LibraryManager) Associate(ctx context.Context, p *Person, classID string) error {
	return lm.gate.Associate(ctx, p, classID)
}

func (lm *LibraryManager) Dissociate(ctx context.Context, p *Person, classID string) error {
	return lm.gate.Dissociate(ctx, p, classID)
}

func (lm *LibraryManager) ClassStudents(ctx context.Context, p *Person, classID string) ([]Person, error) {
	return lm.gate.ClassStudents(ctx, p, classID)
}

func (lm *LibraryManager) ClassLoans(ctx context.Context, p *Person, classID string) ([]ClassLoan, error) {
	return lm.gate.ClassLoans(ctx, p, classID)
}

func (lm *LibraryManager) StudentLoans(ctx context.Context, p *Person, classID, studentID string) ([]LoanView, error) {
	return lm.gate.StudentLoans(ctx, p, classID, studentID)
}

// ------------------ Utilities ------------------

// PrettyBook formats a book for lists.
func PrettyBook(b Book) string {
	return fmt.Sprintf("%-15s %-30s %-5s %-20s %3d", b.ISBN, Truncate(b.Title, 30), b.Category, Truncate(b.Authors, 20), b.Remaining)
}

// PrettyLoan formats an open loan for lists.
func PrettyLoan(l LoanView) string {
	return fmt.Sprintf("%-5d %-15s %-30s %s", l.ID, l.ISBN, Truncate(l.Title, 30), l.DueDate.Format(time.DateOnly))
}

// Truncate shortens s to at most maxLen runes, ending in "..." when cut.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
