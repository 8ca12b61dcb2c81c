// Package memory provides the in-memory store pair used by unit tests and
// local development. RunInTx snapshots state and restores it on error, so
// rollback semantics match the postgres implementation closely enough to
// exercise the all-or-nothing transition rule.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"credere/internal/domain"
	"credere/internal/store"
	"credere/pkg/sentinel"
)

type Store struct {
	mu sync.Mutex

	applications map[int64]domain.Application
	borrowers    map[int64]domain.Borrower
	awards       map[int64]domain.Award
	lenders      map[int64]domain.Lender
	messages     map[int64]domain.Message
	actions      map[int64]domain.ApplicationAction
	documents    map[int64]domain.BorrowerDocument
	statistics   map[string]domain.Statistic

	nextID int64
}

func New() *Store {
	return &Store{
		applications: map[int64]domain.Application{},
		borrowers:    map[int64]domain.Borrower{},
		awards:       map[int64]domain.Award{},
		lenders:      map[int64]domain.Lender{},
		messages:     map[int64]domain.Message{},
		actions:      map[int64]domain.ApplicationAction{},
		documents:    map[int64]domain.BorrowerDocument{},
		statistics:   map[string]domain.Statistic{},
	}
}

var (
	_ store.UnitOfWork = (*Store)(nil)
	_ store.Tx         = txView{}
)

// view is the shared base of every typed store. Base-store views acquire the
// mutex per call; the view RunInTx hands its callback is marked locked, since
// the unit of work already holds the mutex for its whole duration.
type view struct {
	s      *Store
	locked bool
}

func (v view) lock() func() {
	if v.locked {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}

func (s *Store) Applications() store.ApplicationStore { return applicationStore{view{s: s}} }
func (s *Store) Borrowers() store.BorrowerStore       { return borrowerStore{view{s: s}} }
func (s *Store) Awards() store.AwardStore             { return awardStore{view{s: s}} }
func (s *Store) Lenders() store.LenderStore           { return lenderStore{view{s: s}} }
func (s *Store) Messages() store.MessageStore         { return messageStore{view{s: s}} }
func (s *Store) Actions() store.ActionStore           { return actionStore{view{s: s}} }
func (s *Store) Documents() store.DocumentStore       { return documentStore{view{s: s}} }
func (s *Store) Statistics() store.StatisticStore     { return statisticStore{view{s: s}} }

// txView is the store set bound to one unit of work. It exists only for the
// duration of the RunInTx callback and must not escape it.
type txView struct {
	s *Store
}

func (t txView) Applications() store.ApplicationStore { return applicationStore{view{t.s, true}} }
func (t txView) Borrowers() store.BorrowerStore       { return borrowerStore{view{t.s, true}} }
func (t txView) Awards() store.AwardStore             { return awardStore{view{t.s, true}} }
func (t txView) Lenders() store.LenderStore           { return lenderStore{view{t.s, true}} }
func (t txView) Messages() store.MessageStore         { return messageStore{view{t.s, true}} }
func (t txView) Actions() store.ActionStore           { return actionStore{view{t.s, true}} }
func (t txView) Documents() store.DocumentStore       { return documentStore{view{t.s, true}} }
func (t txView) Statistics() store.StatisticStore     { return statisticStore{view{t.s, true}} }

// RunInTx serializes units of work under one lock and restores a snapshot if
// fn fails, so a half-applied transition is never observable afterwards.
// Concurrent base-store calls block on the mutex until the unit of work ends;
// only the txView handed to fn operates lock-free.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot()

	if err := fn(txView{s: s}); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	applications map[int64]domain.Application
	borrowers    map[int64]domain.Borrower
	awards       map[int64]domain.Award
	lenders      map[int64]domain.Lender
	messages     map[int64]domain.Message
	actions      map[int64]domain.ApplicationAction
	documents    map[int64]domain.BorrowerDocument
	statistics   map[string]domain.Statistic
	nextID       int64
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		applications: copyMap(s.applications),
		borrowers:    copyMap(s.borrowers),
		awards:       copyMap(s.awards),
		lenders:      copyMap(s.lenders),
		messages:     copyMap(s.messages),
		actions:      copyMap(s.actions),
		documents:    copyMap(s.documents),
		statistics:   copyMap(s.statistics),
		nextID:       s.nextID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.applications = snap.applications
	s.borrowers = snap.borrowers
	s.awards = snap.awards
	s.lenders = snap.lenders
	s.messages = snap.messages
	s.actions = snap.actions
	s.documents = snap.documents
	s.statistics = snap.statistics
	s.nextID = snap.nextID
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// ---- applications ----

type applicationStore struct{ view }

func (s applicationStore) Create(_ context.Context, app *domain.Application) error {
	defer s.lock()()
	for _, existing := range s.s.applications {
		if existing.DedupKey == app.DedupKey {
			return sentinel.ErrDuplicate
		}
	}
	app.ID = s.s.id()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	app.UpdatedAt = app.CreatedAt
	s.s.applications[app.ID] = *app
	return nil
}

func (s applicationStore) GetByID(_ context.Context, id int64) (*domain.Application, error) {
	defer s.lock()()
	app, ok := s.s.applications[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &app, nil
}

func (s applicationStore) GetByToken(_ context.Context, token string) (*domain.Application, error) {
	defer s.lock()()
	for _, app := range s.s.applications {
		if app.AccessToken == token {
			out := app
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s applicationStore) GetByDedupKey(_ context.Context, key string) (*domain.Application, error) {
	defer s.lock()()
	for _, app := range s.s.applications {
		if app.DedupKey == key {
			out := app
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s applicationStore) Update(_ context.Context, app *domain.Application) error {
	defer s.lock()()
	if _, ok := s.s.applications[app.ID]; !ok {
		return sentinel.ErrNotFound
	}
	app.UpdatedAt = time.Now().UTC()
	s.s.applications[app.ID] = *app
	return nil
}

func (s applicationStore) PendingIntroReminder(_ context.Context, now time.Time, window time.Duration) ([]domain.Application, error) {
	defer s.lock()()
	var out []domain.Application
	for _, app := range s.s.applications {
		if app.Status != domain.StatusPending || app.ExpiredAt == nil {
			continue
		}
		if !app.ExpiredAt.After(now) || app.ExpiredAt.After(now.Add(window)) {
			continue
		}
		if s.s.hasMessage(app.ID, domain.MessageIntroReminder) {
			continue
		}
		b, ok := s.s.borrowers[app.BorrowerID]
		if !ok || b.Status != domain.BorrowerActive {
			continue
		}
		out = append(out, app)
	}
	sortByID(out, func(a domain.Application) int64 { return a.ID })
	return out, nil
}

func (s applicationStore) PendingSubmitReminder(_ context.Context, now time.Time, window time.Duration) ([]domain.Application, error) {
	defer s.lock()()
	var out []domain.Application
	for _, app := range s.s.applications {
		if app.Status != domain.StatusAccepted || app.ExpiredAt == nil {
			continue
		}
		if !app.ExpiredAt.After(now) || app.ExpiredAt.After(now.Add(window)) {
			continue
		}
		if s.s.hasMessage(app.ID, domain.MessageSubmitReminder) {
			continue
		}
		out = append(out, app)
	}
	sortByID(out, func(a domain.Application) int64 { return a.ID })
	return out, nil
}

func (s applicationStore) Lapsable(_ context.Context, now time.Time, threshold time.Duration) ([]domain.Application, error) {
	defer s.lock()()
	var out []domain.Application
	for _, app := range s.s.applications {
		if app.Archived() {
			continue
		}
		switch app.Status {
		case domain.StatusPending, domain.StatusAccepted, domain.StatusInformationRequested:
		default:
			continue
		}
		if app.StatusEnteredAt().Add(threshold).Before(now) {
			out = append(out, app)
		}
	}
	sortByID(out, func(a domain.Application) int64 { return a.ID })
	return out, nil
}

func (s applicationStore) Archivable(_ context.Context, now time.Time, retention time.Duration) ([]domain.Application, error) {
	defer s.lock()()
	var out []domain.Application
	for _, app := range s.s.applications {
		if app.Archived() {
			continue
		}
		terminal := app.TerminalAt()
		if terminal.IsZero() {
			continue
		}
		if terminal.Add(retention).Before(now) {
			out = append(out, app)
		}
	}
	sortByID(out, func(a domain.Application) int64 { return a.ID })
	return out, nil
}

func (s applicationStore) WithStatuses(_ context.Context, statuses ...domain.ApplicationStatus) ([]domain.Application, error) {
	defer s.lock()()
	var out []domain.Application
	for _, app := range s.s.applications {
		if app.Archived() {
			continue
		}
		for _, st := range statuses {
			if app.Status == st {
				out = append(out, app)
				break
			}
		}
	}
	sortByID(out, func(a domain.Application) int64 { return a.ID })
	return out, nil
}

func (s applicationStore) CountActiveByBorrower(_ context.Context, borrowerID, excludeID int64) (int, error) {
	defer s.lock()()
	count := 0
	for _, app := range s.s.applications {
		if app.BorrowerID == borrowerID && app.ID != excludeID && !app.Archived() {
			count++
		}
	}
	return count, nil
}

func (s *Store) hasMessage(applicationID int64, t domain.MessageType) bool {
	for _, m := range s.messages {
		if m.ApplicationID == applicationID && m.Type == t {
			return true
		}
	}
	return false
}

// ---- borrowers ----

type borrowerStore struct{ view }

func (s borrowerStore) Create(_ context.Context, b *domain.Borrower) error {
	defer s.lock()()
	for _, existing := range s.s.borrowers {
		if existing.Identifier == b.Identifier {
			return sentinel.ErrDuplicate
		}
	}
	b.ID = s.s.id()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = b.CreatedAt
	s.s.borrowers[b.ID] = *b
	return nil
}

func (s borrowerStore) GetByID(_ context.Context, id int64) (*domain.Borrower, error) {
	defer s.lock()()
	b, ok := s.s.borrowers[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

func (s borrowerStore) GetByIdentifier(_ context.Context, identifier string) (*domain.Borrower, error) {
	defer s.lock()()
	for _, b := range s.s.borrowers {
		if b.Identifier == identifier {
			out := b
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s borrowerStore) Update(_ context.Context, b *domain.Borrower) error {
	defer s.lock()()
	if _, ok := s.s.borrowers[b.ID]; !ok {
		return sentinel.ErrNotFound
	}
	b.UpdatedAt = time.Now().UTC()
	s.s.borrowers[b.ID] = *b
	return nil
}

// ---- awards ----

type awardStore struct{ view }

func (s awardStore) Create(_ context.Context, a *domain.Award) error {
	defer s.lock()()
	for _, existing := range s.s.awards {
		if existing.SourceContractID == a.SourceContractID {
			return sentinel.ErrDuplicate
		}
	}
	a.ID = s.s.id()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	s.s.awards[a.ID] = *a
	return nil
}

func (s awardStore) GetByID(_ context.Context, id int64) (*domain.Award, error) {
	defer s.lock()()
	a, ok := s.s.awards[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &a, nil
}

func (s awardStore) GetBySourceContractID(_ context.Context, id string) (*domain.Award, error) {
	defer s.lock()()
	for _, a := range s.s.awards {
		if a.SourceContractID == id {
			out := a
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s awardStore) Update(_ context.Context, a *domain.Award) error {
	defer s.lock()()
	if _, ok := s.s.awards[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	s.s.awards[a.ID] = *a
	return nil
}

func (s awardStore) LastUpdatedAt(_ context.Context) (*time.Time, error) {
	defer s.lock()()
	var latest *time.Time
	for _, a := range s.s.awards {
		// History fetches must not advance the new-award watermark.
		if a.SourceLastUpdatedAt == nil || a.Previous {
			continue
		}
		if latest == nil || a.SourceLastUpdatedAt.After(*latest) {
			t := *a.SourceLastUpdatedAt
			latest = &t
		}
	}
	return latest, nil
}

// ---- lenders ----

type lenderStore struct{ view }

func (s lenderStore) Create(_ context.Context, l *domain.Lender) error {
	defer s.lock()()
	l.ID = s.s.id()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	s.s.lenders[l.ID] = *l
	return nil
}

func (s lenderStore) GetByID(_ context.Context, id int64) (*domain.Lender, error) {
	defer s.lock()()
	l, ok := s.s.lenders[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &l, nil
}

func (s lenderStore) List(_ context.Context) ([]domain.Lender, error) {
	defer s.lock()()
	out := make([]domain.Lender, 0, len(s.s.lenders))
	for _, l := range s.s.lenders {
		out = append(out, l)
	}
	sortByID(out, func(l domain.Lender) int64 { return l.ID })
	return out, nil
}

// ---- messages ----

type messageStore struct{ view }

func (s messageStore) Create(_ context.Context, m *domain.Message) error {
	defer s.lock()()
	m.ID = s.s.id()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.s.messages[m.ID] = *m
	return nil
}

func (s messageStore) ExistsByType(_ context.Context, applicationID int64, t domain.MessageType) (bool, error) {
	defer s.lock()()
	return s.s.hasMessage(applicationID, t), nil
}

func (s messageStore) ListByApplication(_ context.Context, applicationID int64) ([]domain.Message, error) {
	defer s.lock()()
	var out []domain.Message
	for _, m := range s.s.messages {
		if m.ApplicationID == applicationID {
			out = append(out, m)
		}
	}
	sortByID(out, func(m domain.Message) int64 { return m.ID })
	return out, nil
}

// ---- actions ----

type actionStore struct{ view }

func (s actionStore) Create(_ context.Context, a *domain.ApplicationAction) error {
	defer s.lock()()
	a.ID = s.s.id()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.s.actions[a.ID] = *a
	return nil
}

func (s actionStore) ListByType(_ context.Context, applicationID int64, t domain.ApplicationActionType) ([]domain.ApplicationAction, error) {
	defer s.lock()()
	var out []domain.ApplicationAction
	for _, a := range s.s.actions {
		if a.ApplicationID == applicationID && a.Type == t {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s actionStore) ExistsByType(_ context.Context, applicationID int64, t domain.ApplicationActionType) (bool, error) {
	defer s.lock()()
	for _, a := range s.s.actions {
		if a.ApplicationID == applicationID && a.Type == t {
			return true, nil
		}
	}
	return false, nil
}

// ---- documents ----

type documentStore struct{ view }

func (s documentStore) Create(_ context.Context, d *domain.BorrowerDocument) error {
	defer s.lock()()
	d.ID = s.s.id()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	s.s.documents[d.ID] = *d
	return nil
}

func (s documentStore) CountByApplication(_ context.Context, applicationID int64) (int, error) {
	defer s.lock()()
	count := 0
	for _, d := range s.s.documents {
		if d.ApplicationID == applicationID {
			count++
		}
	}
	return count, nil
}

func (s documentStore) DeleteByApplication(_ context.Context, applicationID int64) error {
	defer s.lock()()
	for id, d := range s.s.documents {
		if d.ApplicationID == applicationID {
			delete(s.s.documents, id)
		}
	}
	return nil
}

// ---- statistics ----

type statisticStore struct{ view }

func statisticKey(day time.Time, t domain.StatisticType, lenderID *int64) string {
	key := day.UTC().Format("2006-01-02") + "|" + string(t)
	if lenderID != nil {
		key += "|" + strconv.FormatInt(*lenderID, 10)
	}
	return key
}

func (s statisticStore) Upsert(_ context.Context, st *domain.Statistic) error {
	defer s.lock()()
	key := statisticKey(st.Day, st.Type, st.LenderID)
	if existing, ok := s.s.statistics[key]; ok {
		st.ID = existing.ID
	} else {
		st.ID = s.s.id()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	s.s.statistics[key] = *st
	return nil
}

func (s statisticStore) Get(_ context.Context, day time.Time, t domain.StatisticType, lenderID *int64) (*domain.Statistic, error) {
	defer s.lock()()
	st, ok := s.s.statistics[statisticKey(day, t, lenderID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &st, nil
}

func sortByID[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
