package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/azadk/ocrhub/internal/model"
)

// MemoryStore is an in-memory Store for tests and the one-shot run
// command. Transactions are serialized: Begin holds the store lock
// until Commit or Rollback, and Rollback restores a snapshot taken at
// Begin.
type MemoryStore struct {
	mu           sync.Mutex
	jobs         map[string]*model.Job
	users        map[int]*model.User
	pages        []*model.Page
	transactions []*model.UserTransaction
	nextTxID     int64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:     make(map[string]*model.Job),
		users:    make(map[int]*model.User),
		nextTxID: 1,
	}
}

// AddUser seeds a user.
func (s *MemoryStore) AddUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
}

// AddJob seeds a job.
func (s *MemoryStore) AddJob(j *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *j
	s.jobs[j.ID] = &cp
}

// AddTransaction seeds a ledger entry, bypassing duplicate checks.
func (s *MemoryStore) AddTransaction(t *model.UserTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *t
	cp.ID = s.nextTxID
	s.nextTxID++
	s.transactions = append(s.transactions, &cp)
}

// Job returns a copy of the stored job, or nil.
func (s *MemoryStore) Job(jobID string) *model.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

// Pages returns copies of the stored pages of a job, insertion order.
func (s *MemoryStore) Pages(jobID string) []*model.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Page
	for _, p := range s.pages {
		if p.JobID == jobID {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out
}

// Transactions returns copies of a user's ledger entries, insertion order.
func (s *MemoryStore) Transactions(userID int) []*model.UserTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.UserTransaction
	for _, t := range s.transactions {
		if t.UserID == userID {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out
}

// UserIDByPhone resolves a user by canonical phone number.
func (s *MemoryStore) UserIDByPhone(ctx context.Context, phone string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Phone != "" && model.NormalizePhone(u.Phone) == phone {
			return u.ID, true, nil
		}
	}
	return 0, false, nil
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memTx{store: s, snapshot: s.clone()}, nil
}

func (s *MemoryStore) QueuedJobIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type queued struct {
		id string
		at int64
	}
	var items []queued
	for _, j := range s.jobs {
		if j.Status == model.StatusQueued && !j.Deleted {
			items = append(items, queued{id: j.ID, at: j.QueuedAt.UnixNano()})
		}
	}
	sort.Slice(items, func(i, k int) bool { return items[i].at < items[k].at })

	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.id
	}
	return ids, nil
}

type memState struct {
	jobs         map[string]*model.Job
	pages        []*model.Page
	transactions []*model.UserTransaction
	nextTxID     int64
}

func (s *MemoryStore) clone() memState {
	st := memState{
		jobs:         make(map[string]*model.Job, len(s.jobs)),
		pages:        make([]*model.Page, len(s.pages)),
		transactions: make([]*model.UserTransaction, len(s.transactions)),
		nextTxID:     s.nextTxID,
	}
	for id, j := range s.jobs {
		cp := *j
		st.jobs[id] = &cp
	}
	for i, p := range s.pages {
		cp := *p
		st.pages[i] = &cp
	}
	for i, t := range s.transactions {
		cp := *t
		st.transactions[i] = &cp
	}
	return st
}

func (s *MemoryStore) restore(st memState) {
	s.jobs = st.jobs
	s.pages = st.pages
	s.transactions = st.transactions
	s.nextTxID = st.nextTxID
}

type memTx struct {
	store    *MemoryStore
	snapshot memState
	done     bool
}

func (t *memTx) Commit(ctx context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.restore(t.snapshot)
	t.store.mu.Unlock()
	return nil
}

func (t *memTx) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	j, ok := t.store.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (t *memTx) GetUser(ctx context.Context, userID int) (*model.User, error) {
	u, ok := t.store.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	cp := *u
	cp.Balance = 0
	for _, ut := range t.store.transactions {
		if ut.UserID == userID && ut.Confirmed {
			cp.Balance += ut.PageCount
		}
	}
	return &cp, nil
}

func (t *memTx) UpdateJob(ctx context.Context, job *model.Job) error {
	if _, ok := t.store.jobs[job.ID]; !ok {
		return fmt.Errorf("job %s: %w", job.ID, ErrNotFound)
	}
	cp := *job
	t.store.jobs[job.ID] = &cp
	return nil
}

func (t *memTx) DeletePreviousPages(ctx context.Context, jobID string) error {
	kept := t.store.pages[:0]
	for _, p := range t.store.pages {
		if p.JobID != jobID {
			kept = append(kept, p)
		}
	}
	t.store.pages = kept
	return nil
}

func (t *memTx) InsertPage(ctx context.Context, page *model.Page) error {
	cp := *page
	t.store.pages = append(t.store.pages, &cp)
	return nil
}

func (t *memTx) InsertUserTransaction(ctx context.Context, ut *model.UserTransaction) error {
	if ut.TransactionID != "" {
		for _, prev := range t.store.transactions {
			if prev.Confirmed &&
				prev.TransactionID == ut.TransactionID &&
				prev.PaymentMediumID == ut.PaymentMediumID &&
				prev.TypeID == ut.TypeID {
				return fmt.Errorf("transaction %s medium %d: %w",
					ut.TransactionID, ut.PaymentMediumID, ErrDuplicateTransaction)
			}
		}
	}
	cp := *ut
	cp.ID = t.store.nextTxID
	t.store.nextTxID++
	ut.ID = cp.ID
	t.store.transactions = append(t.store.transactions, &cp)
	return nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Tx    = (*memTx)(nil)
)
