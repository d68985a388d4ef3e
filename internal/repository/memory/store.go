// Package memory implements repository.Store on in-process maps. It backs
// the "memory" database driver for local runs and the package tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"accounts/internal/model"
	"accounts/internal/repository"
)

// memDB holds the users, addresses and user_addresses tables.
type memDB struct {
	mu        sync.Mutex
	users     map[uint]model.User
	addresses map[uint]model.Address
	links     map[uint][]uint
	nextUser  uint
	nextAddr  uint

	failUpdate error
}

func newMemDB() *memDB {
	return &memDB{
		users:     map[uint]model.User{},
		addresses: map[uint]model.Address{},
		links:     map[uint][]uint{},
	}
}

func (db *memDB) snapshot() *memDB {
	db.mu.Lock()
	defer db.mu.Unlock()
	cp := &memDB{
		users:     make(map[uint]model.User, len(db.users)),
		addresses: make(map[uint]model.Address, len(db.addresses)),
		links:     make(map[uint][]uint, len(db.links)),
		nextUser:  db.nextUser,
		nextAddr:  db.nextAddr,
	}
	for k, v := range db.users {
		cp.users[k] = v
	}
	for k, v := range db.addresses {
		cp.addresses[k] = v
	}
	for k, v := range db.links {
		cp.links[k] = append([]uint(nil), v...)
	}
	return cp
}

func (db *memDB) restore(cp *memDB) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.users, db.addresses, db.links = cp.users, cp.addresses, cp.links
	db.nextUser, db.nextAddr = cp.nextUser, cp.nextAddr
}

func (db *memDB) refs(addressID uint) int64 {
	var n int64
	for _, ids := range db.links {
		for _, id := range ids {
			if id == addressID {
				n++
			}
		}
	}
	return n
}

func (db *memDB) withAddresses(u model.User) *model.User {
	u.Addresses = nil
	for _, id := range db.links[u.ID] {
		if a, ok := db.addresses[id]; ok {
			u.Addresses = append(u.Addresses, a)
		}
	}
	return &u
}

// Store is an in-memory repository.Store. Transactions run one at a time
// and are emulated by snapshotting every table and restoring it when fn
// fails. Writes outside a transaction are not isolated from them.
type Store struct {
	db   *memDB
	txMu sync.Mutex
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{db: newMemDB()}
}

func (s *Store) Users() repository.UserRepository       { return memUsers{s.db} }
func (s *Store) Addresses() repository.AddressRepository { return memAddresses{s.db} }

// SetUpdateError makes every later user update fail with err. Nil clears it.
func (s *Store) SetUpdateError(err error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.failUpdate = err
}

// InsertAddress stores a row as given, bypassing get-or-create.
func (s *Store) InsertAddress(a model.Address) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.db.addresses[a.ID] = a
	if a.ID > s.db.nextAddr {
		s.db.nextAddr = a.ID
	}
}

func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	saved := s.db.snapshot()
	if err := fn(ctx, s); err != nil {
		s.db.restore(saved)
		return err
	}
	return nil
}

// AddressCount returns the number of address rows.
func (s *Store) AddressCount() int {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.addresses)
}

// HasAddress reports whether an address row with text exists.
func (s *Store) HasAddress(text string) bool {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, a := range db.addresses {
		if a.UserAddress == text {
			return true
		}
	}
	return false
}

// LinkedTexts returns the texts of the addresses linked to userID, in link order.
func (s *Store) LinkedTexts(userID uint) []string {
	db := s.db
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []string
	for _, id := range db.links[userID] {
		out = append(out, db.addresses[id].UserAddress)
	}
	return out
}

type memUsers struct{ db *memDB }

func (r memUsers) Create(_ context.Context, user *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == user.Email {
			return gorm.ErrDuplicatedKey
		}
	}
	r.db.nextUser++
	user.ID = r.db.nextUser
	if user.DateJoined.IsZero() {
		user.DateJoined = time.Now().UTC()
	}
	stored := *user
	stored.Addresses = nil
	r.db.users[user.ID] = stored
	return nil
}

func (r memUsers) Update(_ context.Context, user *model.User) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.failUpdate != nil {
		return r.db.failUpdate
	}
	if _, ok := r.db.users[user.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	stored := *user
	stored.Addresses = nil
	r.db.users[user.ID] = stored
	return nil
}

func (r memUsers) FindByID(_ context.Context, id uint) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return r.db.withAddresses(u), nil
}

func (r memUsers) FindByEmail(_ context.Context, email string) (*model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, u := range r.db.users {
		if u.Email == email {
			return r.db.withAddresses(u), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memUsers) List(_ context.Context) ([]model.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]model.User, 0, len(r.db.users))
	for _, u := range r.db.users {
		out = append(out, *r.db.withAddresses(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memUsers) ReplaceAddresses(_ context.Context, user *model.User, addresses []model.Address) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	ids := make([]uint, 0, len(addresses))
	for _, a := range addresses {
		ids = append(ids, a.ID)
	}
	r.db.links[user.ID] = ids
	user.Addresses = addresses
	return nil
}

func (r memUsers) TouchLastLogin(_ context.Context, id uint, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.LastLogin = &at
	r.db.users[id] = u
	return nil
}

type memAddresses struct{ db *memDB }

func (r memAddresses) GetOrCreate(_ context.Context, text string) (*model.Address, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var found *model.Address
	for _, a := range r.db.addresses {
		if a.UserAddress == text && (found == nil || a.ID < found.ID) {
			a := a
			found = &a
		}
	}
	if found != nil {
		return found, nil
	}
	r.db.nextAddr++
	a := model.Address{ID: r.db.nextAddr, UserAddress: text}
	r.db.addresses[a.ID] = a
	return &a, nil
}

func (r memAddresses) CountReferences(_ context.Context, ids []uint) (map[uint]int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make(map[uint]int64, len(ids))
	for _, id := range ids {
		out[id] = r.db.refs(id)
	}
	return out, nil
}

func (r memAddresses) DeleteUnreferenced(_ context.Context, ids []uint) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for _, id := range ids {
		if _, ok := r.db.addresses[id]; !ok || r.db.refs(id) > 0 {
			continue
		}
		delete(r.db.addresses, id)
		n++
	}
	return n, nil
}

func (r memAddresses) ListByUser(_ context.Context, userID uint) ([]model.Address, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return r.db.withAddresses(model.User{ID: userID}).Addresses, nil
}
