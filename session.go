package mvstore

import (
	"sync"

	"github.com/elliotcourant/mvstore/options"
	"github.com/google/uuid"
)

type (
	// Session is the caller facing handle on the store. It owns at most one active transaction at a time and routes
	// every read and write through it. A Session is safe for concurrent use, although callers interleaving
	// operations from several goroutines get whatever order the lock hands out.
	Session struct {
		id    uuid.UUID
		store *Store

		lock sync.Mutex
		txn  *Transaction
	}
)

// ID returns the unique id of the session.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Transaction returns the currently open transaction, or nil.
func (s *Session) Transaction() *Transaction {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.txn
}

// InTransaction returns true if the session has an open transaction.
func (s *Session) InTransaction() bool {
	return s.Transaction() != nil
}

// Begin opens a new transaction at the provided isolation level. ErrSessionBusy is returned if the session already
// has an open transaction.
func (s *Session) Begin(level options.IsolationLevel) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.txn != nil {
		return ErrSessionBusy
	}

	txn, err := s.store.Begin(level)
	if err != nil {
		return err
	}

	s.txn = txn
	return nil
}

// BeginDefault opens a new transaction at the store's default isolation level.
func (s *Session) BeginDefault() error {
	return s.Begin(s.store.options.DefaultIsolation)
}

// Read returns the value of the key as seen by the open transaction.
func (s *Session) Read(key []byte) ([]byte, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.txn == nil {
		return nil, ErrNoActiveTransaction
	}

	return s.txn.Get(key)
}

// Write sets the value of the key within the open transaction.
func (s *Session) Write(key, value []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.txn == nil {
		return ErrNoActiveTransaction
	}

	return s.txn.Set(key, value)
}

// Delete removes the key within the open transaction.
func (s *Session) Delete(key []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.txn == nil {
		return ErrNoActiveTransaction
	}

	return s.txn.Delete(key)
}

// Commit commits the open transaction. The session is cleared whatever the outcome, including when the commit
// fails with ErrSerializationFailure, in which case the transaction has already been rolled back.
func (s *Session) Commit() (CommitResult, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.txn == nil {
		return CommitResult{}, ErrNoActiveTransaction
	}

	txn := s.txn
	s.txn = nil

	return txn.Commit()
}

// Rollback rolls back the open transaction and clears the session.
func (s *Session) Rollback() error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.txn == nil {
		return ErrNoActiveTransaction
	}

	txn := s.txn
	s.txn = nil

	return txn.Rollback()
}
