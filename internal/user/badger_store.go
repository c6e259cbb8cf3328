package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const userKeyPrefix = "user:"

// BadgerStore keeps accounts as JSON documents under "user:{email}".
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// userDoc carries the password hash, which User hides from JSON.
type userDoc struct {
	Email        string    `json:"email"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

func userKey(email string) []byte {
	return []byte(userKeyPrefix + email)
}

func (s *BadgerStore) CreateUser(_ context.Context, u User) error {
	doc, err := json.Marshal(userDoc(u))
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(u.Email))
		switch {
		case err == nil:
			return ErrEmailTaken
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(userKey(u.Email), doc)
	})
}

func (s *BadgerStore) GetUserByEmail(_ context.Context, email string) (User, bool, error) {
	var doc userDoc
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(email))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &doc)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, fmt.Errorf("read user %s: %w", email, err)
	}
	return User(doc), true, nil
}
