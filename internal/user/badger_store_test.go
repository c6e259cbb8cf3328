package user

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func TestBadgerStore(t *testing.T) {
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })
	store := NewBadgerStore(db)
	ctx := context.Background()

	u := User{
		Email:        "alice@ug.bilkent.edu.tr",
		FirstName:    "Alice",
		LastName:     "Yilmaz",
		PasswordHash: "$2a$hash",
		CreatedAt:    time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}

	// Given an empty store
	_, found, err := store.GetUserByEmail(ctx, u.Email)
	req.NoError(err)
	req.False(found)

	// When the user is created
	req.NoError(store.CreateUser(ctx, u))

	// Then it can be read back with its password hash
	got, found, err := store.GetUserByEmail(ctx, u.Email)
	req.NoError(err)
	req.True(found)
	req.Equal(u, got)

	// And a second account with the same email is refused
	req.ErrorIs(store.CreateUser(ctx, u), ErrEmailTaken)
}
