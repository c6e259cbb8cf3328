package chat

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxConflictRetries = 5

// BadgerStore keeps sessions in an embedded badger database.
//
// Layout:
//
//	chat:session:{id}                 session document (participants, next sequence number)
//	chat:pair:{pairKey}               session id, one per unordered pair
//	chat:participant:{email}:{id}     membership index, empty value
//	chat:msg:{id}:{seq}               message document, seq zero padded so keys sort in append order
//
// Creation and appends run in read-write transactions; badger aborts the loser of a
// conflicting pair with ErrConflict and the operation is retried.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db, now: time.Now}
}

type sessionDoc struct {
	ID           string           `json:"id"`
	Participant0 protocol.Profile `json:"participant0"`
	Participant1 protocol.Profile `json:"participant1"`
	CreatedAt    time.Time        `json:"createdAt"`
	NextSeq      uint64           `json:"nextSeq"`
}

type messageDoc struct {
	SenderEmail string    `json:"senderEmail"`
	Text        string    `json:"text"`
	Image       string    `json:"image,omitempty"`
	DateSent    time.Time `json:"dateSent"`
}

func sessionKey(id string) []byte { return []byte("chat:session:" + id) }
func pairIndexKey(key string) []byte { return []byte("chat:pair:" + key) }
func participantPrefix(email string) []byte { return []byte("chat:participant:" + email + ":") }
func messagePrefix(id string) []byte { return []byte("chat:msg:" + id + ":") }

func messageKey(id string, seq uint64) []byte {
	return fmt.Appendf(nil, "chat:msg:%s:%020d", id, seq)
}

func (s *BadgerStore) GetOrCreateSession(ctx context.Context, a, b protocol.Profile) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	var res Session
	err := s.update(func(txn *badger.Txn) error {
		key := pairIndexKey(pairKey(a.Email, b.Email))
		item, err := txn.Get(key)
		switch {
		case err == nil:
			id, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			res, err = loadSession(txn, string(id))
			return err
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}

		doc := sessionDoc{
			ID:           uuid.NewString(),
			Participant0: a,
			Participant1: b,
			CreatedAt:    s.now().UTC(),
		}
		if err := putJSON(txn, sessionKey(doc.ID), doc); err != nil {
			return err
		}
		if err := txn.Set(key, []byte(doc.ID)); err != nil {
			return err
		}
		for _, email := range []string{a.Email, b.Email} {
			if err := txn.Set(append(participantPrefix(email), doc.ID...), nil); err != nil {
				return err
			}
		}
		res = doc.session(nil)
		return nil
	})
	if err != nil {
		return Session{}, fmt.Errorf("get or create session: %w", err)
	}
	return res, nil
}

func (s *BadgerStore) AppendMessage(ctx context.Context, sessionID string, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		var doc sessionDoc
		if err := getJSON(txn, sessionKey(sessionID), &doc); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrSessionNotFound
			}
			return err
		}
		seq := doc.NextSeq
		doc.NextSeq++
		if err := putJSON(txn, sessionKey(sessionID), doc); err != nil {
			return err
		}
		return putJSON(txn, messageKey(sessionID, seq), messageDoc(msg))
	})
}

func (s *BadgerStore) ListSessionsFor(ctx context.Context, email string) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var sessions []Session
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := participantPrefix(email)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ids = append(ids, string(it.Item().Key()[len(prefix):]))
		}
		it.Close()

		for _, id := range ids {
			sess, err := loadSession(txn, id)
			if err != nil {
				return err
			}
			sessions = append(sessions, sess)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions for %s: %w", email, err)
	}
	slices.SortFunc(sessions, func(x, y Session) int {
		if c := x.CreatedAt.Compare(y.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})
	return sessions, nil
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func loadSession(txn *badger.Txn, id string) (Session, error) {
	var doc sessionDoc
	if err := getJSON(txn, sessionKey(id), &doc); err != nil {
		return Session{}, fmt.Errorf("read session %s: %w", id, err)
	}

	prefix := messagePrefix(id)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	msgs := make([]Message, 0, doc.NextSeq)
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		var m messageDoc
		if err := it.Item().Value(func(val []byte) error {
			return json.Unmarshal(val, &m)
		}); err != nil {
			return Session{}, err
		}
		msgs = append(msgs, Message(m))
	}
	return doc.session(msgs), nil
}

func (d sessionDoc) session(msgs []Message) Session {
	return Session{
		ID:           d.ID,
		Participant0: d.Participant0,
		Participant1: d.Participant1,
		Messages:     msgs,
		CreatedAt:    d.CreatedAt,
	}
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}
