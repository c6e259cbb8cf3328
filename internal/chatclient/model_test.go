package chatclient

import (
	"testing"
	"time"

	"github.com/SCORPIA2004/CampusConnect/internal/protocol"
	"github.com/stretchr/testify/require"
)

var (
	me   = protocol.Profile{FirstName: "Alice", LastName: "Yilmaz", Email: "alice@ug.bilkent.edu.tr"}
	bob  = protocol.Profile{FirstName: "Bob", LastName: "Demir", Email: "bob@ug.bilkent.edu.tr"}
	dana = protocol.Profile{FirstName: "Dana", LastName: "Arslan", Email: "dana@ug.bilkent.edu.tr"}

	t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
)

func snapshot() SnapshotLoaded {
	return SnapshotLoaded{Sessions: []protocol.SessionView{
		{
			ID:                    "s1",
			Participant0Email:     bob.Email,
			Participant0FirstName: bob.FirstName,
			Participant0LastName:  bob.LastName,
			Participant0Active:    true,
			Participant1Email:     me.Email,
			Participant1FirstName: me.FirstName,
			Participant1LastName:  me.LastName,
			Participant1Active:    true,
			Messages: []protocol.StoredMessage{
				{SenderEmail: bob.Email, Text: "hey", DateSent: t0},
				{SenderEmail: me.Email, Text: "hi bob", DateSent: t0.Add(time.Minute)},
			},
		},
		{
			ID:                    "s2",
			Participant0Email:     me.Email,
			Participant0FirstName: me.FirstName,
			Participant1Email:     dana.Email,
			Participant1FirstName: dana.FirstName,
			Participant1LastName:  dana.LastName,
			Messages:              []protocol.StoredMessage{},
		},
	}}
}

func TestReduce_SnapshotNormalizesMessages(t *testing.T) {
	req := require.New(t)

	s := Reduce(State{Self: me.Email}, snapshot())

	req.Equal([]string{bob.Email, dana.Email}, s.Peers())
	e, ok := s.Entry(bob.Email)
	req.True(ok)
	req.Equal(protocol.ProfileStatus{Profile: bob, IsActive: true}, e.Peer)
	req.Equal([]Message{
		{Text: "hey", DateSent: t0, IsSender: false},
		{Text: "hi bob", DateSent: t0.Add(time.Minute), IsSender: true},
	}, e.Messages)

	e, ok = s.Entry(dana.Email)
	req.True(ok)
	req.False(e.Peer.IsActive)
	req.Empty(e.Messages)
}

func TestReduce_SnapshotReplacesPreviousEntries(t *testing.T) {
	req := require.New(t)
	s := Reduce(State{Self: me.Email}, ConversationOpened{Peer: protocol.ProfileStatus{Profile: protocol.Profile{Email: "x@ug.bilkent.edu.tr"}}})

	s = Reduce(s, snapshot())

	_, ok := s.Entry("x@ug.bilkent.edu.tr")
	req.False(ok)
	req.Len(s.Entries, 2)
}

func TestReduce_AckAndPushTailAppend(t *testing.T) {
	req := require.New(t)
	s := Reduce(State{Self: me.Email}, snapshot())

	// Given an ack for a message to bob and a push from bob
	s = Reduce(s, MessageAcked{Message: protocol.ChatMessage{RecipientUser: &bob, Text: "second", DateSent: t0.Add(2 * time.Minute)}})
	s = Reduce(s, MessagePushed{Message: protocol.ChatMessage{SenderUser: &bob, Text: "third", DateSent: t0.Add(3 * time.Minute)}})

	// Then both land at the tail, in arrival order
	e, _ := s.Entry(bob.Email)
	req.Len(e.Messages, 4)
	req.Equal(Message{Text: "second", DateSent: t0.Add(2 * time.Minute), IsSender: true}, e.Messages[2])
	req.Equal(Message{Text: "third", DateSent: t0.Add(3 * time.Minute), IsSender: false}, e.Messages[3])

	// And an identical ack is appended again, never deduplicated
	s = Reduce(s, MessageAcked{Message: protocol.ChatMessage{RecipientUser: &bob, Text: "second", DateSent: t0.Add(2 * time.Minute)}})
	e, _ = s.Entry(bob.Email)
	req.Len(e.Messages, 5)
}

func TestReduce_PushFromUnknownPeerCreatesEntryAtEnd(t *testing.T) {
	req := require.New(t)
	carol := protocol.Profile{FirstName: "Carol", Email: "carol@ug.bilkent.edu.tr"}
	s := Reduce(State{Self: me.Email}, snapshot())

	s = Reduce(s, MessagePushed{Message: protocol.ChatMessage{SenderUser: &carol, Text: "hello?", DateSent: t0}})

	req.Equal([]string{bob.Email, dana.Email, carol.Email}, s.Peers())
	e, _ := s.Entry(carol.Email)
	req.Equal(carol, e.Peer.Profile)
	req.True(e.Peer.IsActive)
	req.Equal([]Message{{Text: "hello?", DateSent: t0}}, e.Messages)
}

func TestReduce_PresenceOnlyTouchesTheFlag(t *testing.T) {
	req := require.New(t)
	s := Reduce(State{Self: me.Email}, snapshot())
	before, _ := s.Entry(bob.Email)

	s = Reduce(s, PresenceChanged{Email: bob.Email, IsActive: false})

	after, _ := s.Entry(bob.Email)
	req.False(after.Peer.IsActive)
	req.Equal(before.Peer.Profile, after.Peer.Profile)
	req.Equal(before.Messages, after.Messages)

	// Unknown peers are ignored
	unchanged := Reduce(s, PresenceChanged{Email: "ghost@ug.bilkent.edu.tr", IsActive: true})
	req.Equal(s, unchanged)
}

func TestReduce_ConversationOpened(t *testing.T) {
	req := require.New(t)
	carol := protocol.ProfileStatus{Profile: protocol.Profile{FirstName: "Carol", Email: "carol@ug.bilkent.edu.tr"}, IsActive: true}
	s := Reduce(State{Self: me.Email}, snapshot())

	s = Reduce(s, ConversationOpened{Peer: carol})
	e, ok := s.Entry(carol.Email)
	req.True(ok)
	req.Equal(carol, e.Peer)
	req.NotNil(e.Messages)
	req.Empty(e.Messages)

	// Opening an existing conversation changes nothing
	again := Reduce(s, ConversationOpened{Peer: protocol.ProfileStatus{Profile: bob}})
	req.Equal(s, again)
}

func TestReduce_DoesNotMutateInput(t *testing.T) {
	req := require.New(t)
	base := Reduce(State{Self: me.Email}, snapshot())
	bobBefore, _ := base.Entry(bob.Email)
	msgs := append([]Message(nil), bobBefore.Messages...)

	next := Reduce(base, MessagePushed{Message: protocol.ChatMessage{SenderUser: &bob, Text: "new", DateSent: t0}})
	next = Reduce(next, PresenceChanged{Email: bob.Email, IsActive: false})
	next = Reduce(next, ConversationOpened{Peer: protocol.ProfileStatus{Profile: protocol.Profile{Email: "z@ug.bilkent.edu.tr"}}})

	bobAfter, _ := base.Entry(bob.Email)
	req.Equal(msgs, bobAfter.Messages)
	req.True(bobAfter.Peer.IsActive)
	req.Len(base.Entries, 2)
	req.Len(next.Entries, 3)
}

func TestReduce_IgnoresMessagesWithoutCounterparty(t *testing.T) {
	req := require.New(t)
	s := Reduce(State{Self: me.Email}, snapshot())

	req.Equal(s, Reduce(s, MessageAcked{Message: protocol.ChatMessage{Text: "orphan"}}))
	req.Equal(s, Reduce(s, MessagePushed{Message: protocol.ChatMessage{Text: "orphan"}}))
}

func TestReduce_SnapshotKeepsHeldMessageItDoesNotHave(t *testing.T) {
	req := require.New(t)
	carol := protocol.Profile{FirstName: "Carol", Email: "carol@ug.bilkent.edu.tr"}
	push := MessagePushed{Message: protocol.ChatMessage{SenderUser: &carol, Text: "first!", DateSent: t0}}

	// Given a push applied while the snapshot request was in flight
	s := Reduce(State{Self: me.Email}, push)

	// When the snapshot was read before the message was stored
	s = Reduce(s, SnapshotLoaded{Sessions: snapshot().Sessions, Held: []Event{push}})

	// Then the message is still there, once
	e, ok := s.Entry(carol.Email)
	req.True(ok)
	req.Equal([]Message{{Text: "first!", DateSent: t0}}, e.Messages)
	req.Equal([]string{bob.Email, dana.Email, carol.Email}, s.Peers())
}

func TestReduce_SnapshotAbsorbsHeldMessageItAlreadyHas(t *testing.T) {
	req := require.New(t)
	sent := t0.Add(5 * time.Minute)
	push := MessagePushed{Message: protocol.ChatMessage{SenderUser: &bob, Text: "again", DateSent: sent}}
	ack := MessageAcked{Message: protocol.ChatMessage{RecipientUser: &bob, Text: "ok", DateSent: sent.Add(time.Millisecond)}}

	// Given a snapshot read after both messages were stored
	fresh := snapshot()
	fresh.Sessions[0].Messages = append(fresh.Sessions[0].Messages,
		protocol.StoredMessage{SenderEmail: bob.Email, Text: "again", DateSent: sent},
		protocol.StoredMessage{SenderEmail: me.Email, Text: "ok", DateSent: sent.Add(time.Millisecond)},
	)

	// When the held events are replayed on top of it
	s := Reduce(State{Self: me.Email}, SnapshotLoaded{Sessions: fresh.Sessions, Held: []Event{push, ack}})

	// Then neither message is duplicated
	e, _ := s.Entry(bob.Email)
	req.Len(e.Messages, 4)
	req.Equal("again", e.Messages[2].Text)
	req.Equal("ok", e.Messages[3].Text)
}

func TestReduce_SnapshotAbsorbsEachStoredMessageOnce(t *testing.T) {
	req := require.New(t)
	push := MessagePushed{Message: protocol.ChatMessage{SenderUser: &bob, Text: "ping", DateSent: t0.Add(time.Hour)}}

	// Given two identical pushes of which only the first made it into the snapshot
	fresh := snapshot()
	fresh.Sessions[0].Messages = append(fresh.Sessions[0].Messages,
		protocol.StoredMessage{SenderEmail: bob.Email, Text: "ping", DateSent: t0.Add(time.Hour)})

	s := Reduce(State{Self: me.Email}, SnapshotLoaded{Sessions: fresh.Sessions, Held: []Event{push, push}})

	// Then the second one is appended
	e, _ := s.Entry(bob.Email)
	req.Len(e.Messages, 4)
	req.Equal("ping", e.Messages[3].Text)
}

func TestReduce_SnapshotReplaysHeldPresence(t *testing.T) {
	req := require.New(t)

	s := Reduce(State{Self: me.Email}, SnapshotLoaded{
		Sessions: snapshot().Sessions,
		Held:     []Event{PresenceChanged{Email: bob.Email, IsActive: false}},
	})

	e, _ := s.Entry(bob.Email)
	req.False(e.Peer.IsActive)
}
