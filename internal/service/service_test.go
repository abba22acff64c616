package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"social-chat-service/internal/logger"
	"social-chat-service/internal/media"
	"social-chat-service/internal/models"
	"social-chat-service/internal/pagination"
	"social-chat-service/internal/repositories"
)

type fixture struct {
	store    *memStore
	rooms    *recordingBroadcaster
	media    *fakeMedia
	resolver *ConversationResolver
	svc      *MessagingService
}

func newFixture(users ...string) *fixture {
	store := newMemStore(users...)
	rooms := &recordingBroadcaster{}
	files := &fakeMedia{}
	resolver := NewConversationResolver(store, store, logger.NewNop())
	svc := NewMessagingService(store, messageRepo{store}, resolver, files, rooms, logger.NewNop())
	return &fixture{store: store, rooms: rooms, media: files, resolver: resolver, svc: svc}
}

func TestCreateOrGetIsIdempotent(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()

	first, err := f.resolver.CreateOrGet(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	second, err := f.resolver.CreateOrGet(ctx, "bob", []string{"alice"}, "")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.False(t, first.IsGroupChat)
	assert.Nil(t, first.ChatName)
	assert.Len(t, f.store.conversations, 1)
	assert.Equal(t, "alice", first.Participants[0].UserID)
}

func TestCreateOrGetValidation(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()

	_, err := f.resolver.CreateOrGet(ctx, "alice", nil, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.resolver.CreateOrGet(ctx, "alice", []string{"bob", " "}, "")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.resolver.CreateOrGet(ctx, "alice", []string{"ghost"}, "")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.store.conversations)
}

func TestCreateOrGetGroupKeepsName(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	conv, err := f.resolver.CreateOrGet(context.Background(), "alice", []string{"bob", "carol", "bob"}, "  Weekend  ")
	require.NoError(t, err)

	assert.True(t, conv.IsGroupChat)
	require.NotNil(t, conv.ChatName)
	assert.Equal(t, "Weekend", *conv.ChatName)
	assert.Equal(t, []string{"alice", "bob", "carol"}, conv.UserIDs())
	assert.False(t, conv.CreatedAt.IsZero())
}

func TestCreateOrGetRecoversFromConcurrentCreate(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()

	winner := newConversation("bob", []string{"alice"}, models.ParticipantKey([]string{"alice", "bob"}), "")
	winner.Participants[1].HasLeft = true
	f.store.beforeCreate = func() {
		f.store.mu.Lock()
		f.store.conversations[winner.ID] = winner
		f.store.mu.Unlock()
	}

	conv, err := f.resolver.CreateOrGet(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, conv.ID)
	assert.True(t, conv.IsActive("alice"))
}

func TestLeaveAndRejoinKeepsHistory(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	_, err = f.svc.Send(ctx, SendInput{SenderID: "bob", ConversationID: conv.ID, Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Leave(ctx, "alice", conv.ID))
	list, err := f.svc.ListConversations(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = f.svc.ListMessages(ctx, "alice", conv.ID, pagination.Parse("", ""))
	assert.ErrorIs(t, err, ErrForbidden)

	again, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, again.ID)

	page, err := f.svc.ListMessages(ctx, "alice", conv.ID, pagination.Parse("", ""))
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalItems)
}

func TestLeaveByLastParticipantDeletes(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	ctx := context.Background()

	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob", "carol"}, "trip")
	require.NoError(t, err)
	image := "http://media.test/chat-images/old.png"
	stored := f.store.conversations[conv.ID]
	stored.ChatImage = &image
	f.store.conversations[conv.ID] = stored

	require.NoError(t, f.svc.Leave(ctx, "alice", conv.ID))
	require.NoError(t, f.svc.Leave(ctx, "bob", conv.ID))
	assert.Contains(t, f.store.conversations, conv.ID)

	require.NoError(t, f.svc.Leave(ctx, "carol", conv.ID))
	assert.NotContains(t, f.store.conversations, conv.ID)
	assert.Equal(t, []string{image}, f.media.deleted)

	err = f.svc.Leave(ctx, "carol", conv.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLeaveRequiresActiveMembership(t *testing.T) {
	f := newFixture("alice", "bob", "mallory")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.Leave(ctx, "mallory", conv.ID), ErrForbidden)
	require.NoError(t, f.svc.Leave(ctx, "alice", conv.ID))
	assert.ErrorIs(t, f.svc.Leave(ctx, "alice", conv.ID), ErrForbidden)
}

func TestSetPinnedIsIdempotent(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	saves := f.store.saves

	require.NoError(t, f.svc.SetPinned(ctx, "alice", conv.ID, true))
	require.NoError(t, f.svc.SetPinned(ctx, "alice", conv.ID, true))
	assert.Equal(t, saves+1, f.store.saves)

	stored := f.store.conversations[conv.ID]
	p, _ := stored.Participant("alice")
	assert.True(t, p.IsPinned)
	p, _ = stored.Participant("bob")
	assert.False(t, p.IsPinned)

	require.NoError(t, f.svc.SetPinned(ctx, "alice", conv.ID, false))
	stored = f.store.conversations[conv.ID]
	p, _ = stored.Participant("alice")
	assert.False(t, p.IsPinned)
}

func TestSendPublishesToConversationRoom(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	msg, err := f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: "  hi  "})
	require.NoError(t, err)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "hi", *msg.Content)
	assert.Equal(t, models.MessageTypeMessage, msg.Type)

	stored := f.store.conversations[conv.ID]
	require.NotNil(t, stored.LastMessageID)
	assert.Equal(t, msg.ID, *stored.LastMessageID)

	events := f.rooms.all()
	require.Len(t, events, 1)
	assert.Equal(t, models.ConversationRoom(conv.ID), events[0].Room)
	assert.Equal(t, models.EventGetMessage, events[0].Event)
}

func TestSendToMissingConversationWritesNothing(t *testing.T) {
	f := newFixture("alice")
	_, err := f.svc.Send(context.Background(), SendInput{
		SenderID:       "alice",
		ConversationID: "missing",
		Content:        "hi",
		Upload:         &media.File{Name: "a.png", Reader: strings.NewReader("x")},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, f.store.messages)
	assert.Empty(t, f.media.saved)
	assert.Empty(t, f.rooms.all())
}

func TestSendValidation(t *testing.T) {
	f := newFixture("alice", "bob", "mallory")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: "   "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: strings.Repeat("é", maxContentLength+1)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: "x", Type: "sticker"})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "mallory", ConversationID: conv.ID, Content: "x"})
	assert.ErrorIs(t, err, ErrForbidden)

	f.media.saveErr = media.ErrUnsupportedType
	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Upload: &media.File{Name: "a.txt", Reader: strings.NewReader("x")}})
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, f.store.messages)
}

func TestSendReplyMustStayInConversation(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	ctx := context.Background()
	ab, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	ac, err := f.svc.CreateConversation(ctx, "alice", []string{"carol"}, "")
	require.NoError(t, err)

	original, err := f.svc.Send(ctx, SendInput{SenderID: "bob", ConversationID: ab.ID, Content: "question"})
	require.NoError(t, err)

	reply, err := f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: ab.ID, Content: "answer", ReplyTo: original.ID})
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeReply, reply.Type)
	require.NotNil(t, reply.ReplyTo)
	assert.Equal(t, original.ID, *reply.ReplyTo)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: ac.ID, Content: "x", ReplyTo: original.ID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: ab.ID, Content: "x", ReplyTo: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReadRecordsOnce(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	msg, err := f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: "hi"})
	require.NoError(t, err)

	read, err := f.svc.Read(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, read.ReadBy)

	read, err = f.svc.Read(ctx, "bob", msg.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, read.ReadBy)

	var reads int
	for _, e := range f.rooms.all() {
		if e.Event == models.EventReadMessage {
			reads++
			assert.Equal(t, models.ConversationRoom(conv.ID), e.Room)
		}
	}
	assert.Equal(t, 1, reads)

	_, err = f.svc.Read(ctx, "bob", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHideOnlyAffectsRequester(t *testing.T) {
	f := newFixture("alice", "bob", "mallory")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	msg, err := f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: "oops"})
	require.NoError(t, err)

	require.NoError(t, f.svc.Hide(ctx, "alice", msg.ID))
	assert.ErrorIs(t, f.svc.Hide(ctx, "alice", msg.ID), ErrConflict)
	assert.ErrorIs(t, f.svc.Hide(ctx, "mallory", msg.ID), ErrForbidden)

	alicePage, err := f.svc.ListMessages(ctx, "alice", conv.ID, pagination.Parse("1", "10"))
	require.NoError(t, err)
	assert.Empty(t, alicePage.Data)

	bobPage, err := f.svc.ListMessages(ctx, "bob", conv.ID, pagination.Parse("1", "10"))
	require.NoError(t, err)
	require.Len(t, bobPage.Data, 1)
	assert.Equal(t, msg.ID, bobPage.Data[0].ID)
}

func TestListMessagesPaginatesNewestFirst(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	var last models.Message
	for i := 0; i < 25; i++ {
		last, err = f.svc.Send(ctx, SendInput{SenderID: "alice", ConversationID: conv.ID, Content: "m"})
		require.NoError(t, err)
	}

	page, err := f.svc.ListMessages(ctx, "bob", conv.ID, pagination.Parse("1", "10"))
	require.NoError(t, err)
	assert.Equal(t, 25, page.TotalItems)
	assert.Equal(t, 3, page.TotalPages)
	assert.Len(t, page.Data, 10)
	assert.Equal(t, last.ID, page.Data[0].ID)

	page, err = f.svc.ListMessages(ctx, "bob", conv.ID, pagination.Parse("3", "10"))
	require.NoError(t, err)
	assert.Len(t, page.Data, 5)
}

func TestGroupScenario(t *testing.T) {
	f := newFixture("alice", "bob", "carol", "dave")
	ctx := context.Background()

	group, err := f.svc.CreateConversation(ctx, "alice", []string{"bob", "carol"}, "friends")
	require.NoError(t, err)
	require.True(t, group.IsGroupChat)

	require.NoError(t, f.svc.Leave(ctx, "carol", group.ID))

	updated, err := f.svc.AddMembers(ctx, "alice", group.ID, []string{"carol", "dave"})
	require.NoError(t, err)
	assert.Len(t, updated.Participants, 4)
	stored := f.store.conversations[group.ID]
	assert.Len(t, stored.Participants, 4)
	assert.Equal(t, models.ParticipantKey([]string{"alice", "bob", "carol", "dave"}), stored.ParticipantKey)

	name := "best friends"
	edited, err := f.svc.EditGroup(ctx, EditGroupInput{
		RequesterID:    "dave",
		ConversationID: group.ID,
		Name:           &name,
		Image:          &media.File{Name: "g.png", Reader: strings.NewReader("png")},
	})
	require.NoError(t, err)
	assert.Equal(t, name, *edited.ChatName)
	require.NotNil(t, edited.ChatImage)
	first := *edited.ChatImage

	_, err = f.svc.EditGroup(ctx, EditGroupInput{
		RequesterID:    "bob",
		ConversationID: group.ID,
		Image:          &media.File{Name: "h.png", Reader: strings.NewReader("png")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{first}, f.media.deleted)
}

func TestAddMembersRejectsDirectConversations(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	ctx := context.Background()
	direct, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	_, err = f.svc.AddMembers(ctx, "alice", direct.ID, []string{"carol"})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.AddMembers(ctx, "alice", direct.ID, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAddMembersConflictWithExistingSet(t *testing.T) {
	f := newFixture("alice", "bob", "carol", "dave")
	ctx := context.Background()
	_, err := f.svc.CreateConversation(ctx, "alice", []string{"bob", "carol", "dave"}, "")
	require.NoError(t, err)
	small, err := f.svc.CreateConversation(ctx, "alice", []string{"bob", "carol"}, "")
	require.NoError(t, err)

	_, err = f.svc.AddMembers(ctx, "alice", small.ID, []string{"dave"})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestEditGroupValidation(t *testing.T) {
	f := newFixture("alice", "bob", "carol")
	ctx := context.Background()
	group, err := f.svc.CreateConversation(ctx, "alice", []string{"bob", "carol"}, "")
	require.NoError(t, err)
	direct, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	_, err = f.svc.EditGroup(ctx, EditGroupInput{RequesterID: "alice", ConversationID: group.ID})
	assert.ErrorIs(t, err, ErrValidation)

	long := strings.Repeat("n", maxChatNameLength+1)
	_, err = f.svc.EditGroup(ctx, EditGroupInput{RequesterID: "alice", ConversationID: group.ID, Name: &long})
	assert.ErrorIs(t, err, ErrValidation)

	name := "x"
	_, err = f.svc.EditGroup(ctx, EditGroupInput{RequesterID: "alice", ConversationID: direct.ID, Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSendTweetFansOut(t *testing.T) {
	f := newFixture("alice", "bob", "carol", "dave")
	ctx := context.Background()
	existing, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)
	group, err := f.svc.CreateConversation(ctx, "alice", []string{"carol", "dave"}, "")
	require.NoError(t, err)

	sent, err := f.svc.SendTweet(ctx, SendTweetInput{
		SenderID:        "alice",
		TweetID:         "tweet-1",
		UserIDs:         []string{"bob", "carol"},
		ConversationIDs: []string{group.ID, existing.ID},
	})
	require.NoError(t, err)
	assert.Len(t, sent, 3)
	for _, m := range sent {
		assert.Equal(t, models.MessageTypeTweetShare, m.Type)
		require.NotNil(t, m.TweetID)
		assert.Equal(t, "tweet-1", *m.TweetID)
	}
	_, found, err := f.resolver.FindDirect(ctx, "alice", "carol")
	require.NoError(t, err)
	assert.True(t, found)

	_, err = f.svc.SendTweet(ctx, SendTweetInput{SenderID: "alice", TweetID: "tweet-1"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSendTweetReportsPartialFailure(t *testing.T) {
	f := newFixture("alice", "bob")
	ctx := context.Background()
	sent, err := f.svc.SendTweet(ctx, SendTweetInput{
		SenderID:        "alice",
		TweetID:         "tweet-2",
		UserIDs:         []string{"bob"},
		ConversationIDs: []string{"missing"},
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Len(t, sent, 1)
}

func TestGetConversationRequiresMembership(t *testing.T) {
	f := newFixture("alice", "bob", "mallory")
	ctx := context.Background()
	conv, err := f.svc.CreateConversation(ctx, "alice", []string{"bob"}, "")
	require.NoError(t, err)

	got, err := f.svc.GetConversation(ctx, "bob", conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)

	_, err = f.svc.GetConversation(ctx, "mallory", conv.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetConversation(ctx, "bob", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NotErrorIs(t, err, repositories.ErrConversationNotFound)
}
