package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tgsforge/tgsforge/internal/config"
	"github.com/tgsforge/tgsforge/internal/i18n"
	"github.com/tgsforge/tgsforge/internal/moderation"
	"github.com/tgsforge/tgsforge/internal/telegram"
	"github.com/tgsforge/tgsforge/internal/testutil"
)

const testOwnerID = int64(1000)

func newTestBot(t *testing.T, api *testutil.MockBotAPI, dl *testutil.MockFileDownloader, conv *testutil.MockConverter) *Bot {
	t.Helper()

	cfg := &config.Config{
		Bot: config.BotConfig{
			OwnerID:        testOwnerID,
			Language:       "en",
			BatchWait:      "20ms",
			BatchTimeout:   "5s",
			FileDelay:      "1ms",
			BroadcastDelay: "1ms",
			MaxBatchSize:   15,
		},
	}
	cfg.Limits.MaxFileSize = 5 * 1024 * 1024

	translator, err := i18n.NewTranslator("en")
	require.NoError(t, err)

	store := moderation.NewStore(testOwnerID)
	return New(discardLogger(), cfg, api, dl, conv, store, translator)
}

func textMessage(userID, chatID int64, text string) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: userID},
			Chat:      &telegram.Chat{ID: chatID},
			Text:      text,
		},
	}
}

func expectReply(api *testutil.MockBotAPI, substr string) *mock.Call {
	return api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req telegram.SendMessageRequest) bool {
		return strings.Contains(req.Text, substr)
	})).Return(&telegram.Message{MessageID: 99}, nil)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text    string
		command string
		args    string
		ok      bool
	}{
		{"/start", "start", "", true},
		{"/Start", "start", "", true},
		{"/ban 42", "ban", "42", true},
		{"/ban@tgsforge_bot 42", "ban", "42", true},
		{"/broadcast hello  world", "broadcast", "hello  world", true},
		{"hello", "", "", false},
		{"", "", "", false},
		{"/", "", "", false},
	}
	for _, tt := range tests {
		command, args, ok := parseCommand(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.command, command, tt.text)
		assert.Equal(t, tt.args, args, tt.text)
	}
}

func TestStartCommand(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "👋")
	b.processUpdate(context.Background(), textMessage(5, 5, "/start"))

	api.AssertExpectations(t)
	assert.False(t, b.store.IsAdmin(5))
}

func TestBannedUserIsSilentlyIgnored(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	require.NoError(t, b.store.Ban(testOwnerID, 5))

	b.processUpdate(context.Background(), textMessage(5, 5, "/start"))
	b.processUpdate(context.Background(), textMessage(5, 5, "hello"))

	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestAdminCommandsDeniedForRegularUser(t *testing.T) {
	for _, command := range []string{"/ban 7", "/unban 7", "/stats", "/adminhelp", "/broadcast hi"} {
		api := &testutil.MockBotAPI{}
		b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

		expectReply(api, "don't have permission")
		b.processUpdate(context.Background(), textMessage(5, 5, command))
		api.AssertExpectations(t)
	}
}

func TestOwnerOnlyCommandsDeniedForAdmin(t *testing.T) {
	for _, command := range []string{"/makeadmin 7", "/removeadmin 7"} {
		api := &testutil.MockBotAPI{}
		b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

		require.NoError(t, b.store.MakeAdmin(testOwnerID, 5))

		expectReply(api, "Only the bot owner")
		b.processUpdate(context.Background(), textMessage(5, 5, command))
		api.AssertExpectations(t)
	}
}

func TestBanCommand(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "has been banned")
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/ban 42"))

	api.AssertExpectations(t)
	assert.True(t, b.store.IsBanned(42))
}

func TestBanCommandRejectsOwnerAndSelf(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})
	require.NoError(t, b.store.MakeAdmin(testOwnerID, 5))

	expectReply(api, "Cannot ban the bot owner").Once()
	b.processUpdate(context.Background(), textMessage(5, 5, "/ban 1000"))

	expectReply(api, "cannot ban yourself").Once()
	b.processUpdate(context.Background(), textMessage(5, 5, "/ban 5"))

	api.AssertExpectations(t)
	assert.False(t, b.store.IsBanned(testOwnerID))
	assert.False(t, b.store.IsBanned(5))
}

func TestBanCommandInvalidArgument(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "Usage: /ban").Once()
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/ban"))

	expectReply(api, "Invalid user ID").Once()
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/ban bob"))

	api.AssertExpectations(t)
}

func TestUnbanCommand(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})
	require.NoError(t, b.store.Ban(testOwnerID, 42))

	expectReply(api, "has been unbanned")
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/unban 42"))

	api.AssertExpectations(t)
	assert.False(t, b.store.IsBanned(42))
}

func TestMakeAdminThenNewAdminCanBan(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "is now an admin").Once()
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/makeadmin 5"))

	expectReply(api, "has been banned").Once()
	b.processUpdate(context.Background(), textMessage(5, 5, "/ban 42"))

	api.AssertExpectations(t)
	assert.True(t, b.store.IsBanned(42))
}

func TestStatsCommand(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	b.store.Touch(1)
	b.store.Touch(2)
	require.NoError(t, b.store.Ban(testOwnerID, 2))

	expectReply(api, "Bot Statistics")
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/stats"))

	api.AssertExpectations(t)
}

func TestAdminHelpIncludesOwnerSectionForOwner(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "/makeadmin")
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/adminhelp"))
	api.AssertExpectations(t)
}

func TestBroadcastCommand(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	b.store.Touch(1)
	b.store.Touch(2)
	b.store.Touch(3)
	require.NoError(t, b.store.Ban(testOwnerID, 3))

	// Progress message to the admin's chat.
	expectReply(api, "Broadcasting to 3 users")

	var delivered []int64
	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req telegram.SendMessageRequest) bool {
		return req.Text == "hello everyone"
	})).Run(func(args mock.Arguments) {
		req := args.Get(1).(telegram.SendMessageRequest)
		delivered = append(delivered, req.ChatID)
	}).Return(&telegram.Message{MessageID: 50}, nil)

	api.On("EditMessageText", mock.Anything, mock.MatchedBy(func(req telegram.EditMessageTextRequest) bool {
		return strings.Contains(req.Text, "Sent: 3") && strings.Contains(req.Text, "Failed: 0")
	})).Return(nil)

	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/broadcast hello everyone"))

	api.AssertExpectations(t)
	// Banned users are excluded, the owner themselves is a known user.
	assert.ElementsMatch(t, []int64{1, 2, testOwnerID}, delivered)
}

func TestBroadcastCountsFailures(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	b.store.Touch(1)
	b.store.Touch(2)

	expectReply(api, "Broadcasting to 3 users")

	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req telegram.SendMessageRequest) bool {
		return req.Text == "hi" && req.ChatID == 2
	})).Return(nil, assert.AnError)
	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req telegram.SendMessageRequest) bool {
		return req.Text == "hi" && req.ChatID != 2
	})).Return(&telegram.Message{MessageID: 50}, nil)

	api.On("EditMessageText", mock.Anything, mock.MatchedBy(func(req telegram.EditMessageTextRequest) bool {
		return strings.Contains(req.Text, "Sent: 2") && strings.Contains(req.Text, "Failed: 1")
	})).Return(nil)

	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/broadcast hi"))

	api.AssertExpectations(t)
}

func TestBroadcastUsage(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "Usage: /broadcast")
	b.processUpdate(context.Background(), textMessage(testOwnerID, 1, "/broadcast"))
	api.AssertExpectations(t)
}
