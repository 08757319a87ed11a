package bot

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tgsforge/tgsforge/internal/converter"
	"github.com/tgsforge/tgsforge/internal/telegram"
	"github.com/tgsforge/tgsforge/internal/testutil"
)

func documentMessage(userID, chatID int64, name string, size int64) telegram.Update {
	return telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID: 10,
			From:      &telegram.User{ID: userID},
			Chat:      &telegram.Chat{ID: chatID},
			Document: &telegram.Document{
				FileID:   "file-" + name,
				FileName: name,
				FileSize: size,
			},
		},
	}
}

func TestHandleDocument_RejectsWrongExtensionWithoutDownload(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	b := newTestBot(t, api, dl, &testutil.MockConverter{})

	expectReply(api, "Only SVG files are accepted")
	b.processUpdate(context.Background(), documentMessage(5, 5, "photo.png", 100))

	api.AssertExpectations(t)
	dl.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything)
	assert.Equal(t, 0, b.batcher.Pending())
}

func TestHandleDocument_RejectsOversizeWithoutDownload(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	b := newTestBot(t, api, dl, &testutil.MockConverter{})

	expectReply(api, "File too large")
	b.processUpdate(context.Background(), documentMessage(5, 5, "big.svg", 6*1024*1024))

	api.AssertExpectations(t)
	dl.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything)
	assert.Equal(t, 0, b.batcher.Pending())
}

func TestHandleDocument_DownloadFailure(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	b := newTestBot(t, api, dl, &testutil.MockConverter{})

	dl.On("DownloadFile", mock.Anything, "file-a.svg").Return(nil, assert.AnError)
	expectReply(api, "Failed to download")

	b.processUpdate(context.Background(), documentMessage(5, 5, "a.svg", 100))

	api.AssertExpectations(t)
	assert.Equal(t, 0, b.batcher.Pending())
}

func TestHandleDocument_FullFlow(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	conv := &testutil.MockConverter{}
	b := newTestBot(t, api, dl, conv)

	dl.On("DownloadFile", mock.Anything, "file-a.svg").Return([]byte(validSVG), nil)

	// Status message for the new batch, then progress edits.
	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req telegram.SendMessageRequest) bool {
		return strings.Contains(req.Text, "Please wait")
	})).Return(&telegram.Message{MessageID: 777}, nil)
	api.On("EditMessageText", mock.Anything, mock.MatchedBy(func(req telegram.EditMessageTextRequest) bool {
		return req.MessageID == 777 && strings.Contains(req.Text, "Converting 1 files")
	})).Return(nil)
	api.On("SendChatAction", mock.Anything, mock.Anything).Return(nil)

	conv.On("Convert", mock.Anything, []byte(validSVG), "a.svg").
		Return(&converter.Result{TGS: []byte("tgs")}, nil)
	api.On("SendDocument", mock.Anything, mock.Anything).
		Return(&telegram.Message{MessageID: 60}, nil)

	var done sync.WaitGroup
	done.Add(1)
	api.On("EditMessageText", mock.Anything, mock.MatchedBy(func(req telegram.EditMessageTextRequest) bool {
		return req.MessageID == 777 && strings.Contains(req.Text, "1 converted")
	})).Run(func(mock.Arguments) {
		done.Done()
	}).Return(nil)

	b.processUpdate(context.Background(), documentMessage(5, 5, "a.svg", 100))
	done.Wait()

	api.AssertExpectations(t)
	conv.AssertExpectations(t)
	assert.Equal(t, 0, b.batcher.Pending())
}

func TestHandleDocument_RunningCountEdit(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	conv := &testutil.MockConverter{}
	b := newTestBot(t, api, dl, conv)

	dl.On("DownloadFile", mock.Anything, mock.Anything).Return([]byte(validSVG), nil)

	api.On("SendMessage", mock.Anything, mock.MatchedBy(func(req telegram.SendMessageRequest) bool {
		return strings.Contains(req.Text, "Please wait")
	})).Return(&telegram.Message{MessageID: 777}, nil)
	api.On("EditMessageText", mock.Anything, mock.MatchedBy(func(req telegram.EditMessageTextRequest) bool {
		return strings.Contains(req.Text, "Collecting files: 2")
	})).Return(nil)
	api.On("EditMessageText", mock.Anything, mock.Anything).Return(nil)
	api.On("SendChatAction", mock.Anything, mock.Anything).Return(nil)
	conv.On("Convert", mock.Anything, mock.Anything, mock.Anything).
		Return(&converter.Result{TGS: []byte("tgs")}, nil)
	api.On("SendDocument", mock.Anything, mock.Anything).
		Return(&telegram.Message{MessageID: 60}, nil)

	b.processUpdate(context.Background(), documentMessage(5, 5, "a.svg", 100))
	b.processUpdate(context.Background(), documentMessage(5, 5, "b.svg", 100))

	// Drop the pending batch so its timer does not outlive the test.
	b.Stop()

	api.AssertCalled(t, "EditMessageText", mock.Anything, mock.MatchedBy(func(req telegram.EditMessageTextRequest) bool {
		return strings.Contains(req.Text, "Collecting files: 2")
	}))
}

func TestBannedUserUploadProducesNoSends(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	b := newTestBot(t, api, dl, &testutil.MockConverter{})

	require.NoError(t, b.store.Ban(testOwnerID, 5))

	b.processUpdate(context.Background(), documentMessage(5, 5, "a.svg", 100))

	dl.AssertNotCalled(t, "DownloadFile", mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	api.AssertNotCalled(t, "SendDocument", mock.Anything, mock.Anything)
	assert.Equal(t, 0, b.batcher.Pending())
}

func TestUploadDuringShutdownIsDroppedSilently(t *testing.T) {
	api := &testutil.MockBotAPI{}
	dl := &testutil.MockFileDownloader{}
	b := newTestBot(t, api, dl, &testutil.MockConverter{})

	dl.On("DownloadFile", mock.Anything, mock.Anything).Return([]byte(validSVG), nil)
	b.Stop()

	b.processUpdate(context.Background(), documentMessage(5, 5, "a.svg", 100))

	api.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
	assert.Equal(t, 0, b.batcher.Pending())
}

func TestPhotoAndTextGetHints(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "as documents").Once()
	update := textMessage(5, 5, "")
	update.Message.Photo = []telegram.PhotoSize{{FileID: "p"}}
	b.processUpdate(context.Background(), update)

	expectReply(api, "Send me an SVG file").Once()
	b.processUpdate(context.Background(), textMessage(5, 5, "hello"))

	api.AssertExpectations(t)
}

func TestUserLanguageSelection(t *testing.T) {
	b := newTestBot(t, &testutil.MockBotAPI{}, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	assert.Equal(t, "en", b.userLang(&telegram.User{ID: 1}))
	assert.Equal(t, "ru", b.userLang(&telegram.User{ID: 1, LanguageCode: "ru"}))
	assert.Equal(t, "ru", b.userLang(&telegram.User{ID: 1, LanguageCode: "ru-RU"}))
	assert.Equal(t, "en", b.userLang(nil))
}

func TestUploadsMarkUserKnown(t *testing.T) {
	api := &testutil.MockBotAPI{}
	b := newTestBot(t, api, &testutil.MockFileDownloader{}, &testutil.MockConverter{})

	expectReply(api, "Only SVG files are accepted")
	b.processUpdate(context.Background(), documentMessage(5, 5, "x.txt", 10))

	stats, err := b.store.GetStats(testOwnerID)
	assert.NoError(t, err)
	assert.Equal(t, 1, stats.Known)
}
