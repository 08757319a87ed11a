// Package testutil provides shared mocks for unit tests.
package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/tgsforge/tgsforge/internal/converter"
	"github.com/tgsforge/tgsforge/internal/telegram"
)

// MockBotAPI is a mock implementation of telegram.BotAPI.
type MockBotAPI struct {
	mock.Mock
}

func (m *MockBotAPI) SendMessage(ctx context.Context, req telegram.SendMessageRequest) (*telegram.Message, error) {
	args := m.Called(ctx, req)
	var msg *telegram.Message
	if args.Get(0) != nil {
		msg = args.Get(0).(*telegram.Message)
	}
	return msg, args.Error(1)
}

func (m *MockBotAPI) EditMessageText(ctx context.Context, req telegram.EditMessageTextRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) SendDocument(ctx context.Context, req telegram.SendDocumentRequest) (*telegram.Message, error) {
	args := m.Called(ctx, req)
	var msg *telegram.Message
	if args.Get(0) != nil {
		msg = args.Get(0).(*telegram.Message)
	}
	return msg, args.Error(1)
}

func (m *MockBotAPI) SendChatAction(ctx context.Context, req telegram.SendChatActionRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) SetMyCommands(ctx context.Context, req telegram.SetMyCommandsRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) SetWebhook(ctx context.Context, req telegram.SetWebhookRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockBotAPI) GetFile(ctx context.Context, req telegram.GetFileRequest) (*telegram.File, error) {
	args := m.Called(ctx, req)
	var file *telegram.File
	if args.Get(0) != nil {
		file = args.Get(0).(*telegram.File)
	}
	return file, args.Error(1)
}

func (m *MockBotAPI) GetUpdates(ctx context.Context, req telegram.GetUpdatesRequest) ([]telegram.Update, error) {
	args := m.Called(ctx, req)
	var updates []telegram.Update
	if args.Get(0) != nil {
		updates = args.Get(0).([]telegram.Update)
	}
	return updates, args.Error(1)
}

func (m *MockBotAPI) GetToken() string {
	args := m.Called()
	return args.String(0)
}

// MockFileDownloader is a mock implementation of telegram.FileDownloader.
type MockFileDownloader struct {
	mock.Mock
}

func (m *MockFileDownloader) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	args := m.Called(ctx, fileID)
	var data []byte
	if args.Get(0) != nil {
		data = args.Get(0).([]byte)
	}
	return data, args.Error(1)
}

// MockConverter is a mock implementation of converter.Converter.
type MockConverter struct {
	mock.Mock
}

func (m *MockConverter) Convert(ctx context.Context, data []byte, filename string) (*converter.Result, error) {
	args := m.Called(ctx, data, filename)
	var res *converter.Result
	if args.Get(0) != nil {
		res = args.Get(0).(*converter.Result)
	}
	return res, args.Error(1)
}
