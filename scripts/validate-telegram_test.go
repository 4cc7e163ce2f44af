package main

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/irfndi/stock-monitor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBot is a mock implementation of the telegram bot
type MockBot struct {
	mock.Mock
}

func (m *MockBot) GetMe(ctx context.Context) (*models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockBot) SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

var validConfig = config.TelegramConfig{BotToken: "123:abc", ChatID: 42}

func TestValidate_MissingChat(t *testing.T) {
	b := &MockBot{}
	err := validate(context.Background(), config.TelegramConfig{BotToken: "123:abc"}, b, false, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TELEGRAM_CHAT_ID")
	b.AssertNotCalled(t, "GetMe", mock.Anything)
}

func TestValidate_GetMe(t *testing.T) {
	b := &MockBot{}
	b.On("GetMe", mock.Anything).Return(&models.User{ID: 7, Username: "monitor_bot"}, nil)

	var out bytes.Buffer
	require.NoError(t, validate(context.Background(), validConfig, b, false, &out))
	assert.Contains(t, out.String(), "@monitor_bot")
	assert.Contains(t, out.String(), "chat 42")
	b.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestValidate_GetMeFails(t *testing.T) {
	b := &MockBot{}
	b.On("GetMe", mock.Anything).Return(nil, errors.New("unauthorized"))

	err := validate(context.Background(), validConfig, b, false, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}

func TestValidate_SendTestMessage(t *testing.T) {
	b := &MockBot{}
	b.On("GetMe", mock.Anything).Return(&models.User{ID: 7, Username: "monitor_bot"}, nil)
	b.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *bot.SendMessageParams) bool {
		return p.ChatID == int64(42) && p.ParseMode == models.ParseModeMarkdown
	})).Return(&models.Message{ID: 1}, nil)

	var out bytes.Buffer
	require.NoError(t, validate(context.Background(), validConfig, b, true, &out))
	assert.Contains(t, out.String(), "Test message sent")
	b.AssertExpectations(t)
}

func TestValidate_SendFails(t *testing.T) {
	b := &MockBot{}
	b.On("GetMe", mock.Anything).Return(&models.User{ID: 7}, nil)
	b.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("chat not found"))

	err := validate(context.Background(), validConfig, b, true, &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
