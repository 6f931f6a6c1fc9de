package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStartReply(t *testing.T) {
	tests := []struct {
		name string
		text string
		ok   bool
	}{
		{"команда", "/start", true},
		{"с именем бота", "/start@habit_bot", true},
		{"с параметром", "/start link", true},
		{"другая команда", "/help", false},
		{"текст", "привет", false},
		{"пусто", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, ok := StartReply(4242, tt.text)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Contains(t, reply, "4242")
			}
		})
	}
}

func TestNewTelegram_BadToken(t *testing.T) {
	_, err := NewTelegram("not-a-token")
	assert.Error(t, err)
}
