package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/soma/core"
	appfs "github.com/trezcool/soma/fs"
	"github.com/trezcool/soma/testutil"
)

func TestParseEmailTemplates(t *testing.T) {
	conf := core.NewTestConfig()
	logger := new(testutil.Logger)
	core.ParseEmailTemplates(appfs.FS, conf, logger)
	require.Empty(t, logger.Errors)

	tests := []struct {
		name     string
		data     interface{}
		contains string
	}{
		{
			name:     "welcome",
			data:     map[string]string{"Name": "Ada"},
			contains: "Welcome to Soma, Ada!",
		},
		{
			name:     "password_reset",
			data:     map[string]string{"Name": "Ada", "UID": "u-1", "Token": "tok"},
			contains: "http://localhost:3000/password-reset/u-1/tok",
		},
		{
			name: "weekly_digest",
			data: map[string]interface{}{
				"Name": "Ada", "WeekStart": "2026-03-02", "WeekEnd": "2026-03-08",
				"Focus": "2h 05m", "DeltaText": "+25%", "TasksCompleted": 3,
				"CurrentStreak": 4, "Level": 2, "LevelTitle": "Apprentice", "XP": 180,
			},
			contains: "Focus time: 2h 05m",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &core.EmailMessage{Subject: tt.name, TemplateName: tt.name, TemplateData: tt.data}
			require.NoError(t, msg.Render())
			assert.Contains(t, msg.TextContent, tt.contains)
			assert.NotEmpty(t, msg.HTMLContent)
			assert.Contains(t, msg.HTMLContent, "<html")
		})
	}
}
