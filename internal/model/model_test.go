package model

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationTypeDecodesNamesAndOrdinals(t *testing.T) {
	cases := map[string]NotificationType{
		`"Urgent"`:  NotificationUrgent,
		`3`:         NotificationUrgent,
		`"Event"`:   NotificationEvent,
		`2`:         NotificationWarning,
		`"Bananas"`: NotificationInfo,
		`99`:        NotificationInfo,
		`null`:      NotificationInfo,
	}
	for raw, want := range cases {
		var got NotificationType
		require.NoError(t, json.Unmarshal([]byte(raw), &got), raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestNotificationDecode(t *testing.T) {
	raw := `{"id":"n1","title":"Exam","message":"Room 4","type":"Warning",
		"senderName":"Ivanova","createdAt":"2024-03-01T10:00:00Z","isRead":false}`

	var n Notification
	require.NoError(t, json.Unmarshal([]byte(raw), &n))
	assert.Equal(t, "n1", n.ItemID())
	assert.Equal(t, NotificationWarning, n.Type)
	assert.False(t, n.HasImage())
	assert.Equal(t, 2024, n.CreatedAt.Year())
}

func TestSentNotificationReadPercentage(t *testing.T) {
	assert.Zero(t, SentNotification{}.ReadPercentage())
	assert.InDelta(t, 25.0, SentNotification{TotalReceivers: 8, ReadReceivers: 2}.ReadPercentage(), 0.001)
}

func TestPagePages(t *testing.T) {
	assert.Equal(t, 4, Page[int]{TotalPages: 4}.Pages())
	assert.Equal(t, 3, Page[int]{TotalCount: 11, PageSize: 5}.Pages())
	assert.Equal(t, 0, Page[int]{}.Pages())

	assert.True(t, Page[int]{Items: []int{1}, Page: 1, TotalPages: 2}.HasNext())
	assert.False(t, Page[int]{Items: []int{1}, Page: 2, TotalPages: 2}.HasNext())
	assert.False(t, Page[int]{Page: 1, TotalPages: 2}.HasNext())
}

func TestFilterChangesResetPage(t *testing.T) {
	f := DefaultFilter()
	f.Page = 4

	sized, err := f.WithPageSize(20)
	require.NoError(t, err)
	assert.Equal(t, 1, sized.Page)
	assert.Equal(t, 20, sized.PageSize)

	_, err = f.WithPageSize(7)
	assert.Error(t, err)

	sorted := f.WithSort(SortByTitle, SortAscending)
	assert.Equal(t, 1, sorted.Page)
	assert.Equal(t, SortByTitle, sorted.SortBy)

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ranged := f.WithDateRange(&day, nil)
	assert.Equal(t, 1, ranged.Page)
	require.NotNil(t, ranged.StartDate)
	assert.Nil(t, ranged.EndDate)

	day = day.AddDate(1, 0, 0)
	assert.Equal(t, 2024, ranged.StartDate.Year(), "filter keeps its own copy of the bound")
}

func TestFilterNextPageSizeCycles(t *testing.T) {
	f := DefaultFilter()
	assert.Equal(t, 10, f.NextPageSize())
	f.PageSize = 20
	assert.Equal(t, 5, f.NextPageSize())
}

func TestFilterNormalized(t *testing.T) {
	f := Filter{}.Normalized()
	assert.Equal(t, DefaultFilter(), f)
}

func TestDateRangeResolve(t *testing.T) {
	// Wednesday.
	now := time.Date(2024, 3, 13, 15, 30, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		r          DateRange
		start, end time.Time
	}{
		{RangeToday, day(2024, 3, 13), day(2024, 3, 13)},
		{RangeYesterday, day(2024, 3, 12), day(2024, 3, 12)},
		{RangeThisWeek, day(2024, 3, 11), day(2024, 3, 13)},
		{RangeLastWeek, day(2024, 3, 4), day(2024, 3, 10)},
		{RangeThisMonth, day(2024, 3, 1), day(2024, 3, 31)},
		{RangeLastMonth, day(2024, 2, 1), day(2024, 2, 29)},
		{RangeThisYear, day(2024, 1, 1), day(2024, 3, 13)},
		{RangeLastYear, day(2023, 1, 1), day(2023, 12, 31)},
	}
	for _, tc := range cases {
		t.Run(string(tc.r), func(t *testing.T) {
			start, end := tc.r.Resolve(now)
			require.NotNil(t, start)
			require.NotNil(t, end)
			assert.Equal(t, tc.start, *start)
			assert.Equal(t, tc.end, *end)
		})
	}

	start, end := RangeAll.Resolve(now)
	assert.Nil(t, start)
	assert.Nil(t, end)
}

func TestDateRangeWeekStartsMonday(t *testing.T) {
	sunday := time.Date(2024, 3, 17, 9, 0, 0, 0, time.UTC)
	start, _ := RangeThisWeek.Resolve(sunday)
	assert.Equal(t, time.Monday, start.Weekday())
	assert.Equal(t, 11, start.Day())
}

func TestDateRangeNextSkipsCustom(t *testing.T) {
	assert.Equal(t, RangeToday, RangeAll.Next())
	assert.Equal(t, RangeAll, RangeLastYear.Next())
	assert.Equal(t, "Last week", RangeLastWeek.Label())
}

func TestUserFullName(t *testing.T) {
	assert.Equal(t, "Anna Petrova", User{FirstName: "Anna", LastName: "Petrova"}.FullName())
	assert.Equal(t, "Anna", User{FirstName: "Anna"}.FullName())
	assert.True(t, RoleTeacher.CanSend())
	assert.False(t, RoleStudent.CanSend())
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultPageSize, cfg.Display.PageSize)
	assert.Equal(t, DefaultReconnectDelaysMs, cfg.Push.ReconnectDelaysMs)
	assert.Equal(t, "keyring", cfg.Credentials.Backend)
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "api:\n  base_url: https://school.example/api\ndisplay:\n  page_size: 10\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("SCFET_CREDENTIALS_BACKEND", "memory")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://school.example/api", cfg.API.BaseURL)
	assert.Equal(t, 10, cfg.Display.PageSize)
	assert.Equal(t, "memory", cfg.Credentials.Backend)
	assert.Equal(t, 30, cfg.API.TimeoutSec)
}

func TestLoadConfigRejectsBadPageSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("display:\n  page_size: 7\n"), 0o600))

	_, err := LoadConfig(path)
	assert.ErrorContains(t, err, "page_size")
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	cfg.API.BaseURL = "https://other.example/api"
	cfg.Display.PageSize = 20

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example/api", loaded.API.BaseURL)
	assert.Equal(t, 20, loaded.Display.PageSize)
}
