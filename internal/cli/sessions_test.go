package cli

import (
	"testing"
	"time"

	"github.com/fmueller/meetscribe/internal/session"
	"github.com/stretchr/testify/require"
)

func seedSessions(t *testing.T, app *appState) {
	t.Helper()

	store, err := session.OpenStore(app.sessionDir)
	require.NoError(t, err)

	standup, err := store.Create(time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local))
	require.NoError(t, err)
	require.NoError(t, standup.SaveTranscript("Hello world"))
	require.NoError(t, standup.SetTitle("Standup"))

	_, err = store.Create(time.Date(2024, 3, 5, 16, 30, 0, 0, time.Local))
	require.NoError(t, err)
}

func TestSessionsCommandListsMostRecentFirst(t *testing.T) {
	t.Parallel()

	app, _ := testApp(t, nil)
	seedSessions(t, app)

	stdout, _, err := runApp(t, app, []string{"sessions"})
	require.NoError(t, err)
	require.Equal(t,
		"2024_03_05_16_30_00  2024/03/05 16:30:00  (untitled)\n"+
			"2024_01_02_10_00_00  2024/01/02 10:00:00  Standup\n",
		stdout)
}

func TestSessionsCommandEmpty(t *testing.T) {
	t.Parallel()

	stdout, _, err := runCommand(t, []string{"sessions"})
	require.NoError(t, err)
	require.Equal(t, "No sessions recorded yet.\n", stdout)
}

func TestShowCommand(t *testing.T) {
	t.Parallel()

	app, _ := testApp(t, nil)
	seedSessions(t, app)

	stdout, _, err := runApp(t, app, []string{"show", "2024_01_02_10_00_00"})
	require.NoError(t, err)
	require.Equal(t, "2024/01/02 10:00:00  Standup\n\nHello world\n", stdout)

	stdout, _, err = runApp(t, app, []string{"show", "latest"})
	require.NoError(t, err)
	require.Equal(t, "2024/03/05 16:30:00  (untitled)\n\n(no transcript)\n", stdout)

	stdout, _, err = runApp(t, app, []string{"show", "2024/01/02 10:00:00"})
	require.NoError(t, err)
	require.Equal(t, "2024/01/02 10:00:00  Standup\n\nHello world\n", stdout)

	_, _, err = runApp(t, app, []string{"show", "1999/01/01 00:00:00"})
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestTitleCommand(t *testing.T) {
	t.Parallel()

	app, _ := testApp(t, nil)
	seedSessions(t, app)

	stdout, _, err := runApp(t, app, []string{"title", "2024_03_05_16_30_00", "Sprint", "retro"})
	require.NoError(t, err)
	require.Equal(t, "2024_03_05_16_30_00 titled \"Sprint retro\"\n", stdout)

	_, _, err = runApp(t, app, []string{"title", "2024_03_05_16_30_00", "Again"})
	require.ErrorIs(t, err, session.ErrTitleExists)

	_, _, err = runApp(t, app, []string{"title", "2024/03/05 16:30:00", "Again"})
	require.ErrorIs(t, err, session.ErrTitleExists)

	_, _, err = runApp(t, app, []string{"title", "2024_01_02_10_00_00", "   "})
	require.ErrorIs(t, err, session.ErrEmptyTitle)
}
