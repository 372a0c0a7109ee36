package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/example/examprep/internal/clock"
	"github.com/example/examprep/internal/database"
	"github.com/example/examprep/internal/progress"
	"github.com/example/examprep/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent map[string]int
}

func (n *recordingNotifier) SendReminders(userID string, count int) error {
	n.sent[userID] = count
	return nil
}

func newManager(t *testing.T, c clock.Clock) *progress.Manager {
	t.Helper()
	db, err := database.Connect(database.Config{Type: database.TypeSQLite, Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return progress.NewManager(progress.Deps{Repo: database.NewKVRepository(db), Clock: c})
}

func TestRemindersOnlyForDueReviews(t *testing.T) {
	mock := clock.NewMock(time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local))
	manager := newManager(t, mock)
	ctx := context.Background()

	busy, err := manager.Session(ctx, "busy")
	require.NoError(t, err)
	_, err = busy.RecordAnswer(ctx, progress.Answer{Subject: models.SubjectEngels, QuestionID: 1})
	require.NoError(t, err)
	_, err = busy.RecordAnswer(ctx, progress.Answer{Subject: models.SubjectBiologie, QuestionID: 2})
	require.NoError(t, err)
	_, err = manager.Session(ctx, "idle")
	require.NoError(t, err)

	notifier := &recordingNotifier{sent: map[string]int{}}
	s := New(manager, notifier, Config{}, nil)
	s.now = mock.Now

	s.sendReminders()
	assert.Empty(t, notifier.sent, "nothing is due on the day of the mistake")

	mock.Advance(24 * time.Hour)
	s.sendReminders()
	assert.Equal(t, map[string]int{"busy": 2}, notifier.sent)
}

func TestRemindersRespectWindow(t *testing.T) {
	mock := clock.NewMock(time.Date(2026, 3, 3, 23, 30, 0, 0, time.Local))
	manager := newManager(t, mock)
	ctx := context.Background()

	session, err := manager.Session(ctx, "late")
	require.NoError(t, err)
	_, err = session.RecordAnswer(ctx, progress.Answer{Subject: models.SubjectEngels, QuestionID: 1})
	require.NoError(t, err)
	mock.Advance(24 * time.Hour)

	notifier := &recordingNotifier{sent: map[string]int{}}
	s := New(manager, notifier, Config{StartHour: 8, EndHour: 21}, nil)
	s.now = mock.Now

	assert.True(t, s.inWindow(8))
	assert.True(t, s.inWindow(21))
	assert.False(t, s.inWindow(23))

	s.sendReminders()
	assert.Empty(t, notifier.sent)

	require.NoError(t, s.RunManualCheck(ctx, "late"))
	assert.Equal(t, 1, notifier.sent["late"])
}

func TestStartSchedulesJobs(t *testing.T) {
	manager := newManager(t, clock.New())

	withReminders := New(manager, &recordingNotifier{sent: map[string]int{}}, Config{}, nil)
	require.NoError(t, withReminders.Start())
	defer withReminders.Stop()
	assert.Equal(t, 2, withReminders.Jobs())

	cadenceOnly := New(manager, nil, Config{CadenceEvery: time.Hour}, nil)
	require.NoError(t, cadenceOnly.Start())
	defer cadenceOnly.Stop()
	assert.Equal(t, 1, cadenceOnly.Jobs())
	assert.NoError(t, cadenceOnly.RunManualCheck(context.Background(), "anyone"))
}
