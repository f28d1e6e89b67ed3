package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/store"
	"github.com/banachtech/orex/internal/store/mock"
)

func TestMockStoreSatisfiesStoreInterface(t *testing.T) {
	var _ store.Store = (*mock.MockStore)(nil)
}

func TestMockStoreRegisterUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mock.NewMockStore(ctrl)
	want := store.User{ID: 1, Username: "alice", APIKeyHash: "hash", CreatedAt: time.Now()}
	ms.EXPECT().
		RegisterUser(gomock.Any(), "alice", "hash").
		Return(want, nil)

	got, err := ms.RegisterUser(context.Background(), "alice", "hash")
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestMockStoreGetRunPropagatesError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mock.NewMockStore(ctrl)
	ms.EXPECT().
		GetRun(gomock.Any(), "missing").
		Return(store.Run{}, context.DeadlineExceeded)

	_, err := ms.GetRun(context.Background(), "missing")
	require.Error(t, err)
}

func TestMockStoreCreateRun(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mock.NewMockStore(ctrl)
	want := store.Run{ID: "run-1", ConfigPath: "config.xml", Status: store.RunPending}
	ms.EXPECT().
		CreateRun(gomock.Any(), "run-1", "config.xml").
		Return(want, nil)

	got, err := ms.CreateRun(context.Background(), "run-1", "config.xml")
	require.NoError(t, err)
	require.Equal(t, store.RunPending, got.Status)
}

func TestMockStoreUpdateRunStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ms := mock.NewMockStore(ctrl)
	arg := store.UpdateRunStatusParams{ID: "run-1", Status: store.RunCompleted, ReportDir: "/tmp/run-1"}
	want := store.Run{ID: "run-1", Status: store.RunCompleted, ReportDir: "/tmp/run-1"}
	ms.EXPECT().
		UpdateRunStatus(gomock.Any(), arg).
		Return(want, nil)

	got, err := ms.UpdateRunStatus(context.Background(), arg)
	require.NoError(t, err)
	require.Equal(t, store.RunCompleted, got.Status)
	require.Equal(t, "/tmp/run-1", got.ReportDir)
}

func TestRunStatusConstants(t *testing.T) {
	require.Equal(t, store.RunStatus("pending"), store.RunPending)
	require.Equal(t, store.RunStatus("running"), store.RunRunning)
	require.Equal(t, store.RunStatus("completed"), store.RunCompleted)
	require.Equal(t, store.RunStatus("failed"), store.RunFailed)
}
