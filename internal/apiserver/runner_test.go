package apiserver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/store"
)

// fakeStore is a minimal in-memory store.Store, used here instead of the
// gomock-based MockStore because Runner.execute runs on its own goroutine
// and a gomock.Controller's call expectations are not meant to be
// satisfied concurrently from a background goroutine outstanding past the
// test's main flow.
type fakeStore struct {
	mu   sync.Mutex
	runs map[string]store.Run
}

func newFakeStore() *fakeStore { return &fakeStore{runs: map[string]store.Run{}} }

func (f *fakeStore) CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error) {
	return store.User{Username: arg.Username, APIKeyHash: arg.APIKeyHash}, nil
}
func (f *fakeStore) GetUserByAPIKeyHash(ctx context.Context, hash string) (store.User, error) {
	return store.User{}, errNotImplemented{}
}
func (f *fakeStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	return store.User{}, errNotImplemented{}
}
func (f *fakeStore) RegisterUser(ctx context.Context, username, apiKeyHash string) (store.User, error) {
	return store.User{Username: username, APIKeyHash: apiKeyHash}, nil
}
func (f *fakeStore) CreateRun(ctx context.Context, id, configPath string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := store.Run{ID: id, ConfigPath: configPath, Status: store.RunPending, SubmittedAt: time.Now()}
	f.runs[id] = r
	return r, nil
}
func (f *fakeStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.runs[id]
	if !ok {
		return store.Run{}, errNotImplemented{}
	}
	return r, nil
}
func (f *fakeStore) UpdateRunStatus(ctx context.Context, arg store.UpdateRunStatusParams) (store.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[arg.ID]
	r.Status = arg.Status
	r.ReportDir = arg.ReportDir
	r.Error = arg.Error
	f.runs[arg.ID] = r
	return r, nil
}

type errNotImplemented struct{}

func (errNotImplemented) Error() string { return "not implemented" }

func TestRunnerSubmitMarksFailedOnBadConfigPath(t *testing.T) {
	fs := newFakeStore()
	rn := NewRunner(fs, t.TempDir(), nil)

	id, err := rn.Submit(context.Background(), "/no/such/config.xml")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		r, err := rn.Status(context.Background(), id)
		return err == nil && r.Status == store.RunFailed
	}, 2*time.Second, 10*time.Millisecond)
}
