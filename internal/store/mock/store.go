// Package mock hand-authors the gomock-generated shape mockgen would have
// produced for store.Store, grounded on the teacher's db/mock convention —
// reconstructed by hand since no mockgen invocation is available and no
// pre-generated mock file existed in the retrieved fragment.
package mock

import (
	"context"
	"reflect"

	"github.com/golang/mock/gomock"

	"github.com/banachtech/orex/internal/store"
)

// MockStore is a mock of the store.Store interface.
type MockStore struct {
	ctrl     *gomock.Controller
	recorder *MockStoreMockRecorder
}

// MockStoreMockRecorder records expected calls on MockStore.
type MockStoreMockRecorder struct {
	mock *MockStore
}

// NewMockStore builds a new mock instance tied to ctrl.
func NewMockStore(ctrl *gomock.Controller) *MockStore {
	mock := &MockStore{ctrl: ctrl}
	mock.recorder = &MockStoreMockRecorder{mock}
	return mock
}

// EXPECT returns the object that allows setting up call expectations.
func (m *MockStore) EXPECT() *MockStoreMockRecorder {
	return m.recorder
}

func (m *MockStore) CreateUser(ctx context.Context, arg store.CreateUserParams) (store.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CreateUser", ctx, arg)
	ret0, _ := ret[0].(store.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) CreateUser(ctx, arg interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CreateUser", reflect.TypeOf((*MockStore)(nil).CreateUser), ctx, arg)
}

func (m *MockStore) GetUserByAPIKeyHash(ctx context.Context, hash string) (store.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetUserByAPIKeyHash", ctx, hash)
	ret0, _ := ret[0].(store.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) GetUserByAPIKeyHash(ctx, hash interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetUserByAPIKeyHash", reflect.TypeOf((*MockStore)(nil).GetUserByAPIKeyHash), ctx, hash)
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (store.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetUserByUsername", ctx, username)
	ret0, _ := ret[0].(store.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) GetUserByUsername(ctx, username interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetUserByUsername", reflect.TypeOf((*MockStore)(nil).GetUserByUsername), ctx, username)
}

func (m *MockStore) CreateRun(ctx context.Context, id, configPath string) (store.Run, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "CreateRun", ctx, id, configPath)
	ret0, _ := ret[0].(store.Run)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) CreateRun(ctx, id, configPath interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "CreateRun", reflect.TypeOf((*MockStore)(nil).CreateRun), ctx, id, configPath)
}

func (m *MockStore) GetRun(ctx context.Context, id string) (store.Run, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "GetRun", ctx, id)
	ret0, _ := ret[0].(store.Run)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) GetRun(ctx, id interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetRun", reflect.TypeOf((*MockStore)(nil).GetRun), ctx, id)
}

func (m *MockStore) UpdateRunStatus(ctx context.Context, arg store.UpdateRunStatusParams) (store.Run, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "UpdateRunStatus", ctx, arg)
	ret0, _ := ret[0].(store.Run)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) UpdateRunStatus(ctx, arg interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "UpdateRunStatus", reflect.TypeOf((*MockStore)(nil).UpdateRunStatus), ctx, arg)
}

func (m *MockStore) RegisterUser(ctx context.Context, username, apiKeyHash string) (store.User, error) {
	m.ctrl.T.Helper()
	ret := m.ctrl.Call(m, "RegisterUser", ctx, username, apiKeyHash)
	ret0, _ := ret[0].(store.User)
	ret1, _ := ret[1].(error)
	return ret0, ret1
}

func (mr *MockStoreMockRecorder) RegisterUser(ctx, username, apiKeyHash interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RegisterUser", reflect.TypeOf((*MockStore)(nil).RegisterUser), ctx, username, apiKeyHash)
}
