// Package mocks provides test doubles for the serper client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	serper "github.com/mathiasgse/screenfree/pkg/serper"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, query, country, num
func (_m *MockClient) Search(ctx context.Context, query string, country string, num int) ([]serper.Result, error) {
	ret := _m.Called(ctx, query, country, num)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []serper.Result
	if rf, ok := ret.Get(0).(func(context.Context, string, string, int) []serper.Result); ok {
		r0 = rf(ctx, query, country, num)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]serper.Result)
	}

	return r0, ret.Error(1)
}

// NewMockClient creates a new instance of MockClient and registers cleanup
// that asserts expectations.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	m := &MockClient{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
