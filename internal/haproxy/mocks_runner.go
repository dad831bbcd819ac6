package haproxy

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockCommandRunner is a testify mock of CommandRunner. Expectations are
// set on the command name followed by its arguments; the context is not
// matched.
type MockCommandRunner struct {
	mock.Mock
}

func (m *MockCommandRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	callArgs := make([]interface{}, 0, len(args)+1)
	callArgs = append(callArgs, name)
	for _, a := range args {
		callArgs = append(callArgs, a)
	}
	result := m.Called(callArgs...)
	if result.Get(0) == nil {
		return nil, result.Error(1)
	}
	return result.Get(0).([]byte), result.Error(1)
}
