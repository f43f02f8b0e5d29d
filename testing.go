package usbreplay

import (
	"sync"
	"syscall"
)

// MockIoctlClient is a fake IoctlClient for driving a Handler in tests
// without a real process on the other end of client.Arg().
type MockIoctlClient struct {
	mu sync.Mutex

	request uint64
	arg     uintptr
	pid     int

	completed bool
	ret       int32
	errno     syscall.Errno
}

// NewMockIoctlClient returns a client that will report the given request,
// argument pointer, and PID when the dispatcher calls Request/Arg/PID.
func NewMockIoctlClient(request uint64, arg uintptr, pid int) *MockIoctlClient {
	return &MockIoctlClient{request: request, arg: arg, pid: pid}
}

// Request implements IoctlClient.
func (c *MockIoctlClient) Request() uint64 {
	return c.request
}

// Arg implements IoctlClient.
func (c *MockIoctlClient) Arg() uintptr {
	return c.arg
}

// PID implements IoctlClient.
func (c *MockIoctlClient) PID() int {
	return c.pid
}

// Complete implements IoctlClient, recording the outcome for later
// assertion via Result.
func (c *MockIoctlClient) Complete(ret int32, errno syscall.Errno) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = true
	c.ret = ret
	c.errno = errno
}

// Result returns the values passed to Complete, and whether it was ever
// called.
func (c *MockIoctlClient) Result() (ret int32, errno syscall.Errno, completed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ret, c.errno, c.completed
}

// Reset clears the recorded Complete call so the same client can be
// reused across a sequence of Handle calls with a new request/arg.
func (c *MockIoctlClient) Reset(request uint64, arg uintptr) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.request = request
	c.arg = arg
	c.completed = false
	c.ret = 0
	c.errno = 0
}

var _ IoctlClient = (*MockIoctlClient)(nil)
