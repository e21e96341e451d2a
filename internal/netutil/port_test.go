package netutil

import (
	"errors"
	"net"
	"sync"
	"testing"
)

// freePort asks the kernel for a currently free port and closes the
// listener, so the port is very likely still free when the test probes it.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	_ = l.Close()
	return port
}

// holdPort binds and holds a listener on a kernel-assigned port for the
// duration of the test.
func holdPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l.Addr().(*net.TCPAddr).Port
}

func TestNewPortRegistry(t *testing.T) {
	t.Parallel()

	t.Run("nil logger uses default", func(t *testing.T) {
		r := NewPortRegistry(nil)
		if r == nil {
			t.Fatal("expected non-nil registry")
		}
		if !r.reserve(8080) {
			t.Fatal("expected reserve to succeed on new registry")
		}
		r.Release(8080)
	})
}

func TestPortRegistry_reserve(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		setup  func(r *PortRegistry)
		port   int
		wantOK bool
	}{
		"reserve new port": {
			setup:  func(_ *PortRegistry) {},
			port:   8080,
			wantOK: true,
		},
		"reserve duplicate port": {
			setup: func(r *PortRegistry) {
				r.reserve(9090)
			},
			port:   9090,
			wantOK: false,
		},
		"reserve different ports": {
			setup: func(r *PortRegistry) {
				r.reserve(8080)
			},
			port:   9090,
			wantOK: true,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			r := NewPortRegistry(nil)
			tc.setup(r)

			got := r.reserve(tc.port)
			if got != tc.wantOK {
				t.Errorf("reserve(%d) = %v, want %v", tc.port, got, tc.wantOK)
			}
			// The port must be held regardless of who reserved it first.
			if r.reserve(tc.port) {
				t.Errorf("port %d should be reserved, but second reserve succeeded", tc.port)
			}
		})
	}
}

func TestPortRegistry_Release(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)

	if !r.reserve(8080) {
		t.Fatal("first reserve should succeed")
	}
	if r.reserve(8080) {
		t.Fatal("duplicate reserve should fail")
	}

	r.Release(8080)
	if !r.reserve(8080) {
		t.Fatal("reserve after release should succeed")
	}
}

func TestPortRegistry_ConcurrentDuplicateReserve(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	const goroutines = 100
	const targetPort = 12345

	var wg sync.WaitGroup
	successes := make(chan bool, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			successes <- r.reserve(targetPort)
		}()
	}

	wg.Wait()
	close(successes)

	successCount := 0
	for ok := range successes {
		if ok {
			successCount++
		}
	}
	if successCount != 1 {
		t.Errorf("expected exactly 1 successful reserve, got %d", successCount)
	}
}

func TestFindAvailablePort_ReturnsFirstFreePort(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	start := freePort(t)

	port, err := r.FindAvailablePort("127.0.0.1", start, start+50)
	if err != nil {
		t.Fatalf("FindAvailablePort() error: %v", err)
	}
	if port != start {
		t.Errorf("FindAvailablePort() = %d, want the first free port %d", port, start)
	}
	// The returned port stays claimed in-process.
	if r.reserve(port) {
		t.Errorf("port %d should be registered after selection", port)
	}
}

func TestFindAvailablePort_SkipsOccupiedPort(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	occupied := holdPort(t)

	port, err := r.FindAvailablePort("127.0.0.1", occupied, occupied+100)
	if err != nil {
		t.Fatalf("FindAvailablePort() error: %v", err)
	}
	if port == occupied {
		t.Errorf("FindAvailablePort() returned the occupied port %d", occupied)
	}
	if port <= occupied || port > occupied+100 {
		t.Errorf("FindAvailablePort() = %d, want a later port within %d-%d", port, occupied, occupied+100)
	}
}

func TestFindAvailablePort_SkipsRegistryReservedPort(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	start := freePort(t)
	if !r.reserve(start) {
		t.Fatal("setup: reserve should succeed")
	}

	port, err := r.FindAvailablePort("127.0.0.1", start, start+50)
	if err != nil {
		t.Fatalf("FindAvailablePort() error: %v", err)
	}
	if port == start {
		t.Errorf("FindAvailablePort() returned registry-reserved port %d", start)
	}
}

func TestFindAvailablePort_ExhaustedRange(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	occupied := holdPort(t)

	_, err := r.FindAvailablePort("127.0.0.1", occupied, occupied)
	if !errors.Is(err, ErrPortRangeExhausted) {
		t.Errorf("FindAvailablePort() error = %v, want ErrPortRangeExhausted", err)
	}
}

func TestFindAvailablePort_InvalidRange(t *testing.T) {
	t.Parallel()

	r := NewPortRegistry(nil)
	if _, err := r.FindAvailablePort("127.0.0.1", 9000, 8000); err == nil {
		t.Error("expected error for start > end")
	}
	if _, err := r.FindAvailablePort("127.0.0.1", 0, 100); err == nil {
		t.Error("expected error for port 0 in range")
	}
}
