package node

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"nonocoop/pkg/config"
	"nonocoop/pkg/event"
	"nonocoop/pkg/fabric"
	"nonocoop/pkg/fabric/memory"
	"nonocoop/pkg/logger"
	"nonocoop/pkg/relay"
	"nonocoop/pkg/session"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newNode(t *testing.T, hub *memory.Hub, id string) *Service {
	t.Helper()

	cfg := config.Default()
	cfg.Fabric.Driver = config.DriverMemory
	cfg.Node.Port = 0

	svc, err := NewService(cfg, hub.Member(id), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// runNode runs svc until the returned stop is called or the test ends. stop
// returns Run's error.
func runNode(t *testing.T, svc *Service) func() error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	var (
		once   sync.Once
		runErr error
	)
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case runErr = <-done:
			case <-time.After(5 * time.Second):
				t.Error("Run did not return after cancel")
			}
		})
		return runErr
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

func get(t *testing.T, svc *Service, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	svc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

type recorder struct {
	mu     sync.Mutex
	events []event.Event
}

func (r *recorder) listen(ev event.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) has(want event.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev == want {
			return true
		}
	}
	return false
}

func TestNewServiceValidatesArguments(t *testing.T) {
	_, err := NewService(nil, memory.NewHub().Member("a"), nil)
	require.Error(t, err)
	_, err = NewService(config.Default(), nil, nil)
	require.Error(t, err)
}

func TestIsReady(t *testing.T) {
	hub := memory.NewHub()
	svc := newNode(t, hub, "host")
	ctx := context.Background()

	require.False(t, svc.isReady(), "not ready before attaching")

	_, err := svc.Host(ctx, "hash")
	require.NoError(t, err)
	require.False(t, svc.isReady(), "not ready without a fabric ping")

	require.NoError(t, svc.checkFabricHealth(ctx))
	require.True(t, svc.isReady())

	hub.SetReachable(false)
	require.Error(t, svc.checkFabricHealth(ctx))
	require.False(t, svc.isReady(), "not ready after a fabric error")

	hub.SetReachable(true)
	require.NoError(t, svc.checkFabricHealth(ctx))
	svc.Bridge().Close()
	require.False(t, svc.isReady(), "not ready once the bridge closes")
}

func TestStatusEndpoints(t *testing.T) {
	hub := memory.NewHub()
	svc := newNode(t, hub, "host")
	ctx := context.Background()

	require.Equal(t, http.StatusOK, get(t, svc, "/healthz").Code)
	require.Equal(t, http.StatusServiceUnavailable, get(t, svc, "/readyz").Code)

	desc, err := svc.Host(ctx, "hash")
	require.NoError(t, err)
	require.NoError(t, svc.checkFabricHealth(ctx))

	ready := get(t, svc, "/readyz")
	require.Equal(t, http.StatusOK, ready.Code)
	require.Equal(t, "application/json", ready.Header().Get("Content-Type"))

	var status statusResponse
	require.NoError(t, json.Unmarshal(get(t, svc, "/status").Body.Bytes(), &status))
	require.Equal(t, "coop", status.Status)
	require.Equal(t, "host", status.PlayerID)
	require.Equal(t, "active", status.Bridge)
	require.NotEmpty(t, status.FabricLastOKAt)
	require.NotNil(t, status.Session)
	require.Equal(t, desc.SessionID(), status.Session.ID)
	require.Equal(t, "initiating", status.Session.Role)
	require.Equal(t, "hash", status.Session.PuzzleHash)

	metrics := get(t, svc, "/metrics")
	require.Equal(t, http.StatusOK, metrics.Code)
	require.Contains(t, metrics.Body.String(), "nonocoop_relay_active_bridges 1")
}

func TestHostFailsWhenFabricUnreachable(t *testing.T) {
	hub := memory.NewHub()
	svc := newNode(t, hub, "host")
	hub.SetReachable(false)

	_, err := svc.Host(context.Background(), "hash")
	require.ErrorIs(t, err, fabric.ErrTransport)
	require.Equal(t, relay.StateUnbound, svc.Bridge().State())
	require.True(t, svc.Session().IsZero())
}

func TestJoinUnknownSession(t *testing.T) {
	svc := newNode(t, memory.NewHub(), "guest")

	_, err := svc.Join(context.Background(), "missing")
	require.ErrorIs(t, err, fabric.ErrNotFound)
	require.Equal(t, relay.StateUnbound, svc.Bridge().State())
}

func TestHostTwiceKeepsFirstSession(t *testing.T) {
	hub := memory.NewHub()
	svc := newNode(t, hub, "host")
	ctx := context.Background()

	first, err := svc.Host(ctx, "hash-a")
	require.NoError(t, err)

	_, err = svc.Host(ctx, "hash-b")
	require.ErrorIs(t, err, ErrAlreadyInSession)
	_, err = svc.Join(ctx, first.SessionID())
	require.ErrorIs(t, err, ErrAlreadyInSession)

	require.Equal(t, first, svc.Session())
	require.Equal(t, first.SessionID(), svc.Bridge().Descriptor().SessionID())

	var listed []string
	for desc, err := range newNode(t, hub, "guest").Sessions().ListAvailable(ctx) {
		require.NoError(t, err)
		listed = append(listed, desc.SessionID())
	}
	require.Equal(t, []string{first.SessionID()}, listed)

	require.NoError(t, svc.Close())
	_, err = hub.Member("guest-2").Resolve(ctx, first.SessionID())
	require.ErrorIs(t, err, fabric.ErrNotFound)
}

func TestRunRelaysAndWithdrawsOnShutdown(t *testing.T) {
	hub := memory.NewHub()
	host := newNode(t, hub, "host")
	guest := newNode(t, hub, "guest")
	ctx := context.Background()

	hostBus := host.Bus()
	hostBus.AddListener(func(ev event.Event) {
		if ev.Kind == event.KindOccupyField {
			hostBus.Emit(event.FieldOccupied(ev.Column, ev.Row))
		}
	})
	guestEvents := &recorder{}
	guest.Bus().AddListener(guestEvents.listen)

	desc, err := host.Host(ctx, session.PuzzleHash([]byte("puzzle")))
	require.NoError(t, err)
	joined, err := guest.Join(ctx, desc.SessionID())
	require.NoError(t, err)
	require.Equal(t, session.RoleJoining, joined.Role())

	stopHost := runNode(t, host)
	runNode(t, guest)

	guest.Bus().Emit(event.OccupyField(3, 4))
	require.Eventually(t, func() bool {
		return guestEvents.has(event.FieldOccupied(3, 4))
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return host.currentStatus("").Events["field-control"] >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, stopHost())
	require.Equal(t, relay.StateClosed, host.Bridge().State())

	_, err = guest.Sessions().Join(ctx, desc.SessionID())
	require.ErrorIs(t, err, fabric.ErrNotFound)
}

func TestRunFailsWhenStatusPortTaken(t *testing.T) {
	listener := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(listener.Close)

	host, port, err := net.SplitHostPort(strings.TrimPrefix(listener.URL, "http://"))
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Fabric.Driver = config.DriverMemory
	cfg.Node.Host = host
	cfg.Node.Port = portNum

	svc, err := NewService(cfg, memory.NewHub().Member("host"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = svc.Run(ctx)
	require.ErrorContains(t, err, "start status server")
}

func TestCloseIsIdempotent(t *testing.T) {
	svc := newNode(t, memory.NewHub(), "host")
	_, err := svc.Host(context.Background(), "hash")
	require.NoError(t, err)

	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())
	require.Equal(t, relay.StateClosed, svc.Bridge().State())
}
