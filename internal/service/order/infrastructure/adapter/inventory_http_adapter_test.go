package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"meridian/internal/pkg/httpclient"
)

type staticResolver struct {
	host string
	port int
}

func (r staticResolver) DiscoverServiceInstance(serviceName string) (string, int, error) {
	return r.host, r.port, nil
}

// fakeInventoryServer 模拟下游库存服务，记录每个商品的预占和释放调用。
type fakeInventoryServer struct {
	mu       sync.Mutex
	reserves []string
	releases []string

	// rejectAt 为 n 时，第 n 次预占请求返回 reserved=false
	rejectAt int
	// failAt 为 n 时，第 n 次预占请求返回 500
	failAt int
}

func (s *fakeInventoryServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(inventoryReservePath, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.reserves = append(s.reserves, r.URL.Query().Get("productId"))
		call := len(s.reserves)
		s.mu.Unlock()

		if s.failAt > 0 && call == s.failAt {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		reserved := !(s.rejectAt > 0 && call == s.rejectAt)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reserved":` + strconv.FormatBool(reserved) + `}`))
	})
	mux.HandleFunc(inventoryReleasePath, func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.releases = append(s.releases, r.URL.Query().Get("productId"))
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newInventoryFixture(t *testing.T, server *fakeInventoryServer) (*InventoryHTTPAdapter, func()) {
	t.Helper()
	srv := httptest.NewServer(server.handler())

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	client := httpclient.NewClient(noop.NewTracerProvider().Tracer("test"), staticResolver{host: u.Hostname(), port: port})
	return NewInventoryHTTPAdapter(client), srv.Close
}

func TestReserveStockAllSucceed(t *testing.T) {
	server := &fakeInventoryServer{}
	adapter, stop := newInventoryFixture(t, server)
	defer stop()

	ok, err := adapter.ReserveStock(context.Background(), "order-1", map[string]int{"p-1": 2, "p-2": 1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, server.reserves, 2)
	assert.Empty(t, server.releases)
}

func TestReserveStockRollsBackOnRejection(t *testing.T) {
	server := &fakeInventoryServer{rejectAt: 2}
	adapter, stop := newInventoryFixture(t, server)
	defer stop()

	ok, err := adapter.ReserveStock(context.Background(), "order-1", map[string]int{"p-1": 2, "p-2": 1})
	require.NoError(t, err)
	assert.False(t, ok)

	// 第一个预占成功、第二个被拒绝：已成功的那一个必须被释放
	require.Len(t, server.reserves, 2)
	require.Len(t, server.releases, 1)
	assert.Equal(t, server.reserves[0], server.releases[0])
}

func TestReserveStockRollsBackOnDownstreamError(t *testing.T) {
	server := &fakeInventoryServer{failAt: 2}
	adapter, stop := newInventoryFixture(t, server)
	defer stop()

	ok, err := adapter.ReserveStock(context.Background(), "order-1", map[string]int{"p-1": 2, "p-2": 1})
	require.Error(t, err)
	assert.False(t, ok)

	require.Len(t, server.reserves, 2)
	require.Len(t, server.releases, 1)
	assert.Equal(t, server.reserves[0], server.releases[0])
}

func TestReserveStockRejectedFirstReleasesNothing(t *testing.T) {
	server := &fakeInventoryServer{rejectAt: 1}
	adapter, stop := newInventoryFixture(t, server)
	defer stop()

	ok, err := adapter.ReserveStock(context.Background(), "order-1", map[string]int{"p-1": 2})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, server.releases)
}
