package pool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/simpleiot/modbusmgr/endpoint"
)

// acceptOnly starts a TCP listener that accepts connections and otherwise
// does nothing, enough to let Pool.Borrow dial successfully.
func acceptOnly(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		var kept []net.Conn // held so they are not GC'd and closed underfoot
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			kept = append(kept, conn)
		}
	}()
	addr := ln.Addr().(*net.TCPAddr)
	return ln, addr.IP.String(), addr.Port
}

func TestBorrowReturnReusesConnection(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	ctx := context.Background()
	lease1, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease1.Conn.ID
	lease1.Return(nil)

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID != id1 {
		t.Error("expected Borrow to reuse the same connection")
	}
}

func TestBorrowDisconnectsOnErrorWhenConfigured(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)
	cfg := endpoint.DefaultPoolConfig(endpoint.TransportTCP)
	cfg.DisconnectOnError = true
	p.SetEndpointPoolConfiguration(key, cfg)

	ctx := context.Background()
	lease1, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease1.Conn.ID
	lease1.Return(errForTest{})

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID == id1 {
		t.Error("expected a fresh connection after an error with DisconnectOnError set")
	}
}

func TestBorrowReconnectsAfterAge(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)
	cfg := endpoint.DefaultPoolConfig(endpoint.TransportTCP)
	cfg.ReconnectAfterAge = 10 * time.Millisecond
	p.SetEndpointPoolConfiguration(key, cfg)

	ctx := context.Background()
	lease1, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease1.Conn.ID
	lease1.Return(nil)

	time.Sleep(20 * time.Millisecond)

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID == id1 {
		t.Error("expected reconnect after exceeding ReconnectAfterAge")
	}
}

func TestBorrowAppliesMinTransactionInterval(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)
	cfg := endpoint.DefaultPoolConfig(endpoint.TransportTCP)
	cfg.MinTransactionInterval = 50 * time.Millisecond
	p.SetEndpointPoolConfiguration(key, cfg)

	ctx := context.Background()
	lease1, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	lease1.Return(nil)

	start := time.Now()
	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	elapsed := time.Since(start)
	lease2.Return(nil)

	if elapsed < 40*time.Millisecond {
		t.Errorf("expected Borrow to pace at least ~50ms after the previous Return, only waited %v", elapsed)
	}
}

func TestBorrowSerializesConcurrentCallers(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	ctx := context.Background()
	lease, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}

	borrowed := make(chan struct{})
	go func() {
		l2, err := p.Borrow(ctx, key)
		if err != nil {
			return
		}
		l2.Return(nil)
		close(borrowed)
	}()

	select {
	case <-borrowed:
		t.Fatal("second Borrow should not complete while the first lease is outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	lease.Return(nil)

	select {
	case <-borrowed:
	case <-time.After(time.Second):
		t.Fatal("second Borrow should complete once the first lease is returned")
	}
}

func TestInvalidateForcesRedial(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	ctx := context.Background()
	lease1, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease1.Conn.ID
	lease1.Return(nil)

	p.Invalidate(key)

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID == id1 {
		t.Error("expected Invalidate to force a fresh connection")
	}
}

func TestClearClosesAllConnections(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	ctx := context.Background()
	lease, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease.Conn.ID
	lease.Return(nil)

	p.Clear()

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID == id1 {
		t.Error("expected Clear to drop the existing connection")
	}
}

func TestDisconnectOnReturnClosesAfterInFlightTransaction(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	ctx := context.Background()
	lease, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease.Conn.ID

	// Mark for disconnect while this lease is still outstanding: Return
	// must not be disturbed mid-transaction, only afterward.
	p.DisconnectOnReturn(key, time.Now())
	lease.Return(nil)

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID == id1 {
		t.Error("expected DisconnectOnReturn to force a fresh connection once the lease was returned")
	}
}

func TestDisconnectOnReturnIgnoresConnectionsOpenedAfterWatermark(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	watermark := time.Now()
	time.Sleep(5 * time.Millisecond)

	ctx := context.Background()
	lease, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease.Conn.ID

	p.DisconnectOnReturn(key, watermark)
	lease.Return(nil)

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)

	if lease2.Conn.ID != id1 {
		t.Error("a connection opened after the watermark should not be disconnected")
	}
}

func TestClearIdleClosesAnIdleConnectionForOneKey(t *testing.T) {
	ln1, host1, port1 := acceptOnly(t)
	defer ln1.Close()
	ln2, host2, port2 := acceptOnly(t)
	defer ln2.Close()

	p := New(zerolog.Nop())
	key1 := endpoint.NewTCPKey(host1, port1, 1)
	key2 := endpoint.NewTCPKey(host2, port2, 1)

	ctx := context.Background()
	lease1, err := p.Borrow(ctx, key1)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease1.Conn.ID
	lease1.Return(nil)

	lease2, err := p.Borrow(ctx, key2)
	if err != nil {
		t.Fatal(err)
	}
	id2 := lease2.Conn.ID
	lease2.Return(nil)

	p.ClearIdle(key1)

	next1, err := p.Borrow(ctx, key1)
	if err != nil {
		t.Fatal(err)
	}
	defer next1.Return(nil)
	if next1.Conn.ID == id1 {
		t.Error("expected ClearIdle to drop key1's connection")
	}

	next2, err := p.Borrow(ctx, key2)
	if err != nil {
		t.Fatal(err)
	}
	defer next2.Return(nil)
	if next2.Conn.ID != id2 {
		t.Error("ClearIdle should not have touched key2's connection")
	}
}

func TestClearIdleSkipsABorrowedSlot(t *testing.T) {
	ln, host, port := acceptOnly(t)
	defer ln.Close()

	p := New(zerolog.Nop())
	key := endpoint.NewTCPKey(host, port, 1)

	ctx := context.Background()
	lease, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	id1 := lease.Conn.ID

	p.ClearIdle(key) // should not block or disturb the outstanding lease

	lease.Return(nil)

	lease2, err := p.Borrow(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	defer lease2.Return(nil)
	if lease2.Conn.ID != id1 {
		t.Error("ClearIdle should not have touched a connection that was on loan")
	}
}

type errForTest struct{}

func (errForTest) Error() string { return "test error" }
