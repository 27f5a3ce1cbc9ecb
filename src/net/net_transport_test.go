package net

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/poldercast/src/common"
	"github.com/mosaicnetworks/poldercast/src/profile"
)

func TestNetworkTransport_PooledConn(t *testing.T) {
	// Transport 1 is consumer
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "trans1"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	go trans1.Listen()
	rpcCh := trans1.Consumer()

	args, resp := testEnvelopes()

	// Listen for a request
	go func() {
		for {
			select {
			case rpc := <-rpcCh:
				rpc.Respond(resp, nil)
			case <-time.After(200 * time.Millisecond):
				return
			}
		}
	}()

	// Transport 2 makes outbound request, 3 conn pool
	trans2, err := NewTCPTransport("127.0.0.1:0", "", 3, time.Second, common.NewTestEntry(t, "trans2"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()

	target := profile.NewProfile("dave", trans1.LocalAddr())

	// Create wait group
	wg := &sync.WaitGroup{}
	wg.Add(5)

	appendFunc := func() {
		defer wg.Done()
		out, err := trans2.Exchange(context.Background(), target, args)
		if err != nil {
			t.Errorf("err: %v", err)
			return
		}

		// Verify the response
		if out.Sender.ID != resp.Sender.ID || out.Len() != resp.Len() {
			t.Errorf("response mismatch: %#v %#v", resp, out)
		}
	}

	// Try to do parallel appends, should stress the conn pool
	for i := 0; i < 5; i++ {
		go appendFunc()
	}

	// Wait for the routines to finish
	wg.Wait()

	// Check the conn pool size
	addr := trans1.LocalAddr()
	if len(trans2.connPool[addr]) != 3 {
		t.Fatalf("Expected 3 pooled conns!")
	}
}

func TestNetworkTransport_Shutdown(t *testing.T) {
	trans, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Second, common.NewTestEntry(t, "trans"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	trans.Close()

	if !trans.IsShutdown() {
		t.Fatalf("transport should be shut down")
	}

	args, _ := testEnvelopes()
	_, err = trans.Exchange(context.Background(), profile.NewProfile("x", "127.0.0.1:1"), args)
	if !common.Is(err, common.Transport) {
		t.Fatalf("err should be a Transport error, got %v", err)
	}
}

func TestNetworkTransport_Cancel(t *testing.T) {
	trans1, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Minute, common.NewTestEntry(t, "trans1"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans1.Close()
	go trans1.Listen()

	// nobody consumes the requests of trans1

	trans2, err := NewTCPTransport("127.0.0.1:0", "", 2, time.Minute, common.NewTestEntry(t, "trans2"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	defer trans2.Close()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	args, _ := testEnvelopes()
	start := time.Now()
	_, err = trans2.Exchange(ctx, profile.NewProfile("x", trans1.LocalAddr()), args)
	if !common.Is(err, common.Transport) {
		t.Fatalf("err should be a Transport error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatalf("exchange should stop when its context is cancelled")
	}

	// the interrupted connection is not pooled
	trans2.connPoolLock.Lock()
	pooled := len(trans2.connPool[trans1.LocalAddr()])
	trans2.connPoolLock.Unlock()
	if pooled != 0 {
		t.Fatalf("interrupted connection should not be pooled, got %d", pooled)
	}
}
