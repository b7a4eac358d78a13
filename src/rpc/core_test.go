package rpc_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gristlabs/gristmux/src/enginerr"
	"github.com/gristlabs/gristmux/src/rpc"
	"github.com/gristlabs/gristmux/src/rpc/pipetransport"
	"github.com/gristlabs/gristmux/src/wire/stream"
)

func TestMakeCallRoundTrip(t *testing.T) {
	clientSide, serverSide := pipetransport.New(0)

	rpc.NewCore(serverSide, rpc.WithCallHandler(func(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) (rpc.StreamingData, error) {
		if string(data.Value) != "ping" {
			t.Errorf("unexpected call payload: %q", data.Value)
		}
		return rpc.StreamingData{Value: []byte("pong")}, nil
	}))
	client := rpc.NewCore(clientSide)

	result, err := client.MakeCall(context.Background(), rpc.StreamingData{Value: []byte("ping")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Value) != "pong" {
		t.Fatalf("got %q, want pong", result.Value)
	}
}

func TestMakeCallPropagatesHandlerError(t *testing.T) {
	clientSide, serverSide := pipetransport.New(0)

	rpc.NewCore(serverSide, rpc.WithCallHandler(func(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) (rpc.StreamingData, error) {
		return rpc.StreamingData{}, enginerr.NewHandlerError("boom")
	}))
	client := rpc.NewCore(clientSide)

	_, err := client.MakeCall(context.Background(), rpc.StreamingData{Value: []byte("x")}, nil)
	if err == nil {
		t.Fatal("expected an error")
	}
	var handlerErr *enginerr.HandlerError
	if !errors.As(err, &handlerErr) {
		t.Fatalf("expected a HandlerError, got %T: %v", err, err)
	}
}

func TestMakeCallStreamsChunkedResponse(t *testing.T) {
	clientSide, serverSide := pipetransport.New(0)

	rpc.NewCore(serverSide, rpc.WithCallHandler(func(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) (rpc.StreamingData, error) {
		chunks := stream.New[[]byte](nil)
		chunks.SupplyChunk([]byte("a"))
		chunks.SupplyChunk([]byte("b"))
		chunks.SupplyChunk([]byte("c"))
		chunks.FinishOk()
		return rpc.StreamingData{Value: []byte("header"), Chunks: chunks}, nil
	}))
	client := rpc.NewCore(clientSide)

	result, err := client.MakeCall(context.Background(), rpc.StreamingData{Value: []byte("go")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result.Value) != "header" {
		t.Fatalf("got header %q, want %q", result.Value, "header")
	}
	if result.Chunks == nil {
		t.Fatal("expected a chunk iterator on the response")
	}

	var got []string
	for {
		res := result.Chunks.Next()
		if res.Done {
			if res.Err != nil {
				t.Fatalf("unexpected chunk error: %v", res.Err)
			}
			break
		}
		got = append(got, string(res.Chunk))
	}
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("got chunks %v, want [a b c]", got)
	}
}

func TestMakeCallAbortFiresPeerCancelToken(t *testing.T) {
	clientSide, serverSide := pipetransport.New(0)

	observedCancel := make(chan error, 1)
	rpc.NewCore(serverSide, rpc.WithCallHandler(func(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) (rpc.StreamingData, error) {
		<-cancel.Done()
		observedCancel <- cancel.Reason()
		return rpc.StreamingData{}, enginerr.NewAbortedError("handler unwound")
	}))
	client := rpc.NewCore(clientSide)

	cancel := rpc.NewSignal()
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel.Fire(enginerr.NewAbortedError("caller gave up"))
	}()

	_, err := client.MakeCall(context.Background(), rpc.StreamingData{Value: []byte("slow")}, cancel)
	if err == nil {
		t.Fatal("expected an error after abort")
	}

	select {
	case reason := <-observedCancel:
		if reason == nil {
			t.Fatal("expected a non-nil cancellation reason")
		}
	case <-time.After(time.Second):
		t.Fatal("handler never observed cancellation")
	}
}

func TestSendSignalInvokesSignalHandler(t *testing.T) {
	clientSide, serverSide := pipetransport.New(0)

	received := make(chan string, 1)
	rpc.NewCore(serverSide, rpc.WithSignalHandler(func(ctx context.Context, cancel *rpc.Signal, data rpc.StreamingData) {
		received <- string(data.Value)
	}))
	client := rpc.NewCore(clientSide)

	if err := client.SendSignal(context.Background(), rpc.StreamingData{Value: []byte("action")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case got := <-received:
		if got != "action" {
			t.Fatalf("got %q, want action", got)
		}
	case <-time.After(time.Second):
		t.Fatal("signal handler never invoked")
	}
}

func TestDisconnectRejectsPendingCall(t *testing.T) {
	clientSide, serverSide := pipetransport.New(0)
	_ = serverSide // no call handler registered on purpose; call never resolves
	client := rpc.NewCore(clientSide)

	resultCh := make(chan error, 1)
	go func() {
		_, err := client.MakeCall(context.Background(), rpc.StreamingData{Value: []byte("x")}, nil)
		resultCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	clientSide.Close(errors.New("connection reset"))

	select {
	case err := <-resultCh:
		var discErr *enginerr.DisconnectError
		if !errors.As(err, &discErr) {
			t.Fatalf("expected a DisconnectError, got %T: %v", err, err)
		}
	case <-time.After(time.Second):
		t.Fatal("call never rejected after disconnect")
	}
}
