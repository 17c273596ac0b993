package tunesvc_test

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"isaac/internal/dispatch/tunesvc"
	"isaac/internal/scheduler"
)

func TestBroadcastReachesConnectedClient(t *testing.T) {
	s := tunesvc.New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server never registered the connected client")
		}
		time.Sleep(10 * time.Millisecond)
	}

	update := tunesvc.NewUpdate("generic|generic|gpu", scheduler.KindElementwise2D, "float32", []int64{1024}, 1)
	if err := s.Broadcast(update); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var got tunesvc.Update
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.DeviceKey != update.DeviceKey || got.Candidate != update.Candidate {
		t.Fatalf("got %+v, want %+v", got, update)
	}
}

func TestClientCountDropsOnDisconnect(t *testing.T) {
	s := tunesvc.New()
	srv := httptest.NewServer(s)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("server never registered the connected client")
		}
		time.Sleep(10 * time.Millisecond)
	}

	conn.Close()

	deadline = time.Now().Add(2 * time.Second)
	for s.ClientCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("server never noticed the client disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
