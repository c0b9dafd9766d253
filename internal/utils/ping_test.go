package utils

import (
	"net"
	"testing"
	"time"
)

func TestPingAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()

	if err := PingAddress(addr, time.Second); err != nil {
		t.Errorf("Expected %s to be reachable: %v", addr, err)
	}

	ln.Close()
	if err := PingAddress(addr, time.Second); err == nil {
		t.Errorf("Expected %s to be unreachable after close", addr)
	}
}

func TestPingService(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	defer ln.Close()

	if err := PingService("http://"+ln.Addr().String()+"/api/health", time.Second); err != nil {
		t.Errorf("Expected service to be reachable: %v", err)
	}

	if err := PingService("://bad", time.Second); err == nil {
		t.Error("Expected an invalid URL error")
	}
}
