package origin

import (
	"context"
	"io"
	"net/http"
	"testing"
)

func TestFakeNoRangeReturnsFullBody(t *testing.T) {
	f := NewFake()
	f.SetBody("u1", []byte("hello world"))

	resp, err := f.Get(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "hello world" {
		t.Fatalf("body = %q", body)
	}
}

func TestFakeHonorsRange(t *testing.T) {
	f := NewFake()
	f.SetBody("u1", []byte("0123456789"))

	resp, err := f.Get(context.Background(), "u1", &Range{Start: 3, End: -1})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusPartialContent || !resp.RangeHonored {
		t.Fatalf("expected 206 honored range, got status=%d honored=%v", resp.StatusCode, resp.RangeHonored)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "3456789" {
		t.Fatalf("body = %q, want %q", body, "3456789")
	}
}

func TestFakeRangeNotHonored(t *testing.T) {
	f := NewFake()
	f.HonorRange = false
	f.SetBody("u1", []byte("0123456789"))

	resp, err := f.Get(context.Background(), "u1", &Range{Start: 3, End: -1})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if resp.StatusCode != http.StatusOK || resp.RangeHonored {
		t.Fatalf("expected 200 unhonored range, got status=%d honored=%v", resp.StatusCode, resp.RangeHonored)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "0123456789" {
		t.Fatalf("body = %q, want full body", body)
	}
}

func TestFakeSimulatedFailureStatus(t *testing.T) {
	f := NewFake()
	f.SetBody("u1", []byte("data"))
	f.SetStatus("u1", http.StatusInternalServerError)

	resp, err := f.Get(context.Background(), "u1", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if IsSuccess(resp.StatusCode) {
		t.Fatalf("expected non-success status, got %d", resp.StatusCode)
	}
}

func TestFakeRecordsRequests(t *testing.T) {
	f := NewFake()
	f.SetBody("u1", []byte("data"))
	f.Get(context.Background(), "u1", nil)
	f.Get(context.Background(), "u1", &Range{Start: 1, End: -1})

	if len(f.Requests) != 2 {
		t.Fatalf("len(Requests) = %d, want 2", len(f.Requests))
	}
	if f.Requests[1].Range == nil || f.Requests[1].Range.Start != 1 {
		t.Fatalf("unexpected second request: %+v", f.Requests[1])
	}
}
