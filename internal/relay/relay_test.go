package relay

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/auricle/auricle/internal/keyvault"
	"github.com/auricle/auricle/internal/origin"
	"github.com/auricle/auricle/internal/preload"
	"github.com/auricle/auricle/internal/track"
)

func testMaster() keyvault.MasterKey {
	var m keyvault.MasterKey
	for i := range m {
		m[i] = byte(i)
	}
	return m
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	pad := blockSize - len(b)%blockSize
	if pad == 0 {
		pad = blockSize
	}
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func makeKeyID(t *testing.T, master keyvault.MasterKey, key [keyvault.KeySize]byte, nonce [keyvault.NonceSize]byte) string {
	t.Helper()
	block, err := aes.NewCipher(master[:])
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	plaintext := append(append([]byte{}, key[:]...), nonce[:]...)
	padded := pkcs7Pad(plaintext, aes.BlockSize)
	iv := make([]byte, aes.BlockSize)
	rand.Read(iv)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return base64.StdEncoding.EncodeToString(append(append([]byte{}, iv...), ct...))
}

func encryptCTR(key [keyvault.KeySize]byte, nonce [keyvault.NonceSize]byte, plaintext []byte) []byte {
	block, _ := aes.NewCipher(key[:])
	var counter [aes.BlockSize]byte
	copy(counter[0:8], nonce[:])
	binary.BigEndian.PutUint64(counter[8:16], 0)
	out := make([]byte, len(plaintext))
	cipher.NewCTR(block, counter[:]).XORKeyStream(out, plaintext)
	return out
}

func startTestRelay(t *testing.T, o *origin.Fake, registry *track.Registry, pre *preload.Engine) *Relay {
	t.Helper()
	r := New(o, testMaster(), registry, pre, nil, nil, false)
	if err := r.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func TestStreamNotFoundWhenNoTrackLoaded(t *testing.T) {
	o := origin.NewFake()
	registry := &track.Registry{}
	pre := preload.New(o, testMaster(), preload.DefaultMaxBytes)
	r := startTestRelay(t, o, registry, pre)

	resp, err := http.Get("http://" + r.Addr() + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "No track loaded\n" {
		t.Fatalf("body = %q", body)
	}
}

func TestStreamBasicStream(t *testing.T) {
	master := testMaster()
	var key [keyvault.KeySize]byte
	var nonce [keyvault.NonceSize]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	keyID := makeKeyID(t, master, key, nonce)

	plaintext := make([]byte, 1024)
	rand.Read(plaintext)
	ciphertext := encryptCTR(key, nonce, plaintext)

	o := origin.NewFake()
	o.SetBody("https://origin/t1", ciphertext)

	registry := &track.Registry{}
	registry.Set(track.Info{URL: "https://origin/t1", KeyID: keyID})
	pre := preload.New(o, master, preload.DefaultMaxBytes)
	r := startTestRelay(t, o, registry, pre)

	resp, err := http.Get("http://" + r.Addr() + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/flac" {
		t.Fatalf("content-type = %q, want audio/flac", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, plaintext) {
		t.Fatal("streamed body does not match plaintext")
	}
}

func TestStreamPreloadHit(t *testing.T) {
	master := testMaster()
	var key [keyvault.KeySize]byte
	var nonce [keyvault.NonceSize]byte
	for i := range key {
		key[i] = byte(i + 5)
	}
	keyID := makeKeyID(t, master, key, nonce)

	plaintext := make([]byte, 400*1024)
	rand.Read(plaintext)
	ciphertext := encryptCTR(key, nonce, plaintext)

	o := origin.NewFake()
	o.SetBody("https://origin/t2", ciphertext)

	pre := preload.New(o, master, preload.DefaultMaxBytes)
	tr := track.Info{URL: "https://origin/t2", KeyID: keyID}
	pre.Start(tr)
	waitUntil(t, func() bool {
		_, ok := pre.PeekNext(track.Info{})
		return ok
	})

	registry := &track.Registry{}
	registry.Set(tr)
	r := startTestRelay(t, o, registry, pre)

	resp, err := http.Get("http://" + r.Addr() + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, plaintext) {
		t.Fatal("streamed body (preload + continuation) does not match plaintext")
	}
}

func TestStreamPreloadMismatchLeavesOtherCacheIntact(t *testing.T) {
	master := testMaster()
	var keyA, keyB [keyvault.KeySize]byte
	var nonceA, nonceB [keyvault.NonceSize]byte
	keyB[0] = 9
	keyIDA := makeKeyID(t, master, keyA, nonceA)
	keyIDB := makeKeyID(t, master, keyB, nonceB)

	plainA := make([]byte, 1000)
	rand.Read(plainA)
	cipherA := encryptCTR(keyA, nonceA, plainA)

	plainB := make([]byte, 1000)
	rand.Read(plainB)
	cipherB := encryptCTR(keyB, nonceB, plainB)

	o := origin.NewFake()
	o.SetBody("https://origin/a", cipherA)
	o.SetBody("https://origin/b", cipherB)

	pre := preload.New(o, master, preload.DefaultMaxBytes)
	trackA := track.Info{URL: "https://origin/a", KeyID: keyIDA}
	trackB := track.Info{URL: "https://origin/b", KeyID: keyIDB}
	pre.Start(trackA)
	waitUntil(t, func() bool {
		_, ok := pre.PeekNext(track.Info{})
		return ok
	})

	registry := &track.Registry{}
	registry.Set(trackB)
	r := startTestRelay(t, o, registry, pre)

	resp, err := http.Get("http://" + r.Addr() + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, plainB) {
		t.Fatal("expected stream to serve track B's plaintext, unaffected by A's preload")
	}

	// A's preload cache should still be present (untouched by B's stream).
	next, ok := pre.PeekNext(trackB)
	if !ok || next != trackA {
		t.Fatalf("expected A's preload cache to remain, got ok=%v next=%+v", ok, next)
	}
}

func TestStreamRangeNotHonoredFallsBackToFullRefetch(t *testing.T) {
	master := testMaster()
	var key [keyvault.KeySize]byte
	var nonce [keyvault.NonceSize]byte
	key[0] = 3
	keyID := makeKeyID(t, master, key, nonce)

	plaintext := make([]byte, 300*1024)
	rand.Read(plaintext)
	ciphertext := encryptCTR(key, nonce, plaintext)

	o := origin.NewFake()
	o.SetBody("https://origin/t5", ciphertext)

	pre := preload.New(o, master, preload.DefaultMaxBytes)
	tr := track.Info{URL: "https://origin/t5", KeyID: keyID}
	pre.Start(tr)
	waitUntil(t, func() bool {
		_, ok := pre.PeekNext(track.Info{})
		return ok
	})

	// Origin ignores Range from here on (simulated after the preload fetch).
	o.HonorRange = false

	registry := &track.Registry{}
	registry.Set(tr)
	r := startTestRelay(t, o, registry, pre)

	resp, err := http.Get("http://" + r.Addr() + "/stream")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, plaintext) {
		t.Fatal("expected full plaintext after range-not-honored fallback")
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for condition")
		case <-time.After(2 * time.Millisecond):
		}
	}
}
