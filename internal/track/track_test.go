package track

import "testing"

func TestRegistryEmptyByDefault(t *testing.T) {
	var r Registry
	_, ok := r.Get()
	if ok {
		t.Fatal("expected no track set on a fresh registry")
	}
}

func TestRegistrySetGet(t *testing.T) {
	var r Registry
	want := Info{URL: "https://origin.example/a.flac", KeyID: "abc=="}
	r.Set(want)

	got, ok := r.Get()
	if !ok {
		t.Fatal("expected track to be set")
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRegistryLastWriterWins(t *testing.T) {
	var r Registry
	r.Set(Info{URL: "u1", KeyID: "k1"})
	r.Set(Info{URL: "u2", KeyID: "k2"})

	got, _ := r.Get()
	want := Info{URL: "u2", KeyID: "k2"}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
