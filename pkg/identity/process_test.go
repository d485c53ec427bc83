package identity

import "testing"

func TestInitIsIdempotent(t *testing.T) {
	p1, err := Init("lattice-test", 1<<20)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p1.Release()

	p2, err := Init("other-name", 1<<10)
	if err != nil {
		t.Fatalf("second Init: %v", err)
	}
	if p1 != p2 {
		t.Error("expected second Init to return the same process identity")
	}
	if p2.Name != "lattice-test" {
		t.Errorf("expected name from first Init to stick, got %q", p2.Name)
	}
}

func TestCurrentReflectsInit(t *testing.T) {
	p, err := Init("lattice-test-2", 1<<20)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer p.Release()

	if Current() != p {
		t.Error("expected Current to return the initialized process")
	}
}

func TestReleaseClearsCurrent(t *testing.T) {
	p, err := Init("lattice-test-3", 1<<20)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := p.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if Current() != nil {
		t.Error("expected Current to be nil after Release")
	}
}
