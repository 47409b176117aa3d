package payments

import (
	"errors"
	"testing"
)

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name     string
		def      string
		adapters []Adapter
		wantErr  error
	}{
		{"ok", "Alpha", []Adapter{newFake("Alpha"), newFake("Beta")}, nil},
		{"no default is allowed", "", []Adapter{newFake("Alpha")}, nil},
		{"duplicate", "Alpha", []Adapter{newFake("Alpha"), newFake("Alpha")}, ErrDuplicateHandler},
		{"unknown default", "Gamma", []Adapter{newFake("Alpha")}, ErrUnregisteredHandler},
		{"empty name", "", []Adapter{newFake("")}, ErrUnregisteredHandler},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.def, tt.adapters...)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRegistry_OrderAndLookup(t *testing.T) {
	reg, err := NewRegistry("", newFake("Beta"), newFake("Alpha"), newFake("Gamma"))
	if err != nil {
		t.Fatal(err)
	}
	names := reg.Names()
	if len(names) != 3 || names[0] != "Beta" || names[1] != "Alpha" || names[2] != "Gamma" {
		t.Fatalf("names = %v", names)
	}
	if _, err := reg.Default(); !errors.Is(err, ErrNoDefaultHandler) {
		t.Fatalf("Default err = %v", err)
	}
	if _, err := reg.ByName("alpha"); !errors.Is(err, ErrUnregisteredHandler) {
		t.Fatalf("lookup must be exact, err = %v", err)
	}

	all := reg.All()
	all[0] = nil
	if reg.All()[0] == nil {
		t.Fatal("All must return a copy")
	}
}
