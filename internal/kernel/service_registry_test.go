package kernel

import (
	"errors"
	"reflect"
	"testing"

	"dealerbot/pkg/dealer"
)

func TestServiceRegistryRegisterAndResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		registerName string
		resolveName  string
		duplicate    bool
		wantErr      error
	}{
		{
			name:         "register and resolve",
			registerName: "runner",
			resolveName:  "runner",
		},
		{
			name:         "names are trimmed",
			registerName: "  runner ",
			resolveName:  "runner",
		},
		{
			name:         "duplicate registration fails",
			registerName: "runner",
			resolveName:  "runner",
			duplicate:    true,
			wantErr:      dealer.ErrServiceAlreadyRegistered,
		},
	}

	for _, testCase := range tests {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			registry := NewServiceRegistry()
			if err := registry.Register(testCase.registerName, "first"); err != nil {
				t.Fatalf("first register failed: %v", err)
			}
			if testCase.duplicate {
				err := registry.Register(testCase.registerName, "second")
				if !errors.Is(err, testCase.wantErr) {
					t.Fatalf("duplicate register error = %v, want %v", err, testCase.wantErr)
				}
			}

			resolved, err := registry.Resolve(testCase.resolveName)
			if err != nil {
				t.Fatalf("resolve failed: %v", err)
			}
			if resolved != "first" {
				t.Fatalf("resolved = %v, want first", resolved)
			}
		})
	}
}

func TestServiceRegistryErrors(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	if err := registry.Register(" ", "value"); err == nil {
		t.Fatal("expected empty name register error")
	}
	if err := registry.Register("svc", nil); err == nil {
		t.Fatal("expected nil service register error")
	}
	if _, err := registry.Resolve("missing"); !errors.Is(err, dealer.ErrServiceNotFound) {
		t.Fatalf("resolve missing error = %v, want %v", err, dealer.ErrServiceNotFound)
	}
}

func TestServiceRegistryNames(t *testing.T) {
	t.Parallel()

	registry := NewServiceRegistry()
	for _, name := range []string{"b", "a", "c"} {
		if err := registry.Register(name, struct{}{}); err != nil {
			t.Fatalf("register %s failed: %v", name, err)
		}
	}

	if got, want := registry.Names(), []string{"a", "b", "c"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v, want %v", got, want)
	}
}
