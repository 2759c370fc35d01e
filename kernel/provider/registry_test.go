package provider

import (
	"testing"

	"github.com/chunga-ict/hfprovider/kernel/model"
)

func TestNewBackend_Registered(t *testing.T) {
	for _, h := range []model.HandlerType{model.HandlerEC2Fleet, model.HandlerSpotFleet, model.HandlerASG, model.HandlerRunInstances} {
		b, err := NewBackend(h, Deps{})
		if err != nil {
			t.Fatalf("expected %s to be registered, got error: %v", h, err)
		}
		if b.Handler() != h {
			t.Errorf("expected handler '%s', got '%s'", h, b.Handler())
		}
	}
}

func TestNewBackend_NotFound(t *testing.T) {
	_, err := NewBackend("NoSuchHandler", Deps{})
	if err == nil {
		t.Fatal("expected error for unregistered handler")
	}
	if !model.IsUnsupportedHandler(err) {
		t.Errorf("expected UnsupportedHandlerError, got %T", err)
	}
}

func TestHandlers_Sorted(t *testing.T) {
	handlers := Handlers()
	if len(handlers) < 4 {
		t.Fatalf("expected at least 4 handlers, got %d", len(handlers))
	}
	for i := 1; i < len(handlers); i++ {
		if handlers[i-1] > handlers[i] {
			t.Errorf("handlers not sorted: %v", handlers)
		}
	}
	if !IsRegistered(model.HandlerASG) || IsRegistered("Batch") {
		t.Error("IsRegistered disagrees with the registry")
	}
}

func TestRegisterBackendType_Duplicate(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	RegisterBackendType(model.HandlerEC2Fleet, func(d Deps) Backend { return &EC2Fleet{deps: d} })
}
