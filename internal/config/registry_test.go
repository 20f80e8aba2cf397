package config

import (
	"errors"
	"testing"

	"github.com/voicedesk/voicedesk/pkg/provider/llm"
	llmmock "github.com/voicedesk/voicedesk/pkg/provider/llm/mock"
	"github.com/voicedesk/voicedesk/pkg/provider/stt"
	sttmock "github.com/voicedesk/voicedesk/pkg/provider/stt/mock"
)

func TestRegistryCreateLLM(t *testing.T) {
	r := NewRegistry()
	r.RegisterLLM("mock", func(_ ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	p, err := r.CreateLLM(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if p == nil {
		t.Fatal("CreateLLM returned nil provider")
	}
}

func TestRegistryCreateSTT(t *testing.T) {
	r := NewRegistry()
	r.RegisterSTT("mock", func(_ ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{}, nil
	})

	p, err := r.CreateSTT(ProviderEntry{Name: "mock"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if p == nil {
		t.Fatal("CreateSTT returned nil provider")
	}
}

func TestRegistryUnregisteredName(t *testing.T) {
	r := NewRegistry()

	if _, err := r.CreateLLM(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM error = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateSTT(ProviderEntry{Name: "nope"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT error = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryFactoryReceivesEntry(t *testing.T) {
	r := NewRegistry()

	var got ProviderEntry
	r.RegisterLLM("capture", func(e ProviderEntry) (llm.Provider, error) {
		got = e
		return &llmmock.Provider{}, nil
	})

	entry := ProviderEntry{Name: "capture", APIKey: "sk-test", Model: "gpt-4-turbo"}
	if _, err := r.CreateLLM(entry); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got.APIKey != "sk-test" || got.Model != "gpt-4-turbo" {
		t.Errorf("factory received %+v, want %+v", got, entry)
	}
}
