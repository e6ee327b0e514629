package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/mbianchi/document-worker/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
	}{
		{"timeout", nats.ErrTimeout, true},
		{"no_servers", nats.ErrNoServers, true},
		{"closed", nats.ErrConnectionClosed, true},
		{"canceled", context.Canceled, false},
		{"other", errors.New("bad subject"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			class := classifyNATSError(tc.err)
			if class.Retryable != tc.retryable {
				t.Fatalf("Retryable = %v, want %v", class.Retryable, tc.retryable)
			}
		})
	}
}

func TestWrapTemporary(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrTimeout); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("timeout should wrap as temporary, got %v", err)
	}
	permanent := errors.New("bad subject")
	if err := wrapTemporaryIfNeeded(permanent); !errors.Is(err, permanent) || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("permanent error mangled: %v", err)
	}
}

func TestProcessedEventShape(t *testing.T) {
	payload, err := json.Marshal(processedEvent{
		DocumentID:   "doc-1",
		DocumentType: domain.TypeFattura,
		Confidence:   0.9,
		Status:       "success",
	})
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"document_id", "document_type", "confidence_score", "status"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("event missing %q: %v", key, decoded)
		}
	}
}

func TestNoopPublisher(t *testing.T) {
	var p NoopPublisher
	if err := p.PublishDocumentProcessed(context.Background(), &domain.ProcessingResult{}); err != nil {
		t.Fatalf("noop publish: %v", err)
	}
}
