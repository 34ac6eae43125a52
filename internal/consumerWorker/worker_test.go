package consumerWorker

import (
	"context"
	"testing"

	"github.com/wb-go/wbf/zlog"

	"activityhub/internal/mailer"
)

func TestHandleMessageDropsMalformedPayload(t *testing.T) {
	zlog.Init()
	r := NewReader(nil, nil, mailer.Config{})

	// A malformed payload must be acked away, not returned as an error:
	// an error answer makes the broker requeue the same message forever.
	if err := r.handleMessage(context.Background(), []byte("not-json")); err != nil {
		t.Fatalf("malformed payload must be dropped, got error: %v", err)
	}
}
