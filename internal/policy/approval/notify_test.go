package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"steward/internal/pubsub"
)

func TestNotifier_NotifyRequest(t *testing.T) {
	broker := pubsub.NewBroker[ApprovalEvent]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	notifier := NewNotifier(broker)

	req := &ApprovalRequest{
		ID:        "test-id",
		ToolName:  "shell",
		Arguments: `{"command": "sudo apt update"}`,
		Reason:    "sudo requires approval",
		SessionID: "session-1",
		AgentID:   "agent-1",
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}

	require.NoError(t, notifier.NotifyRequest(req))

	select {
	case event := <-events:
		assert.Equal(t, pubsub.EventCreated, event.Type)
		assert.Equal(t, "test-id", event.Payload.Request.ID)
		assert.Nil(t, event.Payload.Result)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNotifier_NotifyResolved(t *testing.T) {
	broker := pubsub.NewBroker[ApprovalEvent]()
	defer broker.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := broker.Subscribe(ctx)

	notifier := NewNotifier(broker)

	req := &ApprovalRequest{ID: "test-id", ToolName: "shell"}
	result := &ApprovalResult{
		Approved:   true,
		Message:    "approved",
		ApprovedBy: "admin",
		DecidedAt:  time.Now(),
		Decision:   DecisionApproved,
	}

	require.NoError(t, notifier.NotifyResolved(req, result))

	select {
	case event := <-events:
		assert.Equal(t, pubsub.EventResolved, event.Type)
		assert.Equal(t, "test-id", event.Payload.Request.ID)
		require.NotNil(t, event.Payload.Result)
		assert.True(t, event.Payload.Result.Approved)
		assert.Equal(t, "admin", event.Payload.Result.ApprovedBy)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNotifier_NilBroker(t *testing.T) {
	notifier := NewNotifier(nil)

	req := &ApprovalRequest{ID: "test-id", ToolName: "shell"}

	assert.NoError(t, notifier.NotifyRequest(req))
	assert.NoError(t, notifier.NotifyResolved(req, &ApprovalResult{Approved: true}))
}

func TestFormatApprovalRequestJSON(t *testing.T) {
	req := &ApprovalRequest{
		ID:       "test-id",
		ToolName: "shell",
	}

	json := FormatApprovalRequestJSON(req)

	assert.Contains(t, json, `"id":"test-id"`)
	assert.Contains(t, json, `"tool_name":"shell"`)
}

func TestFormatApprovalResultJSON(t *testing.T) {
	result := &ApprovalResult{
		Approved: true,
		Message:  "approved",
	}

	json := FormatApprovalResultJSON(result)

	assert.Contains(t, json, `"approved":true`)
	assert.Contains(t, json, `"message":"approved"`)
}
