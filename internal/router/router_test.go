package router

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/duplexhq/duplex/internal/canonical"
	"github.com/duplexhq/duplex/internal/directory"
	"github.com/duplexhq/duplex/internal/messaging"
	"github.com/duplexhq/duplex/internal/policy"
	"github.com/duplexhq/duplex/internal/quota"
	"github.com/duplexhq/duplex/internal/signal"
)

type failingPolicies struct{}

func (failingPolicies) Get(_ context.Context, ownerID int64) (policy.OrchestratorPolicy, error) {
	return policy.Defaults(ownerID), errors.New("connection refused")
}

type stubSearcher struct{}

func (stubSearcher) Search(context.Context, string, int64, int) ([]signal.ChunkScore, error) {
	return []signal.ChunkScore{{ChunkID: 1, Content: "hours", Score: 0.9}}, nil
}

type canonicalMiss struct{}

func (canonicalMiss) Lookup(context.Context, int64, string) (*canonical.Match, error) {
	return nil, nil
}

func (canonicalMiss) Promote(context.Context, int64, string, string) error { return nil }

type zeroQuota struct{}

func (zeroQuota) TryReserve(context.Context, int64, quota.Day, int) (bool, error) {
	return true, nil
}
func (zeroQuota) Release(context.Context, int64, quota.Day) error { return nil }

func (zeroQuota) Usage(context.Context, int64, quota.Day) (int, error) { return 0, nil }

func TestSnapshotRoutesWithDefaultsOnPolicyReadFailure(t *testing.T) {
	r := &Router{
		policies:  failingPolicies{},
		signals:   signal.NewComputer(stubSearcher{}, 3, time.Second),
		canonical: canonicalMiss{},
		quota:     zeroQuota{},
	}

	inbound := &messaging.Message{ID: 1, ConversationID: 1, Body: "What are your opening hours this week?"}
	agent := directory.AgentDescriptor{AgentID: 5, OwnerID: 9, KnowledgeBaseID: 3}
	sender := directory.Sender{UserID: 2, Tier: "standard"}

	in, err := r.snapshot(context.Background(), inbound, agent, sender)

	require.NoError(t, err, "a broken policy store must not drop the message")
	assert.Equal(t, policy.Defaults(9), in.Policy)
}
