package pubsub

import (
	"context"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPublisher(t *testing.T) (*Publisher, *pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	ctx := context.Background()
	client, err := pubsub.NewClient(ctx, "frost-test", option.WithGRPCConn(conn))
	require.NoError(t, err)

	p := NewWithClient(client)
	t.Cleanup(func() { _ = p.Close() })
	return p, srv, client
}

func TestPublishSendsJSON(t *testing.T) {
	t.Parallel()

	p, srv, client := newTestPublisher(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "crawl-cycles")
	require.NoError(t, err)

	id, err := p.Publish(ctx, "crawl-cycles", map[string]any{"cycle_id": "c-1", "stored": 3})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.JSONEq(t, `{"cycle_id":"c-1","stored":3}`, string(msgs[0].Data))
	assert.Equal(t, "application/json", msgs[0].Attributes["content_type"])
}

func TestPublishMissingTopicFails(t *testing.T) {
	t.Parallel()

	p, _, _ := newTestPublisher(t)
	_, err := p.Publish(context.Background(), "does-not-exist", "x")
	require.Error(t, err)
}

func TestPublishValidates(t *testing.T) {
	t.Parallel()

	var nilPub *Publisher
	_, err := nilPub.Publish(context.Background(), "t", "x")
	require.Error(t, err)

	p, _, _ := newTestPublisher(t)
	_, err = p.Publish(context.Background(), "", "x")
	require.Error(t, err)

	_, err = p.Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
}

func TestNewRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "")
	require.Error(t, err)
}
