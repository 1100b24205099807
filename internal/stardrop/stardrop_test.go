//nolint:errcheck
package stardrop_test

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/SpatiumPortae/stardrop/internal/receiver"
	"github.com/SpatiumPortae/stardrop/internal/rendezvous"
	"github.com/SpatiumPortae/stardrop/internal/semver"
	"github.com/SpatiumPortae/stardrop/internal/session"
	"github.com/SpatiumPortae/stardrop/internal/stardrop"
	"github.com/SpatiumPortae/stardrop/protocol/transfer"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

type brokerContainer struct {
	testcontainers.Container
	URI string
}

func TestMergeConfig(t *testing.T) {
	dst := stardrop.Config{BrokerAddr: "localhost:8080", ChunkSize: 1024}
	assert.Equal(t, dst, stardrop.MergeConfig(dst, nil))

	merged := stardrop.MergeConfig(dst, &stardrop.Config{
		STUNServers: []string{"stun:stun.l.google.com:19302"},
		ResetDelay:  time.Second,
	})
	assert.Equal(t, "localhost:8080", merged.BrokerAddr)
	assert.Equal(t, 1024, merged.ChunkSize)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, merged.STUNServers)
	assert.Equal(t, time.Second, merged.ResetDelay)

	merged = stardrop.MergeConfig(dst, &stardrop.Config{BrokerAddr: "broker:9000"})
	assert.Equal(t, "broker:9000", merged.BrokerAddr)
}

func TestLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback test...")
	}
	s := rendezvous.NewServer(0, semver.MustParse("v0.1.0"), rendezvous.WithLogger(zap.NewNop()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	config := &stardrop.Config{
		BrokerAddr: strings.TrimPrefix(ts.URL, "http://"),
		ResetDelay: 2 * time.Second,
	}
	exchange(t, config, bytes.Repeat([]byte("stardrop"), 10000))
}

func TestInvalidCode(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping loopback test...")
	}
	s := rendezvous.NewServer(0, semver.MustParse("v0.1.0"), rendezvous.WithLogger(zap.NewNop()))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	config := &stardrop.Config{BrokerAddr: strings.TrimPrefix(ts.URL, "http://")}
	src := session.Source{
		Info:   transfer.FileInfo{Name: "note.txt", Size: 4, MimeType: "text/plain"},
		Reader: strings.NewReader("note"),
	}
	err := stardrop.Send(ctx, "123-456", src, config)
	assert.ErrorIs(t, err, session.ErrInvalidCode)

	err = stardrop.Send(ctx, "123456", src, config)
	assert.ErrorIs(t, err, session.ErrInvalidCode)
}

func TestE2E(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping E2E test...")
	}
	image := os.Getenv("STARDROP_BROKER_IMAGE")
	if image == "" {
		t.Skip("STARDROP_BROKER_IMAGE not set")
	}
	ctx := context.Background()
	brokerC, err := setupBroker(ctx, image)
	if err != nil {
		t.Fatalf("unable to setup broker: %s", err)
	}
	t.Cleanup(func() {
		if err := brokerC.Terminate(ctx); err != nil {
			t.Fatal(err)
		}
	})
	config := &stardrop.Config{
		BrokerAddr: brokerC.URI,
		ResetDelay: 2 * time.Second,
	}
	exchange(t, config, []byte("A frog walks into a bank..."))
}

// exchange sends oracle from one endpoint to another through the broker in config.
func exchange(t *testing.T, config *stardrop.Config, oracle []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	codes := make(chan string, 1)
	type result struct {
		artifact *receiver.Artifact
		err      error
	}
	results := make(chan result, 1)
	go func() {
		a, err := stardrop.Receive(ctx, codes, config)
		results <- result{a, err}
	}()

	var code string
	select {
	case code = <-codes:
	case res := <-results:
		t.Fatalf("receive ended before a code was issued: %v", res.err)
	case <-ctx.Done():
		t.Fatal("no code issued")
	}

	src := session.Source{
		Info:   transfer.FileInfo{Name: "oracle.txt", Size: int64(len(oracle)), MimeType: "text/plain"},
		Reader: bytes.NewReader(oracle),
	}
	require.NoError(t, stardrop.Send(ctx, code, src, config))

	res := <-results
	require.NoError(t, res.err)
	require.NotNil(t, res.artifact)
	assert.Equal(t, "oracle.txt", res.artifact.Name)
	assert.Equal(t, int64(len(oracle)), res.artifact.Size)
	assert.Equal(t, oracle, res.artifact.Data)
}

func setupBroker(ctx context.Context, image string) (*brokerContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        image,
		ExposedPorts: []string{"8080/tcp"},
		WaitingFor: wait.ForHTTP("/ping").WithPort(nat.Port("8080/tcp")).WithStatusCodeMatcher(
			func(status int) bool { return status == http.StatusOK }),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, err
	}
	ip, err := container.Host(ctx)
	if err != nil {
		return nil, err
	}
	mappedPort, err := container.MappedPort(ctx, "8080")
	if err != nil {
		return nil, err
	}
	uri := fmt.Sprintf("%s:%d", ip, mappedPort.Int())

	return &brokerContainer{Container: container, URI: uri}, nil
}
