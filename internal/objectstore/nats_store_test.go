// Package objectstore_test tests the NATS object store implementation.
package objectstore_test

import (
	"testing"

	"github.com/book-expert/tts-gateway/internal/objectstore"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/require"
)

// StartTestServer starts an in-process JetStream-enabled NATS server.
func StartTestServer(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1 // Use a random port
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	natsServer := test.RunServer(&opts)

	natsConnection, err := nats.Connect(natsServer.ClientURL())
	if err != nil {
		t.Fatalf("Failed to connect to test NATS server: %v", err)
	}

	return natsServer, natsConnection
}

func TestNatsObjectStore_UploadDownload(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	store, err := objectstore.New(t.Context(), js, "tts-texts")
	require.NoError(t, err)

	uploadData := []byte("Il treno regionale per Milano è in arrivo al binario tre.")

	require.NoError(t, store.Upload(t.Context(), "announcement-1", uploadData))

	downloadData, err := store.Download(t.Context(), "announcement-1")
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)

	// Binding to the existing bucket sees the same objects.
	again, err := objectstore.New(t.Context(), js, "tts-texts")
	require.NoError(t, err)

	downloadData, err = again.Download(t.Context(), "announcement-1")
	require.NoError(t, err)
	require.Equal(t, uploadData, downloadData)
}

func TestNatsObjectStore_MissingKey(t *testing.T) {
	t.Parallel()

	natsServer, natsConnection := StartTestServer(t)
	defer natsServer.Shutdown()
	defer natsConnection.Close()

	js, err := jetstream.New(natsConnection)
	require.NoError(t, err)

	store, err := objectstore.New(t.Context(), js, "tts-texts")
	require.NoError(t, err)

	_, err = store.Download(t.Context(), "missing")
	require.ErrorIs(t, err, objectstore.ErrNotFound)

	_, err = objectstore.New(t.Context(), js, "")
	require.ErrorIs(t, err, objectstore.ErrEmptyBucket)
}
