package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testFixtures = "../../internal/gateway/testdata/fixtures.yaml"

func TestNewServer_Validates(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t)

	_, _, err := newServer(options{fixtures: testFixtures, plaintext: true}, log)
	require.ErrorContains(t, err, "--jwt-key")

	_, _, err = newServer(options{fixtures: "missing.yaml", jwtKey: "k", plaintext: true}, log)
	require.Error(t, err)

	_, _, err = newServer(options{fixtures: testFixtures, jwtKey: "k", certFile: "missing.pem", keyFile: "missing.pem"}, log)
	require.ErrorContains(t, err, "TLS")
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, options{
			addr:       "127.0.0.1:0",
			fixtures:   testFixtures,
			jwtKey:     "k",
			sessionTTL: time.Minute,
			plaintext:  true,
		}, zaptest.NewLogger(t))
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
