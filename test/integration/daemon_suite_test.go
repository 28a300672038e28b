// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

//go:build integration

// Package integration provides end-to-end integration tests for the Lumen
// daemon wiring: loader, capability host, command registry, and the local
// JSON API, exercised together without a launcher frontend.
package integration

import (
	"context"
	"testing"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

func TestDaemon(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Daemon Integration Suite")
}

// testEnv holds all the resources needed for integration tests.
type testEnv struct {
	ctx    context.Context
	cancel context.CancelFunc
}

var env *testEnv

var _ = BeforeSuite(func() {
	ctx, cancel := context.WithCancel(context.Background())
	env = &testEnv{ctx: ctx, cancel: cancel}
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cancel()
	}
})
