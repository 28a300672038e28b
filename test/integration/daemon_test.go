// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Lumen Contributors

//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/lumenlauncher/lumen/internal/api"
	"github.com/lumenlauncher/lumen/internal/command"
	"github.com/lumenlauncher/lumen/internal/plugin"
	"github.com/lumenlauncher/lumen/internal/search"
	"github.com/lumenlauncher/lumen/pkg/pluginsdk"
)

// staticProvider stands in for plugin-backed search in a daemon wired
// without live WASM modules.
type staticProvider struct{}

func (staticProvider) ID() string        { return "static" }
func (staticProvider) Kind() search.Kind { return search.KindBuiltin }

func (staticProvider) Search(_ context.Context, query string) ([]search.Result, error) {
	if query == "" {
		return nil, nil
	}
	return []search.Result{{ID: "static:hit", Title: "Hit for " + query, Score: 10, Kind: search.KindBuiltin}}, nil
}

var _ = Describe("daemon wiring", func() {
	var (
		pluginsDir string
		loader     *plugin.Loader
		commands   *command.Registry
		server     *api.Server
		baseURL    string
	)

	BeforeEach(func() {
		pluginsDir = GinkgoT().TempDir()

		dir := filepath.Join(pluginsDir, "clock")
		Expect(os.MkdirAll(dir, 0o700)).To(Succeed())
		manifest := `{
			"id": "clock",
			"name": "Clock",
			"version": "1.0.0",
			"entry": "clock.wasm",
			"provides": {"commands": [{"trigger": "time", "name": "Time"}]}
		}`
		Expect(os.WriteFile(filepath.Join(dir, "manifest.json"), []byte(manifest), 0o600)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(dir, "clock.wasm"), []byte("\x00asm"), 0o600)).To(Succeed())

		loader = plugin.NewLoader(pluginsDir)
		found, err := loader.Scan(env.ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(ConsistOf("clock"))

		commands = command.NewRegistry()
		sp, ok := loader.Get("clock")
		Expect(ok).To(BeTrue())
		commands.RegisterPluginCommands("clock", sp.Manifest.Provides.Commands)

		aggregator := search.NewAggregator(staticProvider{})
		server = api.NewServer("127.0.0.1:0", aggregator, commands, noopRuntime{}, loader)
		_, err = server.Start()
		Expect(err).NotTo(HaveOccurred())
		baseURL = "http://" + server.Addr()
	})

	AfterEach(func() {
		Expect(server.Stop(env.ctx)).To(Succeed())
	})

	It("serves catalogued plugins over the API", func() {
		resp, err := http.Get(baseURL + "/v1/plugins")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var body struct {
			Plugins []plugin.Info `json:"plugins"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		Expect(body.Plugins).To(HaveLen(1))
		Expect(body.Plugins[0].ID).To(Equal("clock"))
	})

	It("resolves manifest command triggers", func() {
		resp, err := http.Get(baseURL + "/v1/commands?trigger=time")
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var cmd command.Command
		Expect(json.NewDecoder(resp.Body).Decode(&cmd)).To(Succeed())
		Expect(cmd.PluginID).To(Equal("clock"))
	})

	It("answers search queries end to end", func() {
		resp, err := http.Get(fmt.Sprintf("%s/v1/search?q=%s", baseURL, "meeting"))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var body struct {
			Results []search.Result `json:"results"`
		}
		Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
		Expect(body.Results).To(HaveLen(1))
		Expect(body.Results[0].Title).To(ContainSubstring("meeting"))
	})
})

// noopRuntime satisfies api.Runtime for wiring tests without loaded
// modules.
type noopRuntime struct{}

func (noopRuntime) ExecuteAITool(_ context.Context, _, _ string, _ json.RawMessage) (pluginsdk.AIToolOutput, error) {
	return pluginsdk.AIToolOutput{}, nil
}

func (noopRuntime) RenderWidget(_ context.Context, _, _ string, _ json.RawMessage) (pluginsdk.WidgetOutput, error) {
	return pluginsdk.WidgetOutput{}, nil
}
