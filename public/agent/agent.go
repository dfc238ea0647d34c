// Package agent is the extension surface embedding applications use to
// supply the collaborators this module deliberately stays agnostic of:
// a Model, a tool set, and optional pre/post-dispatch hooks. It wires
// them into a runtime.Runner the way the teacher's AgentFramework wires
// a runner into the connection/lifecycle boilerplate, but against a
// shared ordered log instead of a broker connection.
package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/quadracode/runtime/internal/config"
	"github.com/quadracode/runtime/internal/envelope"
	"github.com/quadracode/runtime/internal/graph"
	"github.com/quadracode/runtime/internal/logx"
	"github.com/quadracode/runtime/internal/messaging"
	"github.com/quadracode/runtime/internal/metrics"
	"github.com/quadracode/runtime/internal/registry"
	"github.com/quadracode/runtime/internal/routing"
	"github.com/quadracode/runtime/internal/runtime"
	"github.com/quadracode/runtime/internal/store"
)

// Options is what an embedding application provides; everything else
// (profile, identity, store backend, poll interval) is resolved from
// the environment the way config.FromEnv describes.
type Options struct {
	Model        graph.Model
	Tools        []graph.Tool
	PreDispatch  runtime.DispatchHook
	PostDispatch runtime.DispatchHook
	Metrics      metrics.Hook
}

// Run resolves configuration from the environment, builds the store,
// messaging client, profile, checkpointer, and registry client it
// implies, and blocks running the poll loop until ctx is cancelled or
// an OS interrupt/terminate signal arrives.
//
// Fatal startup conditions (spec's UnknownProfile/MissingIdentity) are
// returned as errors rather than calling log.Fatalf, so a caller
// embedding this in a larger process can handle them.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("agent: config: %w", err)
	}

	profile, err := routing.Load(cfg.Profile)
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	identity := cfg.Identity
	if identity == "" {
		identity = profile.DefaultIdentity
	}
	if identity == "" {
		return fmt.Errorf("agent: missing identity: set QUADRACODE_ID")
	}

	log := logx.New("agent " + identity)
	log.Info("starting with profile %q, store backend %q", profile.Name, cfg.StoreBackend)

	if cfg.MailboxPrefix != "" {
		envelope.MailboxPrefix = cfg.MailboxPrefix
	}

	backingStore, err := store.New(ctx, store.Options{
		Backend:   store.Backend(cfg.StoreBackend),
		BadgerDir: cfg.BadgerDir,
		Redis: store.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
	})
	if err != nil {
		return fmt.Errorf("agent: store: %w", err)
	}
	defer backingStore.Close()

	msgClient := messaging.New(backingStore)

	var checkpointer graph.Checkpointer
	if cfg.StoreBackend == "memory" {
		checkpointer = graph.NewMemoryCheckpointer()
	} else {
		checkpointer = graph.NewStoreCheckpointer(backingStore)
	}

	tools := make([]graph.Tool, len(opts.Tools))
	copy(tools, opts.Tools)
	g := graph.New(opts.Model, graph.NewToolSet(tools...), cfg.ToolLoopCap, profile.SystemPrompt)

	var registryClient *registry.Client
	if cfg.RegistryURL != "" {
		registryClient = registry.New(cfg.RegistryURL)
	}

	metricsHook := opts.Metrics
	if metricsHook == nil {
		metricsHook = metrics.Noop
	}

	runner, err := runtime.New(runtime.Options{
		Identity:        identity,
		Profile:         profile,
		Messaging:       msgClient,
		Graph:           g,
		Checkpointer:    checkpointer,
		PollInterval:    cfg.PollInterval,
		BatchSize:       cfg.BatchSize,
		Registry:        registryClient,
		HeartbeatPeriod: cfg.HeartbeatPeriod,
		Metrics:         metricsHook,
		PreDispatch:     opts.PreDispatch,
		PostDispatch:    opts.PostDispatch,
	})
	if err != nil {
		return fmt.Errorf("agent: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			log.Info("received signal %s, shutting down", sig)
			cancel()
		case <-runCtx.Done():
		}
	}()

	return runner.Run(runCtx)
}
