// Package aria provides a high-level façade over the orchestration engine and
// its collaborators (action selection, tool registry, memory, logging),
// enabling rapid construction of a personal assistant. Most applications
// interact with this package by:
//  1. Creating an Assistant via New() or FromConfig()
//  2. Registering one or more tools
//  3. Calling Run() once per user utterance
//
// The façade delegates the observe/decide/act loop to engine.Engine while
// keeping setup ergonomics concise. All defaults are safe for local
// development; production deployments typically supply a durable memory store
// and a structured logger.
package aria

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	openaisdk "github.com/openai/openai-go"
	oaioption "github.com/openai/openai-go/option"

	"github.com/solenelabs/aria/config"
	"github.com/solenelabs/aria/core"
	"github.com/solenelabs/aria/engine"
	"github.com/solenelabs/aria/logging"
	"github.com/solenelabs/aria/memory"
	"github.com/solenelabs/aria/memory/sqlite"
	"github.com/solenelabs/aria/model"
	"github.com/solenelabs/aria/model/anthropic"
	"github.com/solenelabs/aria/model/openai"
	"github.com/solenelabs/aria/prompt"
	"github.com/solenelabs/aria/selector"
	"github.com/solenelabs/aria/tool"
)

// Options configures the Assistant instance.
type Options struct {
	// Engine configuration (iteration budget, memory fan-in, timeouts).
	EngineConfig engine.Config

	// Instructions overrides the default system instructions given to the
	// completion service. Supports {{.UserID}} and {{.UserInput}} markers.
	Instructions string

	// Memory is the long-term memory store (defaults to in-memory).
	Memory core.MemoryStore

	// Logger (defaults to NoOp logger if nil).
	Logger logging.Logger
}

// Assistant is the high-level façade aggregating the engine, the selector and
// the tool registry. One Assistant serves many users and many concurrent
// turns.
type Assistant struct {
	opts     Options
	registry *tool.Registry
	engine   *engine.Engine
}

// New creates an Assistant around a completion service with optional
// overrides. Any unset collaborator is initialized with a local default.
func New(m model.Model, optFns ...func(o *Options)) *Assistant {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Memory:       memory.NewInMemoryStore(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	sel := selector.New(m, func(o *selector.Options) {
		o.Builder = prompt.NewTranscriptBuilder(opts.Instructions)
		o.Logger = opts.Logger
	})

	registry := tool.NewRegistry(opts.Logger)

	eng := engine.New(sel, registry, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Memory = opts.Memory
		o.Logger = opts.Logger
	})

	return &Assistant{opts: opts, registry: registry, engine: eng}
}

// FromConfig builds an Assistant from a loaded configuration: completion
// provider, memory backend and logger are all selected by the config file.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Assistant, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := buildModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	store, err := buildMemory(cfg.Memory)
	if err != nil {
		return nil, err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(&logging.Config{Level: level, Format: cfg.LogFormat})

	return New(m, func(o *Options) {
		o.EngineConfig = engine.Config{
			LoopLimit:     cfg.LoopLimit,
			MemoryK:       cfg.MemoryK,
			SelectTimeout: cfg.SelectTimeout(),
			ToolTimeout:   cfg.ToolTimeout(),
		}
		o.Instructions = cfg.Instructions
		o.Memory = store
		o.Logger = logger

		for _, fn := range optFns {
			fn(o)
		}
	}), nil
}

// RegisterTool adds a tool to the registry, making it available to every
// subsequent turn. Registering a duplicate name is an error.
func (a *Assistant) RegisterTool(t tool.Tool) error { return a.registry.Register(t) }

// Tools exposes the underlying registry for advanced wiring.
func (a *Assistant) Tools() *tool.Registry { return a.registry }

// Run processes one user utterance to completion and returns the assistant's
// final answer text. It blocks until the turn resolves; memory write-back
// continues in the background (see Drain).
func (a *Assistant) Run(ctx context.Context, userID, userInput string) (string, error) {
	return a.engine.RunTurn(ctx, userID, userInput)
}

// Drain blocks until all background memory writes have settled. Call before
// process exit to avoid losing interaction records.
func (a *Assistant) Drain() { a.engine.Drain() }

func buildModel(mc config.ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case "", "openai":
		if mc.APIKey != "" {
			client := openaisdk.NewClient(oaioption.WithAPIKey(mc.APIKey))
			return openai.NewModelFromClient(&client, func(o *openai.Options) {
				if mc.Name != "" {
					o.Model = mc.Name
				}
			}), nil
		}
		return openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			o.APIKey = mc.APIKey
		}), nil
	case "mock":
		return model.NewMockModel(mc.Name), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

func buildMemory(mc config.MemoryConfig) (core.MemoryStore, error) {
	switch mc.Backend {
	case "", "inmemory":
		return memory.NewInMemoryStore(), nil
	case "sqlite":
		return sqlite.New(mc.Path)
	default:
		return nil, fmt.Errorf("unknown memory backend %q", mc.Backend)
	}
}
