// agentd runs one agent process. The role decides which: the data agent and
// support agent wrap tool-calling executors, the router delegates to both.
// Every role serves the same protocol surface, card included.
package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/a2a"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/classify"
	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/executor"
	llmx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/llm"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/router"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/gateway"
	configx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/config"
	logx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/logger"
	openrouterx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/pkg/openrouter"
)

const version = "1.0.0"

type AppConfig struct {
	Role      string `envconfig:"ROLE" split_words:"true" required:"true"`
	Addr      string `envconfig:"ADDR" split_words:"true" default:":5001"`
	PublicURL string `envconfig:"PUBLIC_URL" split_words:"true"`

	GatewayURL      string `envconfig:"GATEWAY_URL" split_words:"true" default:"http://localhost:5010"`
	DataAgentURL    string `envconfig:"DATA_AGENT_URL" split_words:"true" default:"http://localhost:5002"`
	SupportAgentURL string `envconfig:"SUPPORT_AGENT_URL" split_words:"true" default:"http://localhost:5003"`

	Classifier string `envconfig:"CLASSIFIER" split_words:"true" default:"rules"`
	Policy     string `envconfig:"POLICY" split_words:"true" default:"rules"`
	TaskStore  string `envconfig:"TASK_STORE" split_words:"true" default:"memory"`

	MaxSteps       int           `envconfig:"MAX_STEPS" split_words:"true" default:"6"`
	ProcessTimeout time.Duration `envconfig:"PROCESS_TIMEOUT" split_words:"true" default:"60s"`
	StepTimeout    time.Duration `envconfig:"STEP_TIMEOUT" split_words:"true" default:"30s"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("AGENT")

	logCfg := configx.MustNew[logx.Config]("LOG")
	logx.Init(appCfg.Role+"-agent", *logCfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, cleanup, err := buildTaskStore(appCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize task store")
	}
	defer cleanup()

	processor, card, err := buildRole(ctx, appCfg, store)
	if err != nil {
		log.Fatal().Err(err).Str("role", appCfg.Role).Msg("initialize agent")
	}

	server, err := a2a.NewServer(card, store, processor, appCfg.Addr,
		a2a.WithProcessTimeout(appCfg.ProcessTimeout))
	if err != nil {
		log.Fatal().Err(err).Msg("initialize server")
	}

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("agent server stopped")
	}
	log.Info().Str("role", appCfg.Role).Msg("agent shut down")
}

func buildTaskStore(cfg *AppConfig) (taskx.Store, func(), error) {
	switch cfg.TaskStore {
	case "memory":
		store := taskx.NewMemoryStore()
		return store, store.Close, nil
	case "upstash":
		redisCfg := configx.MustNew[taskx.UpstashRedisConfig]("UPSTASH_REDIS")
		store, err := taskx.NewUpstashRedisStore(*redisCfg)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, errors.New("unknown task store: " + cfg.TaskStore)
	}
}

func buildRole(ctx context.Context, cfg *AppConfig, store taskx.Store) (a2a.Processor, contractx.AgentCard, error) {
	switch cfg.Role {
	case "data":
		return buildExecutor(cfg, store, executor.DataPolicy{}, dataCard(cfg))
	case "support":
		urgency, err := buildUrgency(ctx, cfg)
		if err != nil {
			return nil, contractx.AgentCard{}, err
		}
		return buildExecutor(cfg, store, executor.NewSupportPolicy(urgency), supportCard(cfg))
	case "router":
		return buildRouter(ctx, cfg, store)
	default:
		return nil, contractx.AgentCard{}, fmt.Errorf("unknown agent role %q", cfg.Role)
	}
}

func buildExecutor(cfg *AppConfig, store taskx.Store, policy executor.Policy, card contractx.AgentCard) (a2a.Processor, contractx.AgentCard, error) {
	tools, err := gateway.NewClient(cfg.GatewayURL)
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}
	policy, err = buildPolicy(cfg, policy)
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}
	exec, err := executor.New(policy, tools, store, executor.WithMaxSteps(cfg.MaxSteps))
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}
	return exec, card, nil
}

// buildPolicy optionally puts a tool-calling model in charge of the
// reason-act loop; the rule policy stays underneath as the identity and
// tool allow-list.
func buildPolicy(cfg *AppConfig, base executor.Policy) (executor.Policy, error) {
	switch cfg.Policy {
	case "rules":
		return base, nil
	case "llm":
		openRouterCfg := configx.MustNew[openrouterx.Config]("OPENROUTER")
		client := openrouterx.NewClient(*openRouterCfg)
		if client == nil {
			return nil, errors.New("OPENROUTER_API_KEY is required for the llm policy")
		}
		return executor.NewLLMPolicy(client, openRouterCfg.Model, base, gateway.Catalog())
	default:
		return nil, fmt.Errorf("unknown policy %q", cfg.Policy)
	}
}

func buildRouter(ctx context.Context, cfg *AppConfig, store taskx.Store) (a2a.Processor, contractx.AgentCard, error) {
	dataPeer, err := a2a.NewClient(cfg.DataAgentURL, a2a.WithClientTimeout(cfg.StepTimeout))
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}
	supportPeer, err := a2a.NewClient(cfg.SupportAgentURL, a2a.WithClientTimeout(cfg.StepTimeout))
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}

	directory, err := router.Discover(ctx, dataPeer, supportPeer)
	if err != nil {
		return nil, contractx.AgentCard{}, fmt.Errorf("discover specialists: %w", err)
	}

	intent, err := buildIntent(ctx, cfg)
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}

	r, err := router.New(intent, directory, store, router.WithStepTimeout(cfg.StepTimeout))
	if err != nil {
		return nil, contractx.AgentCard{}, err
	}
	return r, routerCard(cfg), nil
}

func buildIntent(ctx context.Context, cfg *AppConfig) (contractx.IntentClassifier, error) {
	switch cfg.Classifier {
	case "rules":
		return classify.RuleIntent{}, nil
	case "llm":
		modelCfg, err := loadModelConfig(llmx.RoleIntent)
		if err != nil {
			return nil, err
		}
		return classify.NewLLMClassifier(ctx, modelCfg)
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
}

func buildUrgency(ctx context.Context, cfg *AppConfig) (contractx.UrgencyClassifier, error) {
	switch cfg.Classifier {
	case "rules":
		return classify.RuleUrgency{}, nil
	case "llm":
		modelCfg, err := loadModelConfig(llmx.RoleUrgency)
		if err != nil {
			return nil, err
		}
		classifier, err := classify.NewLLMClassifier(ctx, modelCfg)
		if err != nil {
			return nil, err
		}
		return classifier.Urgency(), nil
	default:
		return nil, fmt.Errorf("unknown classifier %q", cfg.Classifier)
	}
}

func loadModelConfig(role llmx.Role) (*openrouterx.Config, error) {
	llmCfg := configx.MustNew[llmx.Config]("OPENROUTER")
	if err := llmCfg.Validate(); err != nil {
		return nil, err
	}
	openRouterCfg := llmCfg.OpenRouterFor(role)
	return &openRouterCfg, nil
}

func publicURL(cfg *AppConfig, fallback string) string {
	if cfg.PublicURL != "" {
		return cfg.PublicURL
	}
	return fallback
}

func dataCard(cfg *AppConfig) contractx.AgentCard {
	return contractx.AgentCard{
		Name:         "data-agent",
		Description:  "Looks up and maintains customer records and ticket history.",
		Version:      version,
		URL:          publicURL(cfg, cfg.DataAgentURL),
		Capabilities: contractx.AgentCapabilities{ToolCalling: true, HumanInput: true},
		Skills: []contractx.AgentSkill{
			{
				ID:          string(contractx.CapabilityDataLookup),
				Name:        "Customer data lookup",
				Description: "Fetch, list, and update customer records; read ticket history.",
				Examples:    []string{"Get customer information for customer ID 1"},
			},
		},
	}
}

func supportCard(cfg *AppConfig) contractx.AgentCard {
	return contractx.AgentCard{
		Name:         "support-agent",
		Description:  "Files support tickets with urgency-derived priority.",
		Version:      version,
		URL:          publicURL(cfg, cfg.SupportAgentURL),
		Capabilities: contractx.AgentCapabilities{ToolCalling: true, HumanInput: true},
		Skills: []contractx.AgentSkill{
			{
				ID:          string(contractx.CapabilityTicketCreation),
				Name:        "Support ticket creation",
				Description: "Create support tickets; grade urgency from the request's tone.",
				Examples:    []string{"I was charged twice and I need a refund immediately!"},
			},
		},
	}
}

func routerCard(cfg *AppConfig) contractx.AgentCard {
	return contractx.AgentCard{
		Name:         "router-agent",
		Description:  "Classifies requests and delegates them across the specialist agents.",
		Version:      version,
		URL:          publicURL(cfg, "http://localhost:5001"),
		Capabilities: contractx.AgentCapabilities{Delegation: true, HumanInput: true},
		Skills: []contractx.AgentSkill{
			{
				ID:          "request-routing",
				Name:        "Request routing",
				Description: "Route customer-service requests to data and support specialists.",
			},
		},
	}
}
