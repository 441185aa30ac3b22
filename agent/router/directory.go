package router

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/a2a"
	contractx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/contract"
	taskx "github.com/tanpawarit/Deskmesh-Multi-Agent-Customer-Service/agent/task"
)

// Agent is the slice of the a2a client the router needs from a specialist.
type Agent interface {
	Submit(ctx context.Context, taskID, message string) (*taskx.Task, error)
	Cancel(ctx context.Context, id string) error
}

var _ Agent = (*a2a.Client)(nil)

// Directory maps capabilities to the agents that advertise them. It is
// populated from agent cards at startup, never from static routing tables,
// so adding a specialist means standing it up, not reconfiguring the router.
type Directory struct {
	agents map[contractx.Capability]Agent
}

func NewDirectory() *Directory {
	return &Directory{agents: make(map[contractx.Capability]Agent)}
}

// Discover fetches each peer's agent card and registers the peer under every
// capability its skills advertise.
func Discover(ctx context.Context, peers ...*a2a.Client) (*Directory, error) {
	d := NewDirectory()
	for _, peer := range peers {
		card, err := peer.FetchCard(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetch agent card: %w", err)
		}
		registered := 0
		for _, skill := range card.Skills {
			capability := contractx.Capability(skill.ID)
			switch capability {
			case contractx.CapabilityDataLookup, contractx.CapabilityTicketCreation:
				d.Register(capability, peer)
				registered++
			default:
				log.Warn().Str("agent", card.Name).Str("skill", skill.ID).
					Msg("ignoring unknown skill")
			}
		}
		log.Info().Str("agent", card.Name).Int("skills", registered).Msg("discovered specialist")
	}
	return d, nil
}

func (d *Directory) Register(capability contractx.Capability, agent Agent) {
	d.agents[capability] = agent
}

func (d *Directory) AgentFor(capability contractx.Capability) (Agent, bool) {
	agent, ok := d.agents[capability]
	return agent, ok
}
