package bridge

import (
	"github.com/jholhewres/wabridge/pkg/wabridge/gateway"
)

// Status reports the bridge state for the HTTP gateway.
func (b *Bridge) Status() gateway.Status {
	c := b.objectives.Counts()
	return gateway.Status{
		Name:                b.cfg.Name,
		AutoReply:           b.cfg.AutoReply,
		OpenMode:            b.access.Open(),
		ActiveConversations: b.store.Count(),
		ProactiveChats:      b.proactive.Chats(),
		Objectives: gateway.ObjectiveTally{
			Pending: c.Pending,
			Working: c.Working,
			Done:    c.Done,
			Total:   c.Total,
		},
	}
}

// Objectives lists the objective queue for the HTTP gateway.
func (b *Bridge) Objectives() []gateway.Objective {
	items := b.objectives.List()
	out := make([]gateway.Objective, len(items))
	for i, o := range items {
		out[i] = objectiveView(o)
	}
	return out
}

// AddObjective queues an objective on behalf of the HTTP gateway.
func (b *Bridge) AddObjective(description string) gateway.Objective {
	o := b.objectives.Add(description)
	b.logger.Info("objective added", "id", o.ID)
	return objectiveView(o)
}

func objectiveView(o Objective) gateway.Objective {
	return gateway.Objective{
		ID:          o.ID,
		Description: o.Description,
		Status:      string(o.Status),
		CreatedAt:   o.CreatedAt,
	}
}
