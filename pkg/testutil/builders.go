// Package testutil provides builders for workflow definitions used across
// the test suites.
package testutil

import "github.com/thibo-redpepper/convoflow/pkg/models"

// NewDefinition chains the given nodes in order with generated edges.
func NewDefinition(nodes ...*models.Node) *models.Definition {
	def := &models.Definition{Nodes: nodes}

	for i := 1; i < len(nodes); i++ {
		def.Edges = append(def.Edges, &models.Edge{
			ID:     "edge-" + nodes[i-1].ID + "-" + nodes[i].ID,
			Source: nodes[i-1].ID,
			Target: nodes[i].ID,
		})
	}

	return def
}

func TriggerNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeTriggerManual}
}

func VoicemailTriggerNode(id string) *models.Node {
	return &models.Node{ID: id, Type: models.NodeTypeTriggerVoicemail}
}

func EmailNode(id, subject, body string) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeActionEmail,
		Data: map[string]any{"subject": subject, "body": body},
	}
}

// EmailNodeTo builds an email node with an explicit recipient override.
func EmailNodeTo(id, to, subject, body string) *models.Node {
	node := EmailNode(id, subject, body)
	node.Data["to"] = to

	return node
}

func SMSNode(id, message string) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeActionSMS,
		Data: map[string]any{"message": message},
	}
}

func SMSNodeTo(id, to, message string) *models.Node {
	node := SMSNode(id, message)
	node.Data["to"] = to

	return node
}

// WaitNode builds an action.wait node; amount uses float64 to mirror what
// JSON decoding produces.
func WaitNode(id string, amount int, unit string) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeActionWait,
		Data: map[string]any{"amount": float64(amount), "unit": unit},
	}
}

func AgentNode(id, agentID string) *models.Node {
	return &models.Node{
		ID:   id,
		Type: models.NodeTypeActionAgent,
		Data: map[string]any{"agentId": agentID},
	}
}
