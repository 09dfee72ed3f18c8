package nodenet

import "fmt"

// PromptOption asks the user for one parameter value.
type PromptOption struct {
	Key    string            `json:"key"`
	Label  string            `json:"label"`
	Values map[string]string `json:"values,omitempty"`
}

// UserPrompt is raised by a node function to pause the nodenet and ask the
// user to continue, optionally supplying parameter values.
type UserPrompt struct {
	Node    NodeData       `json:"node"`
	Message string         `json:"msg"`
	Options []PromptOption `json:"options,omitempty"`
}

// PendingPrompt returns the prompt raised since it was last read, if any,
// and clears it.
func (n *Nodenet) PendingPrompt() *UserPrompt {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.takePrompt()
}

func (n *Nodenet) takePrompt() *UserPrompt {
	p := n.prompt
	n.prompt = nil
	return p
}

// UserPromptResponse stores the answer to a prompt in the node's
// parameters, where its node function will see them on the next step.
// resume reactivates the nodenet.
func (n *Nodenet) UserPromptResponse(nodeUID string, values map[string]any, resume bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	node, err := n.g.node(nodeUID)
	if err != nil {
		return err
	}
	for k, v := range values {
		if err := node.SetParameter(k, v); err != nil {
			return fmt.Errorf("prompt response for %s: %w", nodeUID, err)
		}
	}
	n.prompt = nil
	n.active.Store(resume)
	return nil
}
