package nodenet

import "maps"

// Area is a viewport rectangle in canvas coordinates.
type Area struct {
	X1 float64 `json:"x1"`
	X2 float64 `json:"x2"`
	Y1 float64 `json:"y1"`
	Y2 float64 `json:"y2"`
}

func (a Area) contains(p Position) bool {
	return p.X >= a.X1 && p.X <= a.X2 && p.Y >= a.Y1 && p.Y <= a.Y2
}

// NodespaceView is what an editor needs to draw one nodespace.
type NodespaceView struct {
	UID        string                   `json:"uid"`
	Step       int                      `json:"current_step"`
	IsActive   bool                     `json:"is_active"`
	MaxCoords  Position                 `json:"max_coords"`
	Nodes      map[string]NodeData      `json:"nodes"`
	Followups  map[string]NodeData      `json:"followupnodes"`
	Links      []Link                   `json:"links"`
	Nodespaces map[string]NodespaceData `json:"nodespaces"`
	Modulators map[string]float64       `json:"modulators"`
	UserPrompt *UserPrompt              `json:"user_prompt,omitempty"`
}

// GetNodespaceData returns the nodes of a nodespace, restricted to area
// when it is non-nil, with every link touching them. Nodes at the far end
// of those links are returned as followups. A pending user prompt is
// handed out once and cleared.
func (n *Nodenet) GetNodespaceData(nodespace string, area *Area) (NodespaceView, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	g := n.g
	ns, err := g.nodespace(nodespace)
	if err != nil {
		return NodespaceView{}, err
	}

	view := NodespaceView{
		UID:        ns.uid,
		Step:       g.step,
		IsActive:   n.active.Load(),
		MaxCoords:  g.spatial.maxCoords(),
		Nodes:      make(map[string]NodeData),
		Followups:  make(map[string]NodeData),
		Links:      []Link{},
		Nodespaces: make(map[string]NodespaceData),
		Modulators: maps.Clone(g.modulators),
		UserPrompt: n.takePrompt(),
	}

	var candidates []string
	if area != nil {
		candidates = g.spatial.area(area.X1, area.X2, area.Y1, area.Y2)
	} else {
		candidates = ns.nodes
	}
	for _, uid := range candidates {
		node, ok := g.nodes[uid]
		if !ok || node.parent != ns.uid {
			continue
		}
		if area != nil && !area.contains(node.position) {
			continue
		}
		view.Nodes[uid] = exportNode(node)
	}

	seen := make(map[linkKey]bool)
	for uid := range view.Nodes {
		ls := append(g.links.outgoing(uid, ""), g.links.incoming(uid, "")...)
		for _, l := range ls {
			if seen[l.key()] {
				continue
			}
			seen[l.key()] = true
			view.Links = append(view.Links, *l)
			for _, other := range []string{l.SourceUID, l.TargetUID} {
				if _, in := view.Nodes[other]; !in {
					view.Followups[other] = exportNode(g.nodes[other])
				}
			}
		}
	}
	sortLinks(view.Links)

	for _, child := range ns.children {
		if c, ok := g.nodespaces[child]; ok {
			view.Nodespaces[child] = exportNodespace(c)
		}
	}
	return view, nil
}
