package conductor

// Node names a stage of the workflow graph. The graph is fixed: routing is
// the pure function nextNode over execution state, not a configurable
// graph structure.
type Node string

const (
	NodePlan              Node = "plan"
	NodePlanValidate      Node = "plan_validate"
	NodeHumanApproval     Node = "human_approval"
	NodeDeveloper         Node = "developer"
	NodeBatchApproval     Node = "batch_approval"
	NodeBlockerResolution Node = "blocker_resolution"
	NodeReview            Node = "review"
	NodeDone              Node = "done"
)

// Interruptible reports whether reaching the node suspends the workflow
// for a human decision.
func (n Node) Interruptible() bool {
	switch n {
	case NodeHumanApproval, NodeBatchApproval, NodeBlockerResolution:
		return true
	}
	return false
}

// Valid reports whether n names a known node.
func (n Node) Valid() bool {
	switch n {
	case NodePlan, NodePlanValidate, NodeHumanApproval, NodeDeveloper,
		NodeBatchApproval, NodeBlockerResolution, NodeReview, NodeDone:
		return true
	}
	return false
}

// nextNode routes from the state's current node to the next one. The
// second return is false when the workflow is finished. Routing reads
// state only; it performs no I/O and has no side effects.
func nextNode(s ExecState) (Node, bool) {
	switch s.Node {
	case NodePlan:
		return NodePlanValidate, true

	case NodePlanValidate:
		return NodeHumanApproval, true

	case NodeHumanApproval:
		// A rejected plan goes back to planning with the feedback
		// recorded; an approved one moves to execution.
		if s.PlanDecision != nil && !s.PlanDecision.Approved {
			return NodePlan, true
		}
		return NodeDeveloper, true

	case NodeDeveloper:
		switch s.DevStatus {
		case DevExecuting:
			return NodeDeveloper, true
		case DevBatchComplete:
			return NodeBatchApproval, true
		case DevBlocked:
			return NodeBlockerResolution, true
		case DevAllDone:
			return NodeReview, true
		}
		return NodeDeveloper, true

	case NodeBatchApproval:
		return NodeDeveloper, true

	case NodeBlockerResolution:
		return NodeDeveloper, true

	case NodeReview:
		return NodeDone, false
	}
	return "", false
}
