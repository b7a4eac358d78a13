package apply

import "github.com/gristlabs/gristmux/src/model"

// stripLargeActions returns a copy of actionSet where every action whose
// row-id list exceeds maxSmallActionRowIDs has been replaced by its
// Stripped() form, per the broadcast-stripping rule.
func stripLargeActions(actionSet model.ActionSet, maxSmallActionRowIDs int) model.ActionSet {
	out := model.ActionSet{Actions: make([]model.DocAction, len(actionSet.Actions))}
	for i, action := range actionSet.Actions {
		if action.IsLargeAction(maxSmallActionRowIDs) {
			out.Actions[i] = action.Stripped()
		} else {
			out.Actions[i] = action
		}
	}
	return out
}
