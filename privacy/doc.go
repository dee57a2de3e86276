// Package privacy evaluates rule chains before session operations run.
//
// A Policy is an ordered list of rules. Each rule returns Allow, Deny or Skip:
//
//   - Allow: grants access and stops evaluation
//   - Deny: rejects the operation and stops evaluation
//   - Skip: continues to the next rule
//
// A chain in which every rule skips allows the operation. Policies are
// enforced as before-event handlers of a hook.Registry; a denial surfaces as a
// relgraph.HookAbortError wrapping the decision:
//
//	reg := hook.NewRegistry()
//	privacy.Install(reg, privacy.Policy{
//	    privacy.OnOperation(privacy.DenyIfNoViewer(), relgraph.MutationOps),
//	    privacy.HasRole("admin"),
//	    privacy.OnOperation(privacy.AlwaysDenyRule(), relgraph.OpDelete),
//	})
//
// The viewer is stored in the context:
//
//	ctx := privacy.WithViewer(ctx, &privacy.SimpleViewer{
//	    UserID: "user-123",
//	    Roles:  []string{"user"},
//	})
//
// Viewers implementing PermissionViewer are checked per action with
// HasPermission; the access package builds such viewers from its role and
// permission records.
package privacy
