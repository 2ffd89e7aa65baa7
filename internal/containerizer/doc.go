// Package containerizer is echopulse's view of the container engine.
//
// ContainerRuntime covers the inventory query used by reconciliation, the
// lifecycle commands observers may issue and the event stream used to
// trigger early re-syncs. DockerRuntime implements it by shelling out to the
// docker CLI, so no daemon API client is linked in.
//
// # Reachability
//
// ListContainers distinguishes an engine that reports no containers (empty
// slice, nil error) from one that could not be queried (error wrapping
// agent.ErrRuntimeUnreachable). Reconciliation deactivates agents only in the
// first case.
//
// # Usage Example
//
//	rt, err := containerizer.NewContainerRuntime("docker", containerizer.DockerOptions{
//	    ManagedLabel: "source=echosim",
//	})
//	if err != nil {
//	    return err
//	}
//	id, err := rt.CreateAgent(ctx, containerizer.AgentSpec{Name: "echo-1", Image: "hello-world"})
package containerizer
