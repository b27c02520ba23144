// Package registry is the unified facade over compiled workflow tools.
//
// A [Registry] holds the descriptors compiled from annotated graph
// templates and dispatches invocations: it resolves the tool, binds the
// caller's arguments, routes the bound graph to the descriptor's backend
// adapter, and returns the mapped result. Registered tools are also
// published to a discovery index and documentation store so agent
// frontends can search and describe them.
//
// # Example
//
//	adapters := backend.NewRegistry()
//	adapters.Register(comfyAdapter)
//
//	reg, err := registry.New(registry.Options{Adapters: adapters})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := reg.LoadDir(ctx, "./workflows"); err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := reg.Invoke(ctx, "photo_restore", map[string]any{
//	    "image": "https://example.com/old.jpg",
//	})
package registry
