// Package llm is a provider-agnostic model client built on the gollm library
// (github.com/teilomillet/gollm).
//
// # Architecture
//
//   - Adapter: the interface every provider backend implements
//   - Client: routes requests to a registered adapter and applies middleware
//   - Retry: exponential backoff over the typed error hierarchy
//   - Query: the single-turn prompt-in, text-or-object-out call the
//     orchestration engine consumes
//
// # Quick Start
//
//	adapter, _ := llm.NewGollmAdapter("anthropic", os.Getenv("ANTHROPIC_API_KEY"))
//	client := llm.NewClient(llm.WithProvider("anthropic", adapter))
//
//	res, _ := llm.Query(ctx, client, llm.QueryOptions{
//	    System: "Reply with a JSON object.",
//	    Prompt: "List three colours.",
//	})
//	fmt.Println(res.Text)
//
// When QueryOptions.Schema is set, the reply is decoded into QueryResult.Object
// and validated against the schema. A reply that is not valid JSON is not an
// error; callers fall back to QueryResult.Text.
package llm
