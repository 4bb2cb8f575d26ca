// Package vecrag embeds the vecrag answering pipeline in a Go program.
//
// A Client owns the tenant index cache (memory, a local directory and an
// optional durable blob store), the embedding fallback chain and the
// generation providers. Bring your own providers:
//
//	client, _ := vecrag.New(ctx,
//	    vecrag.WithDir("/var/lib/vecrag"),
//	    vecrag.WithEmbedder(myEmbedder),
//	    vecrag.WithCompleter("openai", myCompleter),
//	    vecrag.WithRedis("localhost:6379", ""), // durable tier
//	)
//	defer client.Close()
//
//	_, _ = client.Ingest(ctx, "acme", "faq", []vecrag.Chunk{{Text: "Refunds take 5 days."}})
//	ans, _ := client.Ask(ctx, "acme", "How long do refunds take?", "")
//	fmt.Println(ans.Text, ans.Confidence)
package vecrag
