// Package nerprompt embeds the nerprompt instruction builder in a Go program
// without running the HTTP server.
//
// A client owns one vector store (in-memory, bbolt file, Valkey/Redis or Milvus)
// and one embedder. Reference entities and sentences are ingested once; every
// query then yields an NER instruction enriched with the most similar examples.
//
//	client, _ := nerprompt.New(ctx,
//	    nerprompt.WithBolt("data/nerprompt.db"),
//	    nerprompt.WithHashEmbedder(256),
//	)
//	defer client.Close()
//
//	_, _ = client.IngestEntities(ctx, entitiesJSON)
//	_, _ = client.IngestSentences(ctx, sentencesJSON)
//	out, _ := client.Query(ctx, nerprompt.Query{Text: "Obama visited Paris", Language: nerprompt.English})
//	fmt.Println(out.Instruction)
package nerprompt
