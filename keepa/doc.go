// Package keepa is a thin, governed veneer over the Keepa product API.
//
// Every method maps to one registered governor operation, so each call is
// priced, retried, cached and recorded by the shared governor.Client. The
// package validates inputs and builds requests; response bodies are returned
// raw for callers to decode.
//
//	transport, _ := keepa.NewTransport(apiKey, "")
//	gov, _ := governor.New(keepa.GovernorConfig(), transport)
//	_ = gov.Seed(ctx, keepa.SeedRequest())
//
//	kc := keepa.New(gov)
//	res, err := kc.Products(ctx, keepa.DomainDE, []string{"B08N5WRWNW"})
package keepa
