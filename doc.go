// Package agentpay orchestrates the lifecycle of transactions proposed by an
// autonomous agent.
//
// Every transaction passes a spend policy, receives an automated approval
// decision, is optionally confirmed by a human over a voice call and is then
// settled. Observers receive lifecycle events for every state change.
//
// The root package wires the components into a Service façade:
//
//	cfg, _ := agentpay.LoadConfig(ctx, "config.yaml")
//	srv, _ := agentpay.New(ctx, cfg)
//	tx, err := srv.Process(ctx, &model.TransactionRequest{Amount: "45.99", Type: model.TypePurchase, Merchant: "Amazon"})
//
// Sub-packages expose the individual capabilities (policy, decision, voice,
// settlement) so that hosts can replace the simulated providers.
package agentpay
