// Package natsclient manages the NATS connection used by the command
// transport.
//
// Connect dials the configured servers with the backoff of pkg/retry and
// hands reconnection of an established connection to nats.go. The
// connection state is reported through Health so it can be aggregated into
// the system health:
//
//	client, err := natsclient.NewClient(cfg.Admin.NATSURLs, natsclient.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(context.Background())
//
// StartTestServer runs a disposable server in a container for integration
// tests, which only run when INTEGRATION_TESTS is set.
package natsclient
