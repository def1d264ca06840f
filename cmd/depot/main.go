// Command depot runs a single node of the depot network: it binds an
// ephemeral TCP port, prints it, and then exchanges inventory and
// handshake messages with whatever peers connect to or are dialed
// from it, per spec sections 4 and 6.
package main

import (
	"context"
	"os"

	"github.com/JoeHolownia/depotnet/internal/concurrency"
	"github.com/JoeHolownia/depotnet/internal/connection"
	"github.com/JoeHolownia/depotnet/internal/deferral"
	"github.com/JoeHolownia/depotnet/internal/depotcli"
	"github.com/JoeHolownia/depotnet/internal/depotstate"
	"github.com/JoeHolownia/depotnet/internal/logging"
	"github.com/JoeHolownia/depotnet/internal/protocol"
	"github.com/JoeHolownia/depotnet/internal/supervisor"
)

func main() {
	cfg := depotcli.ParseOrExit(os.Args[1:])

	log := logging.NewDefaultLogger()

	seed := make([]depotstate.Resource, 0, len(cfg.Resources))
	for _, r := range cfg.Resources {
		seed = append(seed, depotstate.Resource{Name: r.Name, Quantity: r.Quantity})
	}
	state := depotstate.New(cfg.Name, seed)

	decoder := protocol.NewDecoder(state, log)
	sup := supervisor.New(state, os.Stdout, log)
	decoder.SetWriteFailureObserver(sup)

	invoker := concurrency.NewRuntime()
	engine := connection.NewEngine(state, decoder, invoker, log)
	decoder.SetDialer(engine)

	deferralEngine := deferral.NewEngine(state, invoker, log, func(operation string) {
		decoder.Dispatch(operation)
	})
	decoder.SetDeferrer(deferralEngine)

	if _, err := engine.Listen(); err != nil {
		log.Errorf("failed to bind listener: %v", err)
		// Spec section 7: the listener returns a failure sentinel and
		// the process may continue with no listener.
	}

	sup.Run(context.Background())
}
