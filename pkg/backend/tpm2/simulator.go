// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-hwkey.
//
// go-hwkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

//go:build cgo

package tpm2

import (
	"github.com/google/go-tpm-tools/simulator"
	"github.com/google/go-tpm/tpm2/transport"
)

// simulatorSeed keeps the simulator's primary seeds stable so a transient SRK
// derived in one simulator instance matches the next one.
const simulatorSeed = 1234567890

// simulatorCloser adapts the go-tpm-tools simulator to transport.TPMCloser.
type simulatorCloser struct {
	sim       *simulator.Simulator
	transport transport.TPM
}

func (sc *simulatorCloser) Send(input []byte) ([]byte, error) {
	return sc.transport.Send(input)
}

func (sc *simulatorCloser) Close() error {
	return sc.sim.Close()
}

// openEmbeddedSimulator starts the in-process simulator. Only one simulator
// may be open per process.
func openEmbeddedSimulator() (transport.TPMCloser, error) {
	sim, err := simulator.GetWithFixedSeedInsecure(simulatorSeed)
	if err != nil {
		return nil, err
	}
	return &simulatorCloser{
		sim:       sim,
		transport: transport.FromReadWriter(sim),
	}, nil
}
