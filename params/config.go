// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package params

import (
	"fmt"

	"github.com/Bloxxix/stellar-core/common"
	"golang.org/x/crypto/sha3"
)

// Protocol version milestones. A ledger header carries the protocol version
// it was closed under; behaviour switches below are keyed on it.
const (
	// ContractProtocolVersion is the first protocol where contract entries,
	// TTLs and metered host invocation exist at all.
	ContractProtocolVersion uint32 = 20

	// PersistentEvictionVersion is the first protocol where expired
	// persistent entries are evicted into the hot archive and where
	// autorestore of archived read-write footprint keys is supported.
	PersistentEvictionVersion uint32 = 23

	// StrictArchivalChecksVersion is the first protocol where the archival
	// consistency checks compare full entry payloads. Protocol 23 could
	// evict a stale version of an entry, so payload comparisons only start
	// here.
	StrictArchivalChecksVersion uint32 = 24
)

// ChainConfig is the core config which determines ledger apply behaviour.
//
// ChainConfig is stored alongside the ledger state so that any network,
// identified by its passphrase, carries its own set of switches.
type ChainConfig struct {
	// NetworkPassphrase seeds the network id that is mixed into every
	// sandbox invocation.
	NetworkPassphrase string `json:"networkPassphrase"`

	// CurrentProtocolVersion is the highest protocol this build can apply.
	CurrentProtocolVersion uint32 `json:"currentProtocolVersion"`

	// EnableDiagnosticEvents turns on per-operation diagnostic event
	// capture, including the per-counter metrics topics.
	EnableDiagnosticEvents bool `json:"enableDiagnosticEvents,omitempty"`

	// CompilationThreads bounds the background module compilation pool.
	// Zero disables background compilation.
	CompilationThreads int `json:"compilationThreads,omitempty"`
}

// MainnetChainConfig is the chain parameters to run a node on the main network.
var MainnetChainConfig = &ChainConfig{
	NetworkPassphrase:      "Public Global Lumen Network ; August 2026",
	CurrentProtocolVersion: StrictArchivalChecksVersion,
}

// TestnetChainConfig is the chain parameters to run a node on the test network.
var TestnetChainConfig = &ChainConfig{
	NetworkPassphrase:      "Test Lumen Network ; August 2026",
	CurrentProtocolVersion: StrictArchivalChecksVersion,
	EnableDiagnosticEvents: true,
}

// TestChainConfig is used by unit tests.
var TestChainConfig = &ChainConfig{
	NetworkPassphrase:      "standalone test network",
	CurrentProtocolVersion: StrictArchivalChecksVersion,
	EnableDiagnosticEvents: true,
}

// NetworkID derives the 32 byte network id from the passphrase.
func (c *ChainConfig) NetworkID() common.Hash {
	w := sha3.NewLegacyKeccak256()
	w.Write([]byte(c.NetworkPassphrase))
	var h common.Hash
	w.Sum(h[:0])
	return h
}

// String implements the fmt.Stringer interface.
func (c *ChainConfig) String() string {
	return fmt.Sprintf("{passphrase: %q, protocol: %d, diagnostics: %v}",
		c.NetworkPassphrase, c.CurrentProtocolVersion, c.EnableDiagnosticEvents)
}

// IsContractProtocol reports whether contract operations are supported at the
// given protocol version.
func IsContractProtocol(protocol uint32) bool {
	return protocol >= ContractProtocolVersion
}

// SupportsPersistentEviction reports whether expired persistent entries are
// moved to the hot archive (and may be autorestored) at the given protocol.
func SupportsPersistentEviction(protocol uint32) bool {
	return protocol >= PersistentEvictionVersion
}

// StrictArchivalChecks reports whether archival consistency checks compare
// full payloads at the given protocol.
func StrictArchivalChecks(protocol uint32) bool {
	return protocol >= StrictArchivalChecksVersion
}
