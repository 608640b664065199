// Package source provides the on-chain proposal source: the Solana JSON-RPC
// client that discovers SPL Governance proposals for configured realms, and
// the off-chain metadata fetcher that resolves description links.
package source

// SPLGovernanceProgram is the mainnet SPL Governance program address that
// Realms DAOs deploy their governance accounts under.
const SPLGovernanceProgram = "GovER5Lthms3bLBqWub97yVrMmEogzX7xNjdXpPPCVZw"

// DefaultRPCURL is the public Solana mainnet RPC endpoint.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// Realm identifies one DAO to monitor.
type Realm struct {
	// Name is the human-readable DAO name used throughout the pipeline.
	Name string `json:"name" yaml:"name"`

	// Address is the realm account public key.
	Address string `json:"address" yaml:"address"`
}

// KnownRealms returns the built-in set of monitored realms. Configuration
// can extend or replace this list.
func KnownRealms() []Realm {
	return []Realm{
		{Name: "Mango DAO", Address: "DPiH3H3c7t47BMxqTxLsuPQpEC6Kne8GA9VXbxpnZxFE"},
		{Name: "Pyth DAO", Address: "444D8i7nE5VNqhYATjP9oWhxz9YZKANxe9L2asrJNUNb"},
		{Name: "Jupiter DAO", Address: "J9uWvULZSgHhPJxNLF4r34xgmE2uh7hKERaPJ6PpB3m4"},
		{Name: "Marinade DAO", Address: "DdLmE6MF3WUDqCfJx2FXfN6YqBhEQmEw3q2hzLaofNYE"},
		{Name: "Symmetry", Address: "2oPKKELreLxqr4qrWP9dRAz3f8Nf5KR5V8bnzYZ5Hk4H"},
	}
}
