package source

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/c360studio/agora/governance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// encodeProposalAccount builds a borsh ProposalV1 account for tests.
func encodeProposalAccount(state uint8, yes, no uint64, draftAt int64, name, link string) []byte {
	var buf []byte

	put8 := func(v uint8) { buf = append(buf, v) }
	put16 := func(v uint16) {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		buf = append(buf, b...)
	}
	put64 := func(v uint64) {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		buf = append(buf, b...)
	}
	putStr := func(s string) {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(len(s)))
		buf = append(buf, b...)
		buf = append(buf, s...)
	}

	put8(2)                            // account type: proposal
	buf = append(buf, make([]byte, 32)...) // governance
	buf = append(buf, make([]byte, 32)...) // governing token mint
	put8(state)
	buf = append(buf, make([]byte, 32)...) // token owner record
	put8(1)                                // signatories count
	put8(1)                                // signatories signed off
	put64(yes)
	put64(no)
	put16(0) // instructions executed
	put16(1) // instructions count
	put16(1) // instructions next index
	put64(uint64(draftAt))
	for i := 0; i < 6; i++ {
		put8(0) // None for each optional timestamp/slot
	}
	put8(0) // execution flags
	put8(0) // max vote weight: None
	put8(0) // vote threshold: None
	putStr(name)
	putStr(link)

	return buf
}

func TestDecodeProposal(t *testing.T) {
	draftAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Unix()
	data := encodeProposalAccount(stateVoting, 1200, 300, draftAt,
		"Increase insurance fund", "https://example.com/prop.json")

	p, err := decodeProposal(data)
	require.NoError(t, err)

	assert.Equal(t, "Increase insurance fund", p.Title)
	assert.Equal(t, "https://example.com/prop.json", p.DescriptionLink)
	assert.Equal(t, governance.ProposalActive, p.Status)
	assert.Equal(t, uint64(1200), p.Tallies.Yes)
	assert.Equal(t, uint64(300), p.Tallies.No)
	assert.Equal(t, draftAt, p.CreatedAt.Unix())
}

func TestDecodeProposal_ClosedStates(t *testing.T) {
	for _, state := range []uint8{stateDraft, stateSucceeded, stateCompleted, stateCancelled, stateDefeated} {
		data := encodeProposalAccount(state, 0, 0, 0, "p", "")
		p, err := decodeProposal(data)
		require.NoError(t, err)
		assert.Equal(t, governance.ProposalClosed, p.Status, "state %d", state)
	}
}

func TestDecodeProposal_Truncated(t *testing.T) {
	data := encodeProposalAccount(stateVoting, 0, 0, 0, "p", "")
	_, err := decodeProposal(data[:40])
	assert.Error(t, err)
}

func TestDecodeProposal_OversizedString(t *testing.T) {
	data := encodeProposalAccount(stateVoting, 0, 0, 0, "p", "")
	// Corrupt the name length field (right after the fixed-size prefix).
	fixedLen := len(data) - (4 + 1) - (4 + 0) // minus name and link strings
	binary.LittleEndian.PutUint32(data[fixedLen:], 1<<30)
	_, err := decodeProposal(data)
	assert.Error(t, err)
}

// rpcServer answers getProgramAccounts with canned governance and proposal
// account sets keyed by the memcmp type prefix.
func rpcServer(t *testing.T, proposals map[string][]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "getProgramAccounts", req.Method)

		var opts struct {
			Filters []struct {
				Memcmp struct {
					Offset int    `json:"offset"`
					Bytes  string `json:"bytes"`
				} `json:"memcmp"`
			} `json:"filters"`
		}
		require.NoError(t, json.Unmarshal(req.Params[1], &opts))
		require.Len(t, opts.Filters, 2)

		var accounts []map[string]any
		switch opts.Filters[0].Memcmp.Bytes {
		case governanceAccountPrefix:
			accounts = append(accounts, map[string]any{
				"pubkey":  "Gov1111111111111111111111111111111111111111",
				"account": map[string]any{"data": []string{"", "base64"}},
			})
		case proposalAccountPrefix:
			for pubkey, data := range proposals {
				accounts = append(accounts, map[string]any{
					"pubkey": pubkey,
					"account": map[string]any{
						"data": []string{base64.StdEncoding.EncodeToString(data), "base64"},
					},
				})
			}
		}

		resp := map[string]any{"jsonrpc": "2.0", "id": 1, "result": accounts}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func TestFetchProposals(t *testing.T) {
	good := encodeProposalAccount(stateVoting, 10, 2, time.Now().Unix(),
		"Treasury diversification", "")
	server := rpcServer(t, map[string][]byte{
		"Prop111111111111111111111111111111111111111": good,
		"Prop222222222222222222222222222222222222222": {0x02, 0x00}, // corrupt
	})
	defer server.Close()

	client := NewClient(server.URL)
	realm := Realm{Name: "Mango DAO", Address: "DPiH3H3c7t47BMxqTxLsuPQpEC6Kne8GA9VXbxpnZxFE"}

	proposals, err := client.FetchProposals(context.Background(), realm)
	require.NoError(t, err)

	// The corrupt account is skipped, not fatal.
	require.Len(t, proposals, 1)
	assert.Equal(t, "Prop111111111111111111111111111111111111111", proposals[0].ID)
	assert.Equal(t, "Mango DAO", proposals[0].DAO)
	assert.Equal(t, "Treasury diversification", proposals[0].Title)
	assert.Equal(t, governance.ProposalActive, proposals[0].Status)
}

func TestClientCall_RPCError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32005,"message":"node is behind"}}`)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GovernanceAccounts(context.Background(), "realm")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node is behind")
	assert.True(t, IsUnavailable(err), "node errors are transient")
}

func TestClientCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL)
	_, err := client.GovernanceAccounts(context.Background(), "realm")
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "HTTP errors are transient")
}

func TestClientCall_UnreachableNode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewClient(server.URL)
	_, err := client.FetchProposals(context.Background(),
		Realm{Name: "Mango DAO", Address: "DPiH3H3c7t47BMxqTxLsuPQpEC6Kne8GA9VXbxpnZxFE"})
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "network errors are transient")
}
