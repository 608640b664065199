package source

import (
	"encoding/binary"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/c360studio/agora/governance"
)

// SPL Governance ProposalV1 state values.
const (
	stateDraft uint8 = iota
	stateSigningOff
	stateVoting
	stateSucceeded
	stateExecuting
	stateCompleted
	stateCancelled
	stateDefeated
	stateExecutingWithErrors
)

// maxBorshString bounds decoded string lengths. Proposal names and
// description links are short; anything larger means a misparsed account.
const maxBorshString = 64 * 1024

// decodeProposal parses a borsh-serialized ProposalV1 account.
//
// Layout: account_type u8, governance [32], governing_token_mint [32],
// state u8, token_owner_record [32], signatories u8, signed_off u8,
// yes_votes u64, no_votes u64, three u16 instruction counters, draft_at i64,
// six Option timestamp/slot fields, execution_flags u8,
// max_vote_weight Option<u64>, vote_threshold Option<(u8,u8)>,
// name String, description_link String.
func decodeProposal(data []byte) (*governance.Proposal, error) {
	r := &borshReader{buf: data}

	r.u8()       // account type, already filtered server-side
	r.skip(32)   // governance
	r.skip(32)   // governing token mint
	state := r.u8()
	r.skip(32) // token owner record
	r.u8()     // signatories count
	r.u8()     // signatories signed off
	yesVotes := r.u64()
	noVotes := r.u64()
	r.u16() // instructions executed
	r.u16() // instructions count
	r.u16() // instructions next index
	draftAt := r.i64()
	r.optionI64() // signing off at
	r.optionI64() // voting at
	r.optionU64() // voting at slot
	r.optionI64() // voting completed at
	r.optionI64() // executing at
	r.optionI64() // closed at
	r.u8()        // execution flags
	r.optionU64() // max vote weight
	if r.u8() == 1 {
		r.skip(2) // vote threshold percentage variant
	}
	name := r.str()
	descriptionLink := r.str()

	if r.err != nil {
		return nil, r.err
	}

	status := governance.ProposalClosed
	if state == stateVoting {
		status = governance.ProposalActive
	}

	return &governance.Proposal{
		Title:           name,
		DescriptionLink: descriptionLink,
		CreatedAt:       time.Unix(draftAt, 0).UTC(),
		Tallies: governance.VoteTallies{
			Yes: yesVotes,
			No:  noVotes,
		},
		Status: status,
	}, nil
}

// borshReader is a cursor over borsh-serialized data. The first failed read
// poisons the reader; callers check err once at the end.
type borshReader struct {
	buf []byte
	off int
	err error
}

func (r *borshReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.off+n > len(r.buf) {
		r.err = fmt.Errorf("truncated account data at offset %d (need %d bytes)", r.off, n)
		return false
	}
	return true
}

func (r *borshReader) skip(n int) {
	if r.need(n) {
		r.off += n
	}
}

func (r *borshReader) u8() uint8 {
	if !r.need(1) {
		return 0
	}
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *borshReader) u16() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *borshReader) u32() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v
}

func (r *borshReader) u64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.buf[r.off:])
	r.off += 8
	return v
}

func (r *borshReader) i64() int64 {
	return int64(r.u64())
}

func (r *borshReader) optionU64() (uint64, bool) {
	if r.u8() == 1 {
		return r.u64(), true
	}
	return 0, false
}

func (r *borshReader) optionI64() (int64, bool) {
	if r.u8() == 1 {
		return r.i64(), true
	}
	return 0, false
}

func (r *borshReader) str() string {
	length := int(r.u32())
	if r.err != nil {
		return ""
	}
	if length > maxBorshString {
		r.err = fmt.Errorf("string length %d exceeds limit at offset %d", length, r.off)
		return ""
	}
	if !r.need(length) {
		return ""
	}
	s := string(r.buf[r.off : r.off+length])
	r.off += length
	if !utf8.ValidString(s) {
		r.err = fmt.Errorf("invalid UTF-8 string at offset %d", r.off-length)
		return ""
	}
	return s
}
