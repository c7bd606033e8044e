package solana

import (
	"encoding/binary"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// Legacy transaction message encoding for a single System Program transfer.
// The layout is the wire format expected by sendTransaction: header, compact
// account table, recent blockhash, compact instruction list.

// systemProgramID is the System Program's well-known address (all zeros).
var systemProgramID [32]byte

// systemTransferIndex is the System Program instruction index for Transfer.
const systemTransferIndex uint32 = 2

// decodePubkey base58-decodes an address and verifies it is a canonical
// ed25519 point. Off-curve addresses (PDAs) cannot hold a wallet keypair, so
// they are rejected here.
func decodePubkey(address string) ([32]byte, error) {
	var key [32]byte
	raw, err := base58.Decode(address)
	if err != nil {
		return key, fmt.Errorf("address %q is not base58: %w", address, err)
	}
	if len(raw) != 32 {
		return key, fmt.Errorf("address %q decodes to %d bytes, want 32", address, len(raw))
	}
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return key, fmt.Errorf("address %q is not on the ed25519 curve: %w", address, err)
	}
	copy(key[:], raw)
	return key, nil
}

// appendCompactU16 writes the Solana short-vec length prefix.
func appendCompactU16(out []byte, v uint16) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// buildTransferMessage encodes a legacy message moving lamports between two
// accounts. The sender is the fee payer and sole required signer.
func buildTransferMessage(from, to [32]byte, lamports uint64, recentBlockhash [32]byte) []byte {
	msg := []byte{
		1, // numRequiredSignatures
		0, // numReadonlySignedAccounts
		1, // numReadonlyUnsignedAccounts (the program)
	}

	// Account table: signer, destination, program. A self-transfer
	// collapses sender and destination into one entry.
	accounts := [][32]byte{from}
	toIndex := byte(0)
	if to != from {
		accounts = append(accounts, to)
		toIndex = 1
	}
	programIndex := byte(len(accounts))
	accounts = append(accounts, systemProgramID)

	msg = appendCompactU16(msg, uint16(len(accounts)))
	for _, acct := range accounts {
		msg = append(msg, acct[:]...)
	}

	msg = append(msg, recentBlockhash[:]...)

	// Instruction data: u32 LE instruction index, u64 LE lamports.
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], systemTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	msg = appendCompactU16(msg, 1) // one instruction
	msg = append(msg, programIndex)
	msg = appendCompactU16(msg, 2) // account indexes: from, to
	msg = append(msg, 0, toIndex)
	msg = appendCompactU16(msg, uint16(len(data)))
	msg = append(msg, data...)

	return msg
}
