package database

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openchain/blockchain/foundation/blockchain/accounts"
	"github.com/openchain/blockchain/foundation/blockchain/signature"
)

// Sizes of the fixed header fields.
const (
	TimeStampSize     = 20
	KeySlotSize       = 550
	SignatureSlotSize = 512
)

// Offsets of the header fields inside a serialized block.
const (
	nonceOffset     = 0
	timeStampOffset = nonceOffset + 8
	totalSizeOffset = timeStampOffset + TimeStampSize
	keyLenOffset    = totalSizeOffset + 8
	keyOffset       = keyLenOffset + 2
	sigLenOffset    = keyOffset + KeySlotSize
	sigOffset       = sigLenOffset + 2

	// HeaderSize is the number of bytes in front of the payload.
	HeaderSize = sigOffset + SignatureSlotSize
)

// MaxBlockSize is the largest total size a block header may declare.
const MaxBlockSize = 1 << 40

// AddressLength is the number of hex characters in a block address.
const AddressLength = 2 * sha512.Size

// TimeStampFormat is the layout of the header timestamp, always UTC.
const TimeStampFormat = "2006-01-02 15:04:05"

// ErrMalformedBlock is returned when bytes can't be decoded as a block.
var ErrMalformedBlock = errors.New("malformed block")

// =============================================================================

// BlockHeader represents the fixed size information in front of every
// block payload.
type BlockHeader struct {
	Nonce     uint64 // Value identified to solve the hash solution.
	TimeStamp string // Time the block was mined, YYYY-MM-DD HH:MM:SS in UTC.
	TotalSize uint64 // Serialized size of the header plus the payload.
	PublicKey []byte // DER encoded public key of the signer.
	Signature []byte // Signature over the payload.
}

// Block represents a header and the opaque payload it seals.
type Block struct {
	Header  BlockHeader
	Payload []byte
}

// NewBlock constructs an unsigned block with a zero nonce for the payload.
func NewBlock(payload []byte, now time.Time) Block {
	data := make([]byte, len(payload))
	copy(data, payload)

	return Block{
		Header: BlockHeader{
			TimeStamp: now.UTC().Format(TimeStampFormat),
			TotalSize: uint64(HeaderSize + len(data)),
		},
		Payload: data,
	}
}

// Sign embeds the account public key in the header and signs the payload.
// Header fields are not covered by the signature so the nonce search can
// run after signing.
func (b *Block) Sign(acct *accounts.Account) error {
	if !acct.IsActive() {
		return fmt.Errorf("%w: account %q is not active", signature.ErrCrypto, acct.Name)
	}

	der, err := acct.PublicKeyDER()
	if err != nil {
		return err
	}
	if len(der) > KeySlotSize {
		return fmt.Errorf("%w: public key is %d bytes, slot holds %d", signature.ErrCrypto, len(der), KeySlotSize)
	}

	sig, err := signature.Sign(b.Payload, acct.PrivateKey)
	if err != nil {
		return err
	}
	if len(sig) > SignatureSlotSize {
		return fmt.Errorf("%w: signature is %d bytes, slot holds %d", signature.ErrCrypto, len(sig), SignatureSlotSize)
	}

	b.Header.PublicKey = der
	b.Header.Signature = sig

	return nil
}

// VerifySignature checks the embedded signature against the payload using
// the embedded public key. The embedded key is trusted as is.
func (b Block) VerifySignature() bool {
	return signature.Verify(b.Payload, b.Header.PublicKey, b.Header.Signature)
}

// Signer returns the fingerprint of the embedded public key.
func (b Block) Signer() string {
	return signature.Fingerprint(b.Header.PublicKey)
}

// Encode serializes the block as the fixed header followed by the payload.
func (b Block) Encode() ([]byte, error) {
	if b.Header.TotalSize != uint64(HeaderSize+len(b.Payload)) {
		return nil, fmt.Errorf("%w: total size %d, header plus payload is %d", ErrMalformedBlock, b.Header.TotalSize, HeaderSize+len(b.Payload))
	}
	if len(b.Header.TimeStamp) >= TimeStampSize {
		return nil, fmt.Errorf("%w: timestamp %q too long", ErrMalformedBlock, b.Header.TimeStamp)
	}
	if len(b.Header.PublicKey) > KeySlotSize {
		return nil, fmt.Errorf("%w: public key is %d bytes, slot holds %d", signature.ErrCrypto, len(b.Header.PublicKey), KeySlotSize)
	}
	if len(b.Header.Signature) > SignatureSlotSize {
		return nil, fmt.Errorf("%w: signature is %d bytes, slot holds %d", signature.ErrCrypto, len(b.Header.Signature), SignatureSlotSize)
	}

	data := make([]byte, b.Header.TotalSize)

	binary.LittleEndian.PutUint64(data[nonceOffset:], b.Header.Nonce)
	copy(data[timeStampOffset:keyLenOffset], b.Header.TimeStamp)
	binary.LittleEndian.PutUint64(data[totalSizeOffset:], b.Header.TotalSize)
	binary.LittleEndian.PutUint16(data[keyLenOffset:], uint16(len(b.Header.PublicKey)))
	copy(data[keyOffset:], b.Header.PublicKey)
	binary.LittleEndian.PutUint16(data[sigLenOffset:], uint16(len(b.Header.Signature)))
	copy(data[sigOffset:], b.Header.Signature)
	copy(data[HeaderSize:], b.Payload)

	return data, nil
}

// Hash returns the SHA-512 digest of the entire serialized block.
func (b Block) Hash() ([]byte, error) {
	data, err := b.Encode()
	if err != nil {
		return nil, err
	}

	sum := sha512.Sum512(data)
	return sum[:], nil
}

// Address returns the hex encoded hash of the block, which is the block
// identity and its storage key.
func (b Block) Address() (string, error) {
	hash, err := b.Hash()
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(hash), nil
}

// =============================================================================

// DecodeHeader parses the fixed header prefix of a serialized block.
func DecodeHeader(data []byte) (BlockHeader, error) {
	if len(data) < HeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: %d bytes, header needs %d", ErrMalformedBlock, len(data), HeaderSize)
	}

	ts := data[timeStampOffset:totalSizeOffset]
	end := bytes.IndexByte(ts, 0)
	if end < 0 || !isZero(ts[end:]) {
		return BlockHeader{}, fmt.Errorf("%w: timestamp is not terminated", ErrMalformedBlock)
	}

	keyLen := int(binary.LittleEndian.Uint16(data[keyLenOffset:]))
	if keyLen > KeySlotSize || !isZero(data[keyOffset+keyLen:sigLenOffset]) {
		return BlockHeader{}, fmt.Errorf("%w: public key slot", ErrMalformedBlock)
	}

	sigLen := int(binary.LittleEndian.Uint16(data[sigLenOffset:]))
	if sigLen > SignatureSlotSize || !isZero(data[sigOffset+sigLen:HeaderSize]) {
		return BlockHeader{}, fmt.Errorf("%w: signature slot", ErrMalformedBlock)
	}

	bh := BlockHeader{
		Nonce:     binary.LittleEndian.Uint64(data[nonceOffset:]),
		TimeStamp: string(ts[:end]),
		TotalSize: binary.LittleEndian.Uint64(data[totalSizeOffset:]),
		PublicKey: bytes.Clone(data[keyOffset : keyOffset+keyLen]),
		Signature: bytes.Clone(data[sigOffset : sigOffset+sigLen]),
	}

	if bh.TotalSize < HeaderSize {
		return BlockHeader{}, fmt.Errorf("%w: total size %d is smaller than the header", ErrMalformedBlock, bh.TotalSize)
	}
	if bh.TotalSize > MaxBlockSize {
		return BlockHeader{}, fmt.Errorf("%w: total size %d is over the limit of %d", ErrMalformedBlock, bh.TotalSize, uint64(MaxBlockSize))
	}

	return bh, nil
}

// Decode parses a complete serialized block. The declared total size must
// match the number of bytes provided.
func Decode(data []byte) (Block, error) {
	bh, err := DecodeHeader(data)
	if err != nil {
		return Block{}, err
	}

	if bh.TotalSize != uint64(len(data)) {
		return Block{}, fmt.Errorf("%w: declared size %d, got %d bytes", ErrMalformedBlock, bh.TotalSize, len(data))
	}

	b := Block{
		Header:  bh,
		Payload: bytes.Clone(data[HeaderSize:]),
	}

	return b, nil
}

// ReadHeader reads only the fixed header prefix from the reader, which
// declares how many bytes the whole block has.
func ReadHeader(r io.Reader) (BlockHeader, error) {
	prefix := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, prefix); err != nil {
		return BlockHeader{}, fmt.Errorf("%w: reading header: %s", ErrMalformedBlock, err)
	}

	return DecodeHeader(prefix)
}

// ReadBlock reads a block in two steps: the header to discover the declared
// size, then exactly the remaining payload bytes.
func ReadBlock(r io.Reader) (Block, error) {
	return ReadBlockLimit(r, MaxBlockSize)
}

// ReadBlockLimit is ReadBlock for untrusted readers. A header declaring more
// than limit bytes is rejected before any payload is read, and the payload
// buffer only grows as bytes arrive.
func ReadBlockLimit(r io.Reader, limit uint64) (Block, error) {
	bh, err := ReadHeader(r)
	if err != nil {
		return Block{}, err
	}

	if bh.TotalSize > limit {
		return Block{}, fmt.Errorf("%w: total size %d is over the limit of %d", ErrMalformedBlock, bh.TotalSize, limit)
	}

	var payload bytes.Buffer
	want := int64(bh.TotalSize - HeaderSize)
	if n, err := io.CopyN(&payload, r, want); err != nil {
		return Block{}, fmt.Errorf("%w: reading payload: got %d of %d bytes: %s", ErrMalformedBlock, n, want, err)
	}

	var extra [1]byte
	if n, _ := r.Read(extra[:]); n != 0 {
		return Block{}, fmt.Errorf("%w: trailing data after %d bytes", ErrMalformedBlock, bh.TotalSize)
	}

	b := Block{
		Header:  bh,
		Payload: payload.Bytes(),
	}

	return b, nil
}

// =============================================================================

// LegacyAddress converts a canonical address into the naming used by the
// older block stores: uppercase hex with the leading zero bytes removed, then
// left padded with spaces back to AddressLength characters. The all zero
// address becomes "0" before padding.
func LegacyAddress(address string) string {
	addr := strings.ToUpper(address)
	for len(addr) > 2 && strings.HasPrefix(addr, "00") {
		addr = addr[2:]
	}
	if addr == "00" {
		addr = "0"
	}

	if len(addr) < AddressLength {
		addr = strings.Repeat(" ", AddressLength-len(addr)) + addr
	}

	return addr
}

// isZero reports whether every byte is zero.
func isZero(data []byte) bool {
	for _, v := range data {
		if v != 0 {
			return false
		}
	}

	return true
}
