package rlpx

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"hash"
	"io"
)

// frameState is the running AES-CTR + Keccak256-MAC state for one
// direction of a session, derived once from secrets() and then mutated on
// every frame: encryption is a single continuous CTR stream across the
// whole connection lifetime, and each MAC is a running Keccak sponge
// seeded with (ciphertext of the previous MAC state, header/body bytes).
type frameState struct {
	enc cipher.Stream
	dec cipher.Stream

	macCipher cipher.Block
	egressMAC hash.Hash
	ingressMAC hash.Hash
}

func newFrameState(s *secrets) (*frameState, error) {
	macCipher, err := aes.NewCipher(s.MAC)
	if err != nil {
		return nil, err
	}
	encCipher, err := aes.NewCipher(s.AES)
	if err != nil {
		return nil, err
	}
	iv := make([]byte, encCipher.BlockSize())
	return &frameState{
		enc:        cipher.NewCTR(encCipher, iv),
		dec:        cipher.NewCTR(encCipher, iv),
		macCipher:  macCipher,
		egressMAC:  s.EgressMAC,
		ingressMAC: s.IngressMAC,
	}, nil
}

// ErrFrameTooLarge is returned by WriteFrame when a frame body is larger
// than the protocol allows (24-bit length field).
var ErrFrameTooLarge = errors.New("rlpx: frame size exceeds 24-bit header length field")

// ErrBadMAC is returned when a frame's MAC does not match its header or
// body — the session is no longer trustworthy and must be torn down.
var ErrBadMAC = errors.New("rlpx: bad MAC")

const maxUint24 = 1<<24 - 1

// WriteFrame writes one RLPx message frame: a 32-byte header (3-byte
// big-endian body length, RLP header-data, zero padding, header MAC) and
// the body, encrypted with AES-CTR, zero-padded to a 16-byte boundary,
// followed by a 16-byte body MAC.
func (f *frameState) WriteFrame(w io.Writer, code uint64, payload []byte) error {
	body, err := encodeFrameBody(code, payload)
	if err != nil {
		return err
	}
	if len(body) > maxUint24 {
		return ErrFrameTooLarge
	}

	header := make([]byte, 16)
	header[0] = byte(len(body) >> 16)
	header[1] = byte(len(body) >> 8)
	header[2] = byte(len(body))
	// header-data: [capability-id, context-id], both zero (unused by this
	// implementation's single logical stream per connection)
	copy(header[3:], []byte{0xc2, 0x80, 0x80})

	headerEnc := make([]byte, 16)
	f.enc.XORKeyStream(headerEnc, header)
	headerMAC := f.updateMAC(f.egressMAC, headerEnc)

	if _, err := w.Write(headerEnc); err != nil {
		return err
	}
	if _, err := w.Write(headerMAC); err != nil {
		return err
	}

	padded := padTo16(body)
	bodyEnc := make([]byte, len(padded))
	f.enc.XORKeyStream(bodyEnc, padded)
	if _, err := w.Write(bodyEnc); err != nil {
		return err
	}

	f.egressMAC.Write(bodyEnc)
	bodyMAC := f.macDigest(f.egressMAC)
	_, err = w.Write(bodyMAC)
	return err
}

// ReadFrame reads and decrypts one RLPx message frame, verifying both the
// header and body MAC before returning the decoded message code and
// payload.
func (f *frameState) ReadFrame(r io.Reader) (code uint64, payload []byte, err error) {
	headerEnc := make([]byte, 16)
	if _, err := io.ReadFull(r, headerEnc); err != nil {
		return 0, nil, err
	}
	headerMAC := make([]byte, 16)
	if _, err := io.ReadFull(r, headerMAC); err != nil {
		return 0, nil, err
	}
	wantMAC := f.updateMAC(f.ingressMAC, headerEnc)
	if !hmacEqual(wantMAC, headerMAC) {
		return 0, nil, ErrBadMAC
	}

	header := make([]byte, 16)
	f.dec.XORKeyStream(header, headerEnc)
	bodySize := int(header[0])<<16 | int(header[1])<<8 | int(header[2])

	paddedSize := bodySize
	if paddedSize%16 != 0 {
		paddedSize += 16 - paddedSize%16
	}
	bodyEnc := make([]byte, paddedSize)
	if _, err := io.ReadFull(r, bodyEnc); err != nil {
		return 0, nil, err
	}
	bodyMAC := make([]byte, 16)
	if _, err := io.ReadFull(r, bodyMAC); err != nil {
		return 0, nil, err
	}

	f.ingressMAC.Write(bodyEnc)
	wantBodyMAC := f.macDigest(f.ingressMAC)
	if !hmacEqual(wantBodyMAC, bodyMAC) {
		return 0, nil, ErrBadMAC
	}

	body := make([]byte, paddedSize)
	f.dec.XORKeyStream(body, bodyEnc)
	body = body[:bodySize]

	return decodeFrameBody(body)
}

// updateMAC mixes encHeader into the running mac hash and returns the
// 16-byte digest used as this frame's header MAC. The RLPx MAC
// construction is nonstandard: it encrypts (with the shared AES block
// cipher, not the stream cipher) the current Keccak state digest, XORs
// that with the material to authenticate, and folds the result back into
// the hash — this binds each frame's MAC to every prior frame without
// needing a MAC key per frame.
func (f *frameState) updateMAC(mac hash.Hash, data []byte) []byte {
	aesbuf := make([]byte, 16)
	f.macCipher.Encrypt(aesbuf, mac.Sum(nil)[:16])
	for i := range aesbuf {
		aesbuf[i] ^= data[i]
	}
	mac.Write(aesbuf)
	return mac.Sum(nil)[:16]
}

func (f *frameState) macDigest(mac hash.Hash) []byte {
	seed := mac.Sum(nil)[:16]
	aesbuf := make([]byte, 16)
	f.macCipher.Encrypt(aesbuf, seed)
	for i := range aesbuf {
		aesbuf[i] ^= seed[i]
	}
	mac.Write(aesbuf)
	return mac.Sum(nil)[:16]
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}

func padTo16(b []byte) []byte {
	if len(b)%16 == 0 {
		return b
	}
	pad := make([]byte, 16-len(b)%16)
	return append(b, pad...)
}
