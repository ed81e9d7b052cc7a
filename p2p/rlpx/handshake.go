// Package rlpx implements the RLPx transport protocol: the ECIES-encrypted
// handshake that establishes a shared session key between two peers, and
// the authenticated, length-framed message protocol built on top of it.
//
// https://github.com/ethereum/devp2p/blob/master/rlpx.md
package rlpx

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/sha3"
)

const (
	sskLen = 16 // ecies.MaxSharedKeyLength(pubKey) / 2
	sigLen = 65 // elliptic S256
	pubLen = 64 // 512 bit public key, uncompressed, no format byte
	shaLen = 32 // hash length (for nonce etc)

	eciesOverhead = 65 /* pubkey */ + 16 /* IV */ + 32 /* MAC */

	encAuthMsgLen  = sigLen + shaLen + pubLen + shaLen + 1
	encAuthRespLen = pubLen + shaLen + 1
)

// secrets are the session keys derived at the end of a successful
// handshake: the AES stream key, the MAC key, and the two running MAC
// hash states (one per direction — "egress" is what this side writes,
// "ingress" is what it reads).
type secrets struct {
	AES, MAC  []byte
	EgressMAC, IngressMAC hash.Hash
}

// handshakeState holds everything accumulated over the course of a single
// handshake: the two ephemeral keys, the two nonces and (once received)
// the remote party's random public key. It is created per connection and
// discarded once secrets() has consumed it.
type handshakeState struct {
	initiator     bool
	remote        *ecies.PublicKey // remote-pubkey, static
	initNonce     []byte           // nonce sent by initiator in auth
	respNonce     []byte           // nonce sent by recipient in auth-ack
	randomPrivKey *ecies.PrivateKey
	remoteRandomPub *ecies.PublicKey
}

var ErrBadHandshake = errors.New("rlpx: handshake failed")

// authMsgV4 is the EIP-8 (and, via its Rest field, backwards compatible)
// auth message an initiator sends to open a session.
type authMsgV4 struct {
	Signature       [sigLen]byte
	InitiatorPubkey [pubLen]byte
	Nonce           [shaLen]byte
	Version         uint

	Rest []rlp.RawValue `rlp:"tail"`
}

// authRespV4 is the response to authMsgV4.
type authRespV4 struct {
	RandomPubkey [pubLen]byte
	Nonce        [shaLen]byte
	Version      uint

	Rest []rlp.RawValue `rlp:"tail"`
}

// InitiatorHandshake runs the dialer's half of the handshake over rw: it
// sends the auth message, reads the ack, and derives the session secrets.
// prv is the dialer's static identity key; remotePub is the callee's
// known static public key (from its enode record).
func InitiatorHandshake(rw io.ReadWriter, prv *ecdsa.PrivateKey, remotePub *ecdsa.PublicKey) (*secrets, error) {
	h := &handshakeState{initiator: true, remote: ecies.ImportECDSAPublic(remotePub)}

	authMsg, err := h.makeAuthMsg(prv)
	if err != nil {
		return nil, err
	}
	authPacket, err := sealEIP8(authMsg, h.remote)
	if err != nil {
		return nil, err
	}
	if _, err := rw.Write(authPacket); err != nil {
		return nil, err
	}

	ackPacket, ackMsg, err := readHandshakeMsg(rw, encAuthRespLen, prv, new(authRespV4))
	if err != nil {
		return nil, fmt.Errorf("%w: reading ack: %v", ErrBadHandshake, err)
	}
	resp := ackMsg.(*authRespV4)
	h.respNonce = resp.Nonce[:]
	h.remoteRandomPub, err = importPublicKey(resp.RandomPubkey[:])
	if err != nil {
		return nil, err
	}
	return h.secrets(authPacket, ackPacket)
}

// ReceiverHandshake runs the listener's half of the handshake over rw: it
// reads the auth message, replies with an ack, and derives the session
// secrets. prv is the listener's static identity key.
func ReceiverHandshake(rw io.ReadWriter, prv *ecdsa.PrivateKey) (*secrets, *ecdsa.PublicKey, error) {
	h := &handshakeState{}

	authPacket, authMsgI, err := readHandshakeMsg(rw, encAuthMsgLen, prv, new(authMsgV4))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading auth: %v", ErrBadHandshake, err)
	}
	authMsg := authMsgI.(*authMsgV4)

	remotePub, err := importPublicKey(authMsg.InitiatorPubkey[:])
	if err != nil {
		return nil, nil, err
	}
	h.remote = remotePub
	h.initNonce = authMsg.Nonce[:]

	if err := h.decodeAuthMsg(authMsg, prv); err != nil {
		return nil, nil, err
	}

	ackMsg, err := h.makeAckMsg(prv)
	if err != nil {
		return nil, nil, err
	}
	ackPacket, err := sealEIP8(ackMsg, h.remote)
	if err != nil {
		return nil, nil, err
	}
	if _, err := rw.Write(ackPacket); err != nil {
		return nil, nil, err
	}
	secrets, err := h.secrets(authPacket, ackPacket)
	if err != nil {
		return nil, nil, err
	}
	return secrets, remotePub.ExportECDSA(), nil
}

func (h *handshakeState) makeAuthMsg(prv *ecdsa.PrivateKey) (*authMsgV4, error) {
	randomPrivKey, err := ecies.GenerateKey(rand.Reader, crypto.S256(), nil)
	if err != nil {
		return nil, err
	}
	h.randomPrivKey = randomPrivKey

	// Static shared secret, used as the key that hides which ephemeral key
	// corresponds to which session, per the spec's "signed-static-secret"
	// construction.
	token, err := h.staticSharedSecret(prv)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, shaLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	h.initNonce = nonce
	signed := xor(token, h.initNonce)
	signature, err := crypto.Sign(signed, h.randomPrivKey.ExportECDSA())
	if err != nil {
		return nil, err
	}

	msg := new(authMsgV4)
	copy(msg.Signature[:], signature)
	copy(msg.InitiatorPubkey[:], crypto.FromECDSAPub(&prv.PublicKey)[1:])
	copy(msg.Nonce[:], h.initNonce)
	msg.Version = 4
	return msg, nil
}

func (h *handshakeState) makeAckMsg(prv *ecdsa.PrivateKey) (*authRespV4, error) {
	randomPrivKey, err := ecies.GenerateKey(rand.Reader, crypto.S256(), nil)
	if err != nil {
		return nil, err
	}
	h.randomPrivKey = randomPrivKey

	respNonce := make([]byte, shaLen)
	if _, err := rand.Read(respNonce); err != nil {
		return nil, err
	}
	h.respNonce = respNonce

	msg := new(authRespV4)
	copy(msg.RandomPubkey[:], exportPubkey(&h.randomPrivKey.PublicKey))
	copy(msg.Nonce[:], h.respNonce)
	msg.Version = 4
	return msg, nil
}

// staticSharedSecret derives the long-term ECDH secret between our static
// key and the remote's static key, used only as a "who are you talking
// to" binder for the auth signature, never as session key material.
func (h *handshakeState) staticSharedSecret(prv *ecdsa.PrivateKey) ([]byte, error) {
	return ecies.ImportECDSA(prv).GenerateShared(h.remote, sskLen, sskLen)
}

// secrets derives the AES and MAC keys plus the egress/ingress MAC hash
// states from the ephemeral ECDH secret and the two nonces exchanged
// during the handshake. authPacket and ackPacket are the raw wire bytes
// of each leg, folded into the initial MAC state so that a tampered
// handshake packet is detected on the very first framed message.
func (h *handshakeState) secrets(authPacket, ackPacket []byte) (*secrets, error) {
	ecdheSecret, err := h.randomPrivKey.GenerateShared(h.remoteRandomPub, sskLen, sskLen)
	if err != nil {
		return nil, err
	}

	// derive base secrets from ephemeral key agreement
	sharedSecret := crypto.Keccak256(ecdheSecret, crypto.Keccak256(h.respNonce, h.initNonce))
	aesSecret := crypto.Keccak256(ecdheSecret, sharedSecret)
	s := &secrets{AES: aesSecret, MAC: crypto.Keccak256(ecdheSecret, aesSecret)}

	mac1 := sha3.NewLegacyKeccak256()
	mac1.Write(xor(s.MAC, h.respNonce))
	mac1.Write(authPacket)
	mac2 := sha3.NewLegacyKeccak256()
	mac2.Write(xor(s.MAC, h.initNonce))
	mac2.Write(ackPacket)

	if h.initiator {
		s.EgressMAC, s.IngressMAC = mac1, mac2
	} else {
		s.EgressMAC, s.IngressMAC = mac2, mac1
	}
	return s, nil
}

// decodeAuthMsg recovers the initiator's ephemeral public key from its
// signature over xor(staticSharedSecret, nonce) — the reverse of the
// construction in makeAuthMsg. ECDH being symmetric, the receiver
// computes the same staticSharedSecret from its own static key and the
// initiator's static key that the initiator computed from the mirror
// image, so the signed hash — and therefore the recovered pubkey —
// matches without any extra round trip.
func (h *handshakeState) decodeAuthMsg(msg *authMsgV4, prv *ecdsa.PrivateKey) error {
	token, err := h.staticSharedSecret(prv)
	if err != nil {
		return err
	}
	signed := xor(token, msg.Nonce[:])
	remoteRandomPub, err := crypto.SigToPub(signed, msg.Signature[:])
	if err != nil {
		return err
	}
	h.remoteRandomPub = ecies.ImportECDSAPublic(remoteRandomPub)
	return nil
}

func importPublicKey(raw []byte) (*ecies.PublicKey, error) {
	pubkey := append([]byte{0x04}, raw...)
	pub, err := crypto.UnmarshalPubkey(pubkey)
	if err != nil {
		return nil, err
	}
	return ecies.ImportECDSAPublic(pub), nil
}

func exportPubkey(pub *ecies.PublicKey) []byte {
	if pub == nil {
		return nil
	}
	return elliptic.Marshal(pub.Curve, pub.X, pub.Y)[1:]
}

func xor(one, other []byte) []byte {
	xored := make([]byte, len(one))
	for i := range xored {
		xored[i] = one[i] ^ other[i]
	}
	return xored
}

var padSpace = make([]byte, 300)

// sealEIP8 wraps msg (an authMsgV4 or authRespV4) in its EIP-8 envelope:
// RLP-encode, pad with a random number of zero bytes to frustrate length
// fingerprinting,
// then ECIES-encrypt to the recipient with the encoded length as the
// shared-info-2 parameter (binding ciphertext length into the seal).
func sealEIP8(msg interface{}, remote *ecies.PublicKey) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := rlp.Encode(buf, msg); err != nil {
		return nil, err
	}
	pad := padSpace[:mathRandBetween(100, 300)]
	buf.Write(pad)
	prefix := make([]byte, 2)
	prefixLen := uint16(buf.Len() + eciesOverhead)
	prefix[0] = byte(prefixLen >> 8)
	prefix[1] = byte(prefixLen)

	enc, err := ecies.Encrypt(rand.Reader, remote, buf.Bytes(), nil, prefix)
	if err != nil {
		return nil, err
	}
	return append(prefix, enc...), nil
}

func mathRandBetween(min, max int) int {
	b := make([]byte, 2)
	rand.Read(b)
	n := int(b[0])<<8 | int(b[1])
	return min + n%(max-min)
}

// readHandshakeMsg reads one handshake packet from r, tries the plain
// (pre-EIP-8) decryption first, and falls back to the length-prefixed
// EIP-8 form on failure — the two layouts cannot be told apart without
// attempting a decrypt, so any RLPx v4+ implementation must try both.
func readHandshakeMsg(r io.Reader, plainSize int, prv *ecdsa.PrivateKey, dest interface{}) ([]byte, interface{}, error) {
	buf := make([]byte, plainSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, err
	}
	key := ecies.ImportECDSA(prv)
	if dec, err := key.Decrypt(buf, nil, nil); err == nil {
		return buf, dest, rlp.DecodeBytes(dec, dest)
	}

	prefix := buf[:2]
	size := uint16(prefix[0])<<8 | uint16(prefix[1])
	if int(size) <= len(buf)-2 {
		return nil, nil, errors.New("rlpx: EIP8 message too short")
	}
	rest := make([]byte, int(size)-(len(buf)-2))
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, nil, err
	}
	packet := append(buf, rest...)
	dec, err := key.Decrypt(packet[2:], nil, prefix)
	if err != nil {
		return nil, nil, err
	}
	return packet, dest, rlp.DecodeBytes(dec, dest)
}
