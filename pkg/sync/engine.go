package sync

import (
	"context"
	"crypto/ecdh"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vibevault/vibevault/pkg/auth"
	"github.com/vibevault/vibevault/pkg/ble"
	"github.com/vibevault/vibevault/pkg/crypto"
	"github.com/vibevault/vibevault/pkg/events"
	"github.com/vibevault/vibevault/pkg/log"
	"github.com/vibevault/vibevault/pkg/metrics"
	"github.com/vibevault/vibevault/pkg/store"
	"github.com/vibevault/vibevault/pkg/types"
)

// State names one position in the sync state machine. Both roles walk the
// same sequence; the pairing step differs in which side displays the code
// and which side types it.
type State string

const (
	StateIdle         State = "idle"
	StateAdvertising  State = "advertising"
	StateScanning     State = "scanning"
	StateConnected    State = "connected"
	StateModeRead     State = "mode_read"
	StateDisplayCode  State = "display_code"
	StateAwaitingCode State = "awaiting_code"
	StatePaired       State = "paired"
	StateTransferring State = "transferring"
	StateComplete     State = "complete"
	StateError        State = "error"
)

// Role distinguishes the GATT peripheral (advertiser) from the central
// (scanner).
type Role string

const (
	RolePeripheral Role = "peripheral"
	RoleCentral    Role = "central"
)

// Snapshot is the UI's view of a sync session. It is the only way state
// leaves the engine.
type Snapshot struct {
	State           State
	Role            Role
	Direction       types.SyncDirection // this device's direction
	PairingCode     string              // set while the peripheral displays it
	Peer            ble.DeviceInfo
	EntriesSent     int
	EntriesReceived int
	ErrorKind       types.SyncErrorKind
	Error           string
}

// Timeouts bound each phase of a sync session.
type Timeouts struct {
	Scan     time.Duration
	Pairing  time.Duration
	ChunkAck time.Duration
	Session  time.Duration
}

// DefaultTimeouts returns the protocol's standard limits.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Scan:     30 * time.Second,
		Pairing:  60 * time.Second,
		ChunkAck: 5 * time.Second,
		Session:  2 * time.Minute,
	}
}

// ackWindow is how many chunks the receiver acknowledges at once.
const ackWindow = 16

const pairingPollInterval = 200 * time.Millisecond

var errLinkLost = errors.New("link lost")

type engine struct {
	store    *store.Store
	sessions *auth.Manager
	token    string
	role     Role
	mode     byte // peripheral's mode byte
	timeouts Timeouts
	endpoint ble.Endpoint
	broker   *events.Broker
	logger   zerolog.Logger

	codeCh   chan string
	cancelCh chan struct{}
	doneCh   chan struct{}

	mu              sync.Mutex
	snap            Snapshot
	sessionKey      []byte
	peerPubKey      []byte
	applied         int
	sent            int
	transferStarted bool
	startedAt       time.Time
}

func newEngine(st *store.Store, sessions *auth.Manager, token string, role Role, mode byte, timeouts Timeouts, endpoint ble.Endpoint, broker *events.Broker) *engine {
	initial := StateAdvertising
	if role == RoleCentral {
		initial = StateConnected
	}
	e := &engine{
		store:    st,
		sessions: sessions,
		token:    token,
		role:     role,
		mode:     mode,
		timeouts: timeouts,
		endpoint: endpoint,
		broker:   broker,
		logger:   log.WithComponent("sync"),
		codeCh:   make(chan string, 1),
		cancelCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
		snap: Snapshot{
			State:     initial,
			Role:      role,
			Direction: directionFor(role, mode),
		},
	}
	return e
}

// directionFor orients this device: the mode byte always describes the
// peripheral, so the central flips it.
func directionFor(role Role, mode byte) types.SyncDirection {
	peripheralPushes := mode == ble.ModePush
	if role == RolePeripheral {
		if peripheralPushes {
			return types.SyncDirectionPush
		}
		return types.SyncDirectionPull
	}
	if peripheralPushes {
		return types.SyncDirectionPull
	}
	return types.SyncDirectionPush
}

// Snapshot returns the current state for the UI.
func (e *engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

func (e *engine) finished() bool {
	select {
	case <-e.doneCh:
		return true
	default:
		return false
	}
}

func (e *engine) submitCode(code string) error {
	snap := e.Snapshot()
	if snap.State != StateAwaitingCode {
		return &types.ValidationError{Field: "code", Reason: "no pairing code is being requested"}
	}
	select {
	case e.codeCh <- code:
		return nil
	default:
		return &types.ValidationError{Field: "code", Reason: "a code was already submitted"}
	}
}

func (e *engine) cancel() {
	e.mu.Lock()
	select {
	case <-e.cancelCh:
	default:
		close(e.cancelCh)
	}
	e.mu.Unlock()
}

func (e *engine) setState(s State) {
	e.mu.Lock()
	e.snap.State = s
	e.snap.EntriesSent = e.sent
	e.snap.EntriesReceived = e.applied
	snap := e.snap
	e.mu.Unlock()

	e.logger.Debug().Str("state", string(s)).Msg("sync state changed")
	if e.broker != nil {
		e.broker.Publish(&events.Event{
			Type:    events.EventSyncState,
			Message: string(s),
			Metadata: map[string]string{
				"role":      string(snap.Role),
				"direction": string(snap.Direction),
			},
		})
	}
}

func (e *engine) setPairingCode(code string) {
	e.mu.Lock()
	e.snap.PairingCode = code
	e.mu.Unlock()
}

func (e *engine) setPeer(peer ble.DeviceInfo) {
	e.mu.Lock()
	e.snap.Peer = peer
	e.mu.Unlock()
}

// run drives one sync session to completion. It owns the endpoint
// exclusively and always releases it, zeroizing the session key whatever
// the outcome.
func (e *engine) run() {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeouts.Session)
	defer cancel()

	e.mu.Lock()
	e.startedAt = time.Now().UTC()
	e.mu.Unlock()

	var err error
	if e.role == RolePeripheral {
		err = e.runPeripheral(ctx)
	} else {
		err = e.runCentral(ctx)
	}
	e.finish(err)
}

func (e *engine) runPeripheral(ctx context.Context) error {
	if err := e.awaitConnected(ctx); err != nil {
		return err
	}
	e.setState(StateConnected)

	if err := e.pairAsPeripheral(ctx); err != nil {
		return err
	}
	e.setState(StatePaired)

	e.setState(StateTransferring)
	if e.snapDirection() == types.SyncDirectionPush {
		return e.sendBundle(ctx)
	}
	return e.receiveBundle(ctx)
}

func (e *engine) runCentral(ctx context.Context) error {
	mode, err := e.endpoint.Mode(ctx)
	if err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}
	if mode != ble.ModePush && mode != ble.ModePull {
		return types.NewSyncError(types.SyncCryptoMismatch, fmt.Errorf("peer advertises unknown mode %#x", mode))
	}
	e.mu.Lock()
	e.mode = mode
	e.snap.Direction = directionFor(RoleCentral, mode)
	e.mu.Unlock()
	e.setState(StateModeRead)

	if err := e.pairAsCentral(ctx); err != nil {
		return err
	}
	e.setState(StatePaired)

	e.setState(StateTransferring)
	if e.snapDirection() == types.SyncDirectionPush {
		return e.sendBundle(ctx)
	}
	return e.receiveBundle(ctx)
}

func (e *engine) snapDirection() types.SyncDirection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap.Direction
}

// pairAsPeripheral runs the short-authentication-string exchange from the
// advertiser's side: publish an ephemeral public key, display the 6-digit
// code, and verify the HMAC the central computes over its own key.
func (e *engine) pairAsPeripheral(ctx context.Context) error {
	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}

	ownPub, err := crypto.MarshalPublicKey(keypair.PublicKey())
	if err != nil {
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}

	code, err := crypto.NewPairingCode()
	if err != nil {
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}

	if err := e.endpoint.WritePairing(ctx, ownPub); err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}

	e.setPairingCode(code)
	e.setState(StateDisplayCode)

	ev, err := e.awaitWrite(ctx, ble.CharPairing, e.timeouts.Pairing)
	if err != nil {
		return err
	}

	if len(ev.Data) != crypto.CompressedPointLen+32 {
		e.sendAbort(ctx)
		return types.NewSyncError(types.SyncCryptoMismatch,
			fmt.Errorf("pairing response of %d bytes, want %d", len(ev.Data), crypto.CompressedPointLen+32))
	}
	peerPubBytes := ev.Data[:crypto.CompressedPointLen]
	mac := ev.Data[crypto.CompressedPointLen:]

	if !crypto.VerifyPairingMAC(code, peerPubBytes, mac) {
		e.sendAbort(ctx)
		return types.NewSyncError(types.SyncCryptoMismatch, errors.New("pairing code mismatch"))
	}

	return e.deriveSessionKey(keypair, peerPubBytes)
}

// pairAsCentral runs the exchange from the scanner's side: read the
// peripheral's public key, ask the user for the displayed code, and answer
// with our key authenticated under that code.
func (e *engine) pairAsCentral(ctx context.Context) error {
	peerPubBytes, err := e.pollPeerKey(ctx)
	if err != nil {
		return err
	}

	e.setState(StateAwaitingCode)
	code, err := e.awaitCode(ctx)
	if err != nil {
		return err
	}

	keypair, err := crypto.GenerateKeypair()
	if err != nil {
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}
	ownPub, err := crypto.MarshalPublicKey(keypair.PublicKey())
	if err != nil {
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}

	mac := crypto.PairingMAC(code, ownPub)
	if err := e.endpoint.WritePairing(ctx, append(ownPub, mac...)); err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}

	return e.deriveSessionKey(keypair, peerPubBytes)
}

// pollPeerKey reads the pairing characteristic until the peripheral has
// published its 33-byte public key.
func (e *engine) pollPeerKey(ctx context.Context) ([]byte, error) {
	deadline := time.Now().Add(e.timeouts.Pairing)
	for {
		if err := e.checkCancelled(); err != nil {
			return nil, err
		}
		if time.Now().After(deadline) {
			e.sendAbort(ctx)
			return nil, types.NewSyncError(types.SyncTimeout, errors.New("peer never published a pairing key"))
		}

		data, err := e.endpoint.ReadPairing(ctx)
		if err != nil {
			return nil, types.NewSyncError(types.SyncPeerAbort, err)
		}
		if len(data) == crypto.CompressedPointLen {
			return data, nil
		}

		select {
		case <-time.After(pairingPollInterval):
		case <-ctx.Done():
			return nil, types.NewSyncError(types.SyncTimeout, ctx.Err())
		case <-e.cancelCh:
			return nil, e.cancelledErr(ctx)
		}
	}
}

func (e *engine) awaitCode(ctx context.Context) (string, error) {
	timer := time.NewTimer(e.timeouts.Pairing)
	defer timer.Stop()

	select {
	case code := <-e.codeCh:
		return code, nil
	case <-timer.C:
		e.sendAbort(ctx)
		return "", types.NewSyncError(types.SyncTimeout, errors.New("pairing code was not entered in time"))
	case <-ctx.Done():
		return "", types.NewSyncError(types.SyncTimeout, ctx.Err())
	case <-e.cancelCh:
		return "", e.cancelledErr(ctx)
	}
}

// deriveSessionKey performs ECDH with the peer's key and expands the HKDF
// session key, recording the peer as a paired device.
func (e *engine) deriveSessionKey(priv *ecdh.PrivateKey, peerPubBytes []byte) error {
	peerPub, err := crypto.UnmarshalPublicKey(peerPubBytes)
	if err != nil {
		e.sendAbort(context.Background())
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}

	shared, err := crypto.SharedSecret(priv, peerPub)
	if err != nil {
		e.sendAbort(context.Background())
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}
	defer crypto.Zeroize(shared)

	key, err := crypto.DeriveSessionKey(shared)
	if err != nil {
		e.sendAbort(context.Background())
		return types.NewSyncError(types.SyncCryptoMismatch, err)
	}

	e.mu.Lock()
	e.sessionKey = key
	e.peerPubKey = append([]byte(nil), peerPubBytes...)
	e.mu.Unlock()

	e.setPeer(e.endpoint.Peer())
	return nil
}

// sendBundle is the sender half of the transfer: frame the bundle, push
// chunks, collect the receiver's windowed acknowledgements, then signal
// completion.
func (e *engine) sendBundle(ctx context.Context) error {
	bundle, entryCount, err := e.buildBundle()
	if err != nil {
		e.sendAbort(ctx)
		return err
	}

	chunks, err := ble.SplitChunks(bundle)
	if err != nil {
		e.sendAbort(ctx)
		return types.NewSyncError(types.SyncFramingError, err)
	}

	if err := e.endpoint.SendControl(ctx, []byte{ble.OpStart}); err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}
	e.markTransferStarted()

	for i, chunk := range chunks {
		if err := e.checkCancelled(); err != nil {
			e.sendAbort(ctx)
			return err
		}

		if err := e.endpoint.SendData(ctx, chunk); err != nil {
			return types.NewSyncError(types.SyncPeerAbort, err)
		}
		metrics.SyncChunks.WithLabelValues("sent").Inc()

		if (i+1)%ackWindow == 0 || i == len(chunks)-1 {
			if err := e.awaitControl(ctx, ble.OpAck, e.timeouts.ChunkAck); err != nil {
				return err
			}
		}
	}

	if err := e.endpoint.SendControl(ctx, []byte{ble.OpComplete}); err != nil {
		return types.NewSyncError(types.SyncPeerAbort, err)
	}

	metrics.SyncBytes.WithLabelValues("sent").Add(float64(len(bundle)))
	e.mu.Lock()
	e.sent = entryCount
	e.mu.Unlock()

	e.setState(StateComplete)
	return nil
}

// receiveBundle is the receiver half: wait for START, reassemble chunks
// with windowed ACKs, wait for COMPLETE, then ingest envelope by envelope.
func (e *engine) receiveBundle(ctx context.Context) error {
	if err := e.awaitControl(ctx, ble.OpStart, e.timeouts.Pairing); err != nil {
		return err
	}
	e.markTransferStarted()

	reassembler := ble.NewReassembler()
	received := 0
	complete := false
	for !complete {
		ev, err := e.awaitChar(ctx, ble.CharDataTransfer, e.timeouts.ChunkAck)
		if err != nil {
			return err
		}

		complete, err = reassembler.Add(ev.Data)
		if err != nil {
			e.sendAbort(ctx)
			return err
		}
		received++
		metrics.SyncChunks.WithLabelValues("received").Inc()

		if received%ackWindow == 0 || complete {
			if err := e.endpoint.SendControl(ctx, []byte{ble.OpAck}); err != nil {
				return types.NewSyncError(types.SyncPeerAbort, err)
			}
		}
	}

	if err := e.awaitControl(ctx, ble.OpComplete, e.timeouts.ChunkAck); err != nil {
		return err
	}

	bundle := reassembler.Bytes()
	metrics.SyncBytes.WithLabelValues("received").Add(float64(len(bundle)))

	if err := e.ingest(bundle); err != nil {
		e.sendAbort(ctx)
		return err
	}

	e.setState(StateComplete)
	return nil
}

// buildBundle collects the active profile's entries, tombstones included,
// and re-encrypts each payload under the session key with a fresh nonce.
func (e *engine) buildBundle() ([]byte, int, error) {
	profileID, err := e.sessions.ActiveProfile(e.token)
	if err != nil {
		return nil, 0, err
	}

	all, err := e.store.GetAllEntriesSince(0)
	if err != nil {
		return nil, 0, err
	}

	var entries []*types.VaultEntry
	for _, entry := range all {
		if entry.ProfileID == profileID {
			entries = append(entries, entry)
		}
	}

	sessionKey := e.borrowSessionKey()
	if sessionKey == nil {
		return nil, 0, types.NewSyncError(types.SyncCryptoMismatch, errors.New("no session key"))
	}

	envelopes := make([]Envelope, 0, len(entries))
	err = e.sessions.WithKey(e.token, func(vaultKey []byte) error {
		for _, entry := range entries {
			env := Envelope{
				EntryUUID:   entry.EntryUUID,
				ProfileID:   uint64(entry.ProfileID),
				SyncVersion: entry.SyncVersion,
				UpdatedAt:   entry.UpdatedAt,
				Label:       entry.Label,
				Tombstone:   entry.IsTombstone(),
			}

			if !env.Tombstone {
				plaintext, err := crypto.Decrypt(vaultKey, entry.Nonce, entry.DataBlob)
				if err != nil {
					return err
				}
				ciphertext, nonce, err := crypto.Encrypt(sessionKey, plaintext)
				crypto.Zeroize(plaintext)
				if err != nil {
					return err
				}
				env.Nonce = nonce
				env.Ciphertext = ciphertext
			}
			envelopes = append(envelopes, env)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	bundle, err := EncodeBundle(envelopes)
	if err != nil {
		return nil, 0, err
	}
	return bundle, len(envelopes), nil
}

// ingest decodes the bundle and merges each envelope in its own store
// transaction, so an interrupted sync never leaves a half-applied entry.
func (e *engine) ingest(bundle []byte) error {
	envelopes, err := DecodeBundle(bundle)
	if err != nil {
		return err
	}

	profileID, err := e.sessions.ActiveProfile(e.token)
	if err != nil {
		return err
	}

	sessionKey := e.borrowSessionKey()
	if sessionKey == nil {
		return types.NewSyncError(types.SyncCryptoMismatch, errors.New("no session key"))
	}

	merger := NewMerger(e.store, profileID)
	return e.sessions.WithKey(e.token, func(vaultKey []byte) error {
		for i := range envelopes {
			if _, err := merger.Apply(&envelopes[i], sessionKey, vaultKey); err != nil {
				return err
			}
			e.mu.Lock()
			e.applied++
			e.mu.Unlock()
		}
		return nil
	})
}

func (e *engine) markTransferStarted() {
	e.mu.Lock()
	e.transferStarted = true
	e.mu.Unlock()
}

func (e *engine) borrowSessionKey() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionKey
}

// awaitConnected waits for the central to connect to the advertiser.
func (e *engine) awaitConnected(ctx context.Context) error {
	timer := time.NewTimer(e.timeouts.Scan)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-e.endpoint.Events():
			if !ok {
				return types.NewSyncError(types.SyncPeerAbort, errLinkLost)
			}
			switch ev.Kind {
			case ble.EventConnected:
				return nil
			case ble.EventDisconnected:
				return types.NewSyncError(types.SyncPeerAbort, errLinkLost)
			}
		case <-timer.C:
			return types.NewSyncError(types.SyncTimeout, errors.New("no central connected"))
		case <-ctx.Done():
			return types.NewSyncError(types.SyncTimeout, ctx.Err())
		case <-e.cancelCh:
			return e.cancelledErr(ctx)
		}
	}
}

// awaitChar waits for inbound traffic on one characteristic, honouring
// aborts, disconnects, cancellation and the phase timeout. Control traffic
// observed while waiting is inspected for ABORT; anything else is ignored.
func (e *engine) awaitChar(ctx context.Context, char ble.Characteristic, timeout time.Duration) (ble.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-e.endpoint.Events():
			if !ok {
				return ble.Event{}, types.NewSyncError(types.SyncPeerAbort, errLinkLost)
			}
			if ev.Kind == ble.EventDisconnected {
				return ble.Event{}, types.NewSyncError(types.SyncPeerAbort, errLinkLost)
			}
			if ev.Kind != ble.EventWrite && ev.Kind != ble.EventNotify {
				continue
			}
			if ev.Char == ble.CharSyncControl && len(ev.Data) > 0 && ev.Data[0] == ble.OpAbort {
				return ble.Event{}, e.peerAbortErr()
			}
			if ev.Char == char {
				return ev, nil
			}
		case <-timer.C:
			e.sendAbort(ctx)
			return ble.Event{}, types.NewSyncError(types.SyncTimeout,
				fmt.Errorf("timed out waiting on %s", char))
		case <-ctx.Done():
			e.sendAbort(ctx)
			return ble.Event{}, types.NewSyncError(types.SyncTimeout, ctx.Err())
		case <-e.cancelCh:
			return ble.Event{}, e.cancelledErr(ctx)
		}
	}
}

// awaitWrite is awaitChar for the pairing step.
func (e *engine) awaitWrite(ctx context.Context, char ble.Characteristic, timeout time.Duration) (ble.Event, error) {
	return e.awaitChar(ctx, char, timeout)
}

// awaitControl waits for a specific SyncControl opcode. Unknown opcodes
// are ignored per the protocol; ABORT always terminates.
func (e *engine) awaitControl(ctx context.Context, opcode byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ev, ok := <-e.endpoint.Events():
			if !ok {
				return types.NewSyncError(types.SyncPeerAbort, errLinkLost)
			}
			if ev.Kind == ble.EventDisconnected {
				return types.NewSyncError(types.SyncPeerAbort, errLinkLost)
			}
			if ev.Kind != ble.EventWrite && ev.Kind != ble.EventNotify {
				continue
			}
			if ev.Char != ble.CharSyncControl || len(ev.Data) == 0 {
				continue
			}
			switch ev.Data[0] {
			case opcode:
				return nil
			case ble.OpAbort:
				return e.peerAbortErr()
			default:
				// Unknown or unexpected opcodes are ignored.
			}
		case <-timer.C:
			e.sendAbort(ctx)
			return types.NewSyncError(types.SyncTimeout,
				fmt.Errorf("timed out waiting for opcode %#x", opcode))
		case <-ctx.Done():
			e.sendAbort(ctx)
			return types.NewSyncError(types.SyncTimeout, ctx.Err())
		case <-e.cancelCh:
			return e.cancelledErr(ctx)
		}
	}
}

// peerAbortErr classifies an inbound ABORT: before any payload moved it is
// the peer rejecting the pairing, afterwards a transfer abort.
func (e *engine) peerAbortErr() error {
	e.mu.Lock()
	transferred := e.transferStarted
	e.mu.Unlock()

	if !transferred {
		return types.NewSyncError(types.SyncCryptoMismatch, errors.New("peer aborted before transfer"))
	}
	return types.NewSyncError(types.SyncPeerAbort, errors.New("peer aborted"))
}

func (e *engine) sendAbort(ctx context.Context) {
	_ = e.endpoint.SendControl(ctx, []byte{ble.OpAbort})
}

func (e *engine) checkCancelled() error {
	select {
	case <-e.cancelCh:
		return types.NewSyncError(types.SyncCancelled, errors.New("cancelled by user"))
	default:
		return nil
	}
}

func (e *engine) cancelledErr(ctx context.Context) error {
	e.sendAbort(ctx)
	return types.NewSyncError(types.SyncCancelled, errors.New("cancelled by user"))
}

// finish releases the endpoint, zeroizes the session key, records the sync
// log row and publishes the terminal state.
func (e *engine) finish(err error) {
	e.mu.Lock()
	if e.sessionKey != nil {
		crypto.Zeroize(e.sessionKey)
		e.sessionKey = nil
	}
	peer := e.snap.Peer
	peerPubKey := e.peerPubKey
	direction := e.snap.Direction
	sent, applied := e.sent, e.applied
	startedAt := e.startedAt

	status := types.SyncStatusSuccess
	if err != nil {
		e.snap.State = StateError
		e.snap.Error = err.Error()
		if kind, ok := types.SyncErrKind(err); ok {
			e.snap.ErrorKind = kind
		}
		status = types.SyncStatusFailed
		if sent > 0 || applied > 0 {
			status = types.SyncStatusPartial
		}
	}
	e.snap.EntriesSent = sent
	e.snap.EntriesReceived = applied
	e.mu.Unlock()

	_ = e.endpoint.Close()

	completedAt := time.Now().UTC()
	if peer.ID != "" {
		logEntry := &types.SyncLogEntry{
			DeviceID:        peer.ID,
			Direction:       direction,
			EntriesSent:     sent,
			EntriesReceived: applied,
			Status:          status,
			StartedAt:       startedAt,
			CompletedAt:     &completedAt,
		}
		if err != nil {
			logEntry.ErrorMessage = err.Error()
		}
		if logErr := e.store.AppendSyncLog(logEntry); logErr != nil {
			e.logger.Error().Err(logErr).Msg("failed to record sync history")
		}

		if err == nil {
			pairErr := e.store.UpsertPairedDevice(&types.PairedDevice{
				DeviceID:   peer.ID,
				DeviceName: peer.Name,
				PublicKey:  peerPubKey,
			})
			if pairErr != nil {
				e.logger.Error().Err(pairErr).Msg("failed to record paired device")
			}
			if syncErr := e.store.TouchLastSync(peer.ID, completedAt); syncErr != nil {
				e.logger.Error().Err(syncErr).Msg("failed to stamp last sync time")
			}
		}
	}

	metrics.SyncsTotal.WithLabelValues(string(direction), string(status)).Inc()
	metrics.SyncDuration.Observe(completedAt.Sub(startedAt).Seconds())

	if err != nil {
		e.logger.Error().Err(err).Str("status", string(status)).Msg("sync finished with error")
		if e.broker != nil {
			e.broker.Publish(&events.Event{Type: events.EventSyncFailed, Message: err.Error()})
		}
	} else {
		e.logger.Info().
			Int("entries_sent", sent).
			Int("entries_received", applied).
			Msg("sync completed")
		if e.broker != nil {
			e.broker.Publish(&events.Event{Type: events.EventSyncCompleted})
		}
	}

	close(e.doneCh)
}
