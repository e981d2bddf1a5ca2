package events

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/Tessera-Labs/coffer/pkg/archive"
)

var (
	ErrNoEvents    = errors.New("events: no events for campaign")
	ErrPackInvalid = errors.New("events: statement pack failed verification")
)

const statementVersion = "1.0.0"

// Pack member file names.
const (
	packManifestFile  = "manifest.json"
	packEventsFile    = "events.json"
	packSignatureFile = "signature.json"
)

// StatementManifest describes an exported statement pack. EventsHash
// covers the exact bytes of events.json; the signature covers the
// exact bytes of manifest.json.
type StatementManifest struct {
	PackID     string    `json:"pack_id"`
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	CampaignID uint64    `json:"campaign_id"`
	EventCount int       `json:"event_count"`
	FirstSeq   uint64    `json:"first_sequence"`
	LastSeq    uint64    `json:"last_sequence"`
	ChainHead  string    `json:"chain_head"`
	EventsHash string    `json:"events_hash"`
}

type statementSignature struct {
	Algorithm string `json:"algorithm"`
	PublicKey string `json:"public_key"`
	Digest    string `json:"digest"`
	Signature string `json:"signature"`
}

// StatementReceipt points at a stored pack.
type StatementReceipt struct {
	Key        string `json:"key"`
	PackID     string `json:"pack_id"`
	CampaignID uint64 `json:"campaign_id"`
	EventCount int    `json:"event_count"`
	ChainHead  string `json:"chain_head"`
}

// Exporter bundles a campaign's journal slice into a signed zip pack
// and stores it content-addressed.
type Exporter struct {
	journal *Journal
	root    *MemoryKeyProvider
	store   archive.Store
	clock   func() time.Time
}

// NewExporter wires a journal, a root signing key and a pack store.
func NewExporter(journal *Journal, root *MemoryKeyProvider, store archive.Store) *Exporter {
	return &Exporter{journal: journal, root: root, store: store, clock: time.Now}
}

// WithClock overrides the timestamp source.
func (x *Exporter) WithClock(clock func() time.Time) *Exporter {
	x.clock = clock
	return x
}

// ExportStatement packs every journal event of the campaign, signs the
// manifest with a campaign-derived key and stores the zip.
func (x *Exporter) ExportStatement(ctx context.Context, campaignID uint64) (StatementReceipt, error) {
	evs := x.journal.Query(Filter{CampaignID: campaignID})
	if len(evs) == 0 {
		return StatementReceipt{}, ErrNoEvents
	}

	eventsJSON, err := canonicalJSON(evs)
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("events: encode pack events: %w", err)
	}

	manifest := StatementManifest{
		PackID:     uuid.New().String(),
		Version:    statementVersion,
		CreatedAt:  x.clock().UTC(),
		CampaignID: campaignID,
		EventCount: len(evs),
		FirstSeq:   evs[0].Sequence,
		LastSeq:    evs[len(evs)-1].Sequence,
		ChainHead:  evs[len(evs)-1].Hash,
		EventsHash: hashBytes(eventsJSON),
	}
	manifestJSON, err := canonicalJSON(manifest)
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("events: encode manifest: %w", err)
	}

	key, err := x.root.DeriveForCampaign(campaignID)
	if err != nil {
		return StatementReceipt{}, err
	}
	sig, err := key.Sign(manifestJSON)
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("events: sign manifest: %w", err)
	}
	sigJSON, err := canonicalJSON(statementSignature{
		Algorithm: "ed25519",
		PublicKey: base64.StdEncoding.EncodeToString(key.PublicKey()),
		Digest:    hashBytes(manifestJSON),
		Signature: base64.StdEncoding.EncodeToString(sig),
	})
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("events: encode signature: %w", err)
	}

	pack, err := buildPack(map[string][]byte{
		packManifestFile:  manifestJSON,
		packEventsFile:    eventsJSON,
		packSignatureFile: sigJSON,
	})
	if err != nil {
		return StatementReceipt{}, err
	}

	storeKey, err := x.store.Put(ctx, pack)
	if err != nil {
		return StatementReceipt{}, fmt.Errorf("events: store pack: %w", err)
	}
	return StatementReceipt{
		Key:        storeKey,
		PackID:     manifest.PackID,
		CampaignID: campaignID,
		EventCount: manifest.EventCount,
		ChainHead:  manifest.ChainHead,
	}, nil
}

// VerifyStored fetches a pack, runs the self-contained checks and then
// binds the embedded key to the campaign derived from the root key.
func (x *Exporter) VerifyStored(ctx context.Context, key string) (StatementManifest, error) {
	data, err := x.store.Get(ctx, key)
	if err != nil {
		return StatementManifest{}, err
	}
	manifest, pub, err := verifyPack(data)
	if err != nil {
		return StatementManifest{}, err
	}

	derived, err := x.root.DeriveForCampaign(manifest.CampaignID)
	if err != nil {
		return StatementManifest{}, err
	}
	if !derived.PublicKey().Equal(pub) {
		return StatementManifest{}, fmt.Errorf("%w: signer key does not match campaign %d",
			ErrPackInvalid, manifest.CampaignID)
	}
	return manifest, nil
}

// VerifyStatementPack checks a pack without a trust anchor: the zip
// layout, the events hash, every event's own hashes, the sequence
// order and the manifest signature under the embedded key.
func VerifyStatementPack(data []byte) (StatementManifest, error) {
	manifest, _, err := verifyPack(data)
	return manifest, err
}

func verifyPack(data []byte) (StatementManifest, ed25519.PublicKey, error) {
	files, err := readPack(data)
	if err != nil {
		return StatementManifest{}, nil, err
	}
	manifestJSON, ok := files[packManifestFile]
	if !ok {
		return StatementManifest{}, nil, fmt.Errorf("%w: missing %s", ErrPackInvalid, packManifestFile)
	}
	eventsJSON, ok := files[packEventsFile]
	if !ok {
		return StatementManifest{}, nil, fmt.Errorf("%w: missing %s", ErrPackInvalid, packEventsFile)
	}
	sigJSON, ok := files[packSignatureFile]
	if !ok {
		return StatementManifest{}, nil, fmt.Errorf("%w: missing %s", ErrPackInvalid, packSignatureFile)
	}

	var manifest StatementManifest
	if err := json.Unmarshal(manifestJSON, &manifest); err != nil {
		return StatementManifest{}, nil, fmt.Errorf("%w: decode manifest: %v", ErrPackInvalid, err)
	}
	if got := hashBytes(eventsJSON); got != manifest.EventsHash {
		return StatementManifest{}, nil, fmt.Errorf("%w: events hash mismatch (computed %s, manifest %s)",
			ErrPackInvalid, got, manifest.EventsHash)
	}

	var evs []Event
	if err := json.Unmarshal(eventsJSON, &evs); err != nil {
		return StatementManifest{}, nil, fmt.Errorf("%w: decode events: %v", ErrPackInvalid, err)
	}
	if err := checkPackEvents(evs, manifest); err != nil {
		return StatementManifest{}, nil, err
	}

	var sig statementSignature
	if err := json.Unmarshal(sigJSON, &sig); err != nil {
		return StatementManifest{}, nil, fmt.Errorf("%w: decode signature: %v", ErrPackInvalid, err)
	}
	if sig.Algorithm != "ed25519" {
		return StatementManifest{}, nil, fmt.Errorf("%w: unsupported algorithm %s", ErrPackInvalid, sig.Algorithm)
	}
	pub, err := base64.StdEncoding.DecodeString(sig.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return StatementManifest{}, nil, fmt.Errorf("%w: malformed public key", ErrPackInvalid)
	}
	rawSig, err := base64.StdEncoding.DecodeString(sig.Signature)
	if err != nil {
		return StatementManifest{}, nil, fmt.Errorf("%w: malformed signature", ErrPackInvalid)
	}
	if sig.Digest != hashBytes(manifestJSON) {
		return StatementManifest{}, nil, fmt.Errorf("%w: manifest digest mismatch", ErrPackInvalid)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), manifestJSON, rawSig) {
		return StatementManifest{}, nil, fmt.Errorf("%w: signature check failed", ErrPackInvalid)
	}
	return manifest, ed25519.PublicKey(pub), nil
}

// checkPackEvents validates the per-event hashes and ordering. Pack
// events are a campaign's slice of the journal, so sequences increase
// but need not be contiguous and prev hashes may point at events of
// other campaigns.
func checkPackEvents(evs []Event, manifest StatementManifest) error {
	if len(evs) != manifest.EventCount {
		return fmt.Errorf("%w: event count mismatch (found %d, manifest %d)",
			ErrPackInvalid, len(evs), manifest.EventCount)
	}
	var prevSeq uint64
	for i, e := range evs {
		if e.CampaignID != manifest.CampaignID {
			return fmt.Errorf("%w: entry %d belongs to campaign %d", ErrPackInvalid, i, e.CampaignID)
		}
		if e.Sequence <= prevSeq {
			return fmt.Errorf("%w: entry %d breaks sequence order", ErrPackInvalid, i)
		}
		prevSeq = e.Sequence
		if got := hashBytes(e.Payload); got != e.PayloadHash {
			return fmt.Errorf("%w: entry %d payload hash mismatch", ErrPackInvalid, i)
		}
		computed, err := eventHash(e)
		if err != nil {
			return fmt.Errorf("%w: entry %d hash computation failed: %v", ErrPackInvalid, i, err)
		}
		if computed != e.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrPackInvalid, i)
		}
	}
	if evs[0].Sequence != manifest.FirstSeq || evs[len(evs)-1].Sequence != manifest.LastSeq {
		return fmt.Errorf("%w: sequence range does not match manifest", ErrPackInvalid)
	}
	if evs[len(evs)-1].Hash != manifest.ChainHead {
		return fmt.Errorf("%w: chain head does not match manifest", ErrPackInvalid)
	}
	return nil
}

func buildPack(files map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range []string{packManifestFile, packEventsFile, packSignatureFile} {
		w, err := zw.Create(name)
		if err != nil {
			return nil, fmt.Errorf("events: build pack: %w", err)
		}
		if _, err := w.Write(files[name]); err != nil {
			return nil, fmt.Errorf("events: build pack: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("events: build pack: %w", err)
	}
	return buf.Bytes(), nil
}

func readPack(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: not a zip archive: %v", ErrPackInvalid, err)
	}
	files := make(map[string][]byte, len(zr.File))
	for _, f := range zr.File {
		r, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrPackInvalid, f.Name, err)
		}
		content, err := io.ReadAll(r)
		_ = r.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrPackInvalid, f.Name, err)
		}
		files[f.Name] = content
	}
	return files, nil
}
