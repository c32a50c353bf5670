// Copyright 2025 Lantern Protocol
//
// RFC3161Backend requests a trusted timestamp token from a Time-Stamp
// Authority whose message imprint is SHA-256 of the hex anchor_hash. The
// TSA request/response envelope follows RFC 3161; only the primitives
// this module needs (hash the anchor hash, POST a TimeStampReq, store
// the raw TimeStampResp)
// are implemented here rather than a full ASN.1 TSP client.

package anchor

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/asn1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/lanternledger/ledger/internal/canon"
)

// oidSHA256 is the AlgorithmIdentifier OID for SHA-256, as required by
// the TimeStampReq messageImprint field.
var oidSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}

type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
	Null      asn1.RawValue `asn1:"optional"`
}

type messageImprint struct {
	HashAlgorithm algorithmIdentifier
	HashedMessage []byte
}

type timeStampReq struct {
	Version        int
	MessageImprint messageImprint
	ReqPolicy      asn1.ObjectIdentifier `asn1:"optional"`
	Nonce          *big.Int              `asn1:"optional"`
	CertReq        bool                  `asn1:"optional"`
}

// RFC3161Backend anchors via a configured TSA HTTP endpoint.
type RFC3161Backend struct {
	httpClient *http.Client
	tsaURL     string
}

// NewRFC3161Backend constructs a backend targeting the given TSA URL
// (spec §6 tsa.url). httpClient defaults to http.DefaultClient when nil.
func NewRFC3161Backend(tsaURL string, httpClient *http.Client) *RFC3161Backend {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &RFC3161Backend{httpClient: httpClient, tsaURL: tsaURL}
}

func (b *RFC3161Backend) Type() string { return "rfc3161" }

func (b *RFC3161Backend) Publish(ctx context.Context, in PublishInput) (string, []byte, error) {
	payload := in.Payload
	digest := canon.SHA256Hex(payload)
	imprint := canon.SHA256Raw([]byte(digest))

	nonce, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return "", nil, fmt.Errorf("generate tsa nonce: %w", err)
	}

	req := timeStampReq{
		Version: 1,
		MessageImprint: messageImprint{
			HashAlgorithm: algorithmIdentifier{Algorithm: oidSHA256},
			HashedMessage: imprint,
		},
		Nonce:   nonce,
		CertReq: true,
	}

	der, err := asn1.Marshal(req)
	if err != nil {
		return "", nil, fmt.Errorf("marshal timestamp request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tsaURL, bytes.NewReader(der))
	if err != nil {
		return "", nil, fmt.Errorf("build tsa request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/timestamp-query")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		return "", nil, fmt.Errorf("tsa request failed: %w", err)
	}
	defer resp.Body.Close()

	tokenDER, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("read tsa response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("tsa returned status %d", resp.StatusCode)
	}

	anchorID := fmt.Sprintf("rfc3161:%s:%s", b.tsaURL, digest[:16])
	proof := struct {
		TSAURL        string    `json:"tsa_url"`
		RequestedAt   time.Time `json:"requested_at"`
		PayloadSHA256 string    `json:"payload_sha256"`
		Imprint       string    `json:"message_imprint"`
		TokenBase64   string    `json:"token_der_base64"`
	}{
		TSAURL:        b.tsaURL,
		RequestedAt:   time.Now().UTC(),
		PayloadSHA256: digest,
		Imprint:       canon.SHA256Hex([]byte(digest)),
		TokenBase64:   base64.StdEncoding.EncodeToString(tokenDER),
	}
	proofBytes, err := json.Marshal(proof)
	if err != nil {
		return "", nil, err
	}
	return anchorID, proofBytes, nil
}
