package postgres

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/wolfeidau/projectkeeper/internal/store"
)

const taskTokenVersion = "v1"

// taskToken identifies one claim of a job.
// Wire format: base64url(version|job_id|queue|receipt_handle|hex(hmac_sha256)).
type taskToken struct {
	JobID         string
	Queue         string
	ReceiptHandle string
}

func (s *JobStore) sign(data string) string {
	h := hmac.New(sha256.New, s.cfg.TokenSigningSecret)
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *JobStore) encodeTaskToken(jobID, queue, receiptHandle string) string {
	data := strings.Join([]string{taskTokenVersion, jobID, queue, receiptHandle}, "|")
	return base64.URLEncoding.EncodeToString([]byte(data + "|" + s.sign(data)))
}

// decodeTaskToken verifies the signature with a constant time compare.
func (s *JobStore) decodeTaskToken(token string) (*taskToken, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: token cannot be empty", store.ErrInvalidTaskToken)
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid encoding: %v", store.ErrInvalidTaskToken, err)
	}

	parts := strings.Split(string(raw), "|")
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: expected 5 parts, got %d", store.ErrInvalidTaskToken, len(parts))
	}

	if parts[0] != taskTokenVersion {
		return nil, fmt.Errorf("%w: unsupported version %s", store.ErrInvalidTaskToken, parts[0])
	}

	for _, p := range parts[1:4] {
		if p == "" {
			return nil, fmt.Errorf("%w: empty component in token", store.ErrInvalidTaskToken)
		}
	}

	expected := s.sign(strings.Join(parts[:4], "|"))
	if !hmac.Equal([]byte(expected), []byte(parts[4])) {
		return nil, fmt.Errorf("%w: invalid signature", store.ErrInvalidTaskToken)
	}

	return &taskToken{JobID: parts[1], Queue: parts[2], ReceiptHandle: parts[3]}, nil
}
