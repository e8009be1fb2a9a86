// Copyright 2026 The Roleward Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// SignatureHeader carries the gateway delivery signature:
// "sha256=" followed by the hex HMAC-SHA256 of the raw body.
const SignatureHeader = "X-Gateway-Signature"

// maxEventBytes caps the accepted webhook body size. Gateway events
// are small; anything larger is hostile or broken.
const maxEventBytes = 1 << 20

// ReceiverConfig configures a webhook Receiver.
type ReceiverConfig struct {
	// Secret is the shared HMAC key for delivery signatures. Required.
	Secret []byte
	// Handler receives decoded events. Required.
	Handler EventHandler
	// Logger receives verification failures and handler panics.
	// If nil, discarded.
	Logger *slog.Logger
}

// Receiver is an http.Handler that verifies, decodes, and dispatches
// gateway event deliveries. Events are processed synchronously in the
// request goroutine; the platform retries non-2xx deliveries, so a
// decode or signature failure is reported with 4xx and everything
// after successful decode answers 204 regardless of handler outcome.
type Receiver struct {
	secret  []byte
	handler EventHandler
	logger  *slog.Logger
}

// NewReceiver creates a Receiver.
func NewReceiver(config ReceiverConfig) (*Receiver, error) {
	if len(config.Secret) == 0 {
		return nil, fmt.Errorf("platform: webhook Secret is required")
	}
	if config.Handler == nil {
		return nil, fmt.Errorf("platform: webhook Handler is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
	}
	return &Receiver{secret: config.Secret, handler: config.Handler, logger: logger}, nil
}

func (r *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(req.Body, maxEventBytes+1))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}
	if len(body) > maxEventBytes {
		http.Error(w, "payload too large", http.StatusRequestEntityTooLarge)
		return
	}

	if err := verifySignature(r.secret, req.Header.Get(SignatureHeader), body); err != nil {
		r.logger.Warn("webhook signature rejected", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		r.logger.Warn("webhook body rejected", "error", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// From here on the delivery is acknowledged. An event the handler
	// cannot process must not be redelivered forever.
	r.dispatchRecovering(env)
	w.WriteHeader(http.StatusNoContent)
}

// dispatchRecovering isolates the handler: a panic while processing
// one event is logged and swallowed so subsequent events still flow.
func (r *Receiver) dispatchRecovering(env envelope) {
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("event handler panicked",
				"event_type", env.Type,
				"panic", recovered,
			)
		}
	}()

	if err := dispatch(r.handler, env); err != nil {
		r.logger.Warn("event dropped", "event_type", env.Type, "error", err)
	}
}

// verifySignature checks the "sha256=<hex>" HMAC header against the
// raw body.
func verifySignature(secret []byte, header string, body []byte) error {
	if header == "" {
		return errors.New("missing signature header")
	}
	hexSignature := strings.TrimPrefix(header, "sha256=")
	signature, err := hex.DecodeString(hexSignature)
	if err != nil {
		return fmt.Errorf("invalid hex signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := mac.Sum(nil)

	if subtle.ConstantTimeCompare(expected, signature) != 1 {
		return errors.New("signature mismatch")
	}
	return nil
}

// Sign computes the signature header value for a body. Used by tests
// and by the platform's delivery simulator.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
