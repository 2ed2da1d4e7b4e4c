package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"declutter-go/internal/declutter"
)

// encryptedSuffix marks age-encrypted report exports.
const encryptedSuffix = ".age"

// ErrNoArchive is returned by archive-backed operations when no archive is configured.
var ErrNoArchive = errors.New("no archive configured")

// ExportReport runs an analysis and stores the report JSON in the archive
// under reports/<owner>/<timestamp>.json, sealed with the report key pair
// when encrypt is set. It returns the archive key.
func (a *DeclutterApp) ExportReport(ctx context.Context, ownerID int64, encrypt bool) (string, error) {
	if a.archive == nil {
		return "", ErrNoArchive
	}
	if encrypt && !a.encryptor.IsConfigured() {
		return "", fmt.Errorf("encryption keys not set up: run `declutter keys init`")
	}

	report, err := a.Analyze(ctx, ownerID)
	if err != nil {
		return "", err
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return "", a.op.Fail(fmt.Errorf("encoding report: %w", err))
	}

	key := fmt.Sprintf("reports/%d/%s.json", ownerID, report.GeneratedAt.UTC().Format("20060102T150405Z"))
	data := body.Bytes()
	if encrypt {
		var sealed bytes.Buffer
		if err := a.encryptor.Encrypt(&body, &sealed); err != nil {
			return "", a.op.Fail(fmt.Errorf("encrypting report: %w", err))
		}
		data = sealed.Bytes()
		key += encryptedSuffix
	}

	if err := a.archive.Put(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", a.op.Fail(fmt.Errorf("storing report: %w", err))
	}
	a.logger.Info("report exported", "owner_id", ownerID, "key", key, "encrypted", encrypt)
	return key, nil
}

// ListReports returns the archive keys of the owner's exported reports.
func (a *DeclutterApp) ListReports(ctx context.Context, ownerID int64) ([]string, error) {
	if a.archive == nil {
		return nil, ErrNoArchive
	}
	return a.archive.List(ctx, fmt.Sprintf("reports/%d/", ownerID))
}

// OpenReport writes the report stored under key to w. Encrypted reports are
// decrypted with the private key unlocked by the passphrase from passphrase,
// which is only called for encrypted reports.
func (a *DeclutterApp) OpenReport(ctx context.Context, key string, passphrase func() (string, error), w io.Writer) error {
	if a.archive == nil {
		return ErrNoArchive
	}

	var stored bytes.Buffer
	if err := a.archive.Get(ctx, key, &stored); err != nil {
		return fmt.Errorf("fetching report: %w", err)
	}
	if !strings.HasSuffix(key, encryptedSuffix) {
		_, err := io.Copy(w, &stored)
		return err
	}

	pass, err := passphrase()
	if err != nil {
		return fmt.Errorf("reading passphrase: %w", err)
	}
	var dc declutter.DecryptionContext
	if dc, err = a.encryptor.Unlock(pass); err != nil {
		return fmt.Errorf("unlocking private key: %w", err)
	}
	if err := dc.Decrypt(&stored, w); err != nil {
		return fmt.Errorf("decrypting report: %w", err)
	}
	return nil
}
