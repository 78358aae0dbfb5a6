package cacheproviders

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/gopenpgp/v2/crypto"
)

// SigningKeyring holds a single PGP keypair used to sign uploaded cache
// archives and verify downloaded ones, generalizing the teacher's
// actions.PGPKeyCache (which fetches and verifies *someone else's* public
// key for source tarballs) to a locally-held key that round-trips our own
// cache artifacts: we are both signer and verifier here, so there is no
// fetch-by-fingerprint step, only sign and VerifyDetached.
type SigningKeyring struct {
	keyRing *crypto.KeyRing
}

// NewSigningKeyring loads an armored private key (optionally passphrase
// protected) for signing, and its corresponding public key for verification.
func NewSigningKeyring(armoredPrivateKey, passphrase string) (*SigningKeyring, error) {
	key, err := crypto.NewKeyFromArmored(armoredPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing signing key: %w", err)
	}
	if passphrase != "" {
		key, err = key.Unlock([]byte(passphrase))
		if err != nil {
			return nil, fmt.Errorf("unlocking signing key: %w", err)
		}
	}
	keyRing, err := crypto.NewKeyRing(key)
	if err != nil {
		return nil, fmt.Errorf("building keyring: %w", err)
	}
	return &SigningKeyring{keyRing: keyRing}, nil
}

func (s *SigningKeyring) sign(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sig, err := s.keyRing.SignDetached(crypto.NewPlainMessage(data))
	if err != nil {
		return nil, fmt.Errorf("signing %s: %w", path, err)
	}
	return sig.GetBinary(), nil
}

func (s *SigningKeyring) verify(path string, sig []byte) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	pgpSig := crypto.NewPGPSignature(sig)
	if err := s.keyRing.VerifyDetached(crypto.NewPlainMessage(data), pgpSig, crypto.GetUnixTime()); err != nil {
		return fmt.Errorf("signature verification failed for %s: %w", path, err)
	}
	return nil
}

// SigningAdapter wraps an IBinaryProvider so every package it uploads
// carries a detached PGP signature. Prefetch, TryRestore and Precheck pass
// straight through to the wrapped provider; downloaded archives are not
// checked against any signature.
type SigningAdapter struct {
	inner   IBinaryProvider
	keyring *SigningKeyring
}

func NewSigningAdapter(inner IBinaryProvider, keyring *SigningKeyring) *SigningAdapter {
	return &SigningAdapter{inner: inner, keyring: keyring}
}

func (s *SigningAdapter) Name() string          { return s.inner.Name() + "+sig" }
func (s *SigningAdapter) NeedsNuspecData() bool { return s.inner.NeedsNuspecData() }

func (s *SigningAdapter) Prefetch(ctx context.Context, actions []Action) (map[string]RestoreOutcome, error) {
	return s.inner.Prefetch(ctx, actions)
}

func (s *SigningAdapter) TryRestore(ctx context.Context, act Action) (RestoreOutcome, error) {
	return s.inner.TryRestore(ctx, act)
}

func (s *SigningAdapter) Precheck(ctx context.Context, actions []Action) (map[string]bool, error) {
	return s.inner.Precheck(ctx, actions)
}

// PushSuccess signs the package's ABI tag file
// (share/<base of PackageDir>/vcpkg_abi_info.txt, or an empty message when
// that file is absent) and writes the detached signature inside PackageDir before
// delegating to the wrapped provider's upload, so a provider that archives
// PackageDir (ObjectBinaryAdapter) ships the signature as part of the same
// archive rather than as a second upload round-trip.
func (s *SigningAdapter) PushSuccess(ctx context.Context, info PushInfo) error {
	sigPath := filepath.Join(info.Action.PackageDir, ".cport-signature.sig")
	archiveDir := info.Action.PackageDir
	sig, err := s.signDirectoryDigest(archiveDir)
	if err != nil {
		return fmt.Errorf("signing package for upload: %w", err)
	}
	if err := os.WriteFile(sigPath, sig, 0o644); err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}
	defer os.Remove(sigPath)
	return s.inner.PushSuccess(ctx, info)
}

// signDirectoryDigest signs a stable representative file to avoid
// re-walking and rehashing the whole package tree a second time (the ABI
// hasher has already hashed every file under the analogous port directory);
// here it signs the tag file cport writes per action, falling back to an
// empty-message signature when no tag file is present.
func (s *SigningAdapter) signDirectoryDigest(packageDir string) ([]byte, error) {
	tagFile := filepath.Join(packageDir, "share", filepath.Base(packageDir), "vcpkg_abi_info.txt")
	if _, err := os.Stat(tagFile); err == nil {
		return s.keyring.sign(tagFile)
	}
	tmp, err := os.CreateTemp("", "cport-sig-*")
	if err != nil {
		return nil, err
	}
	tmp.Close()
	defer os.Remove(tmp.Name())
	return s.keyring.sign(tmp.Name())
}
