// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package secrets keeps embedding API keys in the OS keyring and resolves
// keyring://service/key references found in configuration.
package secrets

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
	"github.com/zalando/go-keyring"

	semerr "github.com/sigil-dev/semdex/pkg/errors"
)

// DefaultService is the keyring service under which semdex stores keys.
const DefaultService = "semdex"

const scheme = "keyring://"

// Store reads and writes secrets.
type Store interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// Keyring implements Store with the OS keyring (Keychain, secret-service
// over D-Bus, or the Windows Credential Manager).
type Keyring struct{}

var _ Store = Keyring{}

func (Keyring) Get(service, key string) (string, error) {
	if err := checkRef(service, key); err != nil {
		return "", err
	}
	val, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", semerr.Errorf(semerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return "", semerr.Wrapf(err, semerr.CodeSecretStoreFailure, "reading secret %s/%s", service, key)
	}
	return val, nil
}

func (Keyring) Set(service, key, value string) error {
	if err := checkRef(service, key); err != nil {
		return err
	}
	if value == "" {
		return semerr.New(semerr.CodeSecretInvalidInput, "secret value must not be empty")
	}
	if err := keyring.Set(service, key, value); err != nil {
		return semerr.Wrapf(err, semerr.CodeSecretStoreFailure, "storing secret %s/%s", service, key)
	}
	return nil
}

func (Keyring) Delete(service, key string) error {
	if err := checkRef(service, key); err != nil {
		return err
	}
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return semerr.Errorf(semerr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	if err != nil {
		return semerr.Wrapf(err, semerr.CodeSecretStoreFailure, "deleting secret %s/%s", service, key)
	}
	return nil
}

func checkRef(service, key string) error {
	if service == "" || key == "" {
		return semerr.Errorf(semerr.CodeSecretInvalidInput, "secret service and key must not be empty (got %q/%q)", service, key)
	}
	return nil
}

// URI returns the keyring reference for key under DefaultService.
func URI(key string) string {
	return scheme + DefaultService + "/" + key
}

// IsURI reports whether value uses the keyring:// scheme.
func IsURI(value string) bool {
	return strings.HasPrefix(value, scheme)
}

// ParseURI splits keyring://service/key. The key may itself contain slashes.
func ParseURI(uri string) (service, key string, err error) {
	if !IsURI(uri) {
		return "", "", semerr.Errorf(semerr.CodeSecretInvalidInput, "not a keyring URI: %q", uri)
	}
	service, key, ok := strings.Cut(strings.TrimPrefix(uri, scheme), "/")
	if !ok || service == "" || key == "" {
		return "", "", semerr.Errorf(semerr.CodeSecretInvalidInput,
			"invalid keyring URI %q: expected keyring://service/key", uri)
	}
	return service, key, nil
}

// Resolve returns the secret behind a keyring URI, or value unchanged when
// it is not one.
func Resolve(store Store, value string) (string, error) {
	if !IsURI(value) {
		return value, nil
	}
	service, key, err := ParseURI(value)
	if err != nil {
		return "", err
	}
	secret, err := store.Get(service, key)
	if err != nil {
		return "", semerr.Wrapf(err, semerr.CodeSecretResolveFailure, "resolving %q", value)
	}
	return secret, nil
}

// ResolveViperSecrets replaces every keyring URI held by v with its secret.
// Failures are logged and the URI is left in place; the embedder using it
// then fails with an upstream auth error naming the key.
func ResolveViperSecrets(v *viper.Viper, store Store) {
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if !IsURI(val) {
			continue
		}
		resolved, err := Resolve(store, val)
		if err != nil {
			slog.Warn("keyring reference not resolved, keeping original value", "config_key", key, "error", err)
			continue
		}
		v.Set(key, resolved)
	}
}
