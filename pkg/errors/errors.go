// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/samber/oops"
)

// Code is the machine-readable identifier for an error.
type Code string

const (
	CodeStoreIndexGetNotFound    Code = "store.index.get.not_found"
	CodeStoreIndexCreateInvalid  Code = "store.index.create.invalid_input"
	CodeStoreIndexCreateConflict Code = "store.index.create.conflict"
	CodeStoreIndexLeaseConflict  Code = "store.index.lease.conflict"
	CodeStoreRecordGetNotFound   Code = "store.record.get.not_found"
	CodeStoreRecordPutInvalid    Code = "store.record.put.invalid_input"
	CodeStoreItemUpsertInvalid   Code = "store.item.upsert.invalid_input"
	CodeStoreVectorQueryFailure  Code = "store.vector.query.database_failure"
	CodeStoreDatabaseFailure     Code = "store.database.failure"
	CodeStoreBackendUnsupported  Code = "store.backend.unsupported"
	CodeStoreConflict            Code = "store.conflict"
	CodeStoreInvalidInput        Code = "store.invalid_input"

	CodeConfigLoadReadFailure      Code = "config.load.read.failure"
	CodeConfigParseInvalidFormat   Code = "config.parse.invalid_format"
	CodeConfigValidateInvalidValue Code = "config.validate.invalid_value"

	CodeSecretInvalidInput   Code = "secret.input.invalid"
	CodeSecretNotFound       Code = "secret.get.not_found"
	CodeSecretResolveFailure Code = "secret.resolve.failure"
	CodeSecretStoreFailure   Code = "secret.store.failure"

	CodeEmbedRequestInvalid  Code = "embed.request.invalid"
	CodeEmbedResponseInvalid Code = "embed.response.invalid"
	CodeEmbedUpstreamFailure Code = "embed.upstream.failure"
	CodeEmbedNotFound        Code = "embed.registry.not_found"
	CodeEmbedConflict        Code = "embed.registry.conflict"

	CodeVectorProviderNotFound Code = "vector.provider.not_found"
	CodeVectorProviderConflict Code = "vector.provider.register.conflict"
	CodeVectorConfigInvalid    Code = "vector.config.invalid"
	CodeVectorUpstreamFailure  Code = "vector.upstream.failure"

	CodeIndexerSyncFailure   Code = "indexer.sync.failure"
	CodeIndexerBatchFailure  Code = "indexer.batch.failure"
	CodeIndexerNoActiveIndex Code = "indexer.index.active.not_found"
	CodeIndexerLaneClosed    Code = "indexer.lane.closed"
	CodeIndexerQueryInvalid  Code = "indexer.query.invalid_input"

	CodeSchedulerTaskFailure   Code = "scheduler.task.failure"
	CodeSchedulerConfigInvalid Code = "scheduler.config.invalid_value"

	CodeRedactConfigInvalid  Code = "redact.config.invalid_value"
	CodeRedactContentBlocked Code = "redact.content.blocked"

	CodeEventsBusClosed    Code = "events.bus.closed"
	CodeEventsTopicInvalid Code = "events.topic.invalid"

	CodeServerInternalFailure Code = "server.internal.failure"
	CodeServerConfigInvalid   Code = "server.config.invalid"
	CodeServerStartFailure    Code = "server.start.failure"
	CodeServerShutdownFailure Code = "server.shutdown.failure"

	CodeCLISetupFailure     Code = "cli.setup.failure"
	CodeCLIInputInvalid     Code = "cli.input.invalid"
	CodeCLIServerNotRunning Code = "cli.server.not_running"
)

// Attr is a structured key/value context attached to an error.
type Attr struct {
	Key   string
	Value any
}

// FieldValue creates a structured error field.
func FieldValue(key string, value any) Attr {
	return Attr{Key: key, Value: value}
}

// Field is kept as the primary helper for terse callsites.
func Field(key string, value any) Attr {
	return FieldValue(key, value)
}

func FieldIndexID(value string) Attr {
	return Field("index_id", value)
}

func FieldRecordID(value string) Attr {
	return Field("record_id", value)
}

func FieldProvider(value string) Attr {
	return Field("provider", value)
}

func FieldEmbedder(value string) Attr {
	return Field("embedder", value)
}

func New(code Code, msg string, fields ...Attr) error {
	return oops.Code(code).With(flatten(fields)...).New(msg)
}

func Errorf(code Code, format string, args ...any) error {
	return oops.Code(code).Errorf(format, args...)
}

func Wrap(err error, code Code, msg string, fields ...Attr) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).With(flatten(fields)...).Wrapf(err, "%s", msg)
}

func Wrapf(err error, code Code, format string, args ...any) error {
	if err == nil {
		return nil
	}

	return oops.Code(code).Wrapf(err, format, args...)
}

// With adds structured fields to an existing error chain.
func With(err error, fields ...Attr) error {
	if err == nil {
		return nil
	}

	code := CodeOf(err)
	if code == "" {
		code = CodeServerInternalFailure
	}

	return oops.Code(code).With(flatten(fields)...).Wrap(err)
}

func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}

	if code, ok := oopsErr.Code().(Code); ok {
		return code
	}

	if code, ok := oopsErr.Code().(string); ok {
		return Code(code)
	}

	return Code(fmt.Sprintf("%v", oopsErr.Code()))
}

func FieldsOf(err error) map[string]any {
	if err == nil {
		return nil
	}

	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return nil
	}

	return oopsErr.Context()
}

func HasCode(err error, code Code) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

func IsNotFound(err error) bool {
	return reason(CodeOf(err)) == "not_found"
}

func IsConflict(err error) bool {
	return reason(CodeOf(err)) == "conflict"
}

func IsInvalidInput(err error) bool {
	r := reason(CodeOf(err))
	return r == "invalid" || r == "invalid_input" || r == "invalid_value" || r == "invalid_format"
}

func IsUpstreamFailure(err error) bool {
	code := CodeOf(err)
	return strings.Contains(string(code), "upstream") && reason(code) == "failure"
}

func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsUpstreamFailure(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func Join(errs ...error) error {
	return oops.Code(CodeServerInternalFailure).Wrap(stderrors.Join(errs...))
}

func flatten(fields []Attr) []any {
	pairs := make([]any, 0, len(fields)*2)
	for _, field := range fields {
		if field.Key == "" {
			continue
		}
		pairs = append(pairs, field.Key, field.Value)
	}
	return pairs
}

func reason(code Code) string {
	if code == "" {
		return ""
	}

	raw := string(code)
	idx := strings.LastIndex(raw, ".")
	if idx == -1 || idx == len(raw)-1 {
		return raw
	}
	return raw[idx+1:]
}
