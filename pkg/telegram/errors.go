package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"atg_engage/pkg/orchestrator"

	"github.com/gotd/td/tgerr"
)

// Ошибки RPC, после которых писать в канал от имени аккаунта нельзя.
var permissionErrors = []string{
	"CHAT_WRITE_FORBIDDEN",
	"CHAT_ADMIN_REQUIRED",
	"CHAT_GUEST_SEND_FORBIDDEN",
	"CHAT_SEND_PLAIN_FORBIDDEN",
	"CHANNEL_PRIVATE",
	"CHANNEL_BANNED",
	"USER_BANNED_IN_CHANNEL",
	"USER_RESTRICTED",
	"PEER_FLOOD",
}

// Ошибки, означающие, что сессия аккаунта больше не действительна.
var sessionErrors = []string{
	"AUTH_KEY_UNREGISTERED",
	"AUTH_KEY_DUPLICATED",
	"SESSION_REVOKED",
	"SESSION_EXPIRED",
	"USER_DEACTIVATED",
	"USER_DEACTIVATED_BAN",
}

// Ошибки вступления в канал.
var joinErrors = []string{
	"CHANNELS_TOO_MUCH",
	"INVITE_REQUEST_SENT",
	"INVITE_HASH_EXPIRED",
	"CHANNEL_INVALID",
}

// mapError переводит ошибку gotd в категорию оркестратора.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if d, ok := tgerr.AsFloodWait(err); ok {
		return orchestrator.RateLimited(d)
	}
	switch {
	case tgerr.Is(err, permissionErrors...):
		return fmt.Errorf("%w: %v", orchestrator.ErrPermissionDenied, err)
	case tgerr.Is(err, sessionErrors...):
		return fmt.Errorf("%w: %v", orchestrator.ErrSessionUnavailable, err)
	case tgerr.Is(err, "REACTION_INVALID", "REACTIONS_TOO_MANY"):
		return fmt.Errorf("%w: %v", orchestrator.ErrReactionsDisabled, err)
	}
	if rpcErr, ok := tgerr.As(err); ok {
		if rpcErr.Code >= 500 {
			return fmt.Errorf("%w: %v", orchestrator.ErrTransientNetwork, err)
		}
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", orchestrator.ErrTransientNetwork, err)
	}
	return err
}

// mapJoinError дополнительно сводит отказ во вступлении к ErrJoin.
// Повторное вступление ошибкой не считается.
func mapJoinError(err error) error {
	if err == nil || tgerr.Is(err, "USER_ALREADY_PARTICIPANT") {
		return nil
	}
	if tgerr.Is(err, joinErrors...) {
		return fmt.Errorf("%w: %v", orchestrator.ErrJoin, err)
	}
	mapped := mapError(err)
	var rl *orchestrator.RateLimitedError
	if errors.As(mapped, &rl) || errors.Is(mapped, orchestrator.ErrTransientNetwork) ||
		errors.Is(mapped, orchestrator.ErrSessionUnavailable) ||
		errors.Is(mapped, context.Canceled) || errors.Is(mapped, context.DeadlineExceeded) {
		return mapped
	}
	return fmt.Errorf("%w: %v", orchestrator.ErrJoin, err)
}
