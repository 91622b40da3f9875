package utils

import (
	"context"

	"request-workflow/pkg/contextkeys"
	apperrors "request-workflow/pkg/errors"
)

func GetActorIDFromCtx(ctx context.Context) (uint64, error) {
	actorID, ok := ctx.Value(contextkeys.ActorIDKey).(uint64)
	if !ok || actorID == 0 {
		return 0, apperrors.ErrActorNotFoundInContext
	}
	return actorID, nil
}

func GetActorRoleFromCtx(ctx context.Context) (string, error) {
	role, ok := ctx.Value(contextkeys.ActorRoleKey).(string)
	if !ok || role == "" {
		return "", apperrors.ErrActorNotFoundInContext
	}
	return role, nil
}
